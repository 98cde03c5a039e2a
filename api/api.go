// Package api provides the Forge HTTP surface of a lanes engine: job
// submission per lane, job inspection and cancellation, server-sent
// event streams and operational statistics.
package api

import (
	"net/http"

	"github.com/xraph/forge"

	"github.com/tavlicon/lanes/engine"
	"github.com/tavlicon/lanes/job"
)

// API wires all Forge-style HTTP handlers together for a lanes engine.
type API struct {
	eng    *engine.Engine
	router forge.Router
}

// New creates an API from a lanes Engine.
func New(eng *engine.Engine, router forge.Router) *API {
	return &API{eng: eng, router: router}
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	if a.router == nil {
		a.router = forge.NewRouter()
	}
	a.RegisterRoutes(a.router)
	return a.router.Handler()
}

// RegisterRoutes registers all lanes API routes into the given Forge
// router with full OpenAPI metadata.
func (a *API) RegisterRoutes(router forge.Router) {
	a.registerSubmitRoutes(router)
	a.registerJobRoutes(router)
	a.registerStreamRoutes(router)
	a.registerStatsRoutes(router)
}

// registerSubmitRoutes registers one submission route per lane.
func (a *API) registerSubmitRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("submit"))

	_ = g.POST("/jobs/image_edit", a.submitImageEdit,
		forge.WithSummary("Submit image edit"),
		forge.WithDescription("Queues an image-to-image generation. Returns 429 when the lane is full."),
		forge.WithOperationID("submitImageEdit"),
		forge.WithRequestSchema(SubmitImageEditRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job admitted", SubmitResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/mesh_gen", a.submitMeshGen,
		forge.WithSummary("Submit mesh generation"),
		forge.WithDescription("Queues a single-image mesh reconstruction. Returns 429 when the lane is full."),
		forge.WithOperationID("submitMeshGen"),
		forge.WithRequestSchema(SubmitMeshGenRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job admitted", SubmitResponse{}),
		forge.WithErrorResponses(),
	)
}

// registerJobRoutes registers job inspection and control routes.
func (a *API) registerJobRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("jobs"))

	_ = g.GET("/jobs", a.listJobs,
		forge.WithSummary("List jobs"),
		forge.WithDescription("Returns jobs filtered by lane and status, newest first."),
		forge.WithOperationID("listJobs"),
		forge.WithRequestSchema(ListJobsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Job list", []*job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/counts", a.jobCounts,
		forge.WithSummary("Job counts"),
		forge.WithDescription("Returns job counts grouped by status."),
		forge.WithOperationID("jobCounts"),
		forge.WithResponseSchema(http.StatusOK, "Job counts", JobCountsResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/:jobId", a.getJob,
		forge.WithSummary("Get job"),
		forge.WithDescription("Returns status, progress and outcome of a job."),
		forge.WithOperationID("getJob"),
		forge.WithResponseSchema(http.StatusOK, "Job details", &job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/:jobId/history", a.jobHistory,
		forge.WithSummary("Job event history"),
		forge.WithDescription("Returns the retained event history of a job, oldest first."),
		forge.WithOperationID("jobHistory"),
		forge.WithResponseSchema(http.StatusOK, "Job events", []*job.Event{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/jobs/:jobId/wait", a.waitJob,
		forge.WithSummary("Wait for job"),
		forge.WithDescription("Blocks until the job is terminal or the timeout elapses (408)."),
		forge.WithOperationID("waitJob"),
		forge.WithRequestSchema(WaitJobRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Terminal job", &job.Job{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/jobs/:jobId/cancel", a.cancelJob,
		forge.WithSummary("Cancel job"),
		forge.WithDescription("Cancels a queued job immediately, or flags a running job for cooperative cancellation."),
		forge.WithOperationID("cancelJob"),
		forge.WithResponseSchema(http.StatusOK, "Job status after the request", CancelResponse{}),
		forge.WithErrorResponses(),
	)
}

// registerStreamRoutes registers the server-sent event stream.
func (a *API) registerStreamRoutes(router forge.Router) {
	_ = router.EventStream("/v1/jobs/:jobId/events", a.streamJobEvents)
}

// registerStatsRoutes registers operational routes.
func (a *API) registerStatsRoutes(router forge.Router) {
	g := router.Group("/v1", forge.WithGroupTags("stats"))

	_ = g.GET("/stats", a.stats,
		forge.WithSummary("Lanes stats"),
		forge.WithDescription("Returns job counts, lane queues, resource permits and sweeper activity."),
		forge.WithOperationID("lanesStats"),
		forge.WithResponseSchema(http.StatusOK, "Lanes statistics", engine.Stats{}),
		forge.WithErrorResponses(),
	)

	_ = g.POST("/cleanup", a.cleanup,
		forge.WithSummary("Run cleanup"),
		forge.WithDescription("Evicts expired terminal jobs immediately."),
		forge.WithOperationID("runCleanup"),
		forge.WithResponseSchema(http.StatusOK, "Cleanup result", CleanupResponse{}),
		forge.WithErrorResponses(),
	)

	_ = g.GET("/health", a.health,
		forge.WithSummary("Health"),
		forge.WithDescription("Reports whether lane workers are running."),
		forge.WithOperationID("health"),
		forge.WithResponseSchema(http.StatusOK, "Healthy", HealthResponse{}),
		forge.WithErrorResponses(),
	)
}
