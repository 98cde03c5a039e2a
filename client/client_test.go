package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	forgetesting "github.com/xraph/forge/testing"

	"github.com/tavlicon/lanes"
	"github.com/tavlicon/lanes/client"
	"github.com/tavlicon/lanes/engine"
	"github.com/tavlicon/lanes/id"
	"github.com/tavlicon/lanes/job"
	"github.com/tavlicon/lanes/lwp"
	"github.com/tavlicon/lanes/queue"
	"github.com/tavlicon/lanes/workload"
)

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// setupClientTest creates a Forge app with LWP routes on an httptest
// server, then dials a Go client. The engine is not started.
func setupClientTest(t *testing.T, opts ...engine.Option) (*client.Client, *engine.Engine) {
	t.Helper()

	rt, err := lanes.New(lanes.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("lanes.New: %v", err)
	}
	eng, err := engine.Build(rt, opts...)
	if err != nil {
		t.Fatalf("engine.Build: %v", err)
	}

	engine.Register(eng, job.NewDefinition(job.LaneImageEdit,
		func(_ context.Context, req workload.ImageEditRequest, r job.Reporter) (any, error) {
			for i := 1; i <= 3; i++ {
				r.Progress(i, 3, "denoise")
			}
			return map[string]int64{"seed": req.Params.Seed}, nil
		}))
	engine.Register(eng, job.NewDefinition(job.LaneMeshGen,
		func(_ context.Context, _ workload.MeshGenRequest, _ job.Reporter) (any, error) {
			return map[string]string{"mesh": "ok"}, nil
		}))

	logger := testLogger()
	srv := lwp.NewServer(eng, lwp.NewHandler(eng, logger), lwp.WithLogger(logger))

	fapp := forgetesting.NewTestApp("client-test-app", "0.1.0")
	srv.RegisterRoutes(fapp.Router())
	ts := httptest.NewServer(fapp.Router())

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/lwp"
	c, dialErr := client.DialContext(context.Background(), wsURL, client.WithLogger(logger))
	if dialErr != nil {
		ts.Close()
		t.Fatalf("DialContext: %v", dialErr)
	}

	t.Cleanup(func() {
		_ = c.Close()
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})
	return c, eng
}

func imageRequest() workload.ImageEditRequest {
	p := workload.DefaultImageEditParams()
	p.PositivePrompt = "a watercolor fox"
	return workload.ImageEditRequest{Image: []byte("png"), Params: p}
}

// ── Connection Tests ──────────────────────────────────

func TestClient_DialAndClose(t *testing.T) {
	c, _ := setupClientTest(t)

	if c.SessionID() == "" {
		t.Error("expected non-empty session ID after dial")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// ── Job Tests ─────────────────────────────────────────

func TestClient_SubmitAndGet(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	res, err := c.Submit(ctx, job.LaneImageEdit, imageRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.JobID == "" {
		t.Fatal("expected non-empty job_id")
	}
	if res.Status != job.StateQueued {
		t.Errorf("status = %q, want queued", res.Status)
	}

	j, err := c.GetJob(ctx, res.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.ID.String() != res.JobID {
		t.Errorf("job_id = %q, want %q", j.ID, res.JobID)
	}
	if j.Lane != job.LaneImageEdit {
		t.Errorf("lane = %q, want image_edit", j.Lane)
	}
}

func TestClient_SubmitInvalidParams(t *testing.T) {
	c, _ := setupClientTest(t)

	req := imageRequest()
	req.Params.Steps = 1
	req.Params.Denoise = 0.1
	_, err := c.Submit(context.Background(), job.LaneImageEdit, req)
	if !errors.Is(err, lanes.ErrInvalidArgs) {
		t.Fatalf("err = %v, want ErrInvalidArgs", err)
	}
}

func TestClient_SubmitQueueFull(t *testing.T) {
	c, _ := setupClientTest(t, engine.WithLane(queue.Config{Lane: job.LaneImageEdit, Capacity: 1}))
	ctx := context.Background()

	if _, err := c.Submit(ctx, job.LaneImageEdit, imageRequest()); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	_, err := c.Submit(ctx, job.LaneImageEdit, imageRequest())
	if !errors.Is(err, lanes.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	var wireErr *client.Error
	if !errors.As(err, &wireErr) || wireErr.Message != lanes.QueueFullMessage {
		t.Errorf("err = %v, want message %q", err, lanes.QueueFullMessage)
	}
}

func TestClient_CancelJob(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	res, err := c.Submit(ctx, job.LaneImageEdit, imageRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	out, err := c.CancelJob(ctx, res.JobID)
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if out.State != string(job.StateCancelled) {
		t.Errorf("status = %q, want cancelled", out.State)
	}

	j, err := c.GetJob(ctx, res.JobID)
	if err != nil {
		t.Fatalf("GetJob after cancel: %v", err)
	}
	if j.State != job.StateCancelled {
		t.Errorf("state = %q, want cancelled", j.State)
	}
}

func TestClient_NotFound(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()
	missing := id.NewJobID().String()

	if _, err := c.GetJob(ctx, missing); !errors.Is(err, lanes.ErrJobNotFound) {
		t.Errorf("GetJob err = %v, want ErrJobNotFound", err)
	}
	if _, err := c.CancelJob(ctx, missing); !errors.Is(err, lanes.ErrJobNotFound) {
		t.Errorf("CancelJob err = %v, want ErrJobNotFound", err)
	}
	if _, err := c.Follow(ctx, missing); !errors.Is(err, lanes.ErrJobNotFound) {
		t.Errorf("Follow err = %v, want ErrJobNotFound", err)
	}
}

func TestClient_WaitAndList(t *testing.T) {
	c, eng := setupClientTest(t)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	res, err := c.Submit(ctx, job.LaneMeshGen, workload.MeshGenRequest{
		Image:  []byte("png"),
		Params: workload.DefaultMeshGenParams(),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	j, err := c.WaitJob(ctx, res.JobID, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitJob: %v", err)
	}
	if j.State != job.StateSucceeded {
		t.Fatalf("state = %q, want succeeded (error %q)", j.State, j.Error)
	}

	jobs, err := c.ListJobs(ctx, lwp.JobListRequest{Lane: string(job.LaneMeshGen)})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("listed %d jobs, want 1", len(jobs))
	}

	events, err := c.JobEvents(ctx, res.JobID)
	if err != nil {
		t.Fatalf("JobEvents: %v", err)
	}
	if len(events) == 0 || events[0].Seq != 1 {
		t.Errorf("events = %+v, want history starting at seq 1", events)
	}
}

func TestClient_WaitTimeout(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	res, err := c.Submit(ctx, job.LaneImageEdit, imageRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := c.WaitJob(ctx, res.JobID, 30*time.Millisecond); !errors.Is(err, lanes.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

// ── Subscription Tests ────────────────────────────────

func TestClient_FollowReplaysThenStreams(t *testing.T) {
	c, eng := setupClientTest(t)
	ctx := context.Background()

	// Submit before Start so the queued event is replayed from history.
	res, err := c.Submit(ctx, job.LaneImageEdit, imageRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	events, err := c.Follow(ctx, res.JobID)
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got []*job.Event
	deadline := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case evt, ok := <-events:
			if !ok {
				done = true
				continue
			}
			got = append(got, evt)
		case <-deadline:
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	if len(got) < 3 {
		t.Fatalf("got %d events, want at least 3", len(got))
	}
	if got[0].Kind != job.EventQueued {
		t.Errorf("first event = %q, want queued", got[0].Kind)
	}
	for i, evt := range got {
		if evt.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d, want %d", i, evt.Seq, i+1)
		}
	}
	if last := got[len(got)-1]; last.Kind != job.EventCompleted {
		t.Errorf("last event = %q, want completed", last.Kind)
	}
}

func TestClient_SubscribeTwiceFails(t *testing.T) {
	c, _ := setupClientTest(t)
	ctx := context.Background()

	res, err := c.Submit(ctx, job.LaneImageEdit, imageRequest())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := c.Follow(ctx, res.JobID); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if _, err := c.Follow(ctx, res.JobID); err == nil {
		t.Fatal("second Follow should fail")
	}

	if err := c.Unsubscribe(ctx, lwp.JobChannel(res.JobID)); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if _, err := c.Follow(ctx, res.JobID); err != nil {
		t.Fatalf("Follow after Unsubscribe: %v", err)
	}
}

func TestClient_Stats(t *testing.T) {
	c, _ := setupClientTest(t)

	raw, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	var st lwp.StatsResponse
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Connections != 1 {
		t.Errorf("connections = %d, want 1", st.Connections)
	}
}

func TestClient_ContextTimeout(t *testing.T) {
	c, _ := setupClientTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Submit(ctx, job.LaneImageEdit, imageRequest()); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
