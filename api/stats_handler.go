package api

import (
	"fmt"
	"net/http"

	"github.com/xraph/forge"
)

func (a *API) stats(ctx forge.Context) error {
	st, err := a.eng.Stats(ctx.Context())
	if err != nil {
		return forge.InternalError(fmt.Errorf("stats: %w", err))
	}
	return ctx.JSON(http.StatusOK, st)
}

func (a *API) cleanup(ctx forge.Context) error {
	n := a.eng.Cleanup(ctx.Context())
	return ctx.JSON(http.StatusOK, CleanupResponse{Evicted: n})
}

func (a *API) health(ctx forge.Context) error {
	if !a.eng.Runtime().Started() {
		return ctx.Status(http.StatusServiceUnavailable).JSON(HealthResponse{Status: "stopped"})
	}
	return ctx.JSON(http.StatusOK, HealthResponse{Status: "ok", Started: true})
}
