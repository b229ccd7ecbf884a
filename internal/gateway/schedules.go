package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/flemzord/snapkeep/internal/artifact"
	"github.com/flemzord/snapkeep/internal/cron"
	"github.com/flemzord/snapkeep/internal/errdefs"
	"github.com/flemzord/snapkeep/internal/schedule"
	"github.com/go-chi/chi/v5"
)

// Engine is the subset of *engine.Service served over HTTP.
type Engine interface {
	ListSchedules(ctx context.Context, target string) ([]schedule.Schedule, error)
	RunNow(ctx context.Context, id string) (schedule.Schedule, error)
	ListArtifacts(ctx context.Context, target string) ([]artifact.Artifact, error)
}

// handleListSchedules lists the schedules of one target in their flat
// record form.
func (g *Gateway) handleListSchedules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := g.engine.ListSchedules(r.Context(), chi.URLParam(r, "target"))
		if err != nil {
			g.writeError(w, err)
			return
		}
		if list == nil {
			list = []schedule.Schedule{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// handleRunNow executes a schedule immediately and returns its updated
// last-run fields.
func (g *Gateway) handleRunNow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := g.engine.RunNow(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			g.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// handleListArtifacts lists the artifacts of one target, newest first.
func (g *Gateway) handleListArtifacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := g.engine.ListArtifacts(r.Context(), chi.URLParam(r, "target"))
		if err != nil {
			g.writeError(w, err)
			return
		}
		for i := range list {
			list[i].Entries = nil
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// writeError maps engine errors to status codes.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, errdefs.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, errdefs.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, cron.ErrAlreadyRunning):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		g.logger.Error("gateway: request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
