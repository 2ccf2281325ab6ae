package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	deps map[string]Pinger
}

func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeMessage(w, http.StatusOK, "pong")
	case "ready":
		h.ready(w, r)
	default:
		writeJSON(w, http.StatusBadRequest, ErrorEnvelope{Status: "error", Kind: "validation", Message: "unknown action"})
	}
}

func (h *HealthHandler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]any{}
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, ErrorEnvelope{
			Status: "error", Kind: "infrastructure", Message: "not ready", Details: failed,
		})
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}
