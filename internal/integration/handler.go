package integration

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
)

// Dispatcher handles one decoded envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, env Envelope) (Outcome, error)
}

// Handler exposes the lifecycle event ingestion endpoint.
type Handler struct {
	logger *slog.Logger
	hooks  Dispatcher
}

// NewHandler constructs the ingestion handler.
func NewHandler(logger *slog.Logger, hooks Dispatcher) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, hooks: hooks}
}

// MountRoutes registers POST /events.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/events", h.handleEvent)
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := httpx.DecodeJSON(r, &env); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid event envelope")
		return
	}
	out, err := h.hooks.Dispatch(r.Context(), env)
	if err != nil {
		h.logger.Warn("lifecycle event rejected", slog.String("type", env.Type), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	switch {
	case out.Duplicate:
		status = http.StatusOK
	case out.PostingErr != nil:
		// recorded, posting deferred
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, out)
}
