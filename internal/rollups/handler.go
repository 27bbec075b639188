package rollups

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
)

// Rebuilder runs the repair path.
type Rebuilder interface {
	Rebuild(ctx context.Context, agentID int64, from, to time.Time) (RebuildResult, error)
}

// Handler exposes the rollup repair endpoint.
type Handler struct {
	logger  *slog.Logger
	service Rebuilder
}

// NewHandler constructs the rollup handler.
func NewHandler(logger *slog.Logger, service Rebuilder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers POST /summaries/rebuild under /agents/{agentID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/summaries/rebuild", h.handleRebuild)
}

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	agentID, err := strconv.ParseInt(chi.URLParam(r, "agentID"), 10, 64)
	if err != nil || agentID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid agent id")
		return
	}
	q := r.URL.Query()
	from, err := time.Parse("2006-01-02", q.Get("from"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		to, err = time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
	}
	result, err := h.service.Rebuild(r.Context(), agentID, from, to)
	if err != nil {
		h.logger.Error("rebuild rollups", slog.Int64("agent_id", agentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
