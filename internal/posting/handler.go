package posting

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// Reposter retries one posting.
type Reposter interface {
	Repost(ctx context.Context, transactionID int64) (Result, error)
	MaxAttempts() int
}

// ExceptionLister lists rows parked outside the automatic retry path.
type ExceptionLister interface {
	Exceptions(ctx context.Context, maxAttempts, page, perPage int) ([]transactions.Transaction, error)
}

// Handler serves the operator endpoints of the posting pipeline.
type Handler struct {
	logger     *slog.Logger
	service    Reposter
	exceptions ExceptionLister
}

// NewHandler constructs the posting handler.
func NewHandler(logger *slog.Logger, service Reposter, exceptions ExceptionLister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, exceptions: exceptions}
}

// MountRoutes registers POST /transactions/{id}/repost and GET /accounting/exceptions.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions/{id}/repost", h.handleRepost)
	r.Get("/accounting/exceptions", h.handleExceptions)
}

func (h *Handler) handleRepost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	result, err := h.service.Repost(r.Context(), id)
	if err != nil {
		if shared.IsConflict(err) {
			httpx.JSON(w, http.StatusOK, result)
			return
		}
		h.logger.Warn("repost failed", slog.Int64("transaction_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExceptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	rows, err := h.exceptions.Exceptions(r.Context(), h.service.MaxAttempts(), page, perPage)
	if err != nil {
		h.logger.Error("list posting exceptions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"max_attempts": h.service.MaxAttempts(),
		"transactions": rows,
	})
}
