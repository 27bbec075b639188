package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers GET /{reference}/verify and GET /by-transaction/{id}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{reference}/verify", h.Verify)
	r.Get("/by-transaction/{id}", h.ByTransaction)
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.VerifyDoubleEntry(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		if errors.Is(err, shared.ErrJournalNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("verify journal", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) ByTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transaction id")
		return
	}
	entries, err := h.service.ForTransaction(r.Context(), id)
	if err != nil {
		h.logger.Error("list journal legs", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
