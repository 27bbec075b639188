package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	accshared "github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers GET / and POST /{code}/activate|deactivate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/{code}/activate", h.toggle(true))
	r.Post("/{code}/deactivate", h.toggle(false))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (h *Handler) toggle(active bool) http.HandlerFunc {
	apply := h.service.Deactivate
	if active {
		apply = h.service.Activate
	}
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		account, err := h.apply(r.Context(), code, apply)
		if err != nil {
			if errors.Is(err, accshared.ErrAccountNotFound) {
				httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
				return
			}
			h.logger.Error("toggle account", slog.String("code", code), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		h.logger.Info("account status changed",
			slog.String("code", code),
			slog.Bool("active", account.IsActive),
			slog.String("actor", shared.RequestMetaFromContext(r.Context()).Actor))
		httpx.JSON(w, http.StatusOK, account)
	}
}

func (h *Handler) apply(ctx context.Context, code string, fn func(context.Context, string) error) (Account, error) {
	if err := fn(ctx, code); err != nil {
		return Account{}, err
	}
	return h.service.Get(ctx, code)
}
