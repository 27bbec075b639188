package balance

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
)

// Querier is the read contract served over HTTP.
type Querier interface {
	GetAgentBalance(ctx context.Context, agentID int64) (AgentBalance, error)
	CheckCreditLimit(ctx context.Context, agentID int64, amount decimal.Decimal) (CreditDecision, error)
	GetOutstandingDetails(ctx context.Context, agentID int64, asOf time.Time) (OutstandingDetails, error)
}

// Handler exposes balance queries.
type Handler struct {
	logger  *slog.Logger
	service Querier
}

// NewHandler constructs the balance handler.
func NewHandler(logger *slog.Logger, service Querier) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the per-agent balance routes under /agents/{agentID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balance", h.handleBalance)
	r.Get("/credit-check", h.handleCreditCheck)
	r.Get("/outstanding", h.handleOutstanding)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	agentID, ok := AgentIDParam(w, r)
	if !ok {
		return
	}
	bal, err := h.service.GetAgentBalance(r.Context(), agentID)
	if err != nil {
		h.logger.Warn("agent balance", slog.Int64("agent_id", agentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bal)
}

func (h *Handler) handleCreditCheck(w http.ResponseWriter, r *http.Request) {
	agentID, ok := AgentIDParam(w, r)
	if !ok {
		return
	}
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal")
		return
	}
	decision, err := h.service.CheckCreditLimit(r.Context(), agentID, amount)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	agentID, ok := AgentIDParam(w, r)
	if !ok {
		return
	}
	var asOf time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = parsed
	}
	details, err := h.service.GetOutstandingDetails(r.Context(), agentID, asOf)
	if err != nil {
		h.logger.Warn("outstanding details", slog.Int64("agent_id", agentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, details)
}

// AgentIDParam parses the {agentID} route parameter, writing a 400 problem when invalid.
func AgentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "agentID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid agent id")
		return 0, false
	}
	return id, true
}
