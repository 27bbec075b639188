package reports

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
)

// Generator is the report contract served over HTTP.
type Generator interface {
	GenerateDailyReport(ctx context.Context, agentID int64, date time.Time) (DailyReport, error)
	GenerateMonthlyReport(ctx context.Context, agentID int64, year, month int) (MonthlyReport, error)
}

type Handler struct {
	logger  *slog.Logger
	service Generator
	now     func() time.Time
}

func NewHandler(logger *slog.Logger, service Generator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers the report routes under /agents/{agentID}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/daily", h.handleDaily)
	r.Get("/reports/monthly", h.handleMonthly)
}

func (h *Handler) handleDaily(w http.ResponseWriter, r *http.Request) {
	agentID, ok := balance.AgentIDParam(w, r)
	if !ok {
		return
	}
	date := h.now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	report, err := h.service.GenerateDailyReport(r.Context(), agentID, date)
	if err != nil {
		h.logger.Error("daily report", slog.Int64("agent_id", agentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	agentID, ok := balance.AgentIDParam(w, r)
	if !ok {
		return
	}
	now := h.now().UTC()
	year, month := now.Year(), int(now.Month())
	q := r.URL.Query()
	if raw := q.Get("year"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "year must be numeric")
			return
		}
		year = v
	}
	if raw := q.Get("month"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "month must be numeric")
			return
		}
		month = v
	}
	report, err := h.service.GenerateMonthlyReport(r.Context(), agentID, year, month)
	if err != nil {
		h.logger.Error("monthly report", slog.Int64("agent_id", agentID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
