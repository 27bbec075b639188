package audithttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-travel/atlas-ledger/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// TimelineService defines the business contract for trail data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Entry, error)
}

// Handler serves the transaction audit trail.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler membuat handler audit baru.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the trail endpoints under a /transactions/{id} router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
		}),
	)
	r.Get("/audit", h.handleTimeline)
	r.With(limiter).Get("/audit/export.csv", h.handleExport)
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := shared.RequestMetaFromContext(r.Context()).Actor; actor != shared.SystemActor {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.respondError(w, "load audit trail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.respondError(w, "export audit trail", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"transaction-"+strconv.FormatInt(filters.TransactionID, 10)+"-audit.csv\"")
	if err := audit.WriteCSV(w, rows); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, message string, err error) {
	if errors.Is(err, audit.ErrInvalidFilter) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(message, slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return audit.TimelineFilters{}, validationError{field: "id"}
	}
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		TransactionID: id,
		Action:        audit.Action(strings.ToUpper(strings.TrimSpace(q.Get("action")))),
	}
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if filters.From, err = time.Parse("2006-01-02", v); err != nil {
			return audit.TimelineFilters{}, validationError{field: "from"}
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		to, err := time.Parse("2006-01-02", v)
		if err != nil {
			return audit.TimelineFilters{}, validationError{field: "to"}
		}
		filters.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page"}
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, validationError{field: "page_size"}
		}
		filters.PageSize = parsed
	}
	return filters, nil
}

type validationError struct {
	field string
}

func (v validationError) Error() string {
	return "invalid " + v.field
}
