package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/accounts"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	audithttp "github.com/atlas-travel/atlas-ledger/internal/audit/http"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/integration"
	"github.com/atlas-travel/atlas-ledger/internal/observability"
	"github.com/atlas-travel/atlas-ledger/internal/platform/httpx"
	"github.com/atlas-travel/atlas-ledger/internal/posting"
	"github.com/atlas-travel/atlas-ledger/internal/reports"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/jobs"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	EventHandler    *integration.Handler
	BalanceHandler  *balance.Handler
	ReportHandler   *reports.Handler
	RollupHandler   *rollups.Handler
	PostingHandler  *posting.Handler
	JournalHandler  *journals.Handler
	AccountsHandler *accounts.Handler
	AuditHandler    *audithttp.Handler
	JobHandler      *jobs.Handler

	// Readiness maps a dependency name to its readiness check.
	Readiness map[string]Pinger
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(logger, params.Readiness))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.EventHandler != nil {
			params.EventHandler.MountRoutes(r)
		}
		r.Route("/agents/{agentID}", func(r chi.Router) {
			if params.BalanceHandler != nil {
				params.BalanceHandler.MountRoutes(r)
			}
			if params.ReportHandler != nil {
				params.ReportHandler.MountRoutes(r)
			}
			if params.RollupHandler != nil {
				params.RollupHandler.MountRoutes(r)
			}
		})
		if params.PostingHandler != nil {
			params.PostingHandler.MountRoutes(r)
		}
		if params.AuditHandler != nil {
			r.Route("/transactions/{id}", params.AuditHandler.MountRoutes)
		}
		if params.JournalHandler != nil {
			r.Route("/journals", params.JournalHandler.MountRoutes)
		}
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})
	return r
}

func readiness(logger *slog.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("dependency", name), slog.Any("error", err))
				out[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "up"
		}
		httpx.JSON(w, status, out)
	}
}
