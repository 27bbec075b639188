// Package reports assembles read-only daily and monthly projections from the
// persisted rollups, the transaction log and the agent ledger.
package reports

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/balance"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// RollupReader serves persisted rollups.
type RollupReader interface {
	Daily(ctx context.Context, agentID int64, date time.Time) (rollups.DailySummary, error)
	Monthly(ctx context.Context, agentID int64, year, month int) (rollups.MonthlyReport, error)
	DailyRange(ctx context.Context, agentID int64, from, to time.Time) ([]rollups.DailySummary, error)
}

// TransactionLister lists transaction log rows.
type TransactionLister interface {
	List(ctx context.Context, filter transactions.Filter) ([]transactions.Transaction, error)
}

// LedgerLister lists ledger rows with entry_date in [from, to).
type LedgerLister interface {
	List(ctx context.Context, agentID int64, from, to time.Time) ([]agentledger.Entry, error)
}

// Service generates reports.
type Service struct {
	agents  balance.AgentDirectory
	rollups RollupReader
	txns    TransactionLister
	ledger  LedgerLister
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
	topN    int
	now     func() time.Time
}

// NewService constructs the report service. cache may be nil.
func NewService(agents balance.AgentDirectory, rollups RollupReader, txns TransactionLister, ledger LedgerLister, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{agents: agents, rollups: rollups, txns: txns, ledger: ledger, cache: cache, logger: logger, topN: DefaultTopN, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// GenerateDailyReport builds the projection of one agent-day.
func (s *Service) GenerateDailyReport(ctx context.Context, agentID int64, date time.Time) (DailyReport, error) {
	if _, err := s.agents.Agent(ctx, agentID); err != nil {
		return DailyReport{}, err
	}
	day := rollups.Day(date)
	next := day.AddDate(0, 0, 1)
	report := DailyReport{AgentID: agentID, Date: day, GeneratedAt: s.now().UTC()}

	var rows []transactions.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.rollups.Daily(gctx, agentID, day)
		if err != nil {
			return fmt.Errorf("daily summary: %w", err)
		}
		report.Summary = summary
		return nil
	})
	g.Go(func() error {
		list, err := s.txns.List(gctx, transactions.Filter{AgentID: agentID, From: day, To: next})
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		rows = list
		return nil
	})
	g.Go(func() error {
		entries, err := s.ledger.List(gctx, agentID, day, next)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		report.Ledger = entries
		return nil
	})
	if err := g.Wait(); err != nil {
		return DailyReport{}, err
	}
	report.Posted, report.Pending, report.PendingTotal = split(rows)
	if report.Ledger == nil {
		report.Ledger = []agentledger.Entry{}
	}
	return report, nil
}

// GenerateMonthlyReport builds the projection of one agent-month. Results are
// cached per agent version and concurrent identical requests share one build.
func (s *Service) GenerateMonthlyReport(ctx context.Context, agentID int64, year, month int) (MonthlyReport, error) {
	if month < 1 || month > 12 || year < 1970 {
		return MonthlyReport{}, fmt.Errorf("%w: invalid period %04d-%02d", shared.ErrValidation, year, month)
	}
	if _, err := s.agents.Agent(ctx, agentID); err != nil {
		return MonthlyReport{}, err
	}
	flightKey := fmt.Sprintf("monthly:%d:%04d-%02d", agentID, year, month)
	value, err, dup := s.group.Do(flightKey, func() (any, error) {
		if s.cache == nil {
			return s.buildMonthly(ctx, agentID, year, month)
		}
		key, err := s.cache.monthlyKey(ctx, agentID, year, month)
		if err != nil {
			s.logger.Warn("report cache key", slog.Any("error", err))
			return s.buildMonthly(ctx, agentID, year, month)
		}
		var out MonthlyReport
		err = s.cache.fetch(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.buildMonthly(ctx, agentID, year, month)
		})
		return out, err
	})
	if err != nil {
		return MonthlyReport{}, err
	}
	if dup {
		s.logger.Debug("monthly report shared", slog.Int64("agent_id", agentID))
	}
	return value.(MonthlyReport), nil
}

func (s *Service) buildMonthly(ctx context.Context, agentID int64, year, month int) (MonthlyReport, error) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	report := MonthlyReport{AgentID: agentID, Year: year, Month: month, GeneratedAt: s.now().UTC()}

	var pending []transactions.Transaction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		summary, err := s.rollups.Monthly(gctx, agentID, year, month)
		if err != nil {
			return fmt.Errorf("monthly report: %w", err)
		}
		report.Summary = summary
		return nil
	})
	g.Go(func() error {
		days, err := s.rollups.DailyRange(gctx, agentID, from, to)
		if err != nil {
			return fmt.Errorf("daily breakdown: %w", err)
		}
		report.DailyBreakdown = days
		return nil
	})
	g.Go(func() error {
		posted := false
		rows, err := s.txns.List(gctx, transactions.Filter{AgentID: agentID, From: from, To: to, Posted: &posted})
		if err != nil {
			return fmt.Errorf("pending transactions: %w", err)
		}
		pending = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return MonthlyReport{}, err
	}
	_, open, total := split(pending)
	report.PendingCount = len(open)
	report.PendingTotal = total
	report.TopRoutes = rollups.TopN(report.Summary.Detailed.Routes, s.topN)
	report.TopAirlines = rollups.TopN(report.Summary.Detailed.Airlines, s.topN)
	if report.DailyBreakdown == nil {
		report.DailyBreakdown = []rollups.DailySummary{}
	}
	return report, nil
}

// split separates posted rows from pending ones. Failed rows are neither.
func split(rows []transactions.Transaction) (posted, pending []transactions.Transaction, pendingTotal decimal.Decimal) {
	posted = []transactions.Transaction{}
	pending = []transactions.Transaction{}
	pendingTotal = decimal.Zero
	for _, r := range rows {
		switch {
		case r.AccountingPosted:
			posted = append(posted, r)
		case r.Status != transactions.StatusFailed:
			pending = append(pending, r)
			pendingTotal = pendingTotal.Add(r.Amounts.Total)
		}
	}
	return posted, pending, pendingTotal
}
