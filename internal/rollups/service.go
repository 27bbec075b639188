package rollups

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

// RebuildResult reports what a repair run rewrote.
type RebuildResult struct {
	AgentID int64     `json:"agent_id"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Days    int       `json:"days"`
	Months  int       `json:"months"`
	Events  int       `json:"events"`
}

// Invalidator drops cached projections of one agent.
type Invalidator interface {
	Invalidate(ctx context.Context, agentID int64) error
}

// Service runs the rollup repair path.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	invalidator Invalidator
}

// NewService constructs the rollup service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// WithInvalidator sets the cache invalidated after every rebuild.
func (s *Service) WithInvalidator(inv Invalidator) *Service {
	s.invalidator = inv
	return s
}

// MonthBounds widens [from, to] to whole calendar months: from the first day of
// from's month to the first day of the month after to.
func MonthBounds(from, to time.Time) (time.Time, time.Time) {
	f := Day(from)
	t := Day(to)
	start := time.Date(f.Year(), f.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return start, end
}

// Rebuild recomputes every daily summary and monthly report of agentID touching
// [from, to] from the transaction log and the agent ledger, replacing what is
// stored. The agent ledger lock is held so no posting interleaves.
func (s *Service) Rebuild(ctx context.Context, agentID int64, from, to time.Time) (RebuildResult, error) {
	if agentID <= 0 {
		return RebuildResult{}, fmt.Errorf("%w: agent required", shared.ErrValidation)
	}
	if to.Before(from) {
		return RebuildResult{}, fmt.Errorf("%w: range end before start", shared.ErrValidation)
	}
	start, end := MonthBounds(from, to)
	result := RebuildResult{AgentID: agentID, From: start, To: end}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockAgent(ctx, agentID); err != nil {
			return err
		}
		txs, err := tx.PostedTransactions(ctx, agentID, start, end)
		if err != nil {
			return fmt.Errorf("load transactions: %w", err)
		}
		ids := make([]int64, 0, len(txs))
		for _, t := range txs {
			ids = append(ids, t.ID)
		}
		ledger, err := tx.LedgerEntries(ctx, ids)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		events := Pair(txs, ledger)
		dailies := RebuildDaily(events)
		monthlies := RebuildMonthly(events)
		if err := tx.ReplaceDaily(ctx, agentID, start, end, dailies); err != nil {
			return fmt.Errorf("replace daily: %w", err)
		}
		if err := tx.ReplaceMonthly(ctx, agentID, start, end, monthlies); err != nil {
			return fmt.Errorf("replace monthly: %w", err)
		}
		result.Days = len(dailies)
		result.Months = len(monthlies)
		result.Events = len(events)
		return nil
	})
	if err != nil {
		return RebuildResult{}, err
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, agentID); err != nil {
			s.logger.Warn("invalidate report cache", slog.Int64("agent_id", agentID), slog.Any("error", err))
		}
	}
	s.logger.Info("rollups rebuilt",
		slog.Int64("agent_id", agentID),
		slog.String("from", start.Format("2006-01-02")),
		slog.String("to", end.Format("2006-01-02")),
		slog.Int("days", result.Days),
		slog.Int("months", result.Months))
	return result, nil
}

// RebuildActive rebuilds every agent with posted activity in [from, to].
func (s *Service) RebuildActive(ctx context.Context, from, to time.Time) ([]RebuildResult, error) {
	start, end := MonthBounds(from, to)
	agents, err := s.repo.ActiveAgents(ctx, start, end)
	if err != nil {
		return nil, err
	}
	results := make([]RebuildResult, 0, len(agents))
	for _, agentID := range agents {
		res, err := s.Rebuild(ctx, agentID, from, to)
		if err != nil {
			return results, fmt.Errorf("agent %d: %w", agentID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// Daily returns the stored summary or an empty one for the day.
func (s *Service) Daily(ctx context.Context, agentID int64, date time.Time) (DailySummary, error) {
	summary, ok, err := s.repo.Daily(ctx, agentID, date)
	if err != nil {
		return DailySummary{}, err
	}
	if !ok {
		return DailySummary{AgentID: agentID, Date: Day(date)}, nil
	}
	return summary, nil
}

// Monthly returns the stored report or an empty one for the month.
func (s *Service) Monthly(ctx context.Context, agentID int64, year, month int) (MonthlyReport, error) {
	report, ok, err := s.repo.Monthly(ctx, agentID, year, month)
	if err != nil {
		return MonthlyReport{}, err
	}
	if !ok {
		return MonthlyReport{AgentID: agentID, Year: year, Month: month}, nil
	}
	return report, nil
}

// DailyRange returns the stored summaries in [from, to).
func (s *Service) DailyRange(ctx context.Context, agentID int64, from, to time.Time) ([]DailySummary, error) {
	return s.repo.DailyRange(ctx, agentID, from, to)
}
