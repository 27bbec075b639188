// Package posting turns transaction log rows into balanced journal entries.
//
// One posting is a single database transaction: the row is locked, the rule
// engine computes the legs, every account is resolved, the source link is
// claimed, the legs are written, the row is flipped to posted, the agent ledger
// is appended and both rollups are updated. Any failure rolls all of it back.
package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/journals"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/rules"
	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/agentledger"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
	"github.com/atlas-travel/atlas-ledger/internal/rollups"
	"github.com/atlas-travel/atlas-ledger/internal/transactions"
)

// DefaultMaxAttempts bounds automatic retries before a row is parked in the
// exception queue.
const DefaultMaxAttempts = 5

// Result describes one posting.
type Result struct {
	Transaction transactions.Transaction `json:"transaction"`
	Reference   string                   `json:"reference_number"`
	Entries     []journals.Entry         `json:"entries,omitempty"`
	Ledger      agentledger.Entry        `json:"ledger"`
	PostedAt    time.Time                `json:"posted_at"`
	// Skipped is set when the row was already posted; Reference then holds the
	// existing journal reference.
	Skipped bool `json:"skipped"`
}

// SweepReport summarises a PostPending run.
type SweepReport struct {
	Scanned int `json:"scanned"`
	Posted  int `json:"posted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Service posts transaction log rows.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	notifier    Notifier
	invalidator Invalidator
	metrics     *Metrics
	maxAttempts int
	now         func() time.Time
}

// NewService constructs the posting service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, maxAttempts: DefaultMaxAttempts, now: time.Now}
}

// WithNotifier sets the post-commit notifier.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithInvalidator sets the cache invalidated after a recorded failure. Postings
// reach the cache through the notifier.
func (s *Service) WithInvalidator(inv Invalidator) *Service {
	s.invalidator = inv
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// WithMaxAttempts overrides the automatic retry bound.
func (s *Service) WithMaxAttempts(n int) *Service {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// MaxAttempts returns the automatic retry bound.
func (s *Service) MaxAttempts() int {
	return s.maxAttempts
}

// Post posts one transaction log row. An already posted row yields a Skipped
// result together with ErrAlreadyPosted. Failures roll back every write, bump
// the row's posting attempts and are returned as *shared.PostingError;
// validation failures additionally mark the row failed.
func (s *Service) Post(ctx context.Context, transactionID int64) (Result, error) {
	start := s.now()
	var (
		result Result
		txType string
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		txType = string(current.Type)
		if current.AccountingPosted {
			result = Result{Transaction: current, Reference: current.JournalReference, Skipped: true}
			if current.AccountingPostedAt != nil {
				result.PostedAt = *current.AccountingPostedAt
			}
			return fmt.Errorf("%w: transaction %d (%s)", shared.ErrAlreadyPosted, current.ID, current.JournalReference)
		}
		if current.Status != transactions.StatusCompleted {
			return fmt.Errorf("%w: transaction %d is %s", shared.ErrInvalidStatus, current.ID, current.Status)
		}
		posted, err := s.post(ctx, tx, current)
		if err != nil {
			return err
		}
		result = posted
		return nil
	})
	elapsed := s.now().Sub(start)
	if err != nil {
		return s.handleFailure(ctx, transactionID, txType, result, err)
	}
	s.metrics.observe(txType, OutcomePosted, elapsed)
	s.logger.Info("transaction posted",
		slog.Int64("transaction_id", result.Transaction.ID),
		slog.String("type", txType),
		slog.Int64("agent_id", result.Transaction.AgentID),
		slog.String("reference", result.Reference),
		slog.String("balance_after", result.Ledger.BalanceAfter.StringFixed(2)))
	if s.notifier != nil {
		if nerr := s.notifier.Posted(ctx, result); nerr != nil {
			s.logger.Warn("posting notification failed",
				slog.Int64("transaction_id", result.Transaction.ID),
				slog.Any("error", nerr))
		}
	}
	return result, nil
}

func (s *Service) post(ctx context.Context, tx TxRepository, current transactions.Transaction) (Result, error) {
	lines, err := rules.Compute(current.Type, current.Amounts)
	if err != nil {
		return Result{}, err
	}
	chart, err := tx.Chart(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load chart: %w", err)
	}
	for _, line := range lines {
		if _, err := chart.Lookup(line.AccountCode); err != nil {
			return Result{}, err
		}
	}

	// The agent lock is taken before the posting time is read so a ledger row
	// never sorts before the row it chains from.
	if err := tx.LockAgent(ctx, current.AgentID); err != nil {
		return Result{}, fmt.Errorf("lock agent ledger: %w", err)
	}
	at := s.now().UTC()
	reference := transactions.NewReferenceNumber(current.Type, at, current.ID)
	link := journals.SourceLink{
		TransactionType: string(current.Type),
		CorrelationKey:  current.CorrelationKey,
		SourceID:        transactions.SourceID(current.Type, current.CorrelationKey),
		ReferenceNumber: reference,
		TransactionID:   current.ID,
	}
	if err := tx.ClaimSource(ctx, link); err != nil {
		if errors.Is(err, journals.ErrSourceConflict) {
			return Result{}, fmt.Errorf("%w: %s %s", shared.ErrSourceAlreadyLinked, current.Type, current.CorrelationKey)
		}
		return Result{}, err
	}

	entries := buildEntries(current, reference, lines, at)
	if err := tx.InsertEntries(ctx, entries); err != nil {
		return Result{}, err
	}
	ok, err := tx.MarkPosted(ctx, current.ID, reference, at)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: transaction %d", shared.ErrAlreadyPosted, current.ID)
	}

	prev, err := tx.LastBalance(ctx, current.AgentID)
	if err != nil {
		return Result{}, err
	}
	next, err := agentledger.Next(prev, current, at)
	if err != nil {
		return Result{}, err
	}
	ledger, err := tx.AppendLedger(ctx, next)
	if err != nil {
		return Result{}, fmt.Errorf("append agent ledger: %w", err)
	}

	posted := current
	posted.AccountingPosted = true
	posted.AccountingPostedAt = &at
	posted.JournalReference = reference
	posted.LastPostingError = ""
	if err := applyRollups(ctx, tx, rollups.Event{Transaction: posted, Ledger: ledger}); err != nil {
		return Result{}, err
	}
	if err := tx.AppendAudit(ctx, audit.NewEntry(ctx, current.ID, audit.ActionPost, current, posted, at)); err != nil {
		return Result{}, err
	}
	return Result{Transaction: posted, Reference: reference, Entries: entries, Ledger: ledger, PostedAt: at}, nil
}

func applyRollups(ctx context.Context, tx TxRepository, ev rollups.Event) error {
	t := ev.Transaction
	day := ev.Day()
	daily, _, err := tx.DailySummary(ctx, t.AgentID, day)
	if err != nil {
		return fmt.Errorf("load daily summary: %w", err)
	}
	if err := tx.SaveDailySummary(ctx, rollups.ApplyDaily(daily, ev)); err != nil {
		return fmt.Errorf("save daily summary: %w", err)
	}
	monthly, _, err := tx.MonthlyReport(ctx, t.AgentID, day.Year(), int(day.Month()))
	if err != nil {
		return fmt.Errorf("load monthly report: %w", err)
	}
	if err := tx.SaveMonthlyReport(ctx, rollups.ApplyMonthly(monthly, ev)); err != nil {
		return fmt.Errorf("save monthly report: %w", err)
	}
	return nil
}

func buildEntries(t transactions.Transaction, reference string, lines []journals.Line, at time.Time) []journals.Entry {
	entryDate := rollups.Day(t.OccurredAt)
	entries := make([]journals.Entry, 0, len(lines))
	for _, l := range lines {
		desc := l.Description
		if desc == "" {
			desc = fmt.Sprintf("%s %s", t.Type, t.Number)
		}
		entries = append(entries, journals.Entry{
			ReferenceNumber: reference,
			TransactionID:   t.ID,
			AccountCode:     l.AccountCode,
			EntryType:       l.EntryType,
			Amount:          l.Amount,
			EntryDate:       entryDate,
			Description:     desc,
			BookingRef:      t.BookingRef,
			TicketNumber:    t.Metadata[transactions.MetaTicketNumber],
			PaymentRef:      t.Metadata[transactions.MetaPaymentRef],
			CreatedAt:       at,
		})
	}
	return entries
}

func (s *Service) handleFailure(ctx context.Context, id int64, txType string, result Result, err error) (Result, error) {
	switch {
	case shared.IsConflict(err):
		s.metrics.observe(txType, OutcomeSkipped, 0)
		s.logger.Info("posting skipped", slog.Int64("transaction_id", id), slog.String("reason", err.Error()))
		result.Skipped = true
		return result, err
	case errors.Is(err, shared.ErrTransactionNotFound), errors.Is(err, shared.ErrInvalidStatus), ctx.Err() != nil:
		s.metrics.observe(txType, OutcomeRejected, 0)
		return Result{}, err
	}

	permanent := shared.IsPermanent(err)
	failed, recErr := s.repo.RecordFailure(ctx, id, err.Error(), permanent)
	if recErr != nil {
		s.logger.Error("record posting failure", slog.Int64("transaction_id", id), slog.Any("error", recErr))
	}
	retryable := !permanent && (recErr != nil || failed.PostingAttempts < s.maxAttempts)
	outcome := OutcomeFailed
	if !retryable {
		outcome = OutcomeException
	}
	s.metrics.observe(txType, outcome, 0)
	if recErr == nil {
		entry := audit.NewEntry(ctx, id, audit.ActionFail, nil, failed, s.now())
		if aerr := s.repo.AppendAudit(ctx, entry); aerr != nil {
			s.logger.Error("audit posting failure", slog.Int64("transaction_id", id), slog.Any("error", aerr))
		}
		if s.invalidator != nil {
			if ierr := s.invalidator.Invalidate(ctx, failed.AgentID); ierr != nil {
				s.logger.Warn("invalidate report cache", slog.Int64("agent_id", failed.AgentID), slog.Any("error", ierr))
			}
		}
	}
	s.logger.Error("posting failed",
		slog.Int64("transaction_id", id),
		slog.String("type", txType),
		slog.Int64("agent_id", failed.AgentID),
		slog.String("correlation_key", failed.CorrelationKey),
		slog.Int("attempts", failed.PostingAttempts),
		slog.Bool("permanent", permanent),
		slog.Any("error", err))
	return Result{}, &shared.PostingError{TransactionID: id, Retryable: retryable, Err: err}
}

// Repost is the operator retry of one unposted row. It is recorded as a RETRY
// audit row and then follows Post.
func (s *Service) Repost(ctx context.Context, transactionID int64) (Result, error) {
	current, err := s.repo.Get(ctx, transactionID)
	if err != nil {
		return Result{}, err
	}
	if current.AccountingPosted {
		return Result{Transaction: current, Reference: current.JournalReference, Skipped: true},
			fmt.Errorf("%w: transaction %d", shared.ErrAlreadyPosted, current.ID)
	}
	if current.Status != transactions.StatusCompleted {
		return Result{}, fmt.Errorf("%w: transaction %d is %s", shared.ErrInvalidStatus, current.ID, current.Status)
	}
	if err := s.repo.AppendAudit(ctx, audit.NewEntry(ctx, current.ID, audit.ActionRetry, nil, current, s.now())); err != nil {
		return Result{}, err
	}
	return s.Post(ctx, transactionID)
}

// PostPending posts up to limit unposted rows that still have attempts left.
// Individual failures are counted, never returned.
func (s *Service) PostPending(ctx context.Context, limit int) (SweepReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.repo.ListUnposted(ctx, s.maxAttempts, limit)
	if err != nil {
		return SweepReport{}, err
	}
	report := SweepReport{Scanned: len(rows)}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, err := s.Post(ctx, row.ID)
		switch {
		case err == nil:
			report.Posted++
		case shared.IsConflict(err):
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report, nil
}
