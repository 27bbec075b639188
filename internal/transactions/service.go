package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
	"github.com/atlas-travel/atlas-ledger/internal/audit"
)

// Service records lifecycle events into the transaction log.
type Service struct {
	repo        Repository
	logger      *slog.Logger
	now         func() time.Time
	invalidator Invalidator
}

// Invalidator drops cached projections of one agent.
type Invalidator interface {
	Invalidate(ctx context.Context, agentID int64) error
}

// NewService constructs the transaction log service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithInvalidator sets the cache invalidated after every recorded row.
func (s *Service) WithInvalidator(inv Invalidator) *Service {
	s.invalidator = inv
	return s
}

// WithNow overrides the clock, used in tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Record appends a new row. When the row reverses an earlier one, the original
// is locked and flagged is_reversed in the same transaction. A replayed event
// returns the existing row together with ErrDuplicateEvent.
func (s *Service) Record(ctx context.Context, in CreateInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	in.Currency = strings.ToUpper(in.Currency)
	if in.Status == "" {
		in.Status = StatusCompleted
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = s.now()
	}
	if in.ReversesID == nil && in.Type.IsFullReversal() {
		return Transaction{}, fmt.Errorf("%w: %s requires the original transaction", shared.ErrOriginalNotFound, in.Type)
	}

	var created Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var original *Transaction
		if in.ReversesID != nil {
			orig, err := s.lockOriginal(ctx, tx, in)
			if err != nil {
				return err
			}
			original = &orig
			if in.Type.IsFullReversal() && in.Amounts.Total.IsZero() && in.Amounts.Expected().IsZero() {
				in.Amounts = orig.Amounts
				in.TotalOverride = orig.TotalOverride
			}
		}
		amounts, err := in.Amounts.Normalize(in.TotalOverride)
		if err != nil {
			return err
		}
		if in.Type == TypePaymentReceived || in.Type == TypePaymentRefunded {
			if !amounts.Tax.IsZero() {
				return fmt.Errorf("%w: payments carry no tax", shared.ErrInvalidAmount)
			}
		}
		row := Transaction{
			Number:         NewTransactionNumber(in.Type, in.OccurredAt),
			Type:           in.Type,
			Status:         in.Status,
			AgentID:        in.AgentID,
			BookingRef:     in.BookingRef,
			CorrelationKey: in.CorrelationKey,
			Amounts:        amounts,
			TotalOverride:  in.TotalOverride,
			Currency:       in.Currency,
			OccurredAt:     in.OccurredAt.UTC(),
			ReversesID:     in.ReversesID,
			Metadata:       in.Metadata,
		}
		created, err = tx.Insert(ctx, row)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.AppendAudit(ctx, audit.NewEntry(ctx, created.ID, audit.ActionCreate, nil, created, now)); err != nil {
			return err
		}
		if original == nil {
			return nil
		}
		if err := tx.MarkReversed(ctx, original.ID, created.ID); err != nil {
			return err
		}
		after := *original
		after.IsReversed = true
		after.ReversedBy = &created.ID
		return tx.AppendAudit(ctx, audit.NewEntry(ctx, original.ID, audit.ActionReverse, original, after, now))
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicateEvent) {
			existing, getErr := s.repo.GetByCorrelation(ctx, in.Type, in.CorrelationKey)
			if getErr != nil {
				return Transaction{}, errors.Join(err, getErr)
			}
			return existing, err
		}
		return Transaction{}, err
	}
	s.logger.Debug("transaction recorded",
		slog.Int64("transaction_id", created.ID),
		slog.String("type", string(created.Type)),
		slog.Int64("agent_id", created.AgentID))
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, created.AgentID); err != nil {
			s.logger.Warn("invalidate report cache", slog.Int64("agent_id", created.AgentID), slog.Any("error", err))
		}
	}
	return created, nil
}

func (s *Service) lockOriginal(ctx context.Context, tx TxRepository, in CreateInput) (Transaction, error) {
	orig, err := tx.GetForUpdate(ctx, *in.ReversesID)
	if err != nil {
		if errors.Is(err, shared.ErrTransactionNotFound) {
			return Transaction{}, fmt.Errorf("%w: id %d", shared.ErrOriginalNotFound, *in.ReversesID)
		}
		return Transaction{}, err
	}
	want, ok := in.Type.Reverses()
	if !ok {
		return Transaction{}, fmt.Errorf("%w: %s does not reverse another transaction", shared.ErrValidation, in.Type)
	}
	if orig.Type != want && !(want == TypeTicketIssue && orig.Type == TypeTicketReissue) {
		return Transaction{}, fmt.Errorf("%w: %s cannot reverse %s", shared.ErrValidation, in.Type, orig.Type)
	}
	if orig.AgentID != in.AgentID {
		return Transaction{}, fmt.Errorf("%w: original belongs to another agent", shared.ErrValidation)
	}
	if orig.IsReversed {
		return Transaction{}, fmt.Errorf("%w: transaction %d", shared.ErrAlreadyReversed, orig.ID)
	}
	return orig, nil
}

// Transition moves a row through its lifecycle and audits the change.
func (s *Service) Transition(ctx context.Context, id int64, to Status) (Transaction, error) {
	var updated Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, to) {
			return fmt.Errorf("%w: %s -> %s", shared.ErrInvalidStatus, current.Status, to)
		}
		if err := tx.UpdateStatus(ctx, id, to); err != nil {
			return err
		}
		updated = current
		updated.Status = to
		return tx.AppendAudit(ctx, audit.NewEntry(ctx, id, audit.ActionUpdate, current, updated, s.now()))
	})
	if err != nil {
		return Transaction{}, err
	}
	return updated, nil
}

// Get returns one row.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.Get(ctx, id)
}

// FindByCorrelation returns the row recorded for (type, key).
func (s *Service) FindByCorrelation(ctx context.Context, t Type, key string) (Transaction, error) {
	return s.repo.GetByCorrelation(ctx, t, key)
}

// Exceptions lists rows that left the automatic retry path.
func (s *Service) Exceptions(ctx context.Context, maxAttempts, page, perPage int) ([]Transaction, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	rows, err := s.repo.ListExceptions(ctx, maxAttempts, (page-1)*perPage, perPage)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Transaction{}
	}
	return rows, nil
}
