package journals

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// VerifyDoubleEntry re-reads the legs of one reference and checks debits equal credits.
func (s *Service) VerifyDoubleEntry(ctx context.Context, reference string) (Verification, error) {
	entries, err := s.repo.ByReference(ctx, reference)
	if err != nil {
		return Verification{}, err
	}
	return Verify(reference, entries), nil
}

// ForTransaction returns the legs posted for one transaction log row.
func (s *Service) ForTransaction(ctx context.Context, transactionID int64) ([]Entry, error) {
	return s.repo.ByTransaction(ctx, transactionID)
}

// Imbalances verifies every reference created in [from, to) and returns the ones
// that do not balance, plus the number of references checked.
func (s *Service) Imbalances(ctx context.Context, from, to time.Time) ([]Verification, int, error) {
	refs, err := s.repo.ReferencesBetween(ctx, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("list references: %w", err)
	}
	var bad []Verification
	for _, ref := range refs {
		v, err := s.VerifyDoubleEntry(ctx, ref)
		if err != nil {
			return bad, len(refs), fmt.Errorf("verify %s: %w", ref, err)
		}
		if !v.Balanced {
			s.logger.Warn("journal imbalance",
				slog.String("reference", ref),
				slog.String("debits", v.Debits.StringFixed(2)),
				slog.String("credits", v.Credits.StringFixed(2)))
			bad = append(bad, v)
		}
	}
	return bad, len(refs), nil
}
