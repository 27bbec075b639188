package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-travel/atlas-ledger/internal/accounting/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]Account, error) {
	return s.repo.List(ctx)
}

// Get returns one account by code.
func (s *Service) Get(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// Chart loads the current chart snapshot.
func (s *Service) Chart(ctx context.Context) (Chart, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return Chart{}, err
	}
	return NewChart(list), nil
}

// EnsureSeeded inserts missing default accounts. Existing accounts are left alone
// unless their type or normal balance disagrees with the seed, which is an error.
func (s *Service) EnsureSeeded(ctx context.Context) (int, error) {
	inserted := 0
	for _, want := range DefaultChart() {
		got, err := s.repo.GetByCode(ctx, want.Code)
		if err != nil {
			if !errors.Is(err, shared.ErrAccountNotFound) {
				return inserted, err
			}
			if _, err := s.repo.Insert(ctx, want); err != nil {
				return inserted, fmt.Errorf("seed account %s: %w", want.Code, err)
			}
			inserted++
			continue
		}
		if got.NormalBalance != want.NormalBalance || got.Type != want.Type {
			return inserted, fmt.Errorf("%w: account %s is %s/%s", shared.ErrNormalBalanceImmutable, got.Code, got.Type, got.NormalBalance)
		}
	}
	return inserted, nil
}

// Activate re-enables an account for posting.
func (s *Service) Activate(ctx context.Context, code string) error {
	return s.repo.SetActive(ctx, code, true)
}

// Deactivate blocks further postings to an account.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	return s.repo.SetActive(ctx, code, false)
}
