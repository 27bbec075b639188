package audit

import (
	"context"
	"errors"
	"fmt"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// ErrInvalidFilter indicates an unusable trail query.
var ErrInvalidFilter = errors.New("audit: invalid filter")

// Repository reads and appends audit rows.
type Repository interface {
	Append(ctx context.Context, entry Entry) (Entry, error)
	Window(ctx context.Context, params WindowParams) ([]Entry, error)
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit trail baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Record appends one entry outside of any posting transaction.
func (s *Service) Record(ctx context.Context, entry Entry) error {
	if s.repo == nil {
		return fmt.Errorf("audit: repository not configured")
	}
	if !entry.Action.Valid() {
		return fmt.Errorf("%w: action %q", ErrInvalidFilter, entry.Action)
	}
	_, err := s.repo.Append(ctx, entry)
	return err
}

// Timeline returns a page of the audit trail of one transaction, oldest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if filters.TransactionID <= 0 {
		return Result{}, fmt.Errorf("%w: transaction id required", ErrInvalidFilter)
	}
	if filters.Action != "" && !filters.Action.Valid() {
		return Result{}, fmt.Errorf("%w: action %q", ErrInvalidFilter, filters.Action)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.From.After(filters.To) {
		return Result{}, fmt.Errorf("%w: from after to", ErrInvalidFilter)
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, WindowParams{
		TransactionID: filters.TransactionID,
		Action:        filters.Action,
		From:          filters.From,
		To:            filters.To,
		Offset:        (page - 1) * pageSize,
		Limit:         pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	if rows == nil {
		rows = []Entry{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns the full trail without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]Entry, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if filters.TransactionID <= 0 {
		return nil, fmt.Errorf("%w: transaction id required", ErrInvalidFilter)
	}
	return s.repo.Window(ctx, WindowParams{
		TransactionID: filters.TransactionID,
		Action:        filters.Action,
		From:          filters.From,
		To:            filters.To,
	})
}
