package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubTrailRepo struct {
	rows     []Entry
	appended []Entry
	lastCall WindowParams
}

func (s *stubTrailRepo) Append(ctx context.Context, entry Entry) (Entry, error) {
	entry.ID = int64(len(s.appended) + 1)
	s.appended = append(s.appended, entry)
	return entry, nil
}

func (s *stubTrailRepo) Window(ctx context.Context, params WindowParams) ([]Entry, error) {
	s.lastCall = params
	return s.rows, nil
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTrailRepo{rows: []Entry{
		{ID: 1, TransactionID: 7, Action: ActionCreate},
		{ID: 2, TransactionID: 7, Action: ActionPost},
		{ID: 3, TransactionID: 7, Action: ActionReverse},
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{TransactionID: 7, Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastCall.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastCall.Limit)
	}
	if repo.lastCall.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastCall.Offset)
	}
}

func TestServiceTimelineClampsPageSize(t *testing.T) {
	repo := &stubTrailRepo{}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{TransactionID: 7, Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Paging.PageSize != maxPageSize {
		t.Fatalf("expected page size %d, got %d", maxPageSize, result.Paging.PageSize)
	}
	if repo.lastCall.Offset != 2*maxPageSize {
		t.Fatalf("expected offset %d, got %d", 2*maxPageSize, repo.lastCall.Offset)
	}
	if result.Paging.PrevPage != 2 {
		t.Fatalf("expected prev page 2, got %d", result.Paging.PrevPage)
	}
	if result.Rows == nil {
		t.Fatalf("expected empty slice, got nil")
	}
}

func TestServiceTimelineRejectsBadFilters(t *testing.T) {
	svc := NewService(&stubTrailRepo{})
	cases := []TimelineFilters{
		{},
		{TransactionID: 1, Action: "DELETE"},
		{TransactionID: 1, From: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), To: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, filters := range cases {
		if _, err := svc.Timeline(context.Background(), filters); !errors.Is(err, ErrInvalidFilter) {
			t.Fatalf("filters %+v: expected ErrInvalidFilter, got %v", filters, err)
		}
	}
}

func TestNewEntryCarriesRequestMeta(t *testing.T) {
	ctx := contextWithMeta("ops@atlas.test", "10.0.0.8", "curl/8")
	at := time.Date(2024, 3, 10, 8, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	entry := NewEntry(ctx, 42, ActionPost, nil, map[string]any{"accounting_posted": true}, at)
	if entry.Actor != "ops@atlas.test" || entry.IPAddress != "10.0.0.8" || entry.UserAgent != "curl/8" {
		t.Fatalf("unexpected request meta: %+v", entry)
	}
	if entry.StateBefore != nil {
		t.Fatalf("expected empty before snapshot")
	}
	if string(entry.StateAfter) != `{"accounting_posted":true}` {
		t.Fatalf("unexpected after snapshot %s", entry.StateAfter)
	}
	if entry.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp")
	}
}

func TestServiceRecordDefaultsToSystemActor(t *testing.T) {
	repo := &stubTrailRepo{}
	svc := NewService(repo)
	entry := NewEntry(context.Background(), 9, ActionRetry, nil, nil, time.Now())
	if err := svc.Record(context.Background(), entry); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(repo.appended) != 1 || repo.appended[0].Actor != "system" {
		t.Fatalf("expected system actor, got %+v", repo.appended)
	}
}
