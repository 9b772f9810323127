package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTimelineRepo struct {
	rows    []TimelineRow
	err     error
	filters TimelineFilters
	limit   int
	offset  int
}

func (f *fakeTimelineRepo) ListEntries(_ context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	f.filters = filters
	f.limit = limit
	f.offset = offset
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func makeRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	for i := range rows {
		rows[i] = TimelineRow{Action: "STOCK_SALE", Entity: "Product", EntityID: "1"}
	}
	return rows
}

func TestTimelineRequiresBusiness(t *testing.T) {
	svc := NewService(&fakeTimelineRepo{})
	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}

func TestTimelinePaging(t *testing.T) {
	cases := []struct {
		name       string
		page       int
		pageSize   int
		wantLimit  int
		wantOffset int
		wantSize   int
	}{
		{"defaults", 0, 0, 21, 0, 20},
		{"explicit page", 3, 10, 11, 20, 10},
		{"page size clamped", 1, 500, 51, 0, 50},
		{"negative page treated as first", -2, 10, 11, 0, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeTimelineRepo{}
			svc := NewService(repo)

			result, err := svc.Timeline(context.Background(), TimelineFilters{
				BusinessID: 7, Page: tc.page, PageSize: tc.pageSize,
			})
			require.NoError(t, err)
			require.Equal(t, tc.wantLimit, repo.limit)
			require.Equal(t, tc.wantOffset, repo.offset)
			require.Equal(t, tc.wantSize, result.Paging.PageSize)
		})
	}
}

func TestTimelineHasNextBoundary(t *testing.T) {
	// Exactly a full page: no next page.
	repo := &fakeTimelineRepo{rows: makeRows(10)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{BusinessID: 7, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 10)
	require.False(t, result.Paging.HasNext)

	// One row beyond the page: next page exists and the extra row is trimmed.
	repo = &fakeTimelineRepo{rows: makeRows(11)}
	svc = NewService(repo)

	result, err = svc.Timeline(context.Background(), TimelineFilters{BusinessID: 7, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 10)
	require.True(t, result.Paging.HasNext)
}

func TestTimelinePassesFilters(t *testing.T) {
	repo := &fakeTimelineRepo{}
	svc := NewService(repo)

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	_, err := svc.Timeline(context.Background(), TimelineFilters{
		BusinessID: 7,
		Entity:     "Product",
		Action:     "STOCK_SALE",
		From:       from,
		To:         to,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), repo.filters.BusinessID)
	require.Equal(t, "Product", repo.filters.Entity)
	require.Equal(t, "STOCK_SALE", repo.filters.Action)
	require.Equal(t, from, repo.filters.From)
	require.Equal(t, to, repo.filters.To)
}

func TestTimelinePropagatesRepoError(t *testing.T) {
	svc := NewService(&fakeTimelineRepo{err: errors.New("db down")})
	_, err := svc.Timeline(context.Background(), TimelineFilters{BusinessID: 7})
	require.Error(t, err)
}
