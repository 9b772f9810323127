package audit

import (
	"context"
	"fmt"
	"time"
)

// TimelineFilters narrows the audit timeline query.
type TimelineFilters struct {
	BusinessID int64
	Entity     string
	Action     string
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

// TimelineRow is one audit entry as presented to callers.
type TimelineRow struct {
	At       time.Time `json:"at"`
	ActorID  int64     `json:"actor_id"`
	Action   string    `json:"action"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id"`
	Meta     []byte    `json:"meta,omitempty"`
}

// PagingInfo describes position within the timeline.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// RepositoryPort abstracts timeline reads.
type RepositoryPort interface {
	ListEntries(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Service coordinates audit timeline reads.
type Service struct {
	repo RepositoryPort
}

// NewService builds the audit service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline fetches audit rows with paging, newest first. One extra row is
// requested beyond the page size to detect whether a next page exists.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.repo == nil {
		return Result{}, fmt.Errorf("audit: service not configured")
	}
	if filters.BusinessID == 0 {
		return Result{}, fmt.Errorf("audit: business id required")
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
	offset := (page - 1) * pageSize

	rows, err := s.repo.ListEntries(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}

	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	return Result{Rows: rows, Paging: PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}}, nil
}
