package audit

import (
	"context"
	"fmt"
	"strings"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxExportRows   = 10000
)

// Repository reads audit rows newest first.
type Repository interface {
	Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

// Service pages through the audit trail.
type Service struct {
	repo Repository
}

// NewService builds Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of rows and whether another page follows.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	filters = normalise(filters)
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
	rows, err := s.repo.Timeline(ctx, filters, (page-1)*pageSize, pageSize+1)
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
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every matching row up to a hard cap.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.Timeline(ctx, normalise(filters), 0, maxExportRows)
}

func normalise(f TimelineFilters) TimelineFilters {
	f.Entity = strings.TrimSpace(f.Entity)
	f.EntityID = strings.TrimSpace(f.EntityID)
	f.Action = strings.TrimSpace(f.Action)
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		f.From, f.To = f.To, f.From
	}
	return f
}
