// Package query serves paginated, filtered reads of the audit trail.
package query

import (
	"context"
	"errors"
	"math"
	"strings"

	dErrors "github.com/niksbanna/ehr-portal-sub000/pkg/domain-errors"
	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/sentinel"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Reader is the read side of an audit store.
type Reader interface {
	Get(ctx context.Context, id string) (audit.Record, error)
	List(ctx context.Context, filter audit.Filter, page audit.Page) ([]audit.Record, int, error)
}

// Meta describes the page that was returned.
type Meta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Result is one page of records.
type Result struct {
	Data []audit.Record `json:"data"`
	Meta Meta           `json:"meta"`
}

// Service answers audit queries. Callers are expected to have passed the
// privileged-role guard already.
type Service struct {
	reader Reader
}

func New(reader Reader) (*Service, error) {
	if reader == nil {
		return nil, errors.New("audit reader is required")
	}
	return &Service{reader: reader}, nil
}

// List returns records matching filter, newest first unless page.Sort is
// ascending. Page 0 means 1; limit 0 means DefaultLimit and is capped at
// MaxLimit.
func (s *Service) List(ctx context.Context, filter audit.Filter, page audit.Page) (Result, error) {
	page, err := normalizePage(page)
	if err != nil {
		return Result{}, err
	}
	if err := validateFilter(filter); err != nil {
		return Result{}, err
	}

	records, total, err := s.reader.List(ctx, filter, page)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records")
	}
	if records == nil {
		records = []audit.Record{}
	}
	return Result{
		Data: records,
		Meta: Meta{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      total,
			TotalPages: (total + page.Limit - 1) / page.Limit,
		},
	}, nil
}

// GetByID returns a single record.
func (s *Service) GetByID(ctx context.Context, id string) (audit.Record, error) {
	if strings.TrimSpace(id) == "" {
		return audit.Record{}, dErrors.New(dErrors.CodeBadRequest, "audit record id is required")
	}
	record, err := s.reader.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return audit.Record{}, dErrors.Wrap(err, dErrors.CodeNotFound, "audit record not found")
	}
	if err != nil {
		return audit.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit record")
	}
	return record, nil
}

func normalizePage(p audit.Page) (audit.Page, error) {
	if p.Page < 0 {
		return p, dErrors.New(dErrors.CodeBadRequest, "page must not be negative")
	}
	if p.Limit < 0 {
		return p, dErrors.New(dErrors.CodeBadRequest, "limit must not be negative")
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return p, dErrors.New(dErrors.CodeBadRequest, "page is out of range")
	}
	switch p.Sort {
	case "":
		p.Sort = audit.SortDesc
	case audit.SortAsc, audit.SortDesc:
	default:
		return p, dErrors.New(dErrors.CodeBadRequest, "sort must be asc or desc")
	}
	return p, nil
}

func validateFilter(f audit.Filter) error {
	switch f.Outcome {
	case "", audit.OutcomeSuccess, audit.OutcomeFailure:
	default:
		return dErrors.New(dErrors.CodeBadRequest, "outcome must be SUCCESS or FAILURE")
	}
	return nil
}
