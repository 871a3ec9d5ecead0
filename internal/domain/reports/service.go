package reports

import (
	"context"
	"fmt"
	"slices"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// Service provides report generation operations.
type Service struct {
	repo Repository
}

// NewService creates a new reports service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetStockTurnover reports opening, inbound, outbound and closing quantity
// per stock entry over [FromDate, ToDate).
func (s *Service) GetStockTurnover(ctx context.Context, filter TurnoverFilter) (*TurnoverReport, error) {
	if filter.FromDate.IsZero() || filter.ToDate.IsZero() {
		return nil, apperror.NewValidation("fromDate and toDate are required")
	}
	if !filter.FromDate.Before(filter.ToDate) {
		return nil, apperror.NewValidation("fromDate must be before toDate").
			WithDetail("from_date", filter.FromDate).
			WithDetail("to_date", filter.ToDate)
	}

	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}

	rows, err := s.repo.Turnover(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get stock turnover report: %w", err)
	}

	report := &TurnoverReport{FromDate: filter.FromDate, ToDate: filter.ToDate, Rows: rows}
	for _, r := range rows {
		report.TotalInbound += r.Inbound
		report.TotalOutbound += r.Outbound
	}
	return report, nil
}

// GetDocumentJournal returns the document journal across transfers,
// purchases and stock requests.
func (s *Service) GetDocumentJournal(ctx context.Context, filter JournalFilter) (*DocumentJournal, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if len(filter.Kinds) == 0 {
		filter.Kinds = AllKinds
	}
	for _, k := range filter.Kinds {
		if !slices.Contains(AllKinds, k) {
			return nil, apperror.NewValidation("unknown document kind").WithDetail("kind", string(k))
		}
	}

	items, total, err := s.repo.Journal(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get document journal: %w", err)
	}
	journal := &DocumentJournal{Items: items, TotalCount: total, Limit: filter.Limit, Offset: filter.Offset}

	if filter.Offset == 0 {
		summary, err := s.repo.JournalSummary(ctx, filter)
		if err != nil {
			logger.Warn(ctx, "journal summary failed", "error", err)
		} else {
			journal.Summary = summary
		}
	}
	return journal, nil
}
