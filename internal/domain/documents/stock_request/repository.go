package stock_request

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository defines operations for stock requests.
type Repository interface {
	Create(ctx context.Context, doc *StockRequest) error
	GetByID(ctx context.Context, docID id.ID) (*StockRequest, error)
	Update(ctx context.Context, doc *StockRequest) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockRequest], error)

	GetForUpdate(ctx context.Context, docID id.ID) (*StockRequest, error)
}

// ListFilter for filtering stock requests.
type ListFilter struct {
	domain.ListFilter

	// BranchID matches either the requesting or the fulfilling branch
	BranchID *id.ID
	Status   *Status
}
