package transfer

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository defines operations for transfer documents.
type Repository interface {
	// CRUD operations
	Create(ctx context.Context, doc *Transfer) error
	GetByID(ctx context.Context, docID id.ID) (*Transfer, error)
	Update(ctx context.Context, doc *Transfer) error

	// Line operations
	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	// List operations
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Transfer], error)

	// Locking
	GetForUpdate(ctx context.Context, docID id.ID) (*Transfer, error)
}

// ListFilter for filtering transfers.
type ListFilter struct {
	domain.ListFilter

	// BranchID matches either side
	BranchID *id.ID
	Status   *Status
	Type     *Type
}
