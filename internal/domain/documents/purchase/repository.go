package purchase

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Repository defines operations for purchase invoices.
type Repository interface {
	Create(ctx context.Context, doc *Purchase) error
	GetByID(ctx context.Context, docID id.ID) (*Purchase, error)
	Update(ctx context.Context, doc *Purchase) error

	GetLines(ctx context.Context, docID id.ID) ([]Line, error)
	SaveLines(ctx context.Context, docID id.ID, lines []Line) error

	List(ctx context.Context, filter ListFilter) (domain.ListResult[*Purchase], error)

	GetForUpdate(ctx context.Context, docID id.ID) (*Purchase, error)
}

// ListFilter for filtering purchase invoices.
type ListFilter struct {
	domain.ListFilter

	SupplierID    *id.ID
	Status        *Status
	PaymentStatus *PaymentStatus
}
