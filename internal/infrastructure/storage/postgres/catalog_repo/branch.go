package catalog_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/directory"
	"stockledger/internal/infrastructure/storage/postgres"
)

const branchTable = "branches"

// BranchRepo implements directory.BranchDirectory.
type BranchRepo struct {
	*BaseCatalogRepo[*directory.Branch]
}

var _ directory.BranchDirectory = (*BranchRepo)(nil)

// NewBranchRepo creates a new branch repository.
func NewBranchRepo(txm *postgres.TxManager) *BranchRepo {
	return &BranchRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			branchTable,
			"branch",
			postgres.ExtractDBColumns[directory.Branch](),
			func() *directory.Branch { return &directory.Branch{} },
		),
	}
}

// Get implements directory.BranchDirectory.
func (r *BranchRepo) Get(ctx context.Context, branchID id.ID) (*directory.Branch, error) {
	return r.GetByID(ctx, branchID)
}

// HeadOffice implements directory.BranchDirectory.
func (r *BranchRepo) HeadOffice(ctx context.Context) (*directory.Branch, error) {
	return r.getOne(ctx, squirrel.Eq{
		"role":          directory.RoleHeadOffice,
		"is_active":     true,
		"deletion_mark": false,
	}, string(directory.RoleHeadOffice))
}

// Default implements directory.BranchDirectory.
func (r *BranchRepo) Default(ctx context.Context) (*directory.Branch, error) {
	return r.getOne(ctx, squirrel.Eq{
		"is_default":    true,
		"deletion_mark": false,
	}, "default")
}
