// Package directory defines the read-side ports to reference data owned by
// other services: branches and the product catalog.
package directory

import (
	"context"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// BranchRole distinguishes the head office from sub-branches.
type BranchRole string

const (
	RoleHeadOffice BranchRole = "head_office"
	RoleSubBranch  BranchRole = "sub_branch"
)

// Branch is a physical store or warehouse location.
type Branch struct {
	entity.Catalog

	// Role defines the branch category
	Role BranchRole `db:"role" json:"role"`

	// IsActive indicates if branch is operational
	IsActive bool `db:"is_active" json:"isActive"`

	// IsDefault marks the branch used when none is given
	IsDefault bool `db:"is_default" json:"isDefault"`
}

// NewBranch creates a new Branch with required fields.
func NewBranch(code, name string, role BranchRole) *Branch {
	return &Branch{
		Catalog:  entity.NewCatalog(code, name),
		Role:     role,
		IsActive: true,
	}
}

// Validate implements entity.Validatable interface.
func (b *Branch) Validate(ctx context.Context) error {
	if err := b.Catalog.Validate(ctx); err != nil {
		return err
	}
	if b.Role != RoleHeadOffice && b.Role != RoleSubBranch {
		return apperror.NewValidation("invalid branch role").
			WithDetail("field", "role").
			WithDetail("value", string(b.Role))
	}
	return nil
}

// IsHeadOffice reports whether the branch is the head office.
func (b *Branch) IsHeadOffice() bool { return b.Role == RoleHeadOffice }

// BranchDirectory resolves branches. Lookups return a NOT_FOUND AppError
// when nothing matches.
type BranchDirectory interface {
	Get(ctx context.Context, branchID id.ID) (*Branch, error)
	HeadOffice(ctx context.Context) (*Branch, error)
	// Default returns the branch flagged as default.
	Default(ctx context.Context) (*Branch, error)
}
