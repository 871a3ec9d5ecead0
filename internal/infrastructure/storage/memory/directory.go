package memory

import (
	"context"
	"slices"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
)

// BranchDirectory implements directory.BranchDirectory.
type BranchDirectory struct {
	store *Store
}

var _ directory.BranchDirectory = (*BranchDirectory)(nil)

// NewBranchDirectory creates a branch directory on store.
func NewBranchDirectory(store *Store) *BranchDirectory {
	return &BranchDirectory{store: store}
}

// Put inserts or replaces a branch.
func (d *BranchDirectory) Put(ctx context.Context, b *directory.Branch) error {
	if err := b.Validate(ctx); err != nil {
		return err
	}
	return d.store.write(ctx, func(st *state) error {
		if b.IsHeadOffice() {
			for _, other := range st.branches {
				if other.ID != b.ID && other.IsHeadOffice() && !other.DeletionMark {
					return apperror.NewDuplicate("branch", "role", string(directory.RoleHeadOffice))
				}
			}
		}
		st.branches[b.ID] = *b
		return nil
	})
}

// Get implements directory.BranchDirectory.
func (d *BranchDirectory) Get(ctx context.Context, branchID id.ID) (*directory.Branch, error) {
	return d.find(func(b *directory.Branch) bool { return b.ID == branchID }, branchID.String())
}

// HeadOffice implements directory.BranchDirectory.
func (d *BranchDirectory) HeadOffice(ctx context.Context) (*directory.Branch, error) {
	return d.find(func(b *directory.Branch) bool {
		return b.IsHeadOffice() && b.IsActive && !b.DeletionMark
	}, string(directory.RoleHeadOffice))
}

// Default implements directory.BranchDirectory.
func (d *BranchDirectory) Default(ctx context.Context) (*directory.Branch, error) {
	return d.find(func(b *directory.Branch) bool {
		return b.IsDefault && !b.DeletionMark
	}, "default")
}

// List returns every branch ordered by code.
func (d *BranchDirectory) List(ctx context.Context) ([]directory.Branch, error) {
	var out []directory.Branch
	_ = d.store.read(func(st *state) error {
		for _, b := range st.branches {
			out = append(out, b)
		}
		return nil
	})
	slices.SortFunc(out, func(a, b directory.Branch) int {
		if a.Code < b.Code {
			return -1
		}
		if a.Code > b.Code {
			return 1
		}
		return 0
	})
	return out, nil
}

func (d *BranchDirectory) find(match func(b *directory.Branch) bool, key string) (*directory.Branch, error) {
	var out *directory.Branch
	_ = d.store.read(func(st *state) error {
		for _, b := range st.branches {
			if match(&b) {
				out = &b
				return nil
			}
		}
		return nil
	})
	if out == nil {
		return nil, apperror.NewNotFound("branch", key)
	}
	return out, nil
}

// ProductDirectory implements directory.ProductDirectory.
type ProductDirectory struct {
	store *Store
}

var _ directory.ProductDirectory = (*ProductDirectory)(nil)

// NewProductDirectory creates a product directory on store.
func NewProductDirectory(store *Store) *ProductDirectory {
	return &ProductDirectory{store: store}
}

// Put inserts or replaces a product.
func (d *ProductDirectory) Put(ctx context.Context, p *directory.Product) error {
	if err := p.Validate(ctx); err != nil {
		return err
	}
	stored := *p
	stored.Variants = slices.Clone(p.Variants)
	return d.store.write(ctx, func(st *state) error {
		st.products[p.ID] = stored
		return nil
	})
}

// Get implements directory.ProductDirectory.
func (d *ProductDirectory) Get(ctx context.Context, productID id.ID) (*directory.Product, error) {
	var out *directory.Product
	err := d.store.read(func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return apperror.NewNotFound("product", productID.String())
		}
		p.Variants = slices.Clone(p.Variants)
		out = &p
		return nil
	})
	return out, err
}

// ListIDs returns the ids of every product.
func (d *ProductDirectory) ListIDs(ctx context.Context) ([]id.ID, error) {
	var out []id.ID
	_ = d.store.read(func(st *state) error {
		for pid := range st.products {
			out = append(out, pid)
		}
		return nil
	})
	return out, nil
}

// UpdateCostSnapshot implements directory.ProductDirectory.
func (d *ProductDirectory) UpdateCostSnapshot(ctx context.Context, productID id.ID, variant entity.Variant, cost types.Money) error {
	return d.update(ctx, productID, func(p *directory.Product) {
		if variant.IsNone() {
			p.CostPrice = cost
			return
		}
		variants := slices.Clone(p.Variants)
		for i := range variants {
			if variants[i].Key == variant {
				variants[i].CostPrice = cost
			}
		}
		p.Variants = variants
	})
}

// UpdateQuantityProjection implements directory.ProductDirectory.
func (d *ProductDirectory) UpdateQuantityProjection(ctx context.Context, productID id.ID, total types.Quantity) error {
	return d.update(ctx, productID, func(p *directory.Product) {
		p.TotalQuantity = total
	})
}

func (d *ProductDirectory) update(ctx context.Context, productID id.ID, fn func(p *directory.Product)) error {
	return d.store.write(ctx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return apperror.NewNotFound("product", productID.String())
		}
		fn(&p)
		p.Version++
		st.products[productID] = p
		return nil
	})
}
