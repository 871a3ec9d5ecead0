package stock

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// AvailabilityService is the read-only view over the ledger used by carts,
// dashboards and replenishment.
type AvailabilityService struct {
	repo Repository
}

// NewAvailabilityService creates the availability service.
func NewAvailabilityService(repo Repository) *AvailabilityService {
	return &AvailabilityService{repo: repo}
}

// CartLine is the availability verdict for one cart line.
type CartLine struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	Requested types.Quantity `json:"requested"`
	Available types.Quantity `json:"available"`
	Active    bool           `json:"active"`
	OK        bool           `json:"ok"`
}

// CartCheck is the result of ValidateCart.
type CartCheck struct {
	OK    bool       `json:"ok"`
	Lines []CartLine `json:"lines"`
}

// Shortages returns the failing lines in the error detail shape.
func (c *CartCheck) Shortages() []apperror.Shortage {
	var out []apperror.Shortage
	for _, l := range c.Lines {
		if !l.OK {
			out = append(out, apperror.Shortage{
				ProductID: l.ProductID.String(),
				Variant:   string(l.Variant),
				Requested: l.Requested.String(),
				Available: l.Available.String(),
			})
		}
	}
	return out
}

// ValidateCart checks a cart against sellable stock, which excludes reserved
// quantity. Inactive entries count as unavailable.
func (a *AvailabilityService) ValidateCart(ctx context.Context, branchID id.ID, items []Item) (*CartCheck, error) {
	check := &CartCheck{OK: true, Lines: make([]CartLine, 0, len(items))}
	for _, item := range items {
		line := CartLine{ProductID: item.ProductID, Variant: item.Variant, Requested: item.Quantity}
		entry, err := a.repo.GetEntry(ctx, item.key(branchID))
		switch {
		case err == nil:
			line.Active = entry.IsActive
			if entry.IsActive {
				line.Available = entry.Available()
			}
		case apperror.IsNotFound(err):
		default:
			return nil, fmt.Errorf("get entry: %w", err)
		}
		line.OK = line.Active && line.Available >= line.Requested
		if !line.OK {
			check.OK = false
		}
		check.Lines = append(check.Lines, line)
	}
	return check, nil
}

// LowStock lists active entries at or below their reorder point.
func (a *AvailabilityService) LowStock(ctx context.Context, branchID id.ID, limit int) ([]entity.StockEntry, error) {
	return a.repo.ListEntries(ctx, EntryFilter{
		BranchID:     &branchID,
		OnlyActive:   true,
		NeedsReorder: true,
		Limit:        NormalizedLimit(limit),
	})
}

// OutOfStock lists active entries with nothing on hand.
func (a *AvailabilityService) OutOfStock(ctx context.Context, branchID id.ID, limit int) ([]entity.StockEntry, error) {
	return a.repo.ListEntries(ctx, EntryFilter{
		BranchID:   &branchID,
		OnlyActive: true,
		OutOfStock: true,
		Limit:      NormalizedLimit(limit),
	})
}

// BranchQuantity is one branch's share of a product.
type BranchQuantity struct {
	BranchID id.ID          `json:"branchId"`
	Variant  entity.Variant `json:"variant,omitempty"`
	Quantity types.Quantity `json:"quantity"`
	Reserved types.Quantity `json:"reserved"`
}

// ProductTotals is the cross-branch view of one product.
type ProductTotals struct {
	ProductID id.ID            `json:"productId"`
	Branches  []BranchQuantity `json:"branches"`
	Total     types.Quantity   `json:"total"`
	Reserved  types.Quantity   `json:"reserved"`
}

// CrossBranchTotals returns per-branch quantities of a product and their sum.
func (a *AvailabilityService) CrossBranchTotals(ctx context.Context, productID id.ID) (*ProductTotals, error) {
	entries, err := a.repo.ListEntries(ctx, EntryFilter{ProductID: &productID, OnlyActive: true, Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	totals := &ProductTotals{ProductID: productID, Branches: make([]BranchQuantity, 0, len(entries))}
	for _, e := range entries {
		totals.Branches = append(totals.Branches, BranchQuantity{
			BranchID: e.BranchID,
			Variant:  e.Variant,
			Quantity: e.Quantity,
			Reserved: e.ReservedQuantity,
		})
		totals.Total += e.Quantity
		totals.Reserved += e.ReservedQuantity
	}
	return totals, nil
}

// SumQuantity totals active stock of a product over all branches. It is the
// read side the quantity projection is synced from.
func (a *AvailabilityService) SumQuantity(ctx context.Context, productID id.ID) (types.Quantity, error) {
	return a.repo.SumQuantityByProduct(ctx, productID)
}

// BranchSummary aggregates one branch.
type BranchSummary struct {
	BranchID   id.ID          `json:"branchId"`
	Entries    int            `json:"entries"`
	TotalUnits types.Quantity `json:"totalUnits"`
	StockValue types.Money    `json:"stockValue"`
	LowStock   int            `json:"lowStock"`
	OutOfStock int            `json:"outOfStock"`
}

// BranchSummary totals units and value (quantity * cost) over active entries.
func (a *AvailabilityService) BranchSummary(ctx context.Context, branchID id.ID) (*BranchSummary, error) {
	sum := &BranchSummary{BranchID: branchID, StockValue: types.Zero()}
	const page = 500
	for offset := 0; ; offset += page {
		entries, err := a.repo.ListEntries(ctx, EntryFilter{
			BranchID:   &branchID,
			OnlyActive: true,
			Limit:      page,
			Offset:     offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		for _, e := range entries {
			sum.Entries++
			sum.TotalUnits += e.Quantity
			sum.StockValue = sum.StockValue.Add(e.Quantity.Amount(e.CostPrice))
			switch {
			case e.Quantity <= 0:
				sum.OutOfStock++
			case e.NeedsReorder:
				sum.LowStock++
			}
		}
		if len(entries) < page {
			break
		}
	}
	sum.StockValue = types.RoundMoney(sum.StockValue)
	return sum, nil
}
