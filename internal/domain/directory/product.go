package directory

import (
	"context"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// ProductVariant is one sellable variant of a product.
type ProductVariant struct {
	Key       entity.Variant `json:"key"`
	Name      string         `json:"name"`
	SKU       string         `json:"sku,omitempty"`
	Barcode   string         `json:"barcode,omitempty"`
	CostPrice types.Money    `json:"costPrice"`
	IsActive  bool           `json:"isActive"`
}

// Product is the catalog view the ledger needs: identity, activity and cost.
type Product struct {
	entity.Catalog

	SKU     string `db:"sku" json:"sku,omitempty"`
	Barcode string `db:"barcode" json:"barcode,omitempty"`

	// HasVariants decides whether stock is kept per variant or under NoVariant.
	HasVariants bool `db:"has_variants" json:"hasVariants"`

	IsActive  bool        `db:"is_active" json:"isActive"`
	CostPrice types.Money `db:"cost_price" json:"costPrice"`

	// TotalQuantity is the cross-branch quantity projection.
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`

	Variants []ProductVariant `db:"variants" json:"variants,omitempty"`
}

// NewProduct creates a simple (variant-less) active product.
func NewProduct(sku, name string, cost types.Money) *Product {
	return &Product{
		Catalog:   entity.NewCatalog(sku, name),
		SKU:       sku,
		IsActive:  true,
		CostPrice: cost,
	}
}

// FindVariant returns the variant with the given key.
func (p *Product) FindVariant(key entity.Variant) (*ProductVariant, bool) {
	for i := range p.Variants {
		if p.Variants[i].Key == key {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// CheckVariant enforces that simple products only use NoVariant and variant
// products always name one of their variants.
func (p *Product) CheckVariant(key entity.Variant) error {
	if !p.HasVariants {
		if !key.IsNone() {
			return apperror.NewValidation("product has no variants").
				WithDetail("product_id", p.ID.String()).
				WithDetail("variant", string(key))
		}
		return nil
	}
	if key.IsNone() {
		return apperror.NewValidation("variant is required for this product").
			WithDetail("product_id", p.ID.String())
	}
	if _, ok := p.FindVariant(key); !ok {
		return apperror.NewValidation("unknown variant").
			WithDetail("product_id", p.ID.String()).
			WithDetail("variant", string(key))
	}
	return nil
}

// ActiveFor reports whether stock of the variant should be sellable.
func (p *Product) ActiveFor(key entity.Variant) bool {
	if p.DeletionMark || !p.IsActive {
		return false
	}
	if key.IsNone() {
		return true
	}
	v, ok := p.FindVariant(key)
	return ok && v.IsActive
}

// CostFor returns the variant cost when positive, otherwise the product cost.
func (p *Product) CostFor(key entity.Variant) types.Money {
	if v, ok := p.FindVariant(key); ok && v.CostPrice.IsPositive() {
		return v.CostPrice
	}
	return p.CostPrice
}

// IdentifiersFor returns the SKU and barcode that identify the variant at a till.
func (p *Product) IdentifiersFor(key entity.Variant) (sku, barcode string) {
	if v, ok := p.FindVariant(key); ok {
		return v.SKU, v.Barcode
	}
	return p.SKU, p.Barcode
}

// DisplayName returns "Product / Variant" for variants.
func (p *Product) DisplayName(key entity.Variant) string {
	if v, ok := p.FindVariant(key); ok && v.Name != "" {
		return p.Name + " / " + v.Name
	}
	return p.Name
}

// ProductDirectory resolves products and accepts the denormalized values the
// ledger maintains on them.
type ProductDirectory interface {
	Get(ctx context.Context, productID id.ID) (*Product, error)

	// UpdateCostSnapshot stores the latest weighted cost on the product or variant.
	UpdateCostSnapshot(ctx context.Context, productID id.ID, variant entity.Variant, cost types.Money) error

	// UpdateQuantityProjection stores the cross-branch total.
	UpdateQuantityProjection(ctx context.Context, productID id.ID, total types.Quantity) error
}
