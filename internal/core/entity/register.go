// Package entity provides core domain entities.
package entity

import (
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Variant identifies a product variant. Simple products carry NoVariant so the
// (product, variant, branch) key never contains a null component.
type Variant string

// NoVariant is the variant key of products without variants.
const NoVariant Variant = ""

// IsNone reports whether v is the no-variant key.
func (v Variant) IsNone() bool { return v == NoVariant }

// MovementType classifies a stock movement.
type MovementType string

const (
	MovementSale        MovementType = "sale"
	MovementReturn      MovementType = "return"
	MovementAdjustment  MovementType = "adjustment"
	MovementTransferIn  MovementType = "transfer_in"
	MovementTransferOut MovementType = "transfer_out"
	MovementInitial     MovementType = "initial"
	MovementRecount     MovementType = "recount"
	MovementPurchase    MovementType = "purchase"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementSale, MovementReturn, MovementAdjustment, MovementTransferIn,
		MovementTransferOut, MovementInitial, MovementRecount, MovementPurchase:
		return true
	}
	return false
}

// ReferenceKind names the kind of source a movement points back to.
type ReferenceKind string

const (
	RefOrder        ReferenceKind = "order"
	RefTransfer     ReferenceKind = "transfer"
	RefPurchase     ReferenceKind = "purchase"
	RefStockRequest ReferenceKind = "stock_request"
	RefAdjustment   ReferenceKind = "adjustment"
	RefManual       ReferenceKind = "manual"
)

// Reference is the typed back-pointer of a movement: a closed kind plus an id.
type Reference struct {
	Kind ReferenceKind `db:"reference_kind" json:"kind"`
	ID   string        `db:"reference_id" json:"id,omitempty"`
}

// OrderRef references a sales order owned by the order service.
func OrderRef(orderID string) Reference { return Reference{Kind: RefOrder, ID: orderID} }

// TransferRef references a transfer document.
func TransferRef(docID id.ID) Reference { return Reference{Kind: RefTransfer, ID: docID.String()} }

// PurchaseRef references a purchase invoice.
func PurchaseRef(docID id.ID) Reference { return Reference{Kind: RefPurchase, ID: docID.String()} }

// StockRequestRef references a stock request.
func StockRequestRef(docID id.ID) Reference {
	return Reference{Kind: RefStockRequest, ID: docID.String()}
}

// AdjustmentRef references an adjustment batch; batchID may be empty.
func AdjustmentRef(batchID string) Reference { return Reference{Kind: RefAdjustment, ID: batchID} }

// ManualRef marks a change made by hand without a source document.
func ManualRef() Reference { return Reference{Kind: RefManual} }

// Validate checks that the kind is known and that document kinds carry an id.
func (r Reference) Validate() error {
	switch r.Kind {
	case RefOrder, RefTransfer, RefPurchase, RefStockRequest:
		if r.ID == "" {
			return apperror.NewValidation("reference id is required").
				WithDetail("reference_kind", string(r.Kind))
		}
		return nil
	case RefAdjustment, RefManual:
		return nil
	default:
		return apperror.NewValidation("unknown reference kind").
			WithDetail("reference_kind", string(r.Kind))
	}
}

func (r Reference) String() string {
	if r.ID == "" {
		return string(r.Kind)
	}
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}

// StockKey is the unique identity of a stock entry.
type StockKey struct {
	ProductID id.ID   `json:"productId"`
	Variant   Variant `json:"variant,omitempty"`
	BranchID  id.ID   `json:"branchId"`
}

func (k StockKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.ProductID, k.Variant, k.BranchID)
}

// StockEntry is the current stock level of one (product, variant, branch).
type StockEntry struct {
	ID        id.ID   `db:"id" json:"id"`
	ProductID id.ID   `db:"product_id" json:"productId"`
	Variant   Variant `db:"variant_key" json:"variant,omitempty"`
	BranchID  id.ID   `db:"branch_id" json:"branchId"`

	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	ReservedQuantity types.Quantity `db:"reserved_quantity" json:"reservedQuantity"`

	// CostPrice is the weighted-average unit cost of stock on hand.
	CostPrice types.Money `db:"cost_price" json:"costPrice"`

	ReorderPoint    types.Quantity `db:"reorder_point" json:"reorderPoint"`
	ReorderQuantity types.Quantity `db:"reorder_quantity" json:"reorderQuantity"`
	NeedsReorder    bool           `db:"needs_reorder" json:"needsReorder"`

	IsActive bool   `db:"is_active" json:"isActive"`
	Barcode  string `db:"barcode" json:"barcode,omitempty"`
	SKU      string `db:"sku" json:"sku,omitempty"`

	// DeletedProductSnapshot keeps a description once the product is deleted.
	DeletedProductSnapshot *string `db:"deleted_product_snapshot" json:"deletedProductSnapshot,omitempty"`

	LastMovementAt *time.Time `db:"last_movement_at" json:"lastMovementAt,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// Key returns the entry identity.
func (e *StockEntry) Key() StockKey {
	return StockKey{ProductID: e.ProductID, Variant: e.Variant, BranchID: e.BranchID}
}

// Available is the quantity not held by reservations, never negative.
func (e *StockEntry) Available() types.Quantity {
	if free := e.Quantity - e.ReservedQuantity; free > 0 {
		return free
	}
	return 0
}

// Sellable returns Available when reservations are respected, otherwise Quantity.
func (e *StockEntry) Sellable(respectReservations bool) types.Quantity {
	if respectReservations {
		return e.Available()
	}
	return e.Quantity
}

// ComputeNeedsReorder derives the reorder flag from quantity and reorder point.
func ComputeNeedsReorder(quantity, reorderPoint types.Quantity) bool {
	return reorderPoint > 0 && quantity <= reorderPoint
}

// StockMovement is an immutable record of one quantity change.
type StockMovement struct {
	ID        id.ID        `db:"id" json:"id"`
	EntryID   id.ID        `db:"entry_id" json:"entryId"`
	ProductID id.ID        `db:"product_id" json:"productId"`
	Variant   Variant      `db:"variant_key" json:"variant,omitempty"`
	BranchID  id.ID        `db:"branch_id" json:"branchId"`
	Type      MovementType `db:"movement_type" json:"type"`

	// Quantity is the signed delta applied to the entry.
	Quantity     types.Quantity `db:"quantity" json:"quantity"`
	BalanceAfter types.Quantity `db:"balance_after" json:"balanceAfter"`
	UnitCost     *types.Money   `db:"unit_cost" json:"unitCost,omitempty"`

	Reference `json:"reference"`

	ActorID   string    `db:"actor_id" json:"actorId,omitempty"`
	Note      string    `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
}

// NewStockMovement builds a movement for entry after the change was applied.
func NewStockMovement(entry *StockEntry, t MovementType, delta types.Quantity, ref Reference, actorID string, retention time.Duration) StockMovement {
	now := time.Now().UTC()
	return StockMovement{
		ID:           id.New(),
		EntryID:      entry.ID,
		ProductID:    entry.ProductID,
		Variant:      entry.Variant,
		BranchID:     entry.BranchID,
		Type:         t,
		Quantity:     delta,
		BalanceAfter: entry.Quantity,
		Reference:    ref,
		ActorID:      actorID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(retention),
	}
}
