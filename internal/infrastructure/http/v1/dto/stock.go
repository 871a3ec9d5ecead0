package dto

import (
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
)

// StockItem is one line of a stock primitive request.
type StockItem struct {
	ProductID id.ID          `json:"productId" binding:"required"`
	Variant   string         `json:"variant" binding:"max=100"`
	Quantity  types.Quantity `json:"quantity" binding:"qty"`
	UnitCost  *types.Money   `json:"unitCost" binding:"omitempty,money"`
}

// ToItem converts the line to a ledger item.
func (i StockItem) ToItem() stock.Item {
	return stock.Item{
		ProductID: i.ProductID,
		Variant:   entity.Variant(i.Variant),
		Quantity:  i.Quantity,
		UnitCost:  i.UnitCost,
	}
}

// ToItems converts request lines.
func ToItems(lines []StockItem) []stock.Item {
	items := make([]stock.Item, len(lines))
	for i, l := range lines {
		items[i] = l.ToItem()
	}
	return items
}

// ReferenceRequest is the typed movement reference of a request.
type ReferenceRequest struct {
	Kind string `json:"kind" binding:"required,oneof=order adjustment manual"`
	ID   string `json:"id" binding:"max=100"`
}

// ToReference converts the request reference. Document kinds are reserved for
// the workflow engines.
func (r ReferenceRequest) ToReference() entity.Reference {
	return entity.Reference{Kind: entity.ReferenceKind(r.Kind), ID: r.ID}
}

// BatchRequest is the body of POST /stock/decrement and /stock/restore.
type BatchRequest struct {
	BranchID            id.ID            `json:"branchId" binding:"required"`
	Items               []StockItem      `json:"items" binding:"required,min=1,dive"`
	Reference           ReferenceRequest `json:"reference"`
	MovementType        string           `json:"movementType" binding:"omitempty,oneof=sale return adjustment"`
	RespectReservations bool             `json:"respectReservations"`
	Note                string           `json:"note" binding:"max=1000"`
}

// ToInput converts the request for the ledger.
func (r BatchRequest) ToInput(actorID string) stock.BatchInput {
	return stock.BatchInput{
		BranchID:            r.BranchID,
		Items:               ToItems(r.Items),
		Reference:           r.Reference.ToReference(),
		ActorID:             actorID,
		Note:                r.Note,
		MovementType:        entity.MovementType(r.MovementType),
		RespectReservations: r.RespectReservations,
	}
}

// SetStockRequest is the body of POST /stock/set.
type SetStockRequest struct {
	ProductID id.ID          `json:"productId" binding:"required"`
	Variant   string         `json:"variant" binding:"max=100"`
	BranchID  id.ID          `json:"branchId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"qty_nonneg"`
	Reason    string         `json:"reason" binding:"required,max=500"`
}

// ToInput converts the request for the ledger.
func (r SetStockRequest) ToInput(actorID string) stock.SetStockInput {
	return stock.SetStockInput{
		ProductID: r.ProductID,
		Variant:   entity.Variant(r.Variant),
		BranchID:  r.BranchID,
		Quantity:  r.Quantity,
		Reason:    r.Reason,
		ActorID:   actorID,
	}
}

// AvailabilityRequest is the body of POST /stock/availability.
type AvailabilityRequest struct {
	BranchID            id.ID       `json:"branchId" binding:"required"`
	Items               []StockItem `json:"items" binding:"required,min=1,dive"`
	RespectReservations bool        `json:"respectReservations"`
}

// LookupRequest is the query of GET /stock/lookup.
type LookupRequest struct {
	Code     string `form:"code" binding:"required,max=100"`
	BranchID string `form:"branchId" binding:"required,uuid"`
}

// EntryListRequest is the query of GET /stock/entries.
type EntryListRequest struct {
	PaginationRequest
	BranchID     string `form:"branchId" binding:"omitempty,uuid"`
	ProductID    string `form:"productId" binding:"omitempty,uuid"`
	OnlyActive   bool   `form:"onlyActive"`
	NeedsReorder bool   `form:"needsReorder"`
	OutOfStock   bool   `form:"outOfStock"`
}

// BranchLimitRequest is the query of the low-stock and out-of-stock lists.
type BranchLimitRequest struct {
	BranchID string `form:"branchId" binding:"required,uuid"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// MovementListRequest is the query of GET /stock/movements.
type MovementListRequest struct {
	PaginationRequest
	DateRange
	ProductID     string `form:"productId" binding:"omitempty,uuid"`
	BranchID      string `form:"branchId" binding:"omitempty,uuid"`
	Type          string `form:"type"`
	ReferenceKind string `form:"referenceKind"`
	ReferenceID   string `form:"referenceId"`
}

// BulkAdjustRequest is the body of POST /stock/adjustments/bulk.
type BulkAdjustRequest struct {
	BatchID string                 `json:"batchId" binding:"max=100"`
	Reason  string                 `json:"reason" binding:"required,max=500"`
	Lines   []stock.AdjustmentLine `json:"lines" binding:"required,min=1,max=1000"`
}

// BulkAdjustResponse reports per-line outcomes.
type BulkAdjustResponse struct {
	Applied int                      `json:"applied"`
	Failed  int                      `json:"failed"`
	Results []stock.AdjustmentResult `json:"results"`
}

// NewBulkAdjustResponse counts the outcomes.
func NewBulkAdjustResponse(results []stock.AdjustmentResult) BulkAdjustResponse {
	resp := BulkAdjustResponse{Results: results}
	for _, r := range results {
		if r.OK {
			resp.Applied++
		} else {
			resp.Failed++
		}
	}
	return resp
}

// ReservationRequest is the body of POST/DELETE /stock/reservations.
type ReservationRequest struct {
	ProductID id.ID          `json:"productId" binding:"required"`
	Variant   string         `json:"variant" binding:"max=100"`
	BranchID  id.ID          `json:"branchId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"qty"`
}

// ToInput converts the request for the ledger.
func (r ReservationRequest) ToInput() stock.ReservationInput {
	return stock.ReservationInput{
		ProductID: r.ProductID,
		Variant:   entity.Variant(r.Variant),
		BranchID:  r.BranchID,
		Quantity:  r.Quantity,
	}
}

// ReorderLevelsRequest is the body of PUT /stock/reorder-levels.
type ReorderLevelsRequest struct {
	ProductID       id.ID          `json:"productId" binding:"required"`
	Variant         string         `json:"variant" binding:"max=100"`
	BranchID        id.ID          `json:"branchId" binding:"required"`
	ReorderPoint    types.Quantity `json:"reorderPoint" binding:"qty_nonneg"`
	ReorderQuantity types.Quantity `json:"reorderQuantity" binding:"qty_nonneg"`
}

// Key returns the entry key.
func (r ReorderLevelsRequest) Key() entity.StockKey {
	return entity.StockKey{ProductID: r.ProductID, Variant: entity.Variant(r.Variant), BranchID: r.BranchID}
}

// ProductStateRequest is the body of product deactivation.
type ProductStateRequest struct {
	Snapshot string `json:"snapshot" binding:"max=1000"`
}

// AffectedResponse reports how many rows an operation touched.
type AffectedResponse struct {
	Affected int64 `json:"affected"`
}
