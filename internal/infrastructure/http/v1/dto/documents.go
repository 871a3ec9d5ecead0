package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/domain/documents/transfer"
)

// DocumentLine is a product line of a transfer or a stock request.
type DocumentLine struct {
	ProductID id.ID          `json:"productId" binding:"required"`
	Variant   string         `json:"variant" binding:"max=100"`
	Quantity  types.Quantity `json:"quantity" binding:"qty"`
}

// DocumentListRequest holds the filters every document list shares.
type DocumentListRequest struct {
	PaginationRequest
	DateRange
	Search   string `form:"search" binding:"max=100"`
	BranchID string `form:"branchId" binding:"omitempty,uuid"`
	Status   string `form:"status"`
}

// --- Transfers ---

// CreateTransferRequest is the body of POST /transfers.
type CreateTransferRequest struct {
	SenderBranchID   id.ID          `json:"senderBranchId" binding:"required"`
	ReceiverBranchID id.ID          `json:"receiverBranchId" binding:"required"`
	Items            []DocumentLine `json:"items" binding:"required,min=1,dive"`
	Note             string         `json:"note" binding:"max=1000"`

	// Dispatch creates, approves and dispatches in one call.
	Dispatch bool `json:"dispatch"`
}

// ToInput converts the request for the transfer engine.
func (r CreateTransferRequest) ToInput(actorID string, perms transfer.Permissions) transfer.CreateInput {
	return transfer.CreateInput{
		SenderBranchID:   r.SenderBranchID,
		ReceiverBranchID: r.ReceiverBranchID,
		Items:            transferItems(r.Items),
		Note:             r.Note,
		ActorID:          actorID,
		Permissions:      perms,
	}
}

// UpdateTransferRequest is the body of PUT /transfers/:id.
type UpdateTransferRequest struct {
	Items []DocumentLine `json:"items" binding:"omitempty,dive"`
	Note  *string        `json:"note" binding:"omitempty,max=1000"`
}

// ToInput converts the request for the transfer engine.
func (r UpdateTransferRequest) ToInput(actorID string) transfer.UpdateInput {
	return transfer.UpdateInput{Items: transferItems(r.Items), Note: r.Note, ActorID: actorID}
}

func transferItems(lines []DocumentLine) []transfer.ItemInput {
	if lines == nil {
		return nil
	}
	items := make([]transfer.ItemInput, len(lines))
	for i, l := range lines {
		items[i] = transfer.ItemInput{ProductID: l.ProductID, Variant: entity.Variant(l.Variant), Quantity: l.Quantity}
	}
	return items
}

// ReceiveLine is the quantity received for one transfer line.
type ReceiveLine struct {
	LineID   id.ID          `json:"lineId" binding:"required"`
	Quantity types.Quantity `json:"quantity" binding:"qty_nonneg"`
}

// ReceiveTransferRequest is the body of POST /transfers/:id/receive.
type ReceiveTransferRequest struct {
	Items []ReceiveLine `json:"items" binding:"required,min=1,dive"`
	Note  string        `json:"note" binding:"max=1000"`
}

// ToInput converts the request for the transfer engine.
func (r ReceiveTransferRequest) ToInput(actorID string) transfer.ReceiveInput {
	items := make([]transfer.ReceiveItem, len(r.Items))
	for i, l := range r.Items {
		items[i] = transfer.ReceiveItem{LineID: l.LineID, Quantity: l.Quantity}
	}
	return transfer.ReceiveInput{Items: items, ActorID: actorID, Note: r.Note}
}

// TransferListRequest is the query of GET /transfers.
type TransferListRequest struct {
	DocumentListRequest
	Type string `form:"type" binding:"omitempty,oneof=head_to_sub sub_to_sub sub_to_head"`
}

// --- Purchases ---

// PurchaseLine is one invoice line.
type PurchaseLine struct {
	ProductID id.ID          `json:"productId" binding:"required"`
	Variant   string         `json:"variant" binding:"max=100"`
	Quantity  types.Quantity `json:"quantity" binding:"qty"`
	UnitCost  types.Money    `json:"unitCost" binding:"money"`
	Discount  types.Money    `json:"discount" binding:"money"`
	TaxRate   types.Money    `json:"taxRate" binding:"money"`
}

func purchaseItems(lines []PurchaseLine) []purchase.ItemInput {
	if lines == nil {
		return nil
	}
	items := make([]purchase.ItemInput, len(lines))
	for i, l := range lines {
		items[i] = purchase.ItemInput{
			ProductID: l.ProductID,
			Variant:   entity.Variant(l.Variant),
			Quantity:  l.Quantity,
			UnitCost:  l.UnitCost,
			Discount:  l.Discount,
			TaxRate:   l.TaxRate,
		}
	}
	return items
}

// CreatePurchaseRequest is the body of POST /purchases.
type CreatePurchaseRequest struct {
	SupplierID        id.ID          `json:"supplierId" binding:"required"`
	SupplierInvoiceNo string         `json:"supplierInvoiceNo" binding:"max=100"`
	BranchID          id.ID          `json:"branchId" binding:"required"`
	Date              *time.Time     `json:"date"`
	Items             []PurchaseLine `json:"items" binding:"required,min=1,dive"`
	Note              string         `json:"note" binding:"max=1000"`
}

// ToInput converts the request for the purchase engine.
func (r CreatePurchaseRequest) ToInput(actorID string) purchase.CreateInput {
	return purchase.CreateInput{
		SupplierID:        r.SupplierID,
		SupplierInvoiceNo: r.SupplierInvoiceNo,
		BranchID:          r.BranchID,
		Date:              r.Date,
		Items:             purchaseItems(r.Items),
		Note:              r.Note,
		ActorID:           actorID,
	}
}

// UpdatePurchaseRequest is the body of PUT /purchases/:id.
type UpdatePurchaseRequest struct {
	SupplierID        *id.ID         `json:"supplierId"`
	SupplierInvoiceNo *string        `json:"supplierInvoiceNo" binding:"omitempty,max=100"`
	Items             []PurchaseLine `json:"items" binding:"omitempty,dive"`
	Note              *string        `json:"note" binding:"omitempty,max=1000"`
}

// ToInput converts the request for the purchase engine.
func (r UpdatePurchaseRequest) ToInput(actorID string) purchase.UpdateInput {
	return purchase.UpdateInput{
		SupplierID:        r.SupplierID,
		SupplierInvoiceNo: r.SupplierInvoiceNo,
		Items:             purchaseItems(r.Items),
		Note:              r.Note,
		ActorID:           actorID,
	}
}

// PayPurchaseRequest is the body of POST /purchases/:id/pay.
type PayPurchaseRequest struct {
	Amount types.Money `json:"amount" binding:"money_pos"`
	Method string      `json:"method" binding:"max=50"`
	Note   string      `json:"note" binding:"max=1000"`
}

// ToInput converts the request for the purchase engine.
func (r PayPurchaseRequest) ToInput(actorID string) purchase.PayInput {
	return purchase.PayInput{Amount: r.Amount, Method: r.Method, Note: r.Note, ActorID: actorID}
}

// PurchaseListRequest is the query of GET /purchases.
type PurchaseListRequest struct {
	DocumentListRequest
	SupplierID    string `form:"supplierId" binding:"omitempty,uuid"`
	PaymentStatus string `form:"paymentStatus" binding:"omitempty,oneof=unpaid partial paid"`
}

// --- Stock requests ---

// CreateStockRequestRequest is the body of POST /stock-requests.
type CreateStockRequestRequest struct {
	RequestingBranchID id.ID          `json:"requestingBranchId" binding:"required"`
	FulfillingBranchID *id.ID         `json:"fulfillingBranchId"`
	Items              []DocumentLine `json:"items" binding:"required,min=1,dive"`
	Note               string         `json:"note" binding:"max=1000"`
}

// ToInput converts the request for the stock request engine.
func (r CreateStockRequestRequest) ToInput(actorID string) stock_request.CreateInput {
	items := make([]stock_request.ItemInput, len(r.Items))
	for i, l := range r.Items {
		items[i] = stock_request.ItemInput{ProductID: l.ProductID, Variant: entity.Variant(l.Variant), Quantity: l.Quantity}
	}
	return stock_request.CreateInput{
		RequestingBranchID: r.RequestingBranchID,
		FulfillingBranchID: r.FulfillingBranchID,
		Items:              items,
		Note:               r.Note,
		ActorID:            actorID,
	}
}

// LineQuantity sets a quantity on one request line.
type LineQuantity struct {
	LineID   id.ID          `json:"lineId" binding:"required"`
	Quantity types.Quantity `json:"quantity" binding:"qty_nonneg"`
}

// ApproveStockRequestRequest is the body of POST /stock-requests/:id/approve.
// Lines left out are approved as requested.
type ApproveStockRequestRequest struct {
	Items []LineQuantity `json:"items" binding:"omitempty,dive"`
	Note  string         `json:"note" binding:"max=1000"`
}

// ToInput converts the request for the stock request engine.
func (r ApproveStockRequestRequest) ToInput(actorID string) stock_request.ApproveInput {
	var quantities map[id.ID]types.Quantity
	if len(r.Items) > 0 {
		quantities = make(map[id.ID]types.Quantity, len(r.Items))
		for _, l := range r.Items {
			quantities[l.LineID] = l.Quantity
		}
	}
	return stock_request.ApproveInput{Quantities: quantities, ActorID: actorID, Note: r.Note}
}

// FulfillStockRequestRequest is the body of POST /stock-requests/:id/fulfill.
// Without items every outstanding quantity is sent.
type FulfillStockRequestRequest struct {
	Items []LineQuantity `json:"items" binding:"omitempty,dive"`
	Note  string         `json:"note" binding:"max=1000"`
}

// ToInput converts the request for the stock request engine.
func (r FulfillStockRequestRequest) ToInput(actorID string, perms transfer.Permissions) stock_request.FulfillInput {
	items := make([]stock_request.FulfillItem, len(r.Items))
	for i, l := range r.Items {
		items[i] = stock_request.FulfillItem{LineID: l.LineID, Quantity: l.Quantity}
	}
	return stock_request.FulfillInput{Items: items, ActorID: actorID, Note: r.Note, Permissions: perms}
}
