// Package purchase provides the supplier Purchase invoice and its workflow.
package purchase

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status is the workflow status of an invoice.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusApproved  Status = "approved"
	StatusReceived  Status = "received"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus is tracked independently from Status.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// Action names a workflow step.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionApprove Action = "approve"
	ActionReceive Action = "receive"
	ActionCancel  Action = "cancel"
	ActionPay     Action = "pay"
)

var allowedFrom = map[Action][]Status{
	ActionUpdate:  {StatusDraft},
	ActionApprove: {StatusDraft},
	ActionReceive: {StatusDraft, StatusApproved},
	ActionCancel:  {StatusDraft, StatusApproved},
	ActionPay:     {StatusDraft, StatusApproved, StatusReceived},
}

var hundred = decimal.NewFromInt(100)

// Purchase is a supplier invoice received into the head office.
type Purchase struct {
	entity.Document

	SupplierID        id.ID  `db:"supplier_id" json:"supplierId"`
	SupplierInvoiceNo string `db:"supplier_invoice_no" json:"supplierInvoiceNo,omitempty"`
	BranchID          id.ID  `db:"branch_id" json:"branchId"`

	Status        Status        `db:"status" json:"status"`
	PaymentStatus PaymentStatus `db:"payment_status" json:"paymentStatus"`

	// Totals (calculated from lines)
	Subtotal      types.Money `db:"subtotal" json:"subtotal"`
	DiscountTotal types.Money `db:"discount_total" json:"discountTotal"`
	TaxTotal      types.Money `db:"tax_total" json:"taxTotal"`
	GrandTotal    types.Money `db:"grand_total" json:"grandTotal"`
	PaidAmount    types.Money `db:"paid_amount" json:"paidAmount"`
	DueAmount     types.Money `db:"due_amount" json:"dueAmount"`

	Payments           []Payment `db:"payments" json:"payments"`
	ReceiptMovementIDs []id.ID   `db:"receipt_movement_ids" json:"receiptMovementIds"`

	// Table part
	Lines []Line `db:"-" json:"lines"`
}

// Line is one invoice line. Discount is an amount off the line subtotal and
// TaxRate a percentage of the discounted subtotal.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID   id.ID          `db:"product_id" json:"productId"`
	Variant     entity.Variant `db:"variant_key" json:"variant,omitempty"`
	ProductName string         `db:"product_name" json:"productName"`

	Quantity types.Quantity `db:"quantity" json:"quantity"`
	UnitCost types.Money    `db:"unit_cost" json:"unitCost"`
	Discount types.Money    `db:"discount" json:"discount"`
	TaxRate  types.Money    `db:"tax_rate" json:"taxRate"`

	Subtotal  types.Money `db:"subtotal" json:"subtotal"`
	TaxAmount types.Money `db:"tax_amount" json:"taxAmount"`
	Total     types.Money `db:"total" json:"total"`
}

// NetUnitCost is the per-unit cost after the line discount, used for stock
// costing. Tax is not part of inventory cost.
func (l *Line) NetUnitCost() types.Money {
	if !l.Quantity.IsPositive() {
		return types.Zero()
	}
	return types.RoundCost(l.Subtotal.Sub(l.Discount).Div(l.Quantity.Decimal()))
}

// Payment is one recorded payment against the invoice.
type Payment struct {
	ID            id.ID       `json:"id"`
	Amount        types.Money `json:"amount"`
	TaxPortion    types.Money `json:"taxPortion"`
	Method        string      `json:"method,omitempty"`
	TransactionID string      `json:"transactionId"`
	Note          string      `json:"note,omitempty"`
	ActorID       string      `json:"actorId,omitempty"`
	PaidAt        time.Time   `json:"paidAt"`
}

func newPurchase(supplierID, branchID id.ID) *Purchase {
	return &Purchase{
		Document:           entity.NewDocument(),
		SupplierID:         supplierID,
		BranchID:           branchID,
		Status:             StatusDraft,
		PaymentStatus:      PaymentUnpaid,
		PaidAmount:         types.Zero(),
		Payments:           []Payment{},
		ReceiptMovementIDs: []id.ID{},
	}
}

// recalculateTotals updates line and document totals.
func (p *Purchase) recalculateTotals() {
	p.Subtotal, p.DiscountTotal, p.TaxTotal = types.Zero(), types.Zero(), types.Zero()
	for i := range p.Lines {
		l := &p.Lines[i]
		l.LineNo = i + 1
		l.Subtotal = types.RoundMoney(l.Quantity.Amount(l.UnitCost))
		l.TaxAmount = types.RoundMoney(l.Subtotal.Sub(l.Discount).Mul(l.TaxRate).Div(hundred))
		l.Total = l.Subtotal.Sub(l.Discount).Add(l.TaxAmount)

		p.Subtotal = p.Subtotal.Add(l.Subtotal)
		p.DiscountTotal = p.DiscountTotal.Add(l.Discount)
		p.TaxTotal = p.TaxTotal.Add(l.TaxAmount)
	}
	p.GrandTotal = p.Subtotal.Sub(p.DiscountTotal).Add(p.TaxTotal)
	p.refreshPayment()
}

// refreshPayment derives due amount and payment status from paid amount.
func (p *Purchase) refreshPayment() {
	p.DueAmount = p.GrandTotal.Sub(p.PaidAmount)
	switch {
	case p.PaidAmount.IsZero():
		p.PaymentStatus = PaymentUnpaid
	case p.DueAmount.IsPositive():
		p.PaymentStatus = PaymentPartial
	default:
		p.PaymentStatus = PaymentPaid
	}
}

// TaxPortion apportions invoice tax to a payment amount.
func (p *Purchase) TaxPortion(amount types.Money) types.Money {
	if !p.GrandTotal.IsPositive() {
		return types.Zero()
	}
	return types.RoundMoney(p.TaxTotal.Mul(amount).Div(p.GrandTotal))
}

func (p *Purchase) checkAction(a Action) error {
	allowed := allowedFrom[a]
	if slices.Contains(allowed, p.Status) {
		return nil
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return apperror.NewInvalidState("purchase", p.ID.String(), string(a), string(p.Status), names...)
}

func (p *Purchase) transition(to Status, a Action, actorID, note string) {
	from := p.Status
	p.Status = to
	p.RecordTransition(string(from), string(to), string(a), actorID, note)
}

// Validate implements entity.Validatable.
func (p *Purchase) Validate(ctx context.Context) error {
	if err := p.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(p.SupplierID) {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplierId")
	}
	if id.IsNil(p.BranchID) {
		return apperror.NewValidation("branch is required").
			WithDetail("field", "branchId")
	}
	if len(p.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for i, l := range p.Lines {
		switch {
		case !l.Quantity.IsPositive():
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		case l.UnitCost.IsNegative():
			return apperror.NewValidation("unit cost must not be negative").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		case l.Discount.IsNegative() || l.Discount.GreaterThan(l.Subtotal):
			return apperror.NewValidation("discount must be between zero and the line subtotal").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		case l.TaxRate.IsNegative() || l.TaxRate.GreaterThan(hundred):
			return apperror.NewValidation("tax rate must be between 0 and 100").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		}
	}
	return nil
}
