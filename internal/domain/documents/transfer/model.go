// Package transfer provides the Transfer document (challan) and its workflow.
package transfer

import (
	"context"
	"slices"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status of a transfer.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusApproved        Status = "approved"
	StatusDispatched      Status = "dispatched"
	StatusInTransit       Status = "in_transit"
	StatusReceived        Status = "received"
	StatusPartialReceived Status = "partial_received"
	StatusCancelled       Status = "cancelled"
)

// IsTerminal reports whether no further action is possible.
func (s Status) IsTerminal() bool {
	return s == StatusReceived || s == StatusCancelled
}

// Type is derived from the roles of the two branches.
type Type string

const (
	TypeHeadToSub Type = "head_to_sub"
	TypeSubToSub  Type = "sub_to_sub"
	TypeSubToHead Type = "sub_to_head"
)

// Action names a workflow step.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionApprove   Action = "approve"
	ActionDispatch  Action = "dispatch"
	ActionInTransit Action = "mark_in_transit"
	ActionReceive   Action = "receive"
	ActionCancel    Action = "cancel"
	ActionRevoke    Action = "revoke"
)

// allowedFrom lists the origin statuses of every action.
var allowedFrom = map[Action][]Status{
	ActionUpdate:    {StatusDraft},
	ActionApprove:   {StatusDraft},
	ActionDispatch:  {StatusApproved},
	ActionInTransit: {StatusDispatched},
	ActionReceive:   {StatusDispatched, StatusInTransit, StatusPartialReceived},
	ActionCancel:    {StatusDraft, StatusApproved},
	ActionRevoke:    {StatusDispatched},
}

// Transfer moves stock from a sender branch to a receiver branch.
type Transfer struct {
	entity.Document

	SenderBranchID   id.ID  `db:"sender_branch_id" json:"senderBranchId"`
	ReceiverBranchID id.ID  `db:"receiver_branch_id" json:"receiverBranchId"`
	Type             Type   `db:"transfer_type" json:"transferType"`
	Status           Status `db:"status" json:"status"`

	// StockRequestID links the request this transfer fulfils
	StockRequestID *id.ID `db:"stock_request_id" json:"stockRequestId,omitempty"`

	// Totals (calculated from lines)
	TotalQuantity types.Quantity `db:"total_quantity" json:"totalQuantity"`
	TotalReceived types.Quantity `db:"total_received" json:"totalReceived"`
	TotalValue    types.Money    `db:"total_value" json:"totalValue"`

	// Movement ids written by dispatch and by every receipt
	DispatchMovementIDs []id.ID `db:"dispatch_movement_ids" json:"dispatchMovementIds"`
	ReceiptMovementIDs  []id.ID `db:"receipt_movement_ids" json:"receiptMovementIds"`

	// Table part
	Lines []Line `db:"-" json:"lines"`
}

// Line is one product of a transfer.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID   id.ID          `db:"product_id" json:"productId"`
	Variant     entity.Variant `db:"variant_key" json:"variant,omitempty"`
	ProductName string         `db:"product_name" json:"productName"`
	SKU         string         `db:"sku" json:"sku,omitempty"`

	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	ReceivedQuantity types.Quantity `db:"received_quantity" json:"receivedQuantity"`

	// UnitCost is resolved from the sender branch, never from the caller
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`
	Amount   types.Money `db:"amount" json:"amount"`
}

// Remaining is the quantity still to be received.
func (l *Line) Remaining() types.Quantity {
	if r := l.Quantity - l.ReceivedQuantity; r > 0 {
		return r
	}
	return 0
}

// newTransfer creates a draft transfer.
func newTransfer(sender, receiver id.ID, t Type) *Transfer {
	return &Transfer{
		Document:            entity.NewDocument(),
		SenderBranchID:      sender,
		ReceiverBranchID:    receiver,
		Type:                t,
		Status:              StatusDraft,
		DispatchMovementIDs: []id.ID{},
		ReceiptMovementIDs:  []id.ID{},
	}
}

// recalculateTotals updates document totals from lines.
func (t *Transfer) recalculateTotals() {
	t.TotalQuantity = 0
	t.TotalReceived = 0
	t.TotalValue = types.Zero()
	for i := range t.Lines {
		l := &t.Lines[i]
		l.LineNo = i + 1
		l.Amount = types.RoundMoney(l.Quantity.Amount(l.UnitCost))
		t.TotalQuantity += l.Quantity
		t.TotalReceived += l.ReceivedQuantity
		t.TotalValue = t.TotalValue.Add(l.Amount)
	}
}

// FullyReceived reports whether every line has been received in full.
func (t *Transfer) FullyReceived() bool {
	for i := range t.Lines {
		if t.Lines[i].Remaining() > 0 {
			return false
		}
	}
	return true
}

// Line returns the line with the given id.
func (t *Transfer) Line(lineID id.ID) (*Line, bool) {
	for i := range t.Lines {
		if t.Lines[i].LineID == lineID {
			return &t.Lines[i], true
		}
	}
	return nil, false
}

// checkAction fails with INVALID_STATE unless the current status allows a.
func (t *Transfer) checkAction(a Action) error {
	allowed := allowedFrom[a]
	if slices.Contains(allowed, t.Status) {
		return nil
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return apperror.NewInvalidState("transfer", t.ID.String(), string(a), string(t.Status), names...)
}

// transition moves to a new status and records it.
func (t *Transfer) transition(to Status, a Action, actorID, note string) {
	from := t.Status
	t.Status = to
	t.RecordTransition(string(from), string(to), string(a), actorID, note)
}

// Validate implements entity.Validatable.
func (t *Transfer) Validate(ctx context.Context) error {
	if err := t.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(t.SenderBranchID) || id.IsNil(t.ReceiverBranchID) {
		return apperror.NewValidation("sender and receiver branches are required")
	}
	if t.SenderBranchID == t.ReceiverBranchID {
		return apperror.NewValidation("sender and receiver must differ").
			WithDetail("field", "receiverBranchId")
	}
	if len(t.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for i, line := range t.Lines {
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
	}
	return nil
}
