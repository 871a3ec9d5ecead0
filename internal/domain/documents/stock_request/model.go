// Package stock_request provides sub-branch replenishment requests fulfilled
// through transfers.
package stock_request

import (
	"context"
	"slices"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status of a stock request.
type Status string

const (
	StatusPending          Status = "pending"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusFulfilled        Status = "fulfilled"
	StatusPartialFulfilled Status = "partial_fulfilled"
	StatusCancelled        Status = "cancelled"
)

// Action names a workflow step.
type Action string

const (
	ActionCreate  Action = "create"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionFulfill Action = "fulfill"
	ActionCancel  Action = "cancel"
)

var allowedFrom = map[Action][]Status{
	ActionApprove: {StatusPending},
	ActionReject:  {StatusPending},
	ActionFulfill: {StatusApproved, StatusPartialFulfilled},
	ActionCancel:  {StatusPending, StatusApproved},
}

// StockRequest asks the fulfilling branch to send stock to a sub-branch.
type StockRequest struct {
	entity.Document

	RequestingBranchID id.ID  `db:"requesting_branch_id" json:"requestingBranchId"`
	FulfillingBranchID id.ID  `db:"fulfilling_branch_id" json:"fulfillingBranchId"`
	Status             Status `db:"status" json:"status"`
	RejectionReason    string `db:"rejection_reason" json:"rejectionReason,omitempty"`

	// TransferIDs links every transfer created while fulfilling
	TransferIDs []id.ID `db:"transfer_ids" json:"transferIds"`

	TotalRequested types.Quantity `db:"total_requested" json:"totalRequested"`
	TotalApproved  types.Quantity `db:"total_approved" json:"totalApproved"`
	TotalFulfilled types.Quantity `db:"total_fulfilled" json:"totalFulfilled"`

	Lines []Line `db:"-" json:"lines"`
}

// Line is one requested product.
type Line struct {
	LineID id.ID `db:"line_id" json:"lineId"`
	LineNo int   `db:"line_no" json:"lineNo"`

	ProductID   id.ID          `db:"product_id" json:"productId"`
	Variant     entity.Variant `db:"variant_key" json:"variant,omitempty"`
	ProductName string         `db:"product_name" json:"productName"`

	RequestedQuantity types.Quantity `db:"requested_quantity" json:"requestedQuantity"`
	ApprovedQuantity  types.Quantity `db:"approved_quantity" json:"approvedQuantity"`
	FulfilledQuantity types.Quantity `db:"fulfilled_quantity" json:"fulfilledQuantity"`

	// StockSnapshot is the requester's quantity when the request was made
	StockSnapshot types.Quantity `db:"stock_snapshot" json:"stockSnapshot"`
}

// Outstanding is the approved quantity not yet fulfilled.
func (l *Line) Outstanding() types.Quantity {
	if rest := l.ApprovedQuantity - l.FulfilledQuantity; rest > 0 {
		return rest
	}
	return 0
}

func newStockRequest(requesting, fulfilling id.ID) *StockRequest {
	return &StockRequest{
		Document:           entity.NewDocument(),
		RequestingBranchID: requesting,
		FulfillingBranchID: fulfilling,
		Status:             StatusPending,
		TransferIDs:        []id.ID{},
	}
}

func (r *StockRequest) recalculateTotals() {
	r.TotalRequested, r.TotalApproved, r.TotalFulfilled = 0, 0, 0
	for i := range r.Lines {
		l := &r.Lines[i]
		l.LineNo = i + 1
		r.TotalRequested += l.RequestedQuantity
		r.TotalApproved += l.ApprovedQuantity
		r.TotalFulfilled += l.FulfilledQuantity
	}
}

// FullyFulfilled reports whether every approved quantity has been sent.
func (r *StockRequest) FullyFulfilled() bool {
	for i := range r.Lines {
		if r.Lines[i].Outstanding() > 0 {
			return false
		}
	}
	return true
}

// Line returns the line with the given id.
func (r *StockRequest) Line(lineID id.ID) (*Line, bool) {
	for i := range r.Lines {
		if r.Lines[i].LineID == lineID {
			return &r.Lines[i], true
		}
	}
	return nil, false
}

func (r *StockRequest) checkAction(a Action) error {
	allowed := allowedFrom[a]
	if slices.Contains(allowed, r.Status) {
		return nil
	}
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return apperror.NewInvalidState("stock_request", r.ID.String(), string(a), string(r.Status), names...)
}

func (r *StockRequest) transition(to Status, a Action, actorID, note string) {
	from := r.Status
	r.Status = to
	r.RecordTransition(string(from), string(to), string(a), actorID, note)
}

// Validate implements entity.Validatable.
func (r *StockRequest) Validate(ctx context.Context) error {
	if err := r.Document.Validate(ctx); err != nil {
		return err
	}
	if r.RequestingBranchID == r.FulfillingBranchID {
		return apperror.NewValidation("requesting and fulfilling branch must differ").
			WithDetail("field", "fulfillingBranchId")
	}
	if len(r.Lines) == 0 {
		return apperror.NewValidation("at least one line is required").
			WithDetail("field", "lines")
	}
	for i, l := range r.Lines {
		if !l.RequestedQuantity.IsPositive() {
			return apperror.NewValidation("requested quantity must be positive").
				WithDetail("field", "lines").WithDetail("lineNo", i+1)
		}
	}
	return nil
}
