package stock_request

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/pkg/logger"
)

// Ledger reads the requester's current stock for snapshots.
type Ledger interface {
	GetEntry(ctx context.Context, key entity.StockKey) (*entity.StockEntry, error)
}

// Transfers is the part of the transfer engine used to fulfil requests.
type Transfers interface {
	CreateAndDispatch(ctx context.Context, in transfer.CreateInput) (*transfer.Transfer, error)
	Revoke(ctx context.Context, docID id.ID, actorID, reason string) (*transfer.Transfer, error)
}

// ItemInput is one requested product.
type ItemInput struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	Quantity  types.Quantity `json:"quantity"`
}

// CreateInput is the input of Create. Without a fulfilling branch the head
// office fulfils the request.
type CreateInput struct {
	RequestingBranchID id.ID
	FulfillingBranchID *id.ID
	Items              []ItemInput
	Note               string
	ActorID            string
}

// ApproveInput overrides approved quantities per line id. Lines without an
// override are approved as requested.
type ApproveInput struct {
	Quantities map[id.ID]types.Quantity
	ActorID    string
	Note       string
}

// FulfillItem is a quantity to send now for one line.
type FulfillItem struct {
	LineID   id.ID          `json:"lineId"`
	Quantity types.Quantity `json:"quantity"`
}

// FulfillInput is the input of Fulfill. Without items every line's
// outstanding quantity is sent.
type FulfillInput struct {
	Items       []FulfillItem
	ActorID     string
	Note        string
	Permissions transfer.Permissions
}

// Service provides the stock request workflow.
type Service struct {
	repo      Repository
	ledger    Ledger
	transfers Transfers
	branches  directory.BranchDirectory
	products  directory.ProductDirectory
	numerator numerator.Generator
	txManager tx.Manager
}

// NewService creates a new stock request service.
func NewService(
	repo Repository,
	ledger Ledger,
	transfers Transfers,
	branches directory.BranchDirectory,
	products directory.ProductDirectory,
	numerator numerator.Generator,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		transfers: transfers,
		branches:  branches,
		products:  products,
		numerator: numerator,
		txManager: txManager,
	}
}

// Create stores a pending request from a sub-branch.
func (s *Service) Create(ctx context.Context, in CreateInput) (*StockRequest, error) {
	requester, err := s.branches.Get(ctx, in.RequestingBranchID)
	if err != nil {
		return nil, fmt.Errorf("get requesting branch: %w", err)
	}
	if requester.IsHeadOffice() {
		return nil, apperror.NewForbidden("only sub-branches can request stock").
			WithDetail("branch_id", requester.ID.String())
	}

	var fulfiller *directory.Branch
	if in.FulfillingBranchID != nil {
		fulfiller, err = s.branches.Get(ctx, *in.FulfillingBranchID)
	} else {
		fulfiller, err = s.branches.HeadOffice(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("get fulfilling branch: %w", err)
	}
	if !requester.IsActive || !fulfiller.IsActive {
		return nil, apperror.NewValidation("branch is not active")
	}

	doc := newStockRequest(requester.ID, fulfiller.ID)
	doc.Note = in.Note
	doc.CreatedBy = in.ActorID
	doc.UpdatedBy = in.ActorID
	if doc.Lines, err = s.buildLines(ctx, requester.ID, in.Items); err != nil {
		return nil, err
	}
	doc.recalculateTotals()
	doc.RecordTransition("", string(StatusPending), string(ActionCreate), in.ActorID, in.Note)

	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numerator.GetNextNumber(ctx, numerator.StockRequestNumbers, doc.Date)
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		doc.Number = number

		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
			return fmt.Errorf("save lines: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock request created",
		"id", doc.ID,
		"number", doc.Number,
		"requesting_branch_id", doc.RequestingBranchID,
		"fulfilling_branch_id", doc.FulfillingBranchID,
	)
	return doc, nil
}

func (s *Service) buildLines(ctx context.Context, requesterID id.ID, items []ItemInput) ([]Line, error) {
	if len(items) == 0 {
		return nil, apperror.NewValidation("at least one line is required").
			WithDetail("field", "items")
	}
	lines := make([]Line, 0, len(items))
	for i, item := range items {
		if !item.Quantity.IsPositive() {
			return nil, apperror.NewValidation("quantity must be positive").
				WithDetail("field", fmt.Sprintf("items[%d].quantity", i))
		}
		product, err := s.products.Get(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", item.ProductID, err)
		}
		if err := product.CheckVariant(item.Variant); err != nil {
			return nil, err
		}

		var snapshot types.Quantity
		entry, err := s.ledger.GetEntry(ctx, entity.StockKey{ProductID: item.ProductID, Variant: item.Variant, BranchID: requesterID})
		switch {
		case err == nil:
			snapshot = entry.Quantity
		case !apperror.IsNotFound(err):
			return nil, fmt.Errorf("get requester entry: %w", err)
		}

		lines = append(lines, Line{
			LineID:            id.New(),
			ProductID:         item.ProductID,
			Variant:           item.Variant,
			ProductName:       product.DisplayName(item.Variant),
			RequestedQuantity: item.Quantity,
			StockSnapshot:     snapshot,
		})
	}
	return lines, nil
}

// Approve fixes the approved quantity per line.
func (s *Service) Approve(ctx context.Context, docID id.ID, in ApproveInput) (*StockRequest, error) {
	return s.mutate(ctx, docID, ActionApprove, func(ctx context.Context, doc *StockRequest) error {
		for lineID := range in.Quantities {
			if _, ok := doc.Line(lineID); !ok {
				return apperror.NewValidation("unknown request line").
					WithDetail("line_id", lineID.String())
			}
		}
		for i := range doc.Lines {
			l := &doc.Lines[i]
			q, ok := in.Quantities[l.LineID]
			if !ok {
				q = l.RequestedQuantity
			}
			if q.IsNegative() || q > l.RequestedQuantity {
				return apperror.NewValidation("approved quantity must be between zero and the requested quantity").
					WithDetail("line_id", l.LineID.String()).
					WithDetail("requested", l.RequestedQuantity.String())
			}
			l.ApprovedQuantity = q
		}
		doc.recalculateTotals()
		if doc.TotalApproved.IsZero() {
			return apperror.NewValidation("nothing approved, reject the request instead")
		}
		doc.transition(StatusApproved, ActionApprove, in.ActorID, in.Note)
		return nil
	}, true)
}

// Reject closes a pending request with a reason.
func (s *Service) Reject(ctx context.Context, docID id.ID, actorID, reason string) (*StockRequest, error) {
	return s.mutate(ctx, docID, ActionReject, func(ctx context.Context, doc *StockRequest) error {
		doc.RejectionReason = reason
		doc.transition(StatusRejected, ActionReject, actorID, reason)
		return nil
	}, false)
}

// Fulfill sends stock from the fulfilling branch through a dispatched
// transfer and tracks the fulfilled quantity per line.
func (s *Service) Fulfill(ctx context.Context, docID id.ID, in FulfillInput) (*StockRequest, error) {
	var dispatched *transfer.Transfer
	doc, err := s.mutate(ctx, docID, ActionFulfill, func(ctx context.Context, doc *StockRequest) error {
		quantities, err := fulfillQuantities(doc, in.Items)
		if err != nil {
			return err
		}
		items := make([]transfer.ItemInput, 0, len(doc.Lines))
		for _, l := range doc.Lines {
			if q := quantities[l.LineID]; q.IsPositive() {
				items = append(items, transfer.ItemInput{ProductID: l.ProductID, Variant: l.Variant, Quantity: q})
			}
		}
		if len(items) == 0 {
			return apperror.NewValidation("nothing left to fulfil").
				WithDetail("stock_request_id", doc.ID.String())
		}

		requestID := doc.ID
		t, err := s.transfers.CreateAndDispatch(ctx, transfer.CreateInput{
			SenderBranchID:   doc.FulfillingBranchID,
			ReceiverBranchID: doc.RequestingBranchID,
			Items:            items,
			Note:             fmt.Sprintf("Fulfilment of %s", doc.Number),
			ActorID:          in.ActorID,
			Permissions:      in.Permissions,
			StockRequestID:   &requestID,
		})
		if err != nil {
			return fmt.Errorf("dispatch transfer: %w", err)
		}
		dispatched = t
		doc.TransferIDs = append(doc.TransferIDs, t.ID)

		for i := range doc.Lines {
			doc.Lines[i].FulfilledQuantity += quantities[doc.Lines[i].LineID]
		}
		doc.recalculateTotals()

		to := StatusPartialFulfilled
		if doc.FullyFulfilled() {
			to = StatusFulfilled
		}
		note := in.Note
		if note == "" {
			note = t.Number
		}
		doc.transition(to, ActionFulfill, in.ActorID, note)
		return nil
	}, true)
	if err != nil && dispatched != nil && !s.txManager.SupportsTransactions() {
		s.revokeTransfer(ctx, docID, dispatched, in.ActorID)
	}
	return doc, err
}

// revokeTransfer takes back a transfer dispatched for a fulfilment that was
// not saved. Without transactions the dispatch has already committed.
func (s *Service) revokeTransfer(ctx context.Context, docID id.ID, t *transfer.Transfer, actorID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.transfers.Revoke(ctx, t.ID, actorID, "fulfilment not saved"); err != nil {
		logger.Error(ctx, "stock request fulfilment compensation failed",
			"id", docID,
			"transfer_id", t.ID,
			"error", err,
		)
		return
	}
	logger.Warn(ctx, "stock request fulfilment compensated", "id", docID, "transfer_id", t.ID)
}

// fulfillQuantities maps line ids to the quantity sent now, clamped to what
// is still outstanding.
func fulfillQuantities(doc *StockRequest, items []FulfillItem) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity, len(doc.Lines))
	if len(items) == 0 {
		for i := range doc.Lines {
			out[doc.Lines[i].LineID] = doc.Lines[i].Outstanding()
		}
		return out, nil
	}
	for i, item := range items {
		if item.Quantity.IsNegative() {
			return nil, apperror.NewValidation("fulfilled quantity must not be negative").
				WithDetail("field", fmt.Sprintf("items[%d].quantity", i))
		}
		line, ok := doc.Line(item.LineID)
		if !ok {
			return nil, apperror.NewValidation("unknown request line").
				WithDetail("field", fmt.Sprintf("items[%d].lineId", i)).
				WithDetail("line_id", item.LineID.String())
		}
		out[line.LineID] = types.MinQuantity(out[line.LineID]+item.Quantity, line.Outstanding())
	}
	return out, nil
}

// Cancel withdraws a request before fulfilment starts.
func (s *Service) Cancel(ctx context.Context, docID id.ID, actorID, reason string) (*StockRequest, error) {
	return s.mutate(ctx, docID, ActionCancel, func(ctx context.Context, doc *StockRequest) error {
		doc.transition(StatusCancelled, ActionCancel, actorID, reason)
		return nil
	}, false)
}

func (s *Service) mutate(ctx context.Context, docID id.ID, action Action, fn func(ctx context.Context, doc *StockRequest) error, withLines bool) (*StockRequest, error) {
	var doc *StockRequest
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		doc, err = s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.checkAction(action); err != nil {
			return err
		}
		if doc.Lines, err = s.repo.GetLines(ctx, docID); err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		if err := fn(ctx, doc); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		doc.Touch()
		if withLines {
			if err := s.repo.SaveLines(ctx, doc.ID, doc.Lines); err != nil {
				return fmt.Errorf("save lines: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock request updated",
		"id", doc.ID,
		"number", doc.Number,
		"action", action,
		"status", doc.Status,
	)
	return doc, nil
}

// Get returns a request with lines.
func (s *Service) Get(ctx context.Context, docID id.ID) (*StockRequest, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Lines, err = s.repo.GetLines(ctx, docID); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	return doc, nil
}

// List retrieves requests with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockRequest], error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}
