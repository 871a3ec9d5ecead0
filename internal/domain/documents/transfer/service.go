package transfer

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
	"stockledger/internal/domain/registers/stock"
	"stockledger/pkg/logger"
)

// Ledger is the part of the stock ledger the transfer engine drives.
type Ledger interface {
	GetEntry(ctx context.Context, key entity.StockKey) (*entity.StockEntry, error)
	CheckAvailability(ctx context.Context, branchID id.ID, items []stock.Item, respectReservations bool) ([]apperror.Shortage, error)
	DecrementBatch(ctx context.Context, in stock.BatchInput) (*stock.BatchResult, error)
	RestoreBatch(ctx context.Context, in stock.BatchInput) (*stock.BatchResult, error)
}

// Permissions are granted by the caller for the transfer types that need an
// explicit grant. Head office to sub-branch never needs one.
type Permissions struct {
	AllowSubToSub  bool
	AllowSubToHead bool
}

// ItemInput is one requested line. Cost is never taken from the caller.
type ItemInput struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	Quantity  types.Quantity `json:"quantity"`
}

// CreateInput is the input of Create.
type CreateInput struct {
	SenderBranchID   id.ID
	ReceiverBranchID id.ID
	Items            []ItemInput
	Note             string
	ActorID          string
	Permissions      Permissions
	StockRequestID   *id.ID
}

// UpdateInput is the input of Update.
type UpdateInput struct {
	Items   []ItemInput
	Note    *string
	ActorID string
}

// ReceiveItem is a received-now quantity for one line.
type ReceiveItem struct {
	LineID   id.ID          `json:"lineId"`
	Quantity types.Quantity `json:"quantity"`
}

// ReceiveInput is the input of Receive. Without items every line is
// received in full.
type ReceiveInput struct {
	Items   []ReceiveItem
	ActorID string
	Note    string
}

// Service provides the transfer workflow.
type Service struct {
	repo      Repository
	ledger    Ledger
	branches  directory.BranchDirectory
	products  directory.ProductDirectory
	numerator numerator.Generator
	txManager tx.Manager
}

// NewService creates a new transfer service.
func NewService(
	repo Repository,
	ledger Ledger,
	branches directory.BranchDirectory,
	products directory.ProductDirectory,
	numerator numerator.Generator,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		branches:  branches,
		products:  products,
		numerator: numerator,
		txManager: txManager,
	}
}

// ResolveType derives the transfer type from the branch roles and checks the
// caller's grants.
func ResolveType(sender, receiver *directory.Branch, perms Permissions) (Type, error) {
	switch {
	case sender.IsHeadOffice() && !receiver.IsHeadOffice():
		return TypeHeadToSub, nil
	case !sender.IsHeadOffice() && !receiver.IsHeadOffice():
		if !perms.AllowSubToSub {
			return "", apperror.NewForbidden("sub-branch to sub-branch transfers are not permitted").
				WithDetail("transfer_type", string(TypeSubToSub))
		}
		return TypeSubToSub, nil
	case !sender.IsHeadOffice() && receiver.IsHeadOffice():
		if !perms.AllowSubToHead {
			return "", apperror.NewForbidden("sub-branch to head office transfers are not permitted").
				WithDetail("transfer_type", string(TypeSubToHead))
		}
		return TypeSubToHead, nil
	default:
		return "", apperror.NewValidation("transfers between head offices are not supported")
	}
}

// Create validates the branch pair, costs the lines from the sender branch and
// stores a draft.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Transfer, error) {
	if in.SenderBranchID == in.ReceiverBranchID {
		return nil, apperror.NewValidation("sender and receiver must differ").
			WithDetail("field", "receiverBranchId")
	}
	sender, err := s.branches.Get(ctx, in.SenderBranchID)
	if err != nil {
		return nil, fmt.Errorf("get sender branch: %w", err)
	}
	receiver, err := s.branches.Get(ctx, in.ReceiverBranchID)
	if err != nil {
		return nil, fmt.Errorf("get receiver branch: %w", err)
	}
	if !sender.IsActive || !receiver.IsActive {
		return nil, apperror.NewValidation("branch is not active")
	}
	transferType, err := ResolveType(sender, receiver, in.Permissions)
	if err != nil {
		return nil, err
	}

	doc := newTransfer(sender.ID, receiver.ID, transferType)
	doc.Note = in.Note
	doc.CreatedBy = in.ActorID
	doc.UpdatedBy = in.ActorID
	doc.StockRequestID = in.StockRequestID
	if doc.Lines, err = s.buildLines(ctx, sender.ID, in.Items); err != nil {
		return nil, err
	}
	doc.recalculateTotals()
	doc.RecordTransition("", string(StatusDraft), string(ActionCreate), in.ActorID, in.Note)

	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numerator.GetNextNumber(ctx, numerator.TransferNumbers, doc.Date)
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

	logger.Info(ctx, "transfer created",
		"id", doc.ID,
		"number", doc.Number,
		"type", doc.Type,
	)
	return doc, nil
}

// buildLines resolves names and costs for the requested items.
func (s *Service) buildLines(ctx context.Context, senderID id.ID, items []ItemInput) ([]Line, error) {
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
		cost, err := s.resolveCost(ctx, senderID, product, item.Variant)
		if err != nil {
			return nil, err
		}
		sku, _ := product.IdentifiersFor(item.Variant)
		lines = append(lines, Line{
			LineID:      id.New(),
			ProductID:   item.ProductID,
			Variant:     item.Variant,
			ProductName: product.DisplayName(item.Variant),
			SKU:         sku,
			Quantity:    item.Quantity,
			UnitCost:    cost,
		})
	}
	return lines, nil
}

// resolveCost uses the sender's weighted cost, then the variant cost, then the
// product cost.
func (s *Service) resolveCost(ctx context.Context, senderID id.ID, product *directory.Product, variant entity.Variant) (types.Money, error) {
	entry, err := s.ledger.GetEntry(ctx, entity.StockKey{ProductID: product.ID, Variant: variant, BranchID: senderID})
	switch {
	case err == nil && entry.CostPrice.IsPositive():
		return entry.CostPrice, nil
	case err != nil && !apperror.IsNotFound(err):
		return types.Zero(), fmt.Errorf("get sender entry: %w", err)
	}
	return product.CostFor(variant), nil
}

// Update replaces the lines of a draft.
func (s *Service) Update(ctx context.Context, docID id.ID, in UpdateInput) (*Transfer, error) {
	return s.mutate(ctx, docID, ActionUpdate, func(ctx context.Context, doc *Transfer) error {
		lines, err := s.buildLines(ctx, doc.SenderBranchID, in.Items)
		if err != nil {
			return err
		}
		doc.Lines = lines
		if in.Note != nil {
			doc.Note = *in.Note
		}
		doc.recalculateTotals()
		doc.UpdatedBy = in.ActorID
		return doc.Validate(ctx)
	}, true)
}

// Approve checks the sender can cover every line.
func (s *Service) Approve(ctx context.Context, docID id.ID, actorID, note string) (*Transfer, error) {
	return s.mutate(ctx, docID, ActionApprove, func(ctx context.Context, doc *Transfer) error {
		shortages, err := s.ledger.CheckAvailability(ctx, doc.SenderBranchID, ledgerItems(doc.Lines, nil), false)
		if err != nil {
			return fmt.Errorf("check availability: %w", err)
		}
		if len(shortages) > 0 {
			return apperror.NewStockShortage(shortages).WithDetail("branch_id", doc.SenderBranchID.String())
		}
		doc.transition(StatusApproved, ActionApprove, actorID, note)
		return nil
	}, false)
}

// Dispatch takes the stock out of the sender branch.
func (s *Service) Dispatch(ctx context.Context, docID id.ID, actorID, note string) (*Transfer, error) {
	var dispatched *stock.BatchResult
	var sender id.ID
	doc, err := s.mutate(ctx, docID, ActionDispatch, func(ctx context.Context, doc *Transfer) error {
		res, err := s.ledger.DecrementBatch(ctx, stock.BatchInput{
			BranchID:     doc.SenderBranchID,
			Items:        ledgerItems(doc.Lines, nil),
			Reference:    entity.TransferRef(doc.ID),
			ActorID:      actorID,
			Note:         doc.Number,
			MovementType: entity.MovementTransferOut,
		})
		if err != nil {
			return err
		}
		dispatched, sender = res, doc.SenderBranchID
		doc.DispatchMovementIDs = append(doc.DispatchMovementIDs, res.MovementIDs()...)
		doc.transition(StatusDispatched, ActionDispatch, actorID, note)
		return nil
	}, false)
	if err != nil && dispatched != nil && !s.txManager.SupportsTransactions() {
		s.compensate(ctx, docID, sender, dispatched, actorID, false)
	}
	return doc, err
}

// Revoke takes back a dispatch that its caller could not record. The sender
// gets the dispatched stock back and the transfer ends cancelled. Only a
// transfer that is dispatched and not yet in transit can be revoked.
func (s *Service) Revoke(ctx context.Context, docID id.ID, actorID, reason string) (*Transfer, error) {
	var restored *stock.BatchResult
	var sender id.ID
	doc, err := s.mutate(ctx, docID, ActionRevoke, func(ctx context.Context, doc *Transfer) error {
		res, err := s.ledger.RestoreBatch(ctx, stock.BatchInput{
			BranchID:     doc.SenderBranchID,
			Items:        ledgerItems(doc.Lines, nil),
			Reference:    entity.TransferRef(doc.ID),
			ActorID:      actorID,
			Note:         doc.Number,
			MovementType: entity.MovementAdjustment,
		})
		if err != nil {
			return err
		}
		restored, sender = res, doc.SenderBranchID
		doc.transition(StatusCancelled, ActionRevoke, actorID, reason)
		return nil
	}, false)
	if err != nil && restored != nil && !s.txManager.SupportsTransactions() {
		s.compensate(ctx, docID, sender, restored, actorID, true)
	}
	return doc, err
}

// MarkInTransit records that the goods left the sender.
func (s *Service) MarkInTransit(ctx context.Context, docID id.ID, actorID, note string) (*Transfer, error) {
	return s.mutate(ctx, docID, ActionInTransit, func(ctx context.Context, doc *Transfer) error {
		doc.transition(StatusInTransit, ActionInTransit, actorID, note)
		return nil
	}, false)
}

// Receive credits the receiver with the received-now quantities. Only the
// delta is credited, clamped to what is still outstanding per line, and the
// line cost is merged into the receiver's weighted-average cost.
func (s *Service) Receive(ctx context.Context, docID id.ID, in ReceiveInput) (*Transfer, error) {
	var credited *stock.BatchResult
	var receiver id.ID
	doc, err := s.mutate(ctx, docID, ActionReceive, func(ctx context.Context, doc *Transfer) error {
		deltas, err := receiveDeltas(doc, in.Items)
		if err != nil {
			return err
		}
		items := ledgerItems(doc.Lines, deltas)
		if len(items) == 0 {
			return apperror.NewValidation("nothing left to receive").
				WithDetail("transfer_id", doc.ID.String())
		}
		res, err := s.ledger.RestoreBatch(ctx, stock.BatchInput{
			BranchID:     doc.ReceiverBranchID,
			Items:        items,
			Reference:    entity.TransferRef(doc.ID),
			ActorID:      in.ActorID,
			Note:         doc.Number,
			MovementType: entity.MovementTransferIn,
		})
		if err != nil {
			return err
		}
		credited, receiver = res, doc.ReceiverBranchID

		for i := range doc.Lines {
			doc.Lines[i].ReceivedQuantity += deltas[doc.Lines[i].LineID]
		}
		doc.recalculateTotals()
		doc.ReceiptMovementIDs = append(doc.ReceiptMovementIDs, res.MovementIDs()...)

		to := StatusPartialReceived
		if doc.FullyReceived() {
			to = StatusReceived
		}
		doc.transition(to, ActionReceive, in.ActorID, in.Note)
		return nil
	}, true)
	if err != nil && credited != nil && !s.txManager.SupportsTransactions() {
		s.compensate(ctx, docID, receiver, credited, in.ActorID, true)
	}
	return doc, err
}

// receiveDeltas maps line ids to the quantity credited now.
func receiveDeltas(doc *Transfer, items []ReceiveItem) (map[id.ID]types.Quantity, error) {
	deltas := make(map[id.ID]types.Quantity, len(doc.Lines))
	if len(items) == 0 {
		for i := range doc.Lines {
			deltas[doc.Lines[i].LineID] = doc.Lines[i].Remaining()
		}
		return deltas, nil
	}
	for i, item := range items {
		if item.Quantity.IsNegative() {
			return nil, apperror.NewValidation("received quantity must not be negative").
				WithDetail("field", fmt.Sprintf("items[%d].quantity", i))
		}
		line, ok := doc.Line(item.LineID)
		if !ok {
			return nil, apperror.NewValidation("unknown transfer line").
				WithDetail("field", fmt.Sprintf("items[%d].lineId", i)).
				WithDetail("line_id", item.LineID.String())
		}
		// Repeated line ids add up but never past the outstanding quantity.
		deltas[line.LineID] = types.MinQuantity(deltas[line.LineID]+item.Quantity, line.Remaining())
	}
	return deltas, nil
}

// Cancel stops a transfer before any stock moved.
func (s *Service) Cancel(ctx context.Context, docID id.ID, actorID, reason string) (*Transfer, error) {
	return s.mutate(ctx, docID, ActionCancel, func(ctx context.Context, doc *Transfer) error {
		doc.transition(StatusCancelled, ActionCancel, actorID, reason)
		return nil
	}, false)
}

// CreateAndDispatch creates, approves and dispatches in one transaction.
func (s *Service) CreateAndDispatch(ctx context.Context, in CreateInput) (*Transfer, error) {
	var doc *Transfer
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		created, err := s.Create(ctx, in)
		if err != nil {
			return err
		}
		if _, err := s.Approve(ctx, created.ID, in.ActorID, ""); err != nil {
			s.abandon(ctx, created.ID, in.ActorID)
			return err
		}
		doc, err = s.Dispatch(ctx, created.ID, in.ActorID, "")
		if err != nil {
			s.abandon(ctx, created.ID, in.ActorID)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// abandon cancels a half-created transfer when nothing rolls it back.
func (s *Service) abandon(ctx context.Context, docID id.ID, actorID string) {
	if s.txManager.SupportsTransactions() {
		return
	}
	if _, err := s.Cancel(context.WithoutCancel(ctx), docID, actorID, "automatic cancel after failed dispatch"); err != nil {
		logger.Error(ctx, "failed to cancel abandoned transfer", "id", docID, "error", err)
	}
}

// compensate reverses a stock effect whose document update failed. Only
// needed without transactions.
func (s *Service) compensate(ctx context.Context, docID, branchID id.ID, res *stock.BatchResult, actorID string, credited bool) {
	ctx = context.WithoutCancel(ctx)
	items := make([]stock.Item, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, stock.Item{ProductID: it.Key.ProductID, Variant: it.Key.Variant, Quantity: it.Quantity})
	}
	in := stock.BatchInput{
		BranchID:     branchID,
		Items:        items,
		Reference:    entity.TransferRef(docID),
		ActorID:      actorID,
		Note:         "compensation for failed transfer update",
		MovementType: entity.MovementAdjustment,
	}
	var err error
	if credited {
		_, err = s.ledger.DecrementBatch(ctx, in)
	} else {
		_, err = s.ledger.RestoreBatch(ctx, in)
	}
	if err != nil {
		logger.Error(ctx, "transfer stock compensation failed",
			"id", docID,
			"branch_id", branchID,
			"error", err,
		)
		return
	}
	logger.Warn(ctx, "transfer stock compensated", "id", docID, "branch_id", branchID)
}

// mutate loads the document under lock, checks the action is allowed, applies
// fn and saves. withLines controls whether lines are rewritten.
func (s *Service) mutate(ctx context.Context, docID id.ID, action Action, fn func(ctx context.Context, doc *Transfer) error, withLines bool) (*Transfer, error) {
	var doc *Transfer
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

	logger.Info(ctx, "transfer updated",
		"id", doc.ID,
		"number", doc.Number,
		"action", action,
		"status", doc.Status,
	)
	return doc, nil
}

// ledgerItems converts lines into ledger items. With deltas, only lines with
// a positive delta are included and carry their unit cost.
func ledgerItems(lines []Line, deltas map[id.ID]types.Quantity) []stock.Item {
	items := make([]stock.Item, 0, len(lines))
	for _, l := range lines {
		item := stock.Item{ProductID: l.ProductID, Variant: l.Variant, Quantity: l.Quantity}
		if deltas != nil {
			q := deltas[l.LineID]
			if !q.IsPositive() {
				continue
			}
			cost := l.UnitCost
			item.Quantity, item.UnitCost = q, &cost
		}
		items = append(items, item)
	}
	return items
}

// Get returns a transfer with lines.
func (s *Service) Get(ctx context.Context, docID id.ID) (*Transfer, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Lines, err = s.repo.GetLines(ctx, docID); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	return doc, nil
}

// List retrieves transfers with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Transfer], error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}
