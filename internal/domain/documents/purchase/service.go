package purchase

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/expense"
	"stockledger/internal/domain/registers/stock"
	"stockledger/pkg/logger"
)

// Ledger is the part of the stock ledger the purchase engine drives.
type Ledger interface {
	ApplyPurchaseEntry(ctx context.Context, in stock.PurchaseEntryInput) (*stock.BatchResult, error)
	RevertPurchaseEntry(ctx context.Context, applied *stock.BatchResult, ref entity.Reference, actorID, note string) (*stock.BatchResult, error)
}

// ItemInput is one invoice line as entered by the caller.
type ItemInput struct {
	ProductID id.ID          `json:"productId"`
	Variant   entity.Variant `json:"variant,omitempty"`
	Quantity  types.Quantity `json:"quantity"`
	UnitCost  types.Money    `json:"unitCost"`
	Discount  types.Money    `json:"discount"`
	TaxRate   types.Money    `json:"taxRate"`
}

// CreateInput is the input of Create.
type CreateInput struct {
	SupplierID        id.ID
	SupplierInvoiceNo string
	BranchID          id.ID
	Date              *time.Time
	Items             []ItemInput
	Note              string
	ActorID           string
}

// UpdateInput is the input of Update. Nil fields are left unchanged.
type UpdateInput struct {
	SupplierID        *id.ID
	SupplierInvoiceNo *string
	Items             []ItemInput
	Note              *string
	ActorID           string
}

// PayInput is the input of Pay.
type PayInput struct {
	Amount  types.Money
	Method  string
	Note    string
	ActorID string
}

// Service provides the purchase invoice workflow.
type Service struct {
	repo      Repository
	ledger    Ledger
	branches  directory.BranchDirectory
	products  directory.ProductDirectory
	expenses  expense.Recorder
	numerator numerator.Generator
	txManager tx.Manager
}

// NewService creates a new purchase service.
func NewService(
	repo Repository,
	ledger Ledger,
	branches directory.BranchDirectory,
	products directory.ProductDirectory,
	expenses expense.Recorder,
	numerator numerator.Generator,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		branches:  branches,
		products:  products,
		expenses:  expenses,
		numerator: numerator,
		txManager: txManager,
	}
}

// Create stores a draft invoice. Purchases are only received into the head
// office.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Purchase, error) {
	if err := s.checkBranch(ctx, in.BranchID); err != nil {
		return nil, err
	}

	doc := newPurchase(in.SupplierID, in.BranchID)
	doc.SupplierInvoiceNo = in.SupplierInvoiceNo
	doc.Note = in.Note
	doc.CreatedBy = in.ActorID
	doc.UpdatedBy = in.ActorID
	if in.Date != nil {
		doc.Date = in.Date.UTC()
	}
	var err error
	if doc.Lines, err = s.buildLines(ctx, in.Items); err != nil {
		return nil, err
	}
	doc.recalculateTotals()
	doc.RecordTransition("", string(StatusDraft), string(ActionCreate), in.ActorID, in.Note)

	if err := doc.Validate(ctx); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		number, err := s.numerator.GetNextNumber(ctx, numerator.PurchaseNumbers, doc.Date)
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

	logger.Info(ctx, "purchase created",
		"id", doc.ID,
		"number", doc.Number,
		"supplier_id", doc.SupplierID,
		"grand_total", doc.GrandTotal,
	)
	return doc, nil
}

func (s *Service) checkBranch(ctx context.Context, branchID id.ID) error {
	if id.IsNil(branchID) {
		return apperror.NewValidation("branch is required").
			WithDetail("field", "branchId")
	}
	branch, err := s.branches.Get(ctx, branchID)
	if err != nil {
		return fmt.Errorf("get branch: %w", err)
	}
	if !branch.IsHeadOffice() {
		return apperror.NewForbidden("purchases can only be received into the head office").
			WithDetail("branch_id", branchID.String())
	}
	return nil
}

func (s *Service) buildLines(ctx context.Context, items []ItemInput) ([]Line, error) {
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
		lines = append(lines, Line{
			LineID:      id.New(),
			ProductID:   item.ProductID,
			Variant:     item.Variant,
			ProductName: product.DisplayName(item.Variant),
			Quantity:    item.Quantity,
			UnitCost:    item.UnitCost,
			Discount:    types.RoundMoney(item.Discount),
			TaxRate:     item.TaxRate,
		})
	}
	return lines, nil
}

// Update edits a draft invoice and recomputes its totals.
func (s *Service) Update(ctx context.Context, docID id.ID, in UpdateInput) (*Purchase, error) {
	return s.mutate(ctx, docID, ActionUpdate, func(ctx context.Context, doc *Purchase) error {
		if in.SupplierID != nil {
			doc.SupplierID = *in.SupplierID
		}
		if in.SupplierInvoiceNo != nil {
			doc.SupplierInvoiceNo = *in.SupplierInvoiceNo
		}
		if in.Note != nil {
			doc.Note = *in.Note
		}
		if in.Items != nil {
			lines, err := s.buildLines(ctx, in.Items)
			if err != nil {
				return err
			}
			doc.Lines = lines
		}
		doc.recalculateTotals()
		doc.UpdatedBy = in.ActorID
		return doc.Validate(ctx)
	}, true)
}

// Approve moves a draft to approved.
func (s *Service) Approve(ctx context.Context, docID id.ID, actorID, note string) (*Purchase, error) {
	return s.mutate(ctx, docID, ActionApprove, func(ctx context.Context, doc *Purchase) error {
		doc.transition(StatusApproved, ActionApprove, actorID, note)
		return nil
	}, false)
}

// Receive books the goods into the head office at net unit cost. A draft is
// approved first within the same call.
func (s *Service) Receive(ctx context.Context, docID id.ID, actorID, note string) (*Purchase, error) {
	var credited *stock.BatchResult
	doc, err := s.mutate(ctx, docID, ActionReceive, func(ctx context.Context, doc *Purchase) error {
		if doc.Status == StatusDraft {
			doc.transition(StatusApproved, ActionApprove, actorID, "approved on receipt")
		}
		items := make([]stock.Item, 0, len(doc.Lines))
		for _, l := range doc.Lines {
			cost := l.NetUnitCost()
			items = append(items, stock.Item{
				ProductID: l.ProductID,
				Variant:   l.Variant,
				Quantity:  l.Quantity,
				UnitCost:  &cost,
			})
		}
		res, err := s.ledger.ApplyPurchaseEntry(ctx, stock.PurchaseEntryInput{
			BranchID:  doc.BranchID,
			Items:     items,
			Reference: entity.PurchaseRef(doc.ID),
			ActorID:   actorID,
			Note:      doc.Number,
		})
		if err != nil {
			return err
		}
		credited = res
		doc.ReceiptMovementIDs = append(doc.ReceiptMovementIDs, res.MovementIDs()...)
		doc.transition(StatusReceived, ActionReceive, actorID, note)
		return nil
	}, false)
	if err != nil && credited != nil && !s.txManager.SupportsTransactions() {
		s.revertReceipt(ctx, docID, credited, actorID)
	}
	return doc, err
}

// revertReceipt undoes a stock credit whose invoice was not saved. Without
// transactions the ledger has already committed it.
func (s *Service) revertReceipt(ctx context.Context, docID id.ID, credited *stock.BatchResult, actorID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.ledger.RevertPurchaseEntry(ctx, credited, entity.PurchaseRef(docID), actorID, "receipt not saved"); err != nil {
		logger.Error(ctx, "purchase receipt compensation failed",
			"id", docID,
			"items", len(credited.Items),
			"error", err,
		)
		return
	}
	logger.Warn(ctx, "purchase receipt compensated", "id", docID)
}

// Cancel stops an invoice before receipt.
func (s *Service) Cancel(ctx context.Context, docID id.ID, actorID, reason string) (*Purchase, error) {
	return s.mutate(ctx, docID, ActionCancel, func(ctx context.Context, doc *Purchase) error {
		doc.transition(StatusCancelled, ActionCancel, actorID, reason)
		return nil
	}, false)
}

// paymentKey identifies one payment attempt against one saved version of the
// invoice. Retrying after a failed save reuses the key and the payment id
// derived from it.
func paymentKey(doc *Purchase, amount types.Money) string {
	return fmt.Sprintf("purchase:%s:v%d:%s", doc.ID, doc.Version, amount.StringFixed(types.MoneyPlaces))
}

// Pay records a payment through the expense recorder and updates the due
// amount. Payments are independent of the receipt status.
func (s *Service) Pay(ctx context.Context, docID id.ID, in PayInput) (*Purchase, error) {
	if !in.Amount.IsPositive() {
		return nil, apperror.NewValidation("payment amount must be positive").
			WithDetail("field", "amount")
	}
	amount := types.RoundMoney(in.Amount)

	doc, err := s.mutate(ctx, docID, ActionPay, func(ctx context.Context, doc *Purchase) error {
		if amount.GreaterThan(doc.DueAmount) {
			return apperror.NewValidation("payment exceeds the amount due").
				WithDetail("field", "amount").
				WithDetail("due_amount", doc.DueAmount.StringFixed(types.MoneyPlaces))
		}
		taxPortion := doc.TaxPortion(amount)
		now := time.Now().UTC()
		key := paymentKey(doc, amount)
		paymentID := id.Derive(doc.ID, key)

		txID, err := s.expenses.RecordExpense(ctx, expense.Expense{
			Amount:      amount,
			TaxAmount:   taxPortion,
			Category:    expense.CategoryPurchase,
			BranchID:    doc.BranchID,
			Reference:   entity.PurchaseRef(doc.ID),
			Method:      in.Method,
			Description: fmt.Sprintf("Payment for purchase %s", doc.Number),
			Metadata: map[string]string{
				"purchase_number":     doc.Number,
				"supplier_id":         doc.SupplierID.String(),
				"supplier_invoice_no": doc.SupplierInvoiceNo,
				"payment_id":          paymentID.String(),

				expense.MetadataIdempotencyKey: key,
			},
			ActorID: in.ActorID,
			At:      now,
		})
		if err != nil {
			return fmt.Errorf("record expense: %w", err)
		}

		doc.Payments = append(doc.Payments, Payment{
			ID:            paymentID,
			Amount:        amount,
			TaxPortion:    taxPortion,
			Method:        in.Method,
			TransactionID: txID,
			Note:          in.Note,
			ActorID:       in.ActorID,
			PaidAt:        now,
		})
		doc.PaidAmount = doc.PaidAmount.Add(amount)
		doc.refreshPayment()
		doc.UpdatedBy = in.ActorID
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase payment recorded",
		"id", doc.ID,
		"amount", amount,
		"payment_status", doc.PaymentStatus,
		"due_amount", doc.DueAmount,
	)
	return doc, nil
}

func (s *Service) mutate(ctx context.Context, docID id.ID, action Action, fn func(ctx context.Context, doc *Purchase) error, withLines bool) (*Purchase, error) {
	var doc *Purchase
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

	logger.Info(ctx, "purchase updated",
		"id", doc.ID,
		"number", doc.Number,
		"action", action,
		"status", doc.Status,
	)
	return doc, nil
}

// Get returns an invoice with lines.
func (s *Service) Get(ctx context.Context, docID id.ID) (*Purchase, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Lines, err = s.repo.GetLines(ctx, docID); err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	return doc, nil
}

// List retrieves invoices with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Purchase], error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}
