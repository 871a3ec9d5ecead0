package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	purchasesTable     = "doc_purchases"
	purchaseLinesTable = "doc_purchase_lines"
)

var purchaseLineColumns = []string{
	"line_id", "line_no", "product_id", "variant_key", "product_name",
	"quantity", "unit_cost", "discount", "tax_rate", "subtotal", "tax_amount", "total",
}

// PurchaseRepo implements purchase.Repository.
type PurchaseRepo struct {
	*BaseDocumentRepo[*purchase.Purchase]
}

var _ purchase.Repository = (*PurchaseRepo)(nil)

// NewPurchaseRepo creates a new purchase invoice repository.
func NewPurchaseRepo(txm *postgres.TxManager) *PurchaseRepo {
	return &PurchaseRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			purchasesTable,
			postgres.ExtractDBColumns[purchase.Purchase](),
			func() *purchase.Purchase { return new(purchase.Purchase) },
		),
	}
}

// GetLines retrieves lines for an invoice.
func (r *PurchaseRepo) GetLines(ctx context.Context, docID id.ID) ([]purchase.Line, error) {
	var lines []purchase.Line
	if err := r.selectLines(ctx, purchaseLinesTable, docID, purchaseLineColumns, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// SaveLines saves lines for an invoice (delete existing + insert new).
func (r *PurchaseRepo) SaveLines(ctx context.Context, docID id.ID, lines []purchase.Line) error {
	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{
			l.LineID, l.LineNo, l.ProductID, l.Variant, l.ProductName,
			l.Quantity, l.UnitCost, l.Discount, l.TaxRate, l.Subtotal, l.TaxAmount, l.Total,
		})
	}
	return r.replaceLines(ctx, purchaseLinesTable, docID, purchaseLineColumns, rows)
}

// List retrieves invoices with filtering.
func (r *PurchaseRepo) List(ctx context.Context, filter purchase.ListFilter) (domain.ListResult[*purchase.Purchase], error) {
	return r.list(ctx, filter.ListFilter, func(q squirrel.SelectBuilder) squirrel.SelectBuilder {
		if filter.SupplierID != nil {
			q = q.Where(squirrel.Eq{"supplier_id": *filter.SupplierID})
		}
		if filter.Status != nil {
			q = q.Where(squirrel.Eq{"status": *filter.Status})
		}
		if filter.PaymentStatus != nil {
			q = q.Where(squirrel.Eq{"payment_status": *filter.PaymentStatus})
		}
		return q
	})
}
