package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	transfersTable     = "doc_transfers"
	transferLinesTable = "doc_transfer_lines"
)

var transferLineColumns = []string{
	"line_id", "line_no", "product_id", "variant_key", "product_name", "sku",
	"quantity", "received_quantity", "unit_cost", "amount",
}

// TransferRepo implements transfer.Repository.
type TransferRepo struct {
	*BaseDocumentRepo[*transfer.Transfer]
}

var _ transfer.Repository = (*TransferRepo)(nil)

// NewTransferRepo creates a new transfer repository.
func NewTransferRepo(txm *postgres.TxManager) *TransferRepo {
	return &TransferRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			transfersTable,
			postgres.ExtractDBColumns[transfer.Transfer](),
			func() *transfer.Transfer { return new(transfer.Transfer) },
		),
	}
}

// GetLines retrieves lines for a transfer.
func (r *TransferRepo) GetLines(ctx context.Context, docID id.ID) ([]transfer.Line, error) {
	var lines []transfer.Line
	if err := r.selectLines(ctx, transferLinesTable, docID, transferLineColumns, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// SaveLines saves lines for a transfer (delete existing + insert new).
func (r *TransferRepo) SaveLines(ctx context.Context, docID id.ID, lines []transfer.Line) error {
	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{
			l.LineID, l.LineNo, l.ProductID, l.Variant, l.ProductName, l.SKU,
			l.Quantity, l.ReceivedQuantity, l.UnitCost, l.Amount,
		})
	}
	return r.replaceLines(ctx, transferLinesTable, docID, transferLineColumns, rows)
}

// List retrieves transfers with filtering.
func (r *TransferRepo) List(ctx context.Context, filter transfer.ListFilter) (domain.ListResult[*transfer.Transfer], error) {
	return r.list(ctx, filter.ListFilter, func(q squirrel.SelectBuilder) squirrel.SelectBuilder {
		if filter.BranchID != nil {
			q = q.Where(squirrel.Or{
				squirrel.Eq{"sender_branch_id": *filter.BranchID},
				squirrel.Eq{"receiver_branch_id": *filter.BranchID},
			})
		}
		if filter.Status != nil {
			q = q.Where(squirrel.Eq{"status": *filter.Status})
		}
		if filter.Type != nil {
			q = q.Where(squirrel.Eq{"transfer_type": *filter.Type})
		}
		return q
	})
}
