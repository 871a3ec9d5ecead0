package document_repo

import (
	"context"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	stockRequestsTable     = "doc_stock_requests"
	stockRequestLinesTable = "doc_stock_request_lines"
)

var stockRequestLineColumns = []string{
	"line_id", "line_no", "product_id", "variant_key", "product_name",
	"requested_quantity", "approved_quantity", "fulfilled_quantity", "stock_snapshot",
}

// StockRequestRepo implements stock_request.Repository.
type StockRequestRepo struct {
	*BaseDocumentRepo[*stock_request.StockRequest]
}

var _ stock_request.Repository = (*StockRequestRepo)(nil)

// NewStockRequestRepo creates a new stock request repository.
func NewStockRequestRepo(txm *postgres.TxManager) *StockRequestRepo {
	return &StockRequestRepo{
		BaseDocumentRepo: NewBaseDocumentRepo(
			txm,
			stockRequestsTable,
			postgres.ExtractDBColumns[stock_request.StockRequest](),
			func() *stock_request.StockRequest { return new(stock_request.StockRequest) },
		),
	}
}

// GetLines retrieves lines for a request.
func (r *StockRequestRepo) GetLines(ctx context.Context, docID id.ID) ([]stock_request.Line, error) {
	var lines []stock_request.Line
	if err := r.selectLines(ctx, stockRequestLinesTable, docID, stockRequestLineColumns, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// SaveLines saves lines for a request (delete existing + insert new).
func (r *StockRequestRepo) SaveLines(ctx context.Context, docID id.ID, lines []stock_request.Line) error {
	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{
			l.LineID, l.LineNo, l.ProductID, l.Variant, l.ProductName,
			l.RequestedQuantity, l.ApprovedQuantity, l.FulfilledQuantity, l.StockSnapshot,
		})
	}
	return r.replaceLines(ctx, stockRequestLinesTable, docID, stockRequestLineColumns, rows)
}

// List retrieves requests with filtering.
func (r *StockRequestRepo) List(ctx context.Context, filter stock_request.ListFilter) (domain.ListResult[*stock_request.StockRequest], error) {
	return r.list(ctx, filter.ListFilter, func(q squirrel.SelectBuilder) squirrel.SelectBuilder {
		if filter.BranchID != nil {
			q = q.Where(squirrel.Or{
				squirrel.Eq{"requesting_branch_id": *filter.BranchID},
				squirrel.Eq{"fulfilling_branch_id": *filter.BranchID},
			})
		}
		if filter.Status != nil {
			q = q.Where(squirrel.Eq{"status": *filter.Status})
		}
		return q
	})
}
