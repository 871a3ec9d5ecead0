// Package report_repo provides PostgreSQL implementations for report repositories.
package report_repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/storage/postgres"
)

// ReportRepo implements reports.Repository.
type ReportRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ reports.Repository = (*ReportRepo)(nil)

// NewReportRepo creates a new report repository.
func NewReportRepo(txm *postgres.TxManager) *ReportRepo {
	return &ReportRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Turnover implements reports.Repository. Closing is the balance after the
// last movement in the period; opening is derived from it.
func (r *ReportRepo) Turnover(ctx context.Context, filter reports.TurnoverFilter) ([]reports.TurnoverRow, error) {
	period := squirrel.Select(
		"product_id", "variant_key", "branch_id",
		"COALESCE(SUM(quantity) FILTER (WHERE quantity > 0), 0) AS inbound",
		"COALESCE(-SUM(quantity) FILTER (WHERE quantity < 0), 0) AS outbound",
		"COUNT(*) AS movements",
		"(ARRAY_AGG(balance_after ORDER BY created_at DESC, id DESC))[1] AS closing",
	).
		From("stock_movements").
		Where(squirrel.GtOrEq{"created_at": filter.FromDate}).
		Where(squirrel.Lt{"created_at": filter.ToDate}).
		GroupBy("product_id", "variant_key", "branch_id")
	if filter.BranchID != nil {
		period = period.Where(squirrel.Eq{"branch_id": *filter.BranchID})
	}
	if filter.ProductID != nil {
		period = period.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}

	q := r.builder.Select(
		"product_id", "variant_key", "branch_id",
		"inbound", "outbound", "closing", "movements",
		"closing - inbound + outbound AS opening",
	).
		FromSelect(period, "period").
		OrderBy("branch_id", "product_id", "variant_key").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build turnover query: %w", err)
	}

	rows := []reports.TurnoverRow{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("stock turnover report: %w", err)
	}
	return rows, nil
}

// journalUnion builds one SELECT per requested kind joined by UNION ALL,
// with ? placeholders.
func journalUnion(filter reports.JournalFilter) (string, []any, error) {
	var (
		parts []string
		args  []any
	)
	for _, kind := range filter.Kinds {
		var q squirrel.SelectBuilder
		switch kind {
		case reports.KindTransfer:
			q = squirrel.Select(
				"id", "'transfer' AS kind", "number", "date", "status",
				"sender_branch_id AS branch_id", "receiver_branch_id AS counter_branch_id",
				"total_quantity", "total_value", "created_at",
			).From("doc_transfers d")
			if filter.BranchID != nil {
				q = q.Where(squirrel.Or{
					squirrel.Eq{"sender_branch_id": *filter.BranchID},
					squirrel.Eq{"receiver_branch_id": *filter.BranchID},
				})
			}
		case reports.KindPurchase:
			q = squirrel.Select(
				"id", "'purchase' AS kind", "number", "date", "status",
				"branch_id", "NULL::uuid AS counter_branch_id",
				"COALESCE((SELECT SUM(l.quantity) FROM doc_purchase_lines l WHERE l.document_id = d.id), 0)::bigint AS total_quantity",
				"grand_total AS total_value", "created_at",
			).From("doc_purchases d")
			if filter.BranchID != nil {
				q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
			}
		case reports.KindStockRequest:
			q = squirrel.Select(
				"id", "'stock_request' AS kind", "number", "date", "status",
				"requesting_branch_id AS branch_id", "fulfilling_branch_id AS counter_branch_id",
				"total_requested AS total_quantity", "0::numeric AS total_value", "created_at",
			).From("doc_stock_requests d")
			if filter.BranchID != nil {
				q = q.Where(squirrel.Or{
					squirrel.Eq{"requesting_branch_id": *filter.BranchID},
					squirrel.Eq{"fulfilling_branch_id": *filter.BranchID},
				})
			}
		default:
			continue
		}

		q = q.Where(squirrel.Eq{"deletion_mark": false})
		if filter.FromDate != nil {
			q = q.Where(squirrel.GtOrEq{"date": *filter.FromDate})
		}
		if filter.ToDate != nil {
			q = q.Where(squirrel.Lt{"date": *filter.ToDate})
		}
		if filter.Status != "" {
			q = q.Where(squirrel.Eq{"status": filter.Status})
		}

		sql, partArgs, err := q.ToSql()
		if err != nil {
			return "", nil, fmt.Errorf("build %s journal query: %w", kind, err)
		}
		parts = append(parts, sql)
		args = append(args, partArgs...)
	}
	return strings.Join(parts, " UNION ALL "), args, nil
}

// Journal implements reports.Repository.
func (r *ReportRepo) Journal(ctx context.Context, filter reports.JournalFilter) ([]reports.JournalItem, int64, error) {
	union, args, err := journalUnion(filter)
	if err != nil {
		return nil, 0, err
	}
	items := []reports.JournalItem{}
	if union == "" {
		return items, 0, nil
	}
	querier := r.txm.GetQuerier(ctx)

	var total int64
	countSQL, err := squirrel.Dollar.ReplacePlaceholders("SELECT COUNT(*) FROM (" + union + ") j")
	if err != nil {
		return nil, 0, err
	}
	if err := querier.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count journal: %w", err)
	}

	pageSQL, err := squirrel.Dollar.ReplacePlaceholders(fmt.Sprintf(
		"SELECT * FROM (%s) j ORDER BY date DESC, number DESC LIMIT %d OFFSET %d",
		union, filter.Limit, filter.Offset,
	))
	if err != nil {
		return nil, 0, err
	}
	if err := pgxscan.Select(ctx, querier, &items, pageSQL, args...); err != nil {
		return nil, 0, fmt.Errorf("document journal: %w", err)
	}
	return items, total, nil
}

// JournalSummary implements reports.Repository.
func (r *ReportRepo) JournalSummary(ctx context.Context, filter reports.JournalFilter) ([]reports.KindSummary, error) {
	union, args, err := journalUnion(filter)
	if err != nil {
		return nil, err
	}
	result := []reports.KindSummary{}
	if union == "" {
		return result, nil
	}

	sql, err := squirrel.Dollar.ReplacePlaceholders(`
		SELECT kind,
			COUNT(*) AS count,
			COALESCE(SUM(total_quantity), 0)::bigint AS total_quantity,
			COALESCE(SUM(total_value), 0) AS total_value
		FROM (` + union + `) j
		GROUP BY kind
		ORDER BY kind`)
	if err != nil {
		return nil, err
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &result, sql, args...); err != nil {
		return nil, fmt.Errorf("journal summary: %w", err)
	}
	return result, nil
}
