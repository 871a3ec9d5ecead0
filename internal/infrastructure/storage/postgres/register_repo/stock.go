// Package register_repo provides the PostgreSQL stock ledger repository.
package register_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/postgres"
)

const (
	stockEntriesTable   = "stock_entries"
	stockMovementsTable = "stock_movements"
)

var (
	entryColumns    = postgres.ExtractDBColumns[entity.StockEntry]()
	movementColumns = postgres.ExtractDBColumns[entity.StockMovement]()
	returningEntry  = "RETURNING " + strings.Join(entryColumns, ", ")
)

// StockRepo implements stock.Repository.
//
// Quantity changes are single conditional UPDATE statements so concurrent
// writers never lose updates and quantity never drops below zero.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock ledger repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func keyEq(key entity.StockKey) squirrel.Eq {
	return squirrel.Eq{
		"product_id":  key.ProductID,
		"variant_key": key.Variant,
		"branch_id":   key.BranchID,
	}
}

// getOne runs a statement returning at most one entry row. found is false
// when no row matched.
func (r *StockRepo) getOne(ctx context.Context, q squirrel.Sqlizer) (*entity.StockEntry, bool, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build query: %w", err)
	}
	var e entity.StockEntry
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &e, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &e, true, nil
}

// GetEntry implements stock.Repository.
func (r *StockRepo) GetEntry(ctx context.Context, key entity.StockKey) (*entity.StockEntry, error) {
	e, found, err := r.getOne(ctx, r.builder.Select(entryColumns...).From(stockEntriesTable).Where(keyEq(key)))
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	if !found {
		return nil, apperror.NewNotFound("stock entry", key.String())
	}
	return e, nil
}

// FindByCode implements stock.Repository.
func (r *StockRepo) FindByCode(ctx context.Context, code string, branchID id.ID) (*entity.StockEntry, error) {
	q := r.builder.Select(entryColumns...).
		From(stockEntriesTable).
		Where(squirrel.Eq{"branch_id": branchID}).
		Where(squirrel.Or{
			squirrel.Eq{"barcode": code},
			squirrel.Eq{"sku": code},
		}).
		OrderByClause("(barcode = ?) DESC, is_active DESC", code).
		Limit(1)

	e, found, err := r.getOne(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find by code: %w", err)
	}
	if !found {
		return nil, apperror.NewNotFound("stock entry", code).
			WithDetail("branch_id", branchID.String())
	}
	return e, nil
}

// ListEntries implements stock.Repository.
func (r *StockRepo) ListEntries(ctx context.Context, filter stock.EntryFilter) ([]entity.StockEntry, error) {
	q := r.builder.Select(entryColumns...).From(stockEntriesTable)

	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
	}
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.OnlyActive {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	if filter.NeedsReorder {
		q = q.Where(squirrel.Eq{"needs_reorder": true})
	}
	if filter.OutOfStock {
		q = q.Where(squirrel.LtOrEq{"quantity": int64(0)})
	}

	q = q.OrderBy("product_id", "variant_key", "branch_id").
		Limit(uint64(stock.NormalizedLimit(filter.Limit)))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	entries := []entity.StockEntry{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return entries, nil
}

// SumQuantityByProduct implements stock.Repository.
func (r *StockRepo) SumQuantityByProduct(ctx context.Context, productID id.ID) (types.Quantity, error) {
	sql, args, err := r.builder.Select("COALESCE(SUM(quantity), 0)").
		From(stockEntriesTable).
		Where(squirrel.Eq{"product_id": productID, "is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var total int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum quantity: %w", err)
	}
	return types.NewQuantityFromInt64Scaled(total), nil
}

// UpsertEntry implements stock.Repository.
func (r *StockRepo) UpsertEntry(ctx context.Context, seed stock.EntrySeed) (*entity.StockEntry, error) {
	now := time.Now().UTC()
	sql, args, err := r.builder.Insert(stockEntriesTable).
		SetMap(map[string]any{
			"id":                id.New(),
			"product_id":        seed.Key.ProductID,
			"variant_key":       seed.Key.Variant,
			"branch_id":         seed.Key.BranchID,
			"quantity":          int64(0),
			"reserved_quantity": int64(0),
			"cost_price":        seed.CostPrice,
			"reorder_point":     int64(0),
			"reorder_quantity":  int64(0),
			"needs_reorder":     false,
			"is_active":         seed.IsActive,
			"sku":               seed.SKU,
			"barcode":           seed.Barcode,
			"created_at":        now,
			"updated_at":        now,
		}).
		Suffix("ON CONFLICT (product_id, variant_key, branch_id) DO NOTHING").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("upsert entry: %w", err)
	}
	return r.GetEntry(ctx, seed.Key)
}

// Decrement implements stock.Repository.
func (r *StockRepo) Decrement(ctx context.Context, key entity.StockKey, qty types.Quantity, respectReservations bool) (*entity.StockEntry, bool, error) {
	q := qty.Int64Scaled()
	upd := r.builder.Update(stockEntriesTable).
		Set("quantity", squirrel.Expr("quantity - ?", q)).
		Set("needs_reorder", squirrel.Expr("reorder_point > 0 AND quantity - ? <= reorder_point", q)).
		Set("last_movement_at", squirrel.Expr("NOW()")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(keyEq(key))
	if respectReservations {
		upd = upd.Where("quantity - reserved_quantity >= ?", q)
	} else {
		upd = upd.Where("quantity >= ?", q)
	}

	e, ok, err := r.getOne(ctx, upd.Suffix(returningEntry))
	if err != nil {
		return nil, false, fmt.Errorf("decrement: %w", err)
	}
	if ok {
		return e, true, nil
	}

	// Condition failed: report the current row for the shortage details.
	current, found, err := r.getOne(ctx, r.builder.Select(entryColumns...).From(stockEntriesTable).Where(keyEq(key)))
	if err != nil || !found {
		return nil, false, err
	}
	return current, false, nil
}

// Increment implements stock.Repository.
func (r *StockRepo) Increment(ctx context.Context, key entity.StockKey, delta types.Quantity, incomingCost *types.Money) (*entity.StockEntry, error) {
	d := delta.Int64Scaled()
	upd := r.builder.Update(stockEntriesTable).
		Set("quantity", squirrel.Expr("quantity + ?", d)).
		Set("needs_reorder", squirrel.Expr("reorder_point > 0 AND quantity + ? <= reorder_point", d)).
		Set("last_movement_at", squirrel.Expr("NOW()")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(keyEq(key))

	if incomingCost != nil {
		// Same rules as stock.WeightedAverageCost; SET expressions see the
		// pre-update row.
		c := incomingCost.String()
		upd = upd.Set("cost_price", squirrel.Expr(`CASE
			WHEN ?::bigint = 0 OR quantity <= 0 OR quantity + ?::bigint <= 0 THEN ROUND(?::numeric, 4)
			ELSE ROUND((quantity::numeric * cost_price + ?::numeric * ?::numeric) / (quantity + ?::bigint), 4)
		END`, d, d, c, d, c, d))
	}

	e, ok, err := r.getOne(ctx, upd.Suffix(returningEntry))
	if err != nil {
		return nil, fmt.Errorf("increment: %w", err)
	}
	if !ok {
		return nil, apperror.NewNotFound("stock entry", key.String())
	}
	return e, nil
}

// Compensate implements stock.Repository.
func (r *StockRepo) Compensate(ctx context.Context, key entity.StockKey, delta types.Quantity) error {
	d := delta.Int64Scaled()
	sql, args, err := r.builder.Update(stockEntriesTable).
		Set("quantity", squirrel.Expr("GREATEST(quantity + ?, 0)", d)).
		Set("needs_reorder", squirrel.Expr("reorder_point > 0 AND GREATEST(quantity + ?, 0) <= reorder_point", d)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(keyEq(key)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build compensate: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("compensate: %w", err)
	}
	return nil
}

// setQuantityRow is the RETURNING row of SetQuantity.
type setQuantityRow struct {
	PrevQuantity types.Quantity `db:"prev_quantity"`
	entity.StockEntry
}

// SetQuantity implements stock.Repository.
func (r *StockRepo) SetQuantity(ctx context.Context, key entity.StockKey, qty types.Quantity) (types.Quantity, *entity.StockEntry, error) {
	cols := make([]string, len(entryColumns))
	for i, c := range entryColumns {
		cols[i] = "s." + c
	}
	sql := `
		WITH prev AS (
			SELECT id, quantity FROM stock_entries
			WHERE product_id = $1 AND variant_key = $2 AND branch_id = $3
			FOR UPDATE
		)
		UPDATE stock_entries s
		SET quantity = $4,
			needs_reorder = s.reorder_point > 0 AND $4 <= s.reorder_point,
			last_movement_at = NOW(),
			updated_at = NOW()
		FROM prev
		WHERE s.id = prev.id
		RETURNING prev.quantity AS prev_quantity, ` + strings.Join(cols, ", ")

	var row setQuantityRow
	err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &row, sql,
		key.ProductID, key.Variant, key.BranchID, qty.Int64Scaled())
	if err != nil {
		if pgxscan.NotFound(err) {
			return 0, nil, apperror.NewNotFound("stock entry", key.String())
		}
		return 0, nil, fmt.Errorf("set quantity: %w", err)
	}
	return row.PrevQuantity, &row.StockEntry, nil
}

// SetCost implements stock.Repository.
func (r *StockRepo) SetCost(ctx context.Context, key entity.StockKey, cost types.Money) error {
	sql, args, err := r.builder.Update(stockEntriesTable).
		Set("cost_price", cost).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(keyEq(key)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set cost: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("set cost: %w", err)
	}
	return nil
}

// AdjustReserved implements stock.Repository.
func (r *StockRepo) AdjustReserved(ctx context.Context, key entity.StockKey, delta types.Quantity) (*entity.StockEntry, bool, error) {
	d := delta.Int64Scaled()
	upd := r.builder.Update(stockEntriesTable).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(keyEq(key))
	if d > 0 {
		upd = upd.Set("reserved_quantity", squirrel.Expr("reserved_quantity + ?", d)).
			Where("quantity - reserved_quantity >= ?", d)
	} else {
		upd = upd.Set("reserved_quantity", squirrel.Expr("GREATEST(reserved_quantity + ?, 0)", d))
	}

	e, ok, err := r.getOne(ctx, upd.Suffix(returningEntry))
	if err != nil {
		return nil, false, fmt.Errorf("adjust reserved: %w", err)
	}
	if ok || d <= 0 {
		return e, ok, nil
	}

	current, _, err := r.getOne(ctx, r.builder.Select(entryColumns...).From(stockEntriesTable).Where(keyEq(key)))
	if err != nil {
		return nil, false, fmt.Errorf("get entry: %w", err)
	}
	return current, false, nil
}

// SetReorderLevels implements stock.Repository.
func (r *StockRepo) SetReorderLevels(ctx context.Context, key entity.StockKey, point, quantity types.Quantity) (*entity.StockEntry, error) {
	p := point.Int64Scaled()
	upd := r.builder.Update(stockEntriesTable).
		Set("reorder_point", p).
		Set("reorder_quantity", quantity.Int64Scaled()).
		Set("needs_reorder", squirrel.Expr("? > 0 AND quantity <= ?", p, p)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(keyEq(key)).
		Suffix(returningEntry)

	e, ok, err := r.getOne(ctx, upd)
	if err != nil {
		return nil, fmt.Errorf("set reorder levels: %w", err)
	}
	if !ok {
		return nil, apperror.NewNotFound("stock entry", key.String())
	}
	return e, nil
}

// SetProductActive implements stock.Repository.
func (r *StockRepo) SetProductActive(ctx context.Context, productID id.ID, active bool, snapshot *string) (int64, error) {
	upd := r.builder.Update(stockEntriesTable).
		Set("is_active", active).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"product_id": productID})
	switch {
	case snapshot != nil:
		upd = upd.Set("deleted_product_snapshot", *snapshot)
	case active:
		upd = upd.Set("deleted_product_snapshot", nil)
	}

	sql, args, err := upd.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build set active: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("set product active: %w", err)
	}
	return tag.RowsAffected(), nil
}

func movementRow(m entity.StockMovement) []any {
	data := postgres.StructToMap(m)
	data["unit_cost"] = postgres.NullableNumeric(m.UnitCost)
	row := make([]any, len(movementColumns))
	for i, col := range movementColumns {
		row[i] = data[col]
	}
	return row
}

// InsertMovements implements stock.Repository.
func (r *StockRepo) InsertMovements(ctx context.Context, movements []entity.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, movementRow(m))
	}

	// Fast path: COPY when inside a transaction.
	if r.txm.GetTx(ctx) != nil {
		inserter := postgres.NewBatchInserter(r.txm)
		if _, err := inserter.CopyFromSlice(ctx, stockMovementsTable, movementColumns, rows); err != nil {
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(stockMovementsTable).Columns(movementColumns...)
	for _, row := range rows {
		q = q.Values(row...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert movements: %w", err)
	}
	return nil
}

// ListMovements implements stock.Repository.
func (r *StockRepo) ListMovements(ctx context.Context, filter stock.MovementFilter) ([]entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).From(stockMovementsTable)

	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": *filter.Type})
	}
	if filter.Reference != nil {
		q = q.Where(squirrel.Eq{"reference_kind": filter.Reference.Kind})
		if filter.Reference.ID != "" {
			q = q.Where(squirrel.Eq{"reference_id": filter.Reference.ID})
		}
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(stock.NormalizedLimit(filter.Limit)))
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	movements := []entity.StockMovement{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// DeleteExpiredMovements implements stock.Repository.
func (r *StockRepo) DeleteExpiredMovements(ctx context.Context, before time.Time) (int64, error) {
	sql, args, err := r.builder.Delete(stockMovementsTable).
		Where(squirrel.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired movements: %w", err)
	}
	return tag.RowsAffected(), nil
}
