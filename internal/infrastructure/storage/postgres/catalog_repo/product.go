package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/internal/infrastructure/storage/postgres"
)

const productTable = "products"

// ProductRepo implements directory.ProductDirectory.
type ProductRepo struct {
	*BaseCatalogRepo[*directory.Product]
}

var _ directory.ProductDirectory = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txm *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		BaseCatalogRepo: NewBaseCatalogRepo(
			txm,
			productTable,
			"product",
			postgres.ExtractDBColumns[directory.Product](),
			func() *directory.Product { return &directory.Product{} },
		),
	}
}

// Get implements directory.ProductDirectory.
func (r *ProductRepo) Get(ctx context.Context, productID id.ID) (*directory.Product, error) {
	return r.GetByID(ctx, productID)
}

// UpdateCostSnapshot implements directory.ProductDirectory. Variant costs live
// inside the variants JSONB array and are patched in place.
func (r *ProductRepo) UpdateCostSnapshot(ctx context.Context, productID id.ID, variant entity.Variant, cost types.Money) error {
	upd := r.Builder().Update(productTable).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": productID})

	if variant.IsNone() {
		upd = upd.Set("cost_price", cost)
	} else {
		upd = upd.Set("variants", squirrel.Expr(`(
			SELECT COALESCE(jsonb_agg(
				CASE WHEN v->>'key' = ? THEN jsonb_set(v, '{costPrice}', to_jsonb(?::text)) ELSE v END
				ORDER BY ord), '[]'::jsonb)
			FROM jsonb_array_elements(variants) WITH ORDINALITY AS t(v, ord)
		)`, string(variant), cost.String()))
	}

	return r.exec(ctx, upd, productID)
}

// UpdateQuantityProjection implements directory.ProductDirectory.
func (r *ProductRepo) UpdateQuantityProjection(ctx context.Context, productID id.ID, total types.Quantity) error {
	upd := r.Builder().Update(productTable).
		Set("total_quantity", total.Int64Scaled()).
		Where(squirrel.Eq{"id": productID})
	return r.exec(ctx, upd, productID)
}

func (r *ProductRepo) exec(ctx context.Context, upd squirrel.UpdateBuilder, productID id.ID) error {
	sql, args, err := upd.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.querier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", productID.String())
	}
	return nil
}
