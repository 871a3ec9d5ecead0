package stock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/storage/memory"
)

type ledger struct {
	storage *app.Storage
	svc     *app.Services
	branch  *directory.Branch
}

func newLedger(t *testing.T, mode tx.Mode) *ledger {
	t.Helper()
	storage := app.NewMemoryStorage(mode, time.Hour)
	svc := app.NewServices(storage, app.ServiceOptions{})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)

	branch := directory.NewBranch("BRA", "Branch A", directory.RoleSubBranch)
	require.NoError(t, storage.Catalog.SaveBranch(context.Background(), branch))
	return &ledger{storage: storage, svc: svc, branch: branch}
}

func (l *ledger) product(t *testing.T, sku, cost string, onHand int64) *directory.Product {
	t.Helper()
	ctx := context.Background()
	p := directory.NewProduct(sku, sku, types.MustMoney(cost))
	p.Barcode = "bc-" + sku
	require.NoError(t, l.storage.Catalog.SaveProduct(ctx, p))
	if onHand > 0 {
		_, err := l.svc.Stock.SetStock(ctx, stock.SetStockInput{
			ProductID: p.ID,
			BranchID:  l.branch.ID,
			Quantity:  types.NewQuantity(onHand),
			Reason:    "opening",
		})
		require.NoError(t, err)
	}
	return p
}

func (l *ledger) onHand(t *testing.T, p *directory.Product) types.Quantity {
	t.Helper()
	e, err := l.svc.Stock.GetEntry(context.Background(), entity.StockKey{ProductID: p.ID, BranchID: l.branch.ID})
	require.NoError(t, err)
	return e.Quantity
}

func (l *ledger) sale(items ...stock.Item) stock.BatchInput {
	return stock.BatchInput{
		BranchID:  l.branch.ID,
		Items:     items,
		Reference: entity.OrderRef("order-1"),
		ActorID:   "cashier",
	}
}

func item(p *directory.Product, qty int64) stock.Item {
	return stock.Item{ProductID: p.ID, Quantity: types.NewQuantity(qty)}
}

func TestDecrementBatch_Oversell(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	p := l.product(t, "TEA", "2", 5)

	_, err := l.svc.Stock.DecrementBatch(context.Background(), l.sale(item(p, 6)))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, types.NewQuantity(5), l.onHand(t, p))

	sales := entity.MovementSale
	moves, err := l.svc.Stock.ListMovements(context.Background(), stock.MovementFilter{ProductID: &p.ID, Type: &sales})
	require.NoError(t, err)
	assert.Empty(t, moves)
}

func TestDecrementBatch_AllOrNothing(t *testing.T) {
	for _, mode := range []tx.Mode{tx.ModeOn, tx.ModeOff} {
		t.Run(string(mode), func(t *testing.T) {
			l := newLedger(t, mode)
			assert.Equal(t, mode == tx.ModeOn, l.storage.TxManager.SupportsTransactions())
			tea := l.product(t, "TEA", "2", 5)
			milk := l.product(t, "MLK", "1", 1)

			_, err := l.svc.Stock.DecrementBatch(context.Background(), l.sale(item(tea, 3), item(milk, 2)))
			require.Error(t, err)

			assert.Equal(t, types.NewQuantity(5), l.onHand(t, tea))
			assert.Equal(t, types.NewQuantity(1), l.onHand(t, milk))

			res, err := l.svc.Stock.DecrementBatch(context.Background(), l.sale(item(tea, 3), item(milk, 1)))
			require.NoError(t, err)
			assert.Len(t, res.Movements, 2)
			assert.Equal(t, types.NewQuantity(2), l.onHand(t, tea))
			assert.Equal(t, types.NewQuantity(0), l.onHand(t, milk))
		})
	}
}

func TestDecrementBatch_ConcurrentNeverOversells(t *testing.T) {
	for _, mode := range []tx.Mode{tx.ModeOn, tx.ModeOff} {
		t.Run(string(mode), func(t *testing.T) {
			l := newLedger(t, mode)
			p := l.product(t, "TEA", "2", 10)

			var (
				wg      sync.WaitGroup
				success atomic.Int32
			)
			for range 25 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := l.svc.Stock.DecrementBatch(context.Background(), l.sale(item(p, 1))); err == nil {
						success.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(10), success.Load())
			assert.Equal(t, types.NewQuantity(0), l.onHand(t, p))
		})
	}
}

func TestRestoreBatch_CreatesEntryAndWritesMovement(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	p := l.product(t, "TEA", "2", 0)

	in := l.sale(item(p, 4))
	in.Reference = entity.OrderRef("order-9")
	res, err := l.svc.Stock.RestoreBatch(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, res.Movements, 1)

	m := res.Movements[0]
	assert.Equal(t, entity.MovementReturn, m.Type)
	assert.Equal(t, types.NewQuantity(4), m.Quantity)
	assert.Equal(t, types.NewQuantity(4), m.BalanceAfter)
	assert.Equal(t, entity.RefOrder, m.Reference.Kind)
	assert.Equal(t, types.NewQuantity(4), l.onHand(t, p))
}

func TestApplyPurchaseEntry_WeightedAverage(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	ctx := context.Background()
	p := l.product(t, "TEA", "100", 10)

	cost := types.MustMoney("200")
	_, err := l.svc.Stock.ApplyPurchaseEntry(ctx, stock.PurchaseEntryInput{
		BranchID:  l.branch.ID,
		Items:     []stock.Item{{ProductID: p.ID, Quantity: types.NewQuantity(10), UnitCost: &cost}},
		Reference: entity.PurchaseRef(id.New()),
	})
	require.NoError(t, err)

	e, err := l.svc.Stock.GetEntry(ctx, entity.StockKey{ProductID: p.ID, BranchID: l.branch.ID})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(20), e.Quantity)
	assert.True(t, e.CostPrice.Equal(types.MustMoney("150")), "cost %s", e.CostPrice)

	stored, err := l.storage.Products.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.CostPrice.Equal(types.MustMoney("150")), "snapshot %s", stored.CostPrice)
}

func TestApplyPurchaseEntry_RequiresUnitCost(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	p := l.product(t, "TEA", "1", 0)

	_, err := l.svc.Stock.ApplyPurchaseEntry(context.Background(), stock.PurchaseEntryInput{
		BranchID:  l.branch.ID,
		Items:     []stock.Item{item(p, 1)},
		Reference: entity.PurchaseRef(id.New()),
	})
	assert.Error(t, err)
}

func TestApplyPurchaseEntry_CostOnlyCorrection(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	ctx := context.Background()
	p := l.product(t, "TEA", "100", 10)
	ref := entity.PurchaseRef(id.New())

	cost := types.MustMoney("120")
	res, err := l.svc.Stock.ApplyPurchaseEntry(ctx, stock.PurchaseEntryInput{
		BranchID:  l.branch.ID,
		Items:     []stock.Item{{ProductID: p.ID, Quantity: 0, UnitCost: &cost}},
		Reference: ref,
	})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Empty(t, res.Movements)
	assert.True(t, res.Items[0].PreviousCost.Equal(types.MustMoney("100")))

	e, err := l.svc.Stock.GetEntry(ctx, entity.StockKey{ProductID: p.ID, BranchID: l.branch.ID})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), e.Quantity)
	assert.True(t, e.CostPrice.Equal(types.MustMoney("120")), "cost %s", e.CostPrice)

	moves, err := l.svc.Stock.ListMovements(ctx, stock.MovementFilter{Reference: &ref})
	require.NoError(t, err)
	assert.Empty(t, moves)

	// Zero quantity is still rejected outside purchases and without a cost.
	_, err = l.svc.Stock.RestoreBatch(ctx, stock.BatchInput{
		BranchID:  l.branch.ID,
		Items:     []stock.Item{{ProductID: p.ID, Quantity: 0, UnitCost: &cost}},
		Reference: ref,
	})
	assert.Error(t, err)
	_, err = l.svc.Stock.ApplyPurchaseEntry(ctx, stock.PurchaseEntryInput{
		BranchID:  l.branch.ID,
		Items:     []stock.Item{{ProductID: p.ID, Quantity: types.NewQuantity(-1), UnitCost: &cost}},
		Reference: ref,
	})
	assert.Error(t, err)
}

func TestRevertPurchaseEntry_RestoresQuantityAndCost(t *testing.T) {
	for _, mode := range []tx.Mode{tx.ModeOn, tx.ModeOff} {
		t.Run(string(mode), func(t *testing.T) {
			l := newLedger(t, mode)
			ctx := context.Background()
			p := l.product(t, "TEA", "100", 10)
			ref := entity.PurchaseRef(id.New())

			cost := types.MustMoney("200")
			applied, err := l.svc.Stock.ApplyPurchaseEntry(ctx, stock.PurchaseEntryInput{
				BranchID:  l.branch.ID,
				Items:     []stock.Item{{ProductID: p.ID, Quantity: types.NewQuantity(10), UnitCost: &cost}},
				Reference: ref,
			})
			require.NoError(t, err)

			res, err := l.svc.Stock.RevertPurchaseEntry(ctx, applied, ref, "system", "receipt not saved")
			require.NoError(t, err)
			require.Len(t, res.Movements, 1)
			assert.Equal(t, entity.MovementAdjustment, res.Movements[0].Type)
			assert.Equal(t, types.NewQuantity(-10), res.Movements[0].Quantity)

			e, err := l.svc.Stock.GetEntry(ctx, entity.StockKey{ProductID: p.ID, BranchID: l.branch.ID})
			require.NoError(t, err)
			assert.Equal(t, types.NewQuantity(10), e.Quantity)
			assert.True(t, e.CostPrice.Equal(types.MustMoney("100")), "cost %s", e.CostPrice)

			stored, err := l.storage.Products.Get(ctx, p.ID)
			require.NoError(t, err)
			assert.True(t, stored.CostPrice.Equal(types.MustMoney("100")), "snapshot %s", stored.CostPrice)
		})
	}
}

func TestLookup_InvalidatedOnChange(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	ctx := context.Background()
	p := l.product(t, "TEA", "2", 5)

	e, err := l.svc.Stock.GetByBarcodeOrSku(ctx, p.Barcode, l.branch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(5), e.Quantity)
	assert.Equal(t, 1, l.svc.Cache.Len())

	_, err = l.svc.Stock.DecrementBatch(ctx, l.sale(item(p, 2)))
	require.NoError(t, err)
	assert.Equal(t, 0, l.svc.Cache.Len())

	e, err = l.svc.Stock.GetByBarcodeOrSku(ctx, "TEA", l.branch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(3), e.Quantity)
}

func TestLookup_UnknownCode(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	_, err := l.svc.Stock.GetByBarcodeOrSku(context.Background(), "nope", l.branch.ID)
	assert.True(t, apperror.IsNotFound(err))

	_, err = l.svc.Stock.GetByBarcodeOrSku(context.Background(), "  ", l.branch.ID)
	assert.Error(t, err)
}

type failingProducts struct {
	directory.ProductDirectory
}

func (failingProducts) Get(context.Context, id.ID) (*directory.Product, error) {
	return nil, errors.New("directory unavailable")
}

func TestRestore_ProductLookupFailureCreatesInactiveEntry(t *testing.T) {
	store := memory.New(memory.Options{SupportsTransactions: true})
	svc := stock.NewService(
		memory.NewStockRepo(store),
		failingProducts{memory.NewProductDirectory(store)},
		memory.NewTxManager(store),
		stock.Config{},
	)
	productID, branchID := id.New(), id.New()

	_, err := svc.RestoreBatch(context.Background(), stock.BatchInput{
		BranchID:  branchID,
		Items:     []stock.Item{{ProductID: productID, Quantity: types.NewQuantity(3)}},
		Reference: entity.ManualRef(),
	})
	require.NoError(t, err)

	e, err := svc.GetEntry(context.Background(), entity.StockKey{ProductID: productID, BranchID: branchID})
	require.NoError(t, err)
	assert.False(t, e.IsActive)

	total, err := svc.SumQuantity(context.Background(), productID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestReservations(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	ctx := context.Background()
	p := l.product(t, "TEA", "2", 5)
	res := stock.ReservationInput{ProductID: p.ID, BranchID: l.branch.ID, Quantity: types.NewQuantity(3)}

	_, err := l.svc.Stock.Reserve(ctx, res)
	require.NoError(t, err)

	_, err = l.svc.Stock.Reserve(ctx, res)
	assert.Error(t, err)

	in := l.sale(item(p, 3))
	in.RespectReservations = true
	_, err = l.svc.Stock.DecrementBatch(ctx, in)
	assert.Error(t, err)

	e, err := l.svc.Stock.Release(ctx, res)
	require.NoError(t, err)
	assert.True(t, e.ReservedQuantity.IsZero())

	_, err = l.svc.Stock.DecrementBatch(ctx, in)
	require.NoError(t, err)
}

func TestBulkAdjust_LinesAreIndependent(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	p := l.product(t, "TEA", "2", 5)

	results := l.svc.Stock.BulkAdjust(context.Background(), stock.BulkAdjustInput{
		BatchID: "count-1",
		Reason:  "recount",
		Lines: []stock.AdjustmentLine{
			{ProductID: p.ID, BranchID: l.branch.ID, Quantity: types.NewQuantity(-2)},
			{ProductID: p.ID, BranchID: l.branch.ID, Quantity: types.NewQuantity(-50)},
			{ProductID: p.ID, BranchID: l.branch.ID, Quantity: types.NewQuantity(9), Absolute: true},
		},
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, apperror.CodeInsufficientStock, results[1].Error.Code)
	assert.True(t, results[2].OK)
	assert.Equal(t, types.NewQuantity(9), l.onHand(t, p))
}

func TestSetStock_UnchangedWritesNoMovement(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	p := l.product(t, "TEA", "2", 5)

	res, err := l.svc.Stock.SetStock(context.Background(), stock.SetStockInput{
		ProductID: p.ID,
		BranchID:  l.branch.ID,
		Quantity:  types.NewQuantity(5),
		Reason:    "recount",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Movement)
	assert.Equal(t, types.NewQuantity(5), res.Previous)
}

func TestProjection_FollowsLedger(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	ctx := context.Background()
	p := l.product(t, "TEA", "2", 8)

	_, err := l.svc.Stock.DecrementBatch(ctx, l.sale(item(p, 3)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := l.storage.Products.Get(ctx, p.ID)
		return err == nil && stored.TotalQuantity == types.NewQuantity(5)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeactivateProduct_HidesStockFromTotals(t *testing.T) {
	l := newLedger(t, tx.ModeOn)
	ctx := context.Background()
	p := l.product(t, "TEA", "2", 4)

	n, err := l.svc.Stock.DeactivateProduct(ctx, p.ID, "Black tea (deleted)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	total, err := l.svc.Availability.SumQuantity(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	_, err = l.svc.Stock.ActivateProduct(ctx, p.ID)
	require.NoError(t, err)
	total, err = l.svc.Availability.SumQuantity(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(4), total)
}
