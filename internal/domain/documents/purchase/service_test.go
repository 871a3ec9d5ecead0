package purchase_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/documents/purchase"
	"stockledger/internal/domain/expense"
	"stockledger/internal/infrastructure/storage/memory"
)

type env struct {
	svc     *app.Services
	head    *directory.Branch
	sub     *directory.Branch
	product *directory.Product
}

func setup(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	storage := app.NewMemoryStorage(tx.ModeOn, time.Hour)
	e := &env{
		svc:     app.NewServices(storage, app.ServiceOptions{}),
		head:    directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice),
		sub:     directory.NewBranch("BRA", "Branch A", directory.RoleSubBranch),
		product: directory.NewProduct("TEA", "Black tea", types.MustMoney("90")),
	}
	require.NoError(t, storage.Catalog.SaveBranch(ctx, e.head))
	require.NoError(t, storage.Catalog.SaveBranch(ctx, e.sub))
	require.NoError(t, storage.Catalog.SaveProduct(ctx, e.product))
	return e
}

func (e *env) create(t *testing.T) *purchase.Purchase {
	t.Helper()
	doc, err := e.svc.Purchases.Create(context.Background(), purchase.CreateInput{
		SupplierID:        id.New(),
		SupplierInvoiceNo: "INV-77",
		BranchID:          e.head.ID,
		Items: []purchase.ItemInput{{
			ProductID: e.product.ID,
			Quantity:  types.NewQuantity(10),
			UnitCost:  types.MustMoney("100"),
		}},
		ActorID: "buyer",
	})
	require.NoError(t, err)
	return doc
}

func TestPurchase_OnlyHeadOffice(t *testing.T) {
	e := setup(t)
	_, err := e.svc.Purchases.Create(context.Background(), purchase.CreateInput{
		SupplierID: id.New(),
		BranchID:   e.sub.ID,
		Items:      []purchase.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(1), UnitCost: types.MustMoney("1")}},
	})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)
}

func TestPurchase_Totals(t *testing.T) {
	e := setup(t)
	doc, err := e.svc.Purchases.Create(context.Background(), purchase.CreateInput{
		SupplierID: id.New(),
		BranchID:   e.head.ID,
		Items: []purchase.ItemInput{{
			ProductID: e.product.ID,
			Quantity:  types.NewQuantity(4),
			UnitCost:  types.MustMoney("25"),
			Discount:  types.MustMoney("10"),
			TaxRate:   types.MustMoney("20"),
		}},
	})
	require.NoError(t, err)

	assert.True(t, doc.Subtotal.Equal(types.MustMoney("100")), "subtotal %s", doc.Subtotal)
	assert.True(t, doc.TaxTotal.Equal(types.MustMoney("18")), "tax %s", doc.TaxTotal)
	assert.True(t, doc.GrandTotal.Equal(types.MustMoney("108")), "grand total %s", doc.GrandTotal)
	assert.Equal(t, purchase.PaymentUnpaid, doc.PaymentStatus)
	assert.Regexp(t, `^PINV-\d{6}-0001$`, doc.Number)
}

func TestPurchase_ReceiveCreditsStockAtCost(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	doc := e.create(t)

	doc, err := e.svc.Purchases.Receive(ctx, doc.ID, "storekeeper", "")
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusReceived, doc.Status)
	assert.Len(t, doc.ReceiptMovementIDs, 1)

	entry, err := e.svc.Stock.GetEntry(ctx, entity.StockKey{ProductID: e.product.ID, BranchID: e.head.ID})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), entry.Quantity)
	assert.True(t, entry.CostPrice.Equal(types.MustMoney("100")), "cost %s", entry.CostPrice)

	_, err = e.svc.Purchases.Receive(ctx, doc.ID, "storekeeper", "")
	assert.Error(t, err)
	_, err = e.svc.Purchases.Cancel(ctx, doc.ID, "buyer", "late")
	assert.Error(t, err)
}

func TestPurchase_Payments(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	doc := e.create(t)

	doc, err := e.svc.Purchases.Pay(ctx, doc.ID, purchase.PayInput{Amount: types.MustMoney("400"), Method: "bank"})
	require.NoError(t, err)
	assert.Equal(t, purchase.PaymentPartial, doc.PaymentStatus)
	assert.True(t, doc.DueAmount.Equal(types.MustMoney("600")))

	_, err = e.svc.Purchases.Pay(ctx, doc.ID, purchase.PayInput{Amount: types.MustMoney("600.01")})
	assert.Error(t, err)

	doc, err = e.svc.Purchases.Pay(ctx, doc.ID, purchase.PayInput{Amount: types.MustMoney("600"), Method: "cash"})
	require.NoError(t, err)
	assert.Equal(t, purchase.PaymentPaid, doc.PaymentStatus)
	assert.True(t, doc.DueAmount.IsZero())
	require.Len(t, doc.Payments, 2)
	assert.NotEmpty(t, doc.Payments[0].TransactionID)

	_, err = e.svc.Purchases.Pay(ctx, doc.ID, purchase.PayInput{Amount: types.MustMoney("0")})
	assert.Error(t, err)

	// Paying does not move the receipt status.
	assert.Equal(t, purchase.StatusDraft, doc.Status)
}

func TestPurchase_UpdateOnlyDraft(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	doc := e.create(t)

	note := "second delivery"
	updated, err := e.svc.Purchases.Update(ctx, doc.ID, purchase.UpdateInput{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, note, updated.Note)

	_, err = e.svc.Purchases.Approve(ctx, doc.ID, "manager", "")
	require.NoError(t, err)

	_, err = e.svc.Purchases.Update(ctx, doc.ID, purchase.UpdateInput{Note: &note})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidState, appErr.Code)
}

func TestPurchase_NumberingFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	storage := app.NewMemoryStorage(tx.ModeOn, time.Hour)
	services := app.NewServices(storage, app.ServiceOptions{})
	head := directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice)
	product := directory.NewProduct("TEA", "Black tea", types.MustMoney("90"))
	require.NoError(t, storage.Catalog.SaveBranch(ctx, head))
	require.NoError(t, storage.Catalog.SaveProduct(ctx, product))

	calls := 0
	gen := &numerator.MockGenerator{
		GetNextNumberFunc: func(context.Context, numerator.Config, time.Time) (string, error) {
			calls++
			return "", errors.New("sequence unavailable")
		},
	}
	svc := purchase.NewService(storage.Purchases, services.Stock, storage.Branches, storage.Products,
		storage.Expenses, gen, storage.TxManager)

	_, err := svc.Create(ctx, purchase.CreateInput{
		SupplierID: id.New(),
		BranchID:   head.ID,
		Items:      []purchase.ItemInput{{ProductID: product.ID, Quantity: types.NewQuantity(1), UnitCost: types.MustMoney("1")}},
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	list, err := svc.List(ctx, purchase.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list.Items)
}

func TestPurchase_NumbersFollowSequence(t *testing.T) {
	ctx := context.Background()
	storage := app.NewMemoryStorage(tx.ModeOn, time.Hour)
	services := app.NewServices(storage, app.ServiceOptions{})
	head := directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice)
	product := directory.NewProduct("TEA", "Black tea", types.MustMoney("90"))
	require.NoError(t, storage.Catalog.SaveBranch(ctx, head))
	require.NoError(t, storage.Catalog.SaveProduct(ctx, product))

	svc := purchase.NewService(storage.Purchases, services.Stock, storage.Branches, storage.Products,
		storage.Expenses, &numerator.MockGenerator{}, storage.TxManager)

	in := purchase.CreateInput{
		SupplierID: id.New(),
		BranchID:   head.ID,
		Items:      []purchase.ItemInput{{ProductID: product.ID, Quantity: types.NewQuantity(1), UnitCost: types.MustMoney("1")}},
	}
	first, err := svc.Create(ctx, in)
	require.NoError(t, err)
	second, err := svc.Create(ctx, in)
	require.NoError(t, err)

	seq1, err := numerator.ParseSequence(first.Number)
	require.NoError(t, err)
	seq2, err := numerator.ParseSequence(second.Number)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq1)
	assert.Equal(t, int64(2), seq2)
}

// failingPurchases fails the next failures calls to Update.
type failingPurchases struct {
	purchase.Repository
	failures int
}

func (r *failingPurchases) Update(ctx context.Context, doc *purchase.Purchase) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	return r.Repository.Update(ctx, doc)
}

type fallbackEnv struct {
	*env
	repo     *failingPurchases
	expenses *memory.ExpenseRecorder
	products directory.ProductDirectory
}

func setupFallback(t *testing.T) *fallbackEnv {
	t.Helper()
	ctx := context.Background()
	storage := app.NewMemoryStorage(tx.ModeOff, time.Hour)
	repo := &failingPurchases{Repository: storage.Purchases}
	storage.Purchases = repo
	expenses, ok := storage.Expenses.(*memory.ExpenseRecorder)
	require.True(t, ok)

	e := &env{
		svc:     app.NewServices(storage, app.ServiceOptions{}),
		head:    directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice),
		sub:     directory.NewBranch("BRA", "Branch A", directory.RoleSubBranch),
		product: directory.NewProduct("TEA", "Black tea", types.MustMoney("90")),
	}
	require.NoError(t, storage.Catalog.SaveBranch(ctx, e.head))
	require.NoError(t, storage.Catalog.SaveBranch(ctx, e.sub))
	require.NoError(t, storage.Catalog.SaveProduct(ctx, e.product))
	return &fallbackEnv{env: e, repo: repo, expenses: expenses, products: storage.Products}
}

func TestPurchase_ReceiveUnsavedIsTakenBack(t *testing.T) {
	e := setupFallback(t)
	ctx := context.Background()
	doc := e.create(t)
	key := entity.StockKey{ProductID: e.product.ID, BranchID: e.head.ID}

	e.repo.failures = 1
	_, err := e.svc.Purchases.Receive(ctx, doc.ID, "storekeeper", "")
	require.Error(t, err)

	entry, err := e.svc.Stock.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, entry.Quantity.IsZero(), "quantity %s", entry.Quantity)
	assert.True(t, entry.CostPrice.Equal(types.MustMoney("90")), "cost %s", entry.CostPrice)
	stored, err := e.svc.Purchases.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusDraft, stored.Status)

	doc, err = e.svc.Purchases.Receive(ctx, doc.ID, "storekeeper", "")
	require.NoError(t, err)
	assert.Equal(t, purchase.StatusReceived, doc.Status)

	entry, err = e.svc.Stock.GetEntry(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), entry.Quantity)
	assert.True(t, entry.CostPrice.Equal(types.MustMoney("100")), "cost %s", entry.CostPrice)
}

func TestPurchase_ReceiveUnsavedRestoresCostSnapshot(t *testing.T) {
	e := setupFallback(t)
	ctx := context.Background()
	doc := e.create(t)

	e.repo.failures = 1
	_, err := e.svc.Purchases.Receive(ctx, doc.ID, "storekeeper", "")
	require.Error(t, err)

	product, err := e.products.Get(ctx, e.product.ID)
	require.NoError(t, err)
	assert.True(t, product.CostPrice.Equal(types.MustMoney("90")), "snapshot %s", product.CostPrice)
}

func TestPurchase_PayRetryRecordsOneExpense(t *testing.T) {
	e := setupFallback(t)
	ctx := context.Background()
	doc := e.create(t)

	e.repo.failures = 1
	_, err := e.svc.Purchases.Pay(ctx, doc.ID, purchase.PayInput{Amount: types.MustMoney("400"), Method: "bank"})
	require.Error(t, err)
	require.Len(t, e.expenses.Expenses(), 1)

	doc, err = e.svc.Purchases.Pay(ctx, doc.ID, purchase.PayInput{Amount: types.MustMoney("400"), Method: "bank"})
	require.NoError(t, err)
	require.Len(t, doc.Payments, 1)
	assert.True(t, doc.DueAmount.Equal(types.MustMoney("600")))

	recorded := e.expenses.Expenses()
	require.Len(t, recorded, 1)
	assert.NotEmpty(t, recorded[0].Metadata[expense.MetadataIdempotencyKey])
	assert.Equal(t, doc.Payments[0].ID.String(), recorded[0].Metadata["payment_id"])

	// The next payment is a new attempt against a newer version.
	_, err = e.svc.Purchases.Pay(ctx, doc.ID, purchase.PayInput{Amount: types.MustMoney("400"), Method: "bank"})
	require.NoError(t, err)
	assert.Len(t, e.expenses.Expenses(), 2)
}

func TestPurchase_StateMachineIsClosed(t *testing.T) {
	allowed := map[purchase.Action][]purchase.Status{
		purchase.ActionUpdate:  {purchase.StatusDraft},
		purchase.ActionApprove: {purchase.StatusDraft},
		purchase.ActionReceive: {purchase.StatusDraft, purchase.StatusApproved},
		purchase.ActionCancel:  {purchase.StatusDraft, purchase.StatusApproved},
		purchase.ActionPay:     {purchase.StatusDraft, purchase.StatusApproved, purchase.StatusReceived},
	}
	note := "n"
	actions := map[purchase.Action]func(ctx context.Context, svc *purchase.Service, docID id.ID) error{
		purchase.ActionUpdate: func(ctx context.Context, svc *purchase.Service, docID id.ID) error {
			_, err := svc.Update(ctx, docID, purchase.UpdateInput{Note: &note})
			return err
		},
		purchase.ActionApprove: func(ctx context.Context, svc *purchase.Service, docID id.ID) error {
			_, err := svc.Approve(ctx, docID, "manager", "")
			return err
		},
		purchase.ActionReceive: func(ctx context.Context, svc *purchase.Service, docID id.ID) error {
			_, err := svc.Receive(ctx, docID, "storekeeper", "")
			return err
		},
		purchase.ActionCancel: func(ctx context.Context, svc *purchase.Service, docID id.ID) error {
			_, err := svc.Cancel(ctx, docID, "buyer", "")
			return err
		},
		purchase.ActionPay: func(ctx context.Context, svc *purchase.Service, docID id.ID) error {
			_, err := svc.Pay(ctx, docID, purchase.PayInput{Amount: types.MustMoney("1")})
			return err
		},
	}
	reach := map[purchase.Status]func(t *testing.T, e *env) *purchase.Purchase{
		purchase.StatusDraft: func(t *testing.T, e *env) *purchase.Purchase {
			return e.create(t)
		},
		purchase.StatusApproved: func(t *testing.T, e *env) *purchase.Purchase {
			doc, err := e.svc.Purchases.Approve(context.Background(), e.create(t).ID, "manager", "")
			require.NoError(t, err)
			return doc
		},
		purchase.StatusReceived: func(t *testing.T, e *env) *purchase.Purchase {
			doc, err := e.svc.Purchases.Receive(context.Background(), e.create(t).ID, "storekeeper", "")
			require.NoError(t, err)
			return doc
		},
		purchase.StatusCancelled: func(t *testing.T, e *env) *purchase.Purchase {
			doc, err := e.svc.Purchases.Cancel(context.Background(), e.create(t).ID, "buyer", "")
			require.NoError(t, err)
			return doc
		},
	}

	for status, build := range reach {
		t.Run(string(status), func(t *testing.T) {
			e := setup(t)
			ctx := context.Background()
			doc := build(t, e)
			require.Equal(t, status, doc.Status)

			for action, run := range actions {
				if slices.Contains(allowed[action], status) {
					continue
				}
				err := run(ctx, e.svc.Purchases, doc.ID)
				appErr, ok := apperror.AsAppError(err)
				require.True(t, ok, "%s from %s: got %v", action, status, err)
				assert.Equal(t, apperror.CodeInvalidState, appErr.Code, "%s from %s", action, status)

				got, err := e.svc.Purchases.Get(ctx, doc.ID)
				require.NoError(t, err)
				assert.Equal(t, status, got.Status, "%s from %s", action, status)
			}
		})
	}
}
