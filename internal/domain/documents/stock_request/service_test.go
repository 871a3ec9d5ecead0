package stock_request_test

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
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/documents/stock_request"
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/domain/registers/stock"
)

type env struct {
	svc     *app.Services
	head    *directory.Branch
	sub     *directory.Branch
	product *directory.Product
}

func setup(t *testing.T) *env {
	t.Helper()
	return newEnv(t, app.NewMemoryStorage(tx.ModeOn, time.Hour))
}

func newEnv(t *testing.T, storage *app.Storage) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{
		svc:     app.NewServices(storage, app.ServiceOptions{}),
		head:    directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice),
		sub:     directory.NewBranch("BRA", "Branch A", directory.RoleSubBranch),
		product: directory.NewProduct("TEA", "Black tea", types.MustMoney("3")),
	}
	require.NoError(t, storage.Catalog.SaveBranch(ctx, e.head))
	require.NoError(t, storage.Catalog.SaveBranch(ctx, e.sub))
	require.NoError(t, storage.Catalog.SaveProduct(ctx, e.product))
	_, err := e.svc.Stock.SetStock(ctx, stock.SetStockInput{
		ProductID: e.product.ID,
		BranchID:  e.head.ID,
		Quantity:  types.NewQuantity(20),
		Reason:    "opening",
	})
	require.NoError(t, err)
	return e
}

func (e *env) request(t *testing.T, qty int64) *stock_request.StockRequest {
	t.Helper()
	doc, err := e.svc.StockRequests.Create(context.Background(), stock_request.CreateInput{
		RequestingBranchID: e.sub.ID,
		Items:              []stock_request.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(qty)}},
		ActorID:            "branch-manager",
	})
	require.NoError(t, err)
	return doc
}

func (e *env) onHand(t *testing.T, b *directory.Branch) types.Quantity {
	t.Helper()
	entry, err := e.svc.Stock.GetEntry(context.Background(), entity.StockKey{ProductID: e.product.ID, BranchID: b.ID})
	if apperror.IsNotFound(err) {
		return 0
	}
	require.NoError(t, err)
	return entry.Quantity
}

func TestStockRequest_HeadOfficeCannotRequest(t *testing.T) {
	e := setup(t)
	_, err := e.svc.StockRequests.Create(context.Background(), stock_request.CreateInput{
		RequestingBranchID: e.head.ID,
		Items:              []stock_request.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(1)}},
	})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)
}

func TestStockRequest_PartialThenFullFulfilment(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	doc := e.request(t, 10)
	assert.Equal(t, stock_request.StatusPending, doc.Status)
	assert.Equal(t, e.head.ID, doc.FulfillingBranchID)
	lineID := doc.Lines[0].LineID

	doc, err := e.svc.StockRequests.Approve(ctx, doc.ID, stock_request.ApproveInput{
		Quantities: map[id.ID]types.Quantity{lineID: types.NewQuantity(8)},
		ActorID:    "hq",
	})
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusApproved, doc.Status)
	assert.Equal(t, types.NewQuantity(8), doc.Lines[0].ApprovedQuantity)

	doc, err = e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{
		Items:   []stock_request.FulfillItem{{LineID: lineID, Quantity: types.NewQuantity(3)}},
		ActorID: "hq",
	})
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusPartialFulfilled, doc.Status)
	assert.Equal(t, types.NewQuantity(3), doc.Lines[0].FulfilledQuantity)
	require.Len(t, doc.TransferIDs, 1)
	assert.Equal(t, types.NewQuantity(17), e.onHand(t, e.head))

	first, err := e.svc.Transfers.Get(ctx, doc.TransferIDs[0])
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusDispatched, first.Status)
	require.NotNil(t, first.StockRequestID)
	assert.Equal(t, doc.ID, *first.StockRequestID)

	// Without items the outstanding quantity is sent.
	doc, err = e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{ActorID: "hq"})
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusFulfilled, doc.Status)
	assert.Equal(t, types.NewQuantity(8), doc.Lines[0].FulfilledQuantity)
	assert.Len(t, doc.TransferIDs, 2)
	assert.Equal(t, types.NewQuantity(12), e.onHand(t, e.head))

	// Stock only reaches the requester when the transfers are received.
	assert.Equal(t, types.NewQuantity(0), e.onHand(t, e.sub))
	for _, tid := range doc.TransferIDs {
		_, err := e.svc.Transfers.Receive(ctx, tid, transfer.ReceiveInput{ActorID: "branch"})
		require.NoError(t, err)
	}
	assert.Equal(t, types.NewQuantity(8), e.onHand(t, e.sub))

	_, err = e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{ActorID: "hq"})
	assert.Error(t, err)
}

func TestStockRequest_ApproveRejectsOverRequest(t *testing.T) {
	e := setup(t)
	doc := e.request(t, 2)

	_, err := e.svc.StockRequests.Approve(context.Background(), doc.ID, stock_request.ApproveInput{
		Quantities: map[id.ID]types.Quantity{doc.Lines[0].LineID: types.NewQuantity(3)},
	})
	assert.Error(t, err)

	_, err = e.svc.StockRequests.Approve(context.Background(), doc.ID, stock_request.ApproveInput{
		Quantities: map[id.ID]types.Quantity{id.New(): types.NewQuantity(1)},
	})
	assert.Error(t, err)
}

func TestStockRequest_FulfilShortageKeepsRequestApproved(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	doc := e.request(t, 30)

	_, err := e.svc.StockRequests.Approve(ctx, doc.ID, stock_request.ApproveInput{ActorID: "hq"})
	require.NoError(t, err)

	_, err = e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{ActorID: "hq"})
	require.Error(t, err)

	got, err := e.svc.StockRequests.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusApproved, got.Status)
	assert.Equal(t, types.NewQuantity(20), e.onHand(t, e.head))
}

func TestStockRequest_RejectAndCancel(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	rejected, err := e.svc.StockRequests.Reject(ctx, e.request(t, 1).ID, "hq", "not in season")
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusRejected, rejected.Status)
	assert.Equal(t, "not in season", rejected.RejectionReason)

	cancelled, err := e.svc.StockRequests.Cancel(ctx, e.request(t, 1).ID, "branch-manager", "")
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusCancelled, cancelled.Status)

	_, err = e.svc.StockRequests.Approve(ctx, cancelled.ID, stock_request.ApproveInput{})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidState, appErr.Code)
}

// failingRequests fails the next failures calls to Update.
type failingRequests struct {
	stock_request.Repository
	failures int
}

func (r *failingRequests) Update(ctx context.Context, doc *stock_request.StockRequest) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	return r.Repository.Update(ctx, doc)
}

func TestStockRequest_UnsavedFulfilmentIsRevoked(t *testing.T) {
	storage := app.NewMemoryStorage(tx.ModeOff, time.Hour)
	repo := &failingRequests{Repository: storage.StockRequests}
	storage.StockRequests = repo
	e := newEnv(t, storage)
	ctx := context.Background()

	doc := e.request(t, 5)
	_, err := e.svc.StockRequests.Approve(ctx, doc.ID, stock_request.ApproveInput{ActorID: "hq"})
	require.NoError(t, err)

	repo.failures = 1
	_, err = e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{ActorID: "hq"})
	require.Error(t, err)
	assert.Equal(t, types.NewQuantity(20), e.onHand(t, e.head))

	stored, err := e.svc.StockRequests.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusApproved, stored.Status)
	assert.Empty(t, stored.TransferIDs)

	doc, err = e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{ActorID: "hq"})
	require.NoError(t, err)
	assert.Equal(t, stock_request.StatusFulfilled, doc.Status)
	require.Len(t, doc.TransferIDs, 1)
	assert.Equal(t, types.NewQuantity(15), e.onHand(t, e.head))

	transfers, err := e.svc.Transfers.List(ctx, transfer.ListFilter{})
	require.NoError(t, err)
	statuses := map[transfer.Status]int{}
	for _, tr := range transfers.Items {
		statuses[tr.Status]++
	}
	assert.Equal(t, map[transfer.Status]int{
		transfer.StatusCancelled:  1,
		transfer.StatusDispatched: 1,
	}, statuses)
}

func TestStockRequest_StateMachineIsClosed(t *testing.T) {
	allowed := map[stock_request.Action][]stock_request.Status{
		stock_request.ActionApprove: {stock_request.StatusPending},
		stock_request.ActionReject:  {stock_request.StatusPending},
		stock_request.ActionFulfill: {stock_request.StatusApproved, stock_request.StatusPartialFulfilled},
		stock_request.ActionCancel:  {stock_request.StatusPending, stock_request.StatusApproved},
	}
	type step func(ctx context.Context, e *env, doc *stock_request.StockRequest) error
	actions := map[stock_request.Action]step{
		stock_request.ActionApprove: func(ctx context.Context, e *env, doc *stock_request.StockRequest) error {
			_, err := e.svc.StockRequests.Approve(ctx, doc.ID, stock_request.ApproveInput{ActorID: "hq"})
			return err
		},
		stock_request.ActionReject: func(ctx context.Context, e *env, doc *stock_request.StockRequest) error {
			_, err := e.svc.StockRequests.Reject(ctx, doc.ID, "hq", "no")
			return err
		},
		stock_request.ActionFulfill: func(ctx context.Context, e *env, doc *stock_request.StockRequest) error {
			_, err := e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{ActorID: "hq"})
			return err
		},
		stock_request.ActionCancel: func(ctx context.Context, e *env, doc *stock_request.StockRequest) error {
			_, err := e.svc.StockRequests.Cancel(ctx, doc.ID, "branch-manager", "")
			return err
		},
	}
	fulfilSome := func(ctx context.Context, e *env, doc *stock_request.StockRequest) error {
		_, err := e.svc.StockRequests.Fulfill(ctx, doc.ID, stock_request.FulfillInput{
			Items:   []stock_request.FulfillItem{{LineID: doc.Lines[0].LineID, Quantity: types.NewQuantity(3)}},
			ActorID: "hq",
		})
		return err
	}
	path := map[stock_request.Status][]step{
		stock_request.StatusPending:          nil,
		stock_request.StatusApproved:         {actions[stock_request.ActionApprove]},
		stock_request.StatusPartialFulfilled: {actions[stock_request.ActionApprove], fulfilSome},
		stock_request.StatusFulfilled:        {actions[stock_request.ActionApprove], actions[stock_request.ActionFulfill]},
		stock_request.StatusRejected:         {actions[stock_request.ActionReject]},
		stock_request.StatusCancelled:        {actions[stock_request.ActionCancel]},
	}

	for status, steps := range path {
		t.Run(string(status), func(t *testing.T) {
			e := setup(t)
			ctx := context.Background()
			doc := e.request(t, 10)
			for _, run := range steps {
				require.NoError(t, run(ctx, e, doc))
			}
			doc, err := e.svc.StockRequests.Get(ctx, doc.ID)
			require.NoError(t, err)
			require.Equal(t, status, doc.Status)
			before := e.onHand(t, e.head)

			for action, run := range actions {
				if slices.Contains(allowed[action], status) {
					continue
				}
				err := run(ctx, e, doc)
				appErr, ok := apperror.AsAppError(err)
				require.True(t, ok, "%s from %s: got %v", action, status, err)
				assert.Equal(t, apperror.CodeInvalidState, appErr.Code, "%s from %s", action, status)

				got, err := e.svc.StockRequests.Get(ctx, doc.ID)
				require.NoError(t, err)
				assert.Equal(t, status, got.Status, "%s from %s", action, status)
			}
			assert.Equal(t, before, e.onHand(t, e.head))
		})
	}
}
