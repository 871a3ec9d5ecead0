package transfer_test

import (
	"context"
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
	"stockledger/internal/domain/documents/transfer"
	"stockledger/internal/domain/registers/stock"
)

type env struct {
	svc              *app.Services
	head, subA, subB *directory.Branch
	product          *directory.Product
}

func setup(t *testing.T, mode tx.Mode) *env {
	t.Helper()
	ctx := context.Background()
	storage := app.NewMemoryStorage(mode, time.Hour)
	svc := app.NewServices(storage, app.ServiceOptions{})

	e := &env{
		svc:     svc,
		head:    directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice),
		subA:    directory.NewBranch("BRA", "Branch A", directory.RoleSubBranch),
		subB:    directory.NewBranch("BRB", "Branch B", directory.RoleSubBranch),
		product: directory.NewProduct("TEA", "Black tea", types.MustMoney("100")),
	}
	for _, b := range []*directory.Branch{e.head, e.subA, e.subB} {
		require.NoError(t, storage.Catalog.SaveBranch(ctx, b))
	}
	require.NoError(t, storage.Catalog.SaveProduct(ctx, e.product))
	_, err := svc.Stock.SetStock(ctx, stock.SetStockInput{
		ProductID: e.product.ID,
		BranchID:  e.head.ID,
		Quantity:  types.NewQuantity(10),
		Reason:    "opening",
	})
	require.NoError(t, err)
	return e
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

func (e *env) create(t *testing.T, from, to *directory.Branch, qty int64, perms transfer.Permissions) *transfer.Transfer {
	t.Helper()
	doc, err := e.svc.Transfers.Create(context.Background(), transfer.CreateInput{
		SenderBranchID:   from.ID,
		ReceiverBranchID: to.ID,
		Items:            []transfer.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(qty)}},
		ActorID:          "clerk",
		Permissions:      perms,
	})
	require.NoError(t, err)
	return doc
}

func TestTransfer_Lifecycle(t *testing.T) {
	for _, mode := range []tx.Mode{tx.ModeOn, tx.ModeOff} {
		t.Run(string(mode), func(t *testing.T) {
			e := setup(t, mode)
			ctx := context.Background()

			doc := e.create(t, e.head, e.subA, 4, transfer.Permissions{})
			assert.Equal(t, transfer.StatusDraft, doc.Status)
			assert.Equal(t, transfer.TypeHeadToSub, doc.Type)
			assert.Regexp(t, `^CHN-\d{6}-0001$`, doc.Number)
			assert.True(t, doc.Lines[0].UnitCost.Equal(types.MustMoney("100")))

			_, err := e.svc.Transfers.Approve(ctx, doc.ID, "manager", "")
			require.NoError(t, err)
			assert.Equal(t, types.NewQuantity(10), e.onHand(t, e.head))

			doc, err = e.svc.Transfers.Dispatch(ctx, doc.ID, "manager", "")
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusDispatched, doc.Status)
			assert.Equal(t, types.NewQuantity(6), e.onHand(t, e.head))

			doc, err = e.svc.Transfers.MarkInTransit(ctx, doc.ID, "driver", "")
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusInTransit, doc.Status)

			lineID := doc.Lines[0].LineID
			doc, err = e.svc.Transfers.Receive(ctx, doc.ID, transfer.ReceiveInput{
				Items:   []transfer.ReceiveItem{{LineID: lineID, Quantity: types.NewQuantity(1)}},
				ActorID: "receiver",
			})
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusPartialReceived, doc.Status)
			assert.Equal(t, types.NewQuantity(1), e.onHand(t, e.subA))

			// Over-receipt is clamped to what is outstanding.
			doc, err = e.svc.Transfers.Receive(ctx, doc.ID, transfer.ReceiveInput{
				Items:   []transfer.ReceiveItem{{LineID: lineID, Quantity: types.NewQuantity(50)}},
				ActorID: "receiver",
			})
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusReceived, doc.Status)
			assert.Equal(t, types.NewQuantity(4), e.onHand(t, e.subA))
			assert.Equal(t, types.NewQuantity(6), e.onHand(t, e.head))

			_, err = e.svc.Transfers.Receive(ctx, doc.ID, transfer.ReceiveInput{ActorID: "receiver"})
			assert.Error(t, err)

			var actions []string
			for _, h := range doc.History {
				actions = append(actions, h.Action)
			}
			assert.Equal(t, []string{"create", "approve", "dispatch", "mark_in_transit", "receive", "receive"}, actions)
		})
	}
}

func TestTransfer_ApproveChecksSenderStock(t *testing.T) {
	e := setup(t, tx.ModeOn)
	doc := e.create(t, e.head, e.subA, 11, transfer.Permissions{})

	_, err := e.svc.Transfers.Approve(context.Background(), doc.ID, "manager", "")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)

	got, err := e.svc.Transfers.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusDraft, got.Status)
}

func TestTransfer_TypeGrants(t *testing.T) {
	e := setup(t, tx.ModeOn)
	ctx := context.Background()
	in := transfer.CreateInput{
		SenderBranchID:   e.subA.ID,
		ReceiverBranchID: e.subB.ID,
		Items:            []transfer.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(1)}},
	}

	_, err := e.svc.Transfers.Create(ctx, in)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeForbidden, appErr.Code)

	in.Permissions.AllowSubToSub = true
	doc, err := e.svc.Transfers.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, transfer.TypeSubToSub, doc.Type)

	in.ReceiverBranchID = e.head.ID
	_, err = e.svc.Transfers.Create(ctx, in)
	assert.Error(t, err)

	in.ReceiverBranchID = e.subA.ID
	_, err = e.svc.Transfers.Create(ctx, in)
	assert.Error(t, err)
}

func TestTransfer_CancelOnlyBeforeDispatch(t *testing.T) {
	e := setup(t, tx.ModeOn)
	ctx := context.Background()

	doc, err := e.svc.Transfers.CreateAndDispatch(ctx, transfer.CreateInput{
		SenderBranchID:   e.head.ID,
		ReceiverBranchID: e.subA.ID,
		Items:            []transfer.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(2)}},
		ActorID:          "clerk",
	})
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusDispatched, doc.Status)
	assert.Equal(t, types.NewQuantity(8), e.onHand(t, e.head))

	_, err = e.svc.Transfers.Cancel(ctx, doc.ID, "clerk", "changed mind")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidState, appErr.Code)

	draft := e.create(t, e.head, e.subA, 1, transfer.Permissions{})
	cancelled, err := e.svc.Transfers.Cancel(ctx, draft.ID, "clerk", "typo")
	require.NoError(t, err)
	assert.Equal(t, transfer.StatusCancelled, cancelled.Status)
}

func TestTransfer_CreateAndDispatchShortageLeavesNoStockMoved(t *testing.T) {
	for _, mode := range []tx.Mode{tx.ModeOn, tx.ModeOff} {
		t.Run(string(mode), func(t *testing.T) {
			e := setup(t, mode)
			_, err := e.svc.Transfers.CreateAndDispatch(context.Background(), transfer.CreateInput{
				SenderBranchID:   e.head.ID,
				ReceiverBranchID: e.subA.ID,
				Items:            []transfer.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(20)}},
			})
			require.Error(t, err)
			assert.Equal(t, types.NewQuantity(10), e.onHand(t, e.head))
		})
	}
}

func TestTransfer_GetUnknown(t *testing.T) {
	e := setup(t, tx.ModeOn)
	_, err := e.svc.Transfers.Get(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestTransfer_RevokeReturnsStockToSender(t *testing.T) {
	for _, mode := range []tx.Mode{tx.ModeOn, tx.ModeOff} {
		t.Run(string(mode), func(t *testing.T) {
			e := setup(t, mode)
			ctx := context.Background()

			doc, err := e.svc.Transfers.CreateAndDispatch(ctx, transfer.CreateInput{
				SenderBranchID:   e.head.ID,
				ReceiverBranchID: e.subA.ID,
				Items:            []transfer.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(4)}},
				ActorID:          "clerk",
			})
			require.NoError(t, err)
			assert.Equal(t, types.NewQuantity(6), e.onHand(t, e.head))

			doc, err = e.svc.Transfers.Revoke(ctx, doc.ID, "system", "not recorded")
			require.NoError(t, err)
			assert.Equal(t, transfer.StatusCancelled, doc.Status)
			assert.Equal(t, types.NewQuantity(10), e.onHand(t, e.head))
			assert.Equal(t, types.NewQuantity(0), e.onHand(t, e.subA))

			_, err = e.svc.Transfers.Revoke(ctx, doc.ID, "system", "again")
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, apperror.CodeInvalidState, appErr.Code)
			assert.Equal(t, types.NewQuantity(10), e.onHand(t, e.head))
		})
	}
}

func TestTransfer_StateMachineIsClosed(t *testing.T) {
	allowed := map[transfer.Action][]transfer.Status{
		transfer.ActionUpdate:    {transfer.StatusDraft},
		transfer.ActionApprove:   {transfer.StatusDraft},
		transfer.ActionDispatch:  {transfer.StatusApproved},
		transfer.ActionInTransit: {transfer.StatusDispatched},
		transfer.ActionReceive:   {transfer.StatusDispatched, transfer.StatusInTransit, transfer.StatusPartialReceived},
		transfer.ActionCancel:    {transfer.StatusDraft, transfer.StatusApproved},
		transfer.ActionRevoke:    {transfer.StatusDispatched},
	}
	type step func(ctx context.Context, e *env, docID id.ID) error
	actions := map[transfer.Action]step{
		transfer.ActionUpdate: func(ctx context.Context, e *env, docID id.ID) error {
			_, err := e.svc.Transfers.Update(ctx, docID, transfer.UpdateInput{
				Items: []transfer.ItemInput{{ProductID: e.product.ID, Quantity: types.NewQuantity(1)}},
			})
			return err
		},
		transfer.ActionApprove: func(ctx context.Context, e *env, docID id.ID) error {
			_, err := e.svc.Transfers.Approve(ctx, docID, "manager", "")
			return err
		},
		transfer.ActionDispatch: func(ctx context.Context, e *env, docID id.ID) error {
			_, err := e.svc.Transfers.Dispatch(ctx, docID, "manager", "")
			return err
		},
		transfer.ActionInTransit: func(ctx context.Context, e *env, docID id.ID) error {
			_, err := e.svc.Transfers.MarkInTransit(ctx, docID, "driver", "")
			return err
		},
		transfer.ActionReceive: func(ctx context.Context, e *env, docID id.ID) error {
			_, err := e.svc.Transfers.Receive(ctx, docID, transfer.ReceiveInput{ActorID: "receiver"})
			return err
		},
		transfer.ActionCancel: func(ctx context.Context, e *env, docID id.ID) error {
			_, err := e.svc.Transfers.Cancel(ctx, docID, "manager", "")
			return err
		},
		transfer.ActionRevoke: func(ctx context.Context, e *env, docID id.ID) error {
			_, err := e.svc.Transfers.Revoke(ctx, docID, "system", "")
			return err
		},
	}
	// path lists the actions that lead from draft to each status.
	path := map[transfer.Status][]transfer.Action{
		transfer.StatusDraft:      nil,
		transfer.StatusApproved:   {transfer.ActionApprove},
		transfer.StatusDispatched: {transfer.ActionApprove, transfer.ActionDispatch},
		transfer.StatusInTransit:  {transfer.ActionApprove, transfer.ActionDispatch, transfer.ActionInTransit},
		transfer.StatusReceived:   {transfer.ActionApprove, transfer.ActionDispatch, transfer.ActionReceive},
		transfer.StatusCancelled:  {transfer.ActionCancel},
	}

	check := func(t *testing.T, e *env, doc *transfer.Transfer, status transfer.Status) {
		t.Helper()
		ctx := context.Background()
		for action, run := range actions {
			if slices.Contains(allowed[action], status) {
				continue
			}
			err := run(ctx, e, doc.ID)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok, "%s from %s: got %v", action, status, err)
			assert.Equal(t, apperror.CodeInvalidState, appErr.Code, "%s from %s", action, status)

			got, err := e.svc.Transfers.Get(ctx, doc.ID)
			require.NoError(t, err)
			assert.Equal(t, status, got.Status, "%s from %s", action, status)
		}
	}

	for status, steps := range path {
		t.Run(string(status), func(t *testing.T) {
			e := setup(t, tx.ModeOn)
			ctx := context.Background()
			doc := e.create(t, e.head, e.subA, 4, transfer.Permissions{})
			for _, a := range steps {
				require.NoError(t, actions[a](ctx, e, doc.ID), "%s", a)
			}
			doc, err := e.svc.Transfers.Get(ctx, doc.ID)
			require.NoError(t, err)
			require.Equal(t, status, doc.Status)
			check(t, e, doc, status)
		})
	}

	t.Run(string(transfer.StatusPartialReceived), func(t *testing.T) {
		e := setup(t, tx.ModeOn)
		ctx := context.Background()
		doc := e.create(t, e.head, e.subA, 4, transfer.Permissions{})
		require.NoError(t, actions[transfer.ActionApprove](ctx, e, doc.ID))
		require.NoError(t, actions[transfer.ActionDispatch](ctx, e, doc.ID))
		doc, err := e.svc.Transfers.Get(ctx, doc.ID)
		require.NoError(t, err)
		doc, err = e.svc.Transfers.Receive(ctx, doc.ID, transfer.ReceiveInput{
			Items:   []transfer.ReceiveItem{{LineID: doc.Lines[0].LineID, Quantity: types.NewQuantity(1)}},
			ActorID: "receiver",
		})
		require.NoError(t, err)
		require.Equal(t, transfer.StatusPartialReceived, doc.Status)
		check(t, e, doc, transfer.StatusPartialReceived)
	})
}
