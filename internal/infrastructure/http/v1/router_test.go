package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/app"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/security"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/directory"
	"stockledger/internal/domain/registers/stock"
	"stockledger/pkg/logger"
)

type fixture struct {
	router  *gin.Engine
	jwt     *auth.JWTService
	svc     *app.Services
	head    *directory.Branch
	branchA *directory.Branch
	branchB *directory.Branch
	product *directory.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	storage := app.NewMemoryStorage(tx.ModeOn, time.Hour)
	svc := app.NewServices(storage, app.ServiceOptions{})
	svc.Start(ctx)
	t.Cleanup(svc.Stop)

	f := &fixture{
		svc:     svc,
		jwt:     auth.NewJWTService(auth.DefaultJWTConfig("test-secret", "")),
		head:    directory.NewBranch("HQ", "Head office", directory.RoleHeadOffice),
		branchA: directory.NewBranch("BRA", "Branch A", directory.RoleSubBranch),
		branchB: directory.NewBranch("BRB", "Branch B", directory.RoleSubBranch),
		product: directory.NewProduct("TEA-001", "Black tea", types.MustMoney("2.40")),
	}
	for _, b := range []*directory.Branch{f.head, f.branchA, f.branchB} {
		require.NoError(t, storage.Catalog.SaveBranch(ctx, b))
	}
	require.NoError(t, storage.Catalog.SaveProduct(ctx, f.product))

	_, err := svc.Stock.SetStock(ctx, stock.SetStockInput{
		ProductID: f.product.ID,
		BranchID:  f.branchA.ID,
		Quantity:  types.NewQuantity(5),
		Reason:    "opening stock",
	})
	require.NoError(t, err)

	policy, err := security.NewPolicy(map[string]string{
		security.RuleTransferSubToSub:  "is_admin || 'transfers.sub_to_sub' in permissions",
		security.RuleTransferSubToHead: "is_admin || 'transfers.sub_to_head' in permissions",
	})
	require.NoError(t, err)

	f.router, err = NewRouter(RouterConfig{
		Logger:        logger.NewNop(),
		JWTValidator:  f.jwt,
		Idempotency:   storage.Idempotency,
		Policy:        policy,
		Stock:         svc.Stock,
		Availability:  svc.Availability,
		Transfers:     svc.Transfers,
		Purchases:     svc.Purchases,
		StockRequests: svc.StockRequests,
		Reports:       svc.Reports,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) token(t *testing.T, user appctx.UserContext) string {
	t.Helper()
	if user.UserID == "" {
		user.UserID = "user-1"
	}
	token, _, err := f.jwt.GenerateAccessToken(user)
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) quantity(t *testing.T, branch *directory.Branch) types.Quantity {
	t.Helper()
	e, err := f.svc.Stock.GetEntry(context.Background(), entity.StockKey{ProductID: f.product.ID, BranchID: branch.ID})
	require.NoError(t, err)
	return e.Quantity
}

func decrementBody(f *fixture, qty int) map[string]any {
	return map[string]any{
		"branchId":  f.branchA.ID,
		"items":     []map[string]any{{"productId": f.product.ID, "quantity": qty}},
		"reference": map[string]any{"kind": "order", "id": "order-1"},
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func TestHealthLive(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health/live", "", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/stock/decrement", "", decrementBody(f, 1), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/stock/decrement", "garbage", decrementBody(f, 1), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDecrement_OversellRejected(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, appctx.UserContext{BranchID: f.branchA.ID.String()})

	w := f.do(t, http.MethodPost, "/api/v1/stock/decrement", token, decrementBody(f, 10), nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, "INSUFFICIENT_STOCK", errorCode(t, w))
	assert.Equal(t, types.NewQuantity(5), f.quantity(t, f.branchA))
}

func TestDecrement_ValidationError(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, appctx.UserContext{})

	body := decrementBody(f, 0)
	w := f.do(t, http.MethodPost, "/api/v1/stock/decrement", token, body, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, types.NewQuantity(5), f.quantity(t, f.branchA))
}

func TestDecrement_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, appctx.UserContext{})
	key := map[string]string{"X-Idempotency-Key": "sale-42"}

	first := f.do(t, http.MethodPost, "/api/v1/stock/decrement", token, decrementBody(f, 2), key)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := f.do(t, http.MethodPost, "/api/v1/stock/decrement", token, decrementBody(f, 2), key)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.Equal(t, types.NewQuantity(3), f.quantity(t, f.branchA))

	// Same key, different body.
	mismatch := f.do(t, http.MethodPost, "/api/v1/stock/decrement", token, decrementBody(f, 1), key)
	assert.Equal(t, http.StatusConflict, mismatch.Code)
	assert.Equal(t, types.NewQuantity(3), f.quantity(t, f.branchA))
}

func TestCreateTransfer_SubToSubForbidden(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"senderBranchId":   f.branchA.ID,
		"receiverBranchId": f.branchB.ID,
		"items":            []map[string]any{{"productId": f.product.ID, "quantity": 1}},
	}

	w := f.do(t, http.MethodPost, "/api/v1/transfers", f.token(t, appctx.UserContext{}), body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))

	granted := f.token(t, appctx.UserContext{Permissions: []string{"transfers.sub_to_sub"}})
	w = f.do(t, http.MethodPost, "/api/v1/transfers", granted, body, nil)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestSetStock_RequiresAdjustPermission(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"productId": f.product.ID,
		"branchId":  f.branchA.ID,
		"quantity":  7,
		"reason":    "recount",
	}

	w := f.do(t, http.MethodPost, "/api/v1/stock/set", f.token(t, appctx.UserContext{}), body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := f.token(t, appctx.UserContext{IsAdmin: true})
	w = f.do(t, http.MethodPost, "/api/v1/stock/set", admin, body, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.NewQuantity(7), f.quantity(t, f.branchA))
}

func TestReports_RequirePermission(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/reports/journal", f.token(t, appctx.UserContext{}), nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	reader := f.token(t, appctx.UserContext{Permissions: []string{PermissionReports}})
	w = f.do(t, http.MethodGet, "/api/v1/reports/journal", reader, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}
