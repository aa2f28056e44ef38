package http_api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

// MockPaygate is a mock implementation of models.PaygateI
type MockPaygate struct {
	mock.Mock
}

func (m *MockPaygate) Start(ctx context.Context) { m.Called(ctx) }
func (m *MockPaygate) Stop()                     { m.Called() }

func (m *MockPaygate) Login(ctx context.Context, email, password string) (*models.AuthTokens, error) {
	args := m.Called(email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthTokens), args.Error(1)
}

func (m *MockPaygate) Refresh(ctx context.Context, refreshToken string) (*models.AuthTokens, error) {
	args := m.Called(refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AuthTokens), args.Error(1)
}

func (m *MockPaygate) Authenticate(token string) (string, error) {
	args := m.Called(token)
	return args.String(0), args.Error(1)
}

func (m *MockPaygate) CreateIntent(ctx context.Context, userID string, req *models.CreateIntentRequest) (*models.Checkout, error) {
	args := m.Called(userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Checkout), args.Error(1)
}

func (m *MockPaygate) GetIntent(ctx context.Context, userID, intentID string) (*models.PaymentIntent, error) {
	args := m.Called(userID, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *MockPaygate) RenderIntentQR(ctx context.Context, userID, intentID string) ([]byte, string, error) {
	args := m.Called(userID, intentID)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockPaygate) HandleWebhook(ctx context.Context, payload map[string]interface{}) (*models.WebhookAck, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookAck), args.Error(1)
}

func (m *MockPaygate) WalletSummary(ctx context.Context, userID string) (*models.WalletSummary, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletSummary), args.Error(1)
}

func (m *MockPaygate) CreateTopup(ctx context.Context, userID string, req *models.CreateTopupRequest) (*models.Checkout, error) {
	args := m.Called(userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Checkout), args.Error(1)
}

func (m *MockPaygate) TopupStatus(ctx context.Context, userID, intentID string) (*models.TopupStatus, error) {
	args := m.Called(userID, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TopupStatus), args.Error(1)
}

func (m *MockPaygate) CreateOrder(ctx context.Context, userID string, req *models.CreateOrderRequest) (*models.OrderCheckout, error) {
	args := m.Called(userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderCheckout), args.Error(1)
}

func (m *MockPaygate) GetOrder(ctx context.Context, userID, orderID string) (*models.SymbolOrder, error) {
	args := m.Called(userID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SymbolOrder), args.Error(1)
}

func (m *MockPaygate) PayOrderWithWallet(ctx context.Context, userID, orderID string) (*models.OrderSettlement, error) {
	args := m.Called(userID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderSettlement), args.Error(1)
}

func (m *MockPaygate) PayOrderWithGateway(ctx context.Context, userID, orderID, bankCode string) (*models.OrderCheckout, error) {
	args := m.Called(userID, orderID, bankCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderCheckout), args.Error(1)
}

func (m *MockPaygate) OrderHistory(ctx context.Context, userID string, page, pageSize int) (*models.OrderPage, error) {
	args := m.Called(userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.OrderPage), args.Error(1)
}

func (m *MockPaygate) CheckAccess(ctx context.Context, userID string, symbolID int64) (*models.AccessCheck, error) {
	args := m.Called(userID, symbolID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AccessCheck), args.Error(1)
}

func (m *MockPaygate) ListLicenses(ctx context.Context, userID string) ([]*models.SymbolLicense, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SymbolLicense), args.Error(1)
}

func (m *MockPaygate) Subscribe(ctx context.Context, userID string, req *models.SubscribeRequest) (*models.Subscription, error) {
	args := m.Called(userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockPaygate) Unsubscribe(ctx context.Context, userID, subscriptionID string) (*models.Subscription, error) {
	args := m.Called(userID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockPaygate) ListSubscriptions(ctx context.Context, userID string) ([]*models.Subscription, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

var _ models.PaygateI = (*MockPaygate)(nil)

type memoryRecorder struct {
	mu      sync.Mutex
	entries []*models.RequestLog
}

func (r *memoryRecorder) Record(entry *models.RequestLog) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return true
}

const token = "good-token"

func setupServer(opts Options) (*MockPaygate, http.Handler) {
	gin.SetMode(gin.TestMode)
	pg := new(MockPaygate)
	pg.On("Authenticate", token).Return("user-123", nil).Maybe()
	pg.On("Authenticate", mock.Anything).Return("", xerrors.Unauthorized("bad token")).Maybe()
	return pg, NewHTTPServer(pg, opts, logger.NewNop()).Handler()
}

func do(h http.Handler, method, target string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	_, h := setupServer(Options{})

	w := do(h, http.MethodGet, "/sepay/wallet", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodGet, "/sepay/wallet", nil, map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decode(t, w)["code"])
}

func TestLogin(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("Login", "an@example.com", "secret").Return(&models.AuthTokens{UserID: "user-123", AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}, nil)
	pg.On("Login", "an@example.com", "wrong").Return(nil, xerrors.Unauthorized("invalid email or password"))

	w := do(h, http.MethodPost, "/auth/login", gin.H{"email": "an@example.com", "password": "secret"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a", decode(t, w)["access_token"])

	w = do(h, http.MethodPost, "/auth/login", gin.H{"email": "an@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodPost, "/auth/login", gin.H{"email": "an@example.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_input", decode(t, w)["code"])
}

func TestCreateIntentFlattensCheckout(t *testing.T) {
	pg, h := setupServer(Options{})
	expires := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	checkout := &models.Checkout{
		Intent: &models.PaymentIntent{
			ID: "intent-1", OrderCode: "TOPUP1709283600ABCD1234", Amount: decimal.NewFromInt(100000),
			Currency: models.CurrencyVND, Status: models.IntentProcessing, ExpiresAt: expires,
		},
		Attempt: &models.PaymentAttempt{
			ID: "attempt-1", BankCode: "MBBank", AccountNumber: "0123456789",
			TransferContent: "TOPUP1709283600ABCD1234", QRImageURL: "https://qr.sepay.vn/img?acc=0123456789",
		},
	}
	pg.On("CreateIntent", "user-123", mock.MatchedBy(func(req *models.CreateIntentRequest) bool {
		return req.Purpose == models.PurposeWalletTopup && req.Amount.Equal(decimal.NewFromInt(100000))
	})).Return(checkout, nil)

	w := do(h, http.MethodPost, "/sepay/create-intent", gin.H{"purpose": "wallet_topup", "amount": 100000}, authed())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "intent-1", body["intent_id"])
	assert.Equal(t, "TOPUP1709283600ABCD1234", body["order_code"])
	assert.Equal(t, "TOPUP1709283600ABCD1234", body["transfer_content"])
	assert.Equal(t, "https://qr.sepay.vn/img?acc=0123456789", body["qr_code_url"])
	assert.Equal(t, "processing", body["status"])
	pg.AssertExpectations(t)
}

func TestInsufficientFundsBody(t *testing.T) {
	pg, h := setupServer(Options{})
	err := xerrors.NewInsufficientFunds(decimal.NewFromInt(30000), decimal.NewFromInt(10000)).ForOrder("order-9")
	pg.On("CreateOrder", "user-123", mock.Anything).Return(nil, err)

	w := do(h, http.MethodPost, "/sepay/symbol/order/create", gin.H{
		"items":          []gin.H{{"symbol_id": 7, "price": 30000, "license_days": 30}},
		"payment_method": "wallet",
	}, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "insufficient_funds", body["code"])
	assert.Equal(t, "30000.00", body["required_amount"])
	assert.Equal(t, "10000.00", body["current_balance"])
	assert.Equal(t, "20000.00", body["insufficient_amount"])
	assert.Equal(t, "order-9", body["order_id"])
	assert.Equal(t, "/sepay/wallet/topup/create", body["topup_endpoint"])
}

func TestErrorKindsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{xerrors.NotFound("symbol order"), http.StatusNotFound},
		{&xerrors.InvalidTransitionError{Entity: "order", From: "paid", To: "paid"}, http.StatusBadRequest},
		{xerrors.New(xerrors.KindUpstreamUnavailable, "gateway down"), http.StatusBadGateway},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		pg, h := setupServer(Options{})
		pg.On("PayOrderWithWallet", "user-123", "order-1").Return(nil, tc.err)
		w := do(h, http.MethodPost, "/sepay/symbol/order/order-1/pay-wallet", nil, authed())
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
	}

	pg, h := setupServer(Options{})
	pg.On("PayOrderWithWallet", "user-123", "order-1").Return(nil, errors.New("pq: secret detail"))
	w := do(h, http.MethodPost, "/sepay/symbol/order/order-1/pay-wallet", nil, authed())
	assert.Equal(t, "Internal server error", decode(t, w)["error"])

	pg, h = setupServer(Options{})
	pg.On("PayOrderWithWallet", "user-123", "order-1").Return(nil, &xerrors.InvalidTransitionError{Entity: "order", From: "paid", To: "paid"})
	w = do(h, http.MethodPost, "/sepay/symbol/order/order-1/pay-wallet", nil, authed())
	assert.Equal(t, "paid", decode(t, w)["current_status"])
}

func TestCallbackRequiresAPIKey(t *testing.T) {
	pg, h := setupServer(Options{WebhookAPIKey: "k3y"})
	ack := &models.WebhookAck{Status: models.AckProcessed, GatewayTxID: 9001}
	pg.On("HandleWebhook", mock.MatchedBy(func(p map[string]interface{}) bool {
		return p["id"] == json.Number("9001") && p["content"] == "TOPUP1709283600ABCD1234"
	})).Return(ack, nil)

	payload := gin.H{"id": 9001, "content": "TOPUP1709283600ABCD1234", "transferType": "in", "transferAmount": 100000}
	w := do(h, http.MethodPost, "/sepay/callback", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodPost, "/sepay/callback", payload, map[string]string{"Authorization": "Apikey wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodPost, "/sepay/callback", payload, map[string]string{"Authorization": "Apikey k3y"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "processed", body["event"].(map[string]interface{})["status"])
	pg.AssertExpectations(t)
}

func TestCallbackFlattensPartialTopup(t *testing.T) {
	pg, h := setupServer(Options{})
	remaining := decimal.NewFromInt(20000)
	balance := decimal.NewFromInt(30000)
	pg.On("HandleWebhook", mock.Anything).Return(&models.WebhookAck{
		Status:      models.AckProcessed,
		EventID:     "evt-1",
		GatewayTxID: 1003,
		Result: &models.ReconcileResult{
			Outcome:       models.OutcomePartial,
			GatewayTxID:   1003,
			IntentID:      "intent-3",
			OrderCode:     "TOPUP1709283600ABCD1234",
			IntentStatus:  models.IntentProcessing,
			Purpose:       models.PurposeWalletTopup,
			Received:      decimal.NewFromInt(30000),
			Expected:      decimal.NewFromInt(50000),
			Remaining:     &remaining,
			WalletBalance: &balance,
		},
	}, nil)

	w := do(h, http.MethodPost, "/sepay/callback", gin.H{"id": 1003, "transferAmount": 30000}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Partial payment received", body["message"])
	assert.Equal(t, "intent-3", body["intent_id"])
	assert.Equal(t, "TOPUP1709283600ABCD1234", body["order_code"])
	assert.Equal(t, "processing", body["status"])
	assert.Equal(t, "20000", body["remaining"])
	assert.Equal(t, "30000", body["wallet_balance"])
	assert.Equal(t, "processed", body["event"].(map[string]interface{})["status"])
}

func TestCallbackReportsReplay(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("HandleWebhook", mock.Anything).Return(&models.WebhookAck{Status: models.AckAlreadyProcessed, GatewayTxID: 1001}, nil)

	w := do(h, http.MethodPost, "/sepay/callback", gin.H{"id": 1001}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Transaction already processed", body["message"])
	assert.NotContains(t, body, "intent_id")
	assert.NotContains(t, body, "status")
}

func TestCallbackAcknowledgesFailedProcessing(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("HandleWebhook", mock.Anything).Return(&models.WebhookAck{Status: models.AckFailed, GatewayTxID: 1, Error: "internal"}, nil)

	w := do(h, http.MethodPost, "/sepay/callback", gin.H{"id": 1}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["success"])
}

func TestCallbackFormAndQuery(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("HandleWebhook", mock.MatchedBy(func(p map[string]interface{}) bool {
		return p["id"] == "77" && p["transferAmount"] == "50000"
	})).Return(&models.WebhookAck{Status: models.AckProcessed, GatewayTxID: 77}, nil).Twice()

	form := url.Values{"id": {"77"}, "transferAmount": {"50000"}}
	req := httptest.NewRequest(http.MethodPost, "/sepay/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodGet, "/sepay/callback?"+form.Encode(), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	pg.AssertExpectations(t)
}

func TestCallbackRejectsMalformed(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("HandleWebhook", mock.Anything).Return(nil, xerrors.New(xerrors.KindMalformedEvent, "missing id"))

	w := do(h, http.MethodGet, "/sepay/callback", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "malformed_event", decode(t, w)["code"])

	w = do(h, http.MethodPost, "/sepay/callback", gin.H{"content": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckAccess(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("CheckAccess", "user-123", int64(7)).Return(&models.AccessCheck{SymbolID: 7, HasAccess: true}, nil)

	w := do(h, http.MethodGet, "/sepay/symbol/7/access", nil, authed())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["has_access"])

	w = do(h, http.MethodGet, "/sepay/symbol/abc/access", nil, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderHistoryPaging(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("OrderHistory", "user-123", 2, 5).Return(&models.OrderPage{Items: []*models.SymbolOrder{}, Page: 2, PageSize: 5}, nil)

	w := do(h, http.MethodGet, "/sepay/symbol/orders/history?page=2&page_size=5", nil, authed())
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodGet, "/sepay/symbol/orders/history?page=x", nil, authed())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	pg.AssertExpectations(t)
}

func TestPayWithGatewayWithoutBody(t *testing.T) {
	pg, h := setupServer(Options{})
	out := &models.OrderCheckout{
		Order: &models.SymbolOrder{ID: "order-1", Status: models.OrderPendingPayment},
		Checkout: &models.Checkout{
			Intent:  &models.PaymentIntent{ID: "intent-2", OrderCode: "PAY1709283600ABCD1234"},
			Attempt: &models.PaymentAttempt{ID: "attempt-2", TransferContent: "PAY1709283600ABCD1234"},
		},
	}
	pg.On("PayOrderWithGateway", "user-123", "order-1", "").Return(out, nil)

	w := do(h, http.MethodPost, "/sepay/symbol/order/order-1/pay-sepay", nil, authed())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	checkout := decode(t, w)["checkout"].(map[string]interface{})
	assert.Equal(t, "intent-2", checkout["intent_id"])
}

func TestIntentQRStreamsImage(t *testing.T) {
	pg, h := setupServer(Options{})
	pg.On("RenderIntentQR", "user-123", "intent-1").Return([]byte("png-bytes"), "image/png", nil)

	w := do(h, http.MethodGet, "/sepay/intent/intent-1/qr", nil, authed())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "png-bytes", w.Body.String())
}

func TestRequestsAreRecorded(t *testing.T) {
	rec := &memoryRecorder{}
	pg, h := setupServer(Options{Requests: rec})
	pg.On("ListLicenses", "user-123").Return([]*models.SymbolLicense{}, nil)

	w := do(h, http.MethodGet, "/sepay/symbol/licenses", nil, authed())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	require.Len(t, rec.entries, 1)
	entry := rec.entries[0]
	assert.Equal(t, "/sepay/symbol/licenses", entry.Path)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, "user-123", entry.UserID)
	assert.Equal(t, w.Header().Get("X-Request-ID"), entry.RequestID)
}
