package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/dormhub/internal/audit/domain"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	"github.com/smallbiznis/dormhub/internal/clock"
	"github.com/smallbiznis/dormhub/internal/config"
	"github.com/smallbiznis/dormhub/internal/observability"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	"github.com/smallbiznis/dormhub/internal/providers/pdf"
	"github.com/smallbiznis/dormhub/internal/ratelimit"
	roomdomain "github.com/smallbiznis/dormhub/internal/room/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBillingService struct {
	billingdomain.Service
	runReq  billingdomain.RunBillingRequest
	runErr  error
	records map[string]billingdomain.BillingRecord
}

func (f *fakeBillingService) RunBilling(ctx context.Context, req billingdomain.RunBillingRequest) (billingdomain.RunBillingResult, error) {
	f.runReq = req
	if f.runErr != nil {
		return billingdomain.RunBillingResult{}, f.runErr
	}
	return billingdomain.RunBillingResult{
		Billing:  billingdomain.BillingRecord{ReceiptNumber: "RCP-202610-000001", Sum: decimal.NewFromInt(3776)},
		Warnings: []string{},
	}, nil
}

func (f *fakeBillingService) GetByID(ctx context.Context, id string) (billingdomain.BillingRecord, error) {
	record, ok := f.records[id]
	if !ok {
		return billingdomain.BillingRecord{}, billingdomain.ErrNotFound
	}
	return record, nil
}

type fakeRoomService struct {
	roomdomain.Service
}

func (fakeRoomService) GetByID(ctx context.Context, id string) (roomdomain.Room, error) {
	return roomdomain.Room{Number: "A101"}, nil
}

type fakeAggregator struct {
	occupancydomain.Aggregator
	err error
}

func (f fakeAggregator) Snapshots(ctx context.Context) ([]occupancydomain.RoomSnapshot, error) {
	return nil, f.err
}

type fakePaymentService struct {
	checkoutReq paymentdomain.StartCheckoutRequest
	resolve     paymentdomain.ResolveResult
	resolveErr  error
}

func (f *fakePaymentService) StartCheckout(ctx context.Context, req paymentdomain.StartCheckoutRequest) (paymentdomain.CheckoutResponse, error) {
	f.checkoutReq = req
	if req.BillingID == "" {
		return paymentdomain.CheckoutResponse{}, paymentdomain.ErrInvalidBillingID
	}
	return paymentdomain.CheckoutResponse{
		ID:       "cs_test_1",
		URL:      "https://checkout.stripe.com/c/pay/cs_test_1",
		Provider: "stripe",
		Amount:   decimal.NewFromInt(3776),
		Currency: "THB",
	}, nil
}

func (f *fakePaymentService) ResolveRedirect(ctx context.Context, outcome paymentdomain.RedirectOutcome) (paymentdomain.ResolveResult, error) {
	return f.resolve, f.resolveErr
}

type fakeWebhookService struct {
	err error
}

func (f fakeWebhookService) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (paymentdomain.WebhookResult, error) {
	if f.err != nil {
		return paymentdomain.WebhookResult{}, f.err
	}
	return paymentdomain.WebhookResult{Provider: provider, EventID: "evt_1", BillingID: "42"}, nil
}

type fakeAuditService struct {
	auditdomain.Service
	got auditdomain.ListAuditLogRequest
}

func (f *fakeAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.got = req
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{{Action: auditdomain.ActionBillingPaid}}}, nil
}

type testDeps struct {
	billing    *fakeBillingService
	payment    *fakePaymentService
	webhook    fakeWebhookService
	aggregator fakeAggregator
	limiter    *ratelimit.CheckoutLimiter
	audit      *fakeAuditService
}

func newTestServer(t *testing.T, deps testDeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if deps.billing == nil {
		deps.billing = &fakeBillingService{}
	}
	if deps.payment == nil {
		deps.payment = &fakePaymentService{}
	}
	if deps.audit == nil {
		deps.audit = &fakeAuditService{}
	}
	engine := NewEngine(observability.Config{}, nil)
	NewServer(ServerParams{
		Gin:             engine,
		Cfg:             config.Config{PublicURL: "https://dorm.example"},
		Log:             zap.NewNop(),
		RoomSvc:         fakeRoomService{},
		Aggregator:      deps.aggregator,
		BillingSvc:      deps.billing,
		PaymentSvc:      deps.payment,
		WebhookSvc:      deps.webhook,
		AuditSvc:        deps.audit,
		PDF:             pdf.New(),
		CheckoutLimiter: deps.limiter,
	})
	return engine
}

func doJSON(engine *gin.Engine, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestRunBilling(t *testing.T) {
	billing := &fakeBillingService{}
	engine := newTestServer(t, testDeps{billing: billing})

	rec := doJSON(engine, http.MethodPost, "/admin/rooms/1001/billings",
		`{"billing_month":"2026-10","water_units":2,"current_meter_reading":"150.5"}`,
		map[string]string{headerIdempotencyKey: "run-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "1001", billing.runReq.RoomID)
	assert.Equal(t, "2026-10", billing.runReq.Period)
	assert.Equal(t, "2", billing.runReq.WaterUnits)
	assert.Equal(t, "150.5", billing.runReq.CurrentMeterReading)
	assert.Empty(t, billing.runReq.PreviousMeterReading)
	assert.Equal(t, "run-1", billing.runReq.IdempotencyKey)

	rec = doJSON(engine, http.MethodPost, "/admin/rooms/1001/billings", `{"water_units":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantCode   string
	}{
		{"validation", billingdomain.ErrInvalidPeriod, http.StatusBadRequest, "validation_error", "invalid_billing_month"},
		{"no occupants", billingdomain.ErrNoOccupants, http.StatusBadRequest, "validation_error", "billing_requires_occupant"},
		{"not found", billingdomain.ErrNotFound, http.StatusNotFound, "not_found", ""},
		{"duplicate", fmt.Errorf("room 1001: %w", billingdomain.ErrDuplicateBilling), http.StatusConflict, "conflict", ""},
		{"idempotency", billingdomain.ErrIdempotencyConflict, http.StatusConflict, "conflict", ""},
		{"gateway", fmt.Errorf("%w: %w", paymentdomain.ErrGatewayUnavailable, context.DeadlineExceeded), http.StatusBadGateway, "payment_gateway_error", ""},
		{"aggregation", fmt.Errorf("%w: %w", occupancydomain.ErrAggregationFailed, context.DeadlineExceeded), http.StatusServiceUnavailable, "retryable", ""},
		{"store read", fmt.Errorf("%w: find tenant: %w", billingdomain.ErrStoreUnavailable, context.DeadlineExceeded), http.StatusServiceUnavailable, "retryable", ""},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestServer(t, testDeps{billing: &fakeBillingService{runErr: tt.err}})
			rec := doJSON(engine, http.MethodPost, "/admin/rooms/1001/billings", `{}`, nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, tt.wantType, payload.Type)
			if tt.wantCode != "" {
				require.Len(t, payload.Errors, 1)
				assert.Equal(t, tt.wantCode, payload.Errors[0].Code)
			}
		})
	}

	status, payload := mapError(billingdomain.ErrInvalidPeriod)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "billing_month", payload.Errors[0].Field)
}

func TestRoomSnapshotsRetryable(t *testing.T) {
	engine := newTestServer(t, testDeps{aggregator: fakeAggregator{err: occupancydomain.ErrAggregationFailed}})
	rec := doJSON(engine, http.MethodGet, "/admin/room-snapshots", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "retryable", decodeError(t, rec).Type)
}

func TestCreateCheckoutSession(t *testing.T) {
	payment := &fakePaymentService{}
	engine := newTestServer(t, testDeps{payment: payment})

	rec := doJSON(engine, http.MethodPost, "/create-checkout-session",
		`{"billingId":"42","amount":3776,"description":"October rent"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "42", payment.checkoutReq.BillingID)
	assert.Equal(t, "3776", payment.checkoutReq.Amount)
	assert.Equal(t, "October rent", payment.checkoutReq.Description)

	var resp paymentdomain.CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cs_test_1", resp.ID)
	assert.NotEmpty(t, resp.URL)

	rec = doJSON(engine, http.MethodPost, "/api/billings/43/checkout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "43", payment.checkoutReq.BillingID)

	rec = doJSON(engine, http.MethodPost, "/create-checkout-session", `{"amount":"1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutRateLimit(t *testing.T) {
	limiter := ratelimit.NewCheckoutLimiter(
		config.Config{Payment: config.PaymentConfig{CheckoutRateLimit: 1}},
		nil,
		clock.NewFakeClock(time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC)),
		zap.NewNop(),
	)
	engine := newTestServer(t, testDeps{limiter: limiter})

	rec := doJSON(engine, http.MethodPost, "/create-checkout-session", `{"billingId":"42"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(engine, http.MethodPost, "/create-checkout-session", `{"billingId":"42"}`, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retryAfter, 1)
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
}

func TestPaymentReturnRedirects(t *testing.T) {
	t.Run("resolved", func(t *testing.T) {
		payment := &fakePaymentService{resolve: paymentdomain.ResolveResult{
			BillingID:  "42",
			Resolution: paymentdomain.ResolutionPaid,
			Status:     "paid",
		}}
		engine := newTestServer(t, testDeps{payment: payment})
		rec := doJSON(engine, http.MethodGet, "/payments/return?success=true&billing_id=42&session_id=cs_test_1", "", nil)
		require.Equal(t, http.StatusFound, rec.Code)

		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "dorm.example", location.Host)
		assert.Equal(t, "/billings", location.Path)
		assert.Equal(t, "paid", location.Query().Get("payment"))
		assert.Equal(t, "42", location.Query().Get("billing_id"))
	})

	t.Run("failure still redirects", func(t *testing.T) {
		payment := &fakePaymentService{resolveErr: paymentdomain.ErrGatewayUnavailable}
		engine := newTestServer(t, testDeps{payment: payment})
		rec := doJSON(engine, http.MethodGet, "/payments/return?success=true&billing_id=42", "", nil)
		require.Equal(t, http.StatusFound, rec.Code)

		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "error", location.Query().Get("payment"))
		assert.Equal(t, "payment_gateway_error", location.Query().Get("error"))
	})
}

func TestPaymentWebhook(t *testing.T) {
	engine := newTestServer(t, testDeps{})
	rec := doJSON(engine, http.MethodPost, "/api/payments/webhooks/stripe", `{"id":"evt_1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"billing_id":"42"`)

	engine = newTestServer(t, testDeps{webhook: fakeWebhookService{err: paymentdomain.ErrInvalidSignature}})
	rec = doJSON(engine, http.MethodPost, "/api/payments/webhooks/stripe", `{"id":"evt_1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", decodeError(t, rec).Type)

	engine = newTestServer(t, testDeps{webhook: fakeWebhookService{err: paymentdomain.ErrInvalidPayload}})
	rec = doJSON(engine, http.MethodPost, "/api/payments/webhooks/stripe", `{`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Type)

	engine = newTestServer(t, testDeps{webhook: fakeWebhookService{err: paymentdomain.ErrProviderNotFound}})
	rec = doJSON(engine, http.MethodPost, "/api/payments/webhooks/adyen", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadReceipt(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	id := node.Generate()
	billing := &fakeBillingService{records: map[string]billingdomain.BillingRecord{
		id.String(): {
			ID:            id,
			RoomID:        node.Generate(),
			BillingMonth:  time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC),
			RoomRent:      decimal.NewFromInt(3500),
			Sum:           decimal.NewFromInt(3776),
			Currency:      "THB",
			DueDate:       time.Date(2026, time.October, 22, 0, 0, 0, 0, time.UTC),
			Status:        billingdomain.StatusPending,
			ReceiptNumber: "RCP-202610-000001",
			TenantName:    "Ana Lee",
		},
	}}
	engine := newTestServer(t, testDeps{billing: billing})

	rec := doJSON(engine, http.MethodGet, "/admin/billings/"+id.String()+"/receipt.pdf", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "rcp-202610-000001-ana-lee.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = doJSON(engine, http.MethodGet, "/admin/billings/999/receipt.pdf", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFlexibleString(t *testing.T) {
	var body struct {
		A flexibleString `json:"a"`
		B flexibleString `json:"b"`
		C flexibleString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12.50,"b":" 7 ","c":null}`), &body))
	assert.Equal(t, flexibleString("12.50"), body.A)
	assert.Equal(t, flexibleString("7"), body.B)
	assert.Equal(t, flexibleString(""), body.C)
}

func TestListAuditLogs(t *testing.T) {
	audit := &fakeAuditService{}
	engine := newTestServer(t, testDeps{audit: audit})

	rec := doJSON(engine, http.MethodGet, "/admin/audit-logs?action=billing.paid&target_id=42&page_size=10&start_at=2026-10-01T00:00:00Z", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "billing.paid", audit.got.Action)
	assert.Equal(t, "42", audit.got.TargetID)
	assert.Equal(t, 10, audit.got.PageSize)
	require.NotNil(t, audit.got.StartAt)
	assert.Equal(t, 2026, audit.got.StartAt.Year())

	rec = doJSON(engine, http.MethodGet, "/admin/audit-logs?start_at=2026-10-02T00:00:00Z&end_at=2026-10-01T00:00:00Z", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "time_range", decodeError(t, rec).Errors[0].Field)
}
