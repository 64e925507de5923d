// Package paymenttest holds gateway and billing doubles for payment tests.
package paymenttest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/dormhub/internal/billing/domain"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	"github.com/stretchr/testify/mock"
)

type MockGateway struct {
	mock.Mock
	Name string
}

func (m *MockGateway) Provider() string { return m.Name }

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSessionResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(paymentdomain.CheckoutSessionResult), args.Error(1)
}

func (m *MockGateway) FetchSessionStatus(ctx context.Context, providerSessionID string) (paymentdomain.SessionState, error) {
	args := m.Called(ctx, providerSessionID)
	return args.Get(0).(paymentdomain.SessionState), args.Error(1)
}

func (m *MockGateway) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	args := m.Called(ctx, payload, headers)
	return args.Error(0)
}

func (m *MockGateway) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	args := m.Called(ctx, payload)
	event, _ := args.Get(0).(*paymentdomain.PaymentEvent)
	return event, args.Error(1)
}

// FakeBilling keeps billing records in memory and applies the same
// first-writer-wins paid transition as the real service.
type FakeBilling struct {
	billingdomain.Service

	mu      sync.Mutex
	records map[snowflake.ID]*billingdomain.BillingRecord
	calls   []billingdomain.MarkPaidRequest
	Today   time.Time
}

func NewFakeBilling(today time.Time) *FakeBilling {
	return &FakeBilling{records: map[snowflake.ID]*billingdomain.BillingRecord{}, Today: today}
}

// Add stores a pending record for sum and returns it.
func (f *FakeBilling) Add(id snowflake.ID, sum string) billingdomain.BillingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := &billingdomain.BillingRecord{
		ID:            id,
		ReceiptNumber: "RCP-202610-000001",
		TenantName:    "Ana Lee",
		Sum:           decimal.RequireFromString(sum),
		Currency:      "THB",
		Status:        billingdomain.StatusPending,
		DueDate:       f.Today.AddDate(0, 0, 7),
	}
	f.records[id] = record
	return *record
}

func (f *FakeBilling) Get(id snowflake.ID) billingdomain.BillingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

func (f *FakeBilling) GetByID(ctx context.Context, rawID string) (billingdomain.BillingRecord, error) {
	id, err := snowflake.ParseString(rawID)
	if err != nil {
		return billingdomain.BillingRecord{}, billingdomain.ErrInvalidID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[id]
	if !ok {
		return billingdomain.BillingRecord{}, billingdomain.ErrNotFound
	}
	return *record, nil
}

func (f *FakeBilling) MarkPaidCalls() []billingdomain.MarkPaidRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]billingdomain.MarkPaidRequest(nil), f.calls...)
}

func (f *FakeBilling) MarkPaidCount() int {
	return len(f.MarkPaidCalls())
}

func (f *FakeBilling) MarkPaid(ctx context.Context, req billingdomain.MarkPaidRequest) (billingdomain.MarkPaidResult, error) {
	id, err := snowflake.ParseString(req.BillingID)
	if err != nil {
		return billingdomain.MarkPaidResult{}, billingdomain.ErrInvalidID
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	record, ok := f.records[id]
	if !ok {
		return billingdomain.MarkPaidResult{}, billingdomain.ErrNotFound
	}
	if record.Status == billingdomain.StatusPaid {
		return billingdomain.MarkPaidResult{Billing: *record}, nil
	}
	paidDate := f.Today
	record.Status = billingdomain.StatusPaid
	record.PaidDate = &paidDate
	record.PaymentMethod = req.PaymentMethod
	return billingdomain.MarkPaidResult{Billing: *record, Transitioned: true}, nil
}
