package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_123","type":"checkout.session.completed","data":{"object":{}}}`)
	timestamp := time.Now().Unix()

	header := buildStripeSignatureHeader(secret, payload, timestamp)
	reqHeader := http.Header{}
	reqHeader.Set("Stripe-Signature", header)

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.Verify(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader("wrong", payload, timestamp))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature error, got %v", err)
	}

	stale := time.Now().Add(-365 * 24 * time.Hour).Unix()
	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, stale))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected stale signature to be rejected, got %v", err)
	}

	reqHeader.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, time.Now().Add(-10*time.Minute).Unix()))
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected signature outside tolerance to be rejected, got %v", err)
	}

	reqHeader.Del("Stripe-Signature")
	if err := adapter.Verify(context.Background(), payload, reqHeader); !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected missing signature error, got %v", err)
	}

	unsigned := &Adapter{}
	if err := unsigned.Verify(context.Background(), payload, http.Header{}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config without webhook secret, got %v", err)
	}
}

func TestParsePaymentEvent(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	billingID := node.Generate()
	created := time.Date(2026, time.October, 15, 10, 0, 0, 0, time.UTC).Unix()

	session := func(paymentStatus string, metadata map[string]any) map[string]any {
		return map[string]any{
			"id":                  "cs_test_1",
			"status":              "complete",
			"payment_status":      paymentStatus,
			"amount_total":        377600,
			"currency":            "thb",
			"created":             created,
			"client_reference_id": billingID.String(),
			"metadata":            metadata,
		}
	}

	tests := []struct {
		name     string
		event    map[string]any
		wantType string
		wantErr  error
	}{{
		name: "checkout.session.completed",
		event: map[string]any{
			"id": "evt_completed", "type": "checkout.session.completed", "created": created,
			"data": map[string]any{"object": session("paid", map[string]any{"billing_id": billingID.String()})},
		},
		wantType: paymentdomain.EventTypePaymentSucceeded,
	}, {
		name: "async payment succeeded falls back to client reference",
		event: map[string]any{
			"id": "evt_async", "type": "checkout.session.async_payment_succeeded", "created": created,
			"data": map[string]any{"object": session("paid", nil)},
		},
		wantType: paymentdomain.EventTypePaymentSucceeded,
	}, {
		name: "checkout.session.expired",
		event: map[string]any{
			"id": "evt_expired", "type": "checkout.session.expired", "created": created,
			"data": map[string]any{"object": session("unpaid", nil)},
		},
		wantType: paymentdomain.EventTypeSessionExpired,
	}, {
		name: "completed but unpaid",
		event: map[string]any{
			"id": "evt_unpaid", "type": "checkout.session.completed", "created": created,
			"data": map[string]any{"object": session("unpaid", nil)},
		},
		wantErr: paymentdomain.ErrEventIgnored,
	}, {
		name: "unrelated event",
		event: map[string]any{
			"id": "evt_charge", "type": "charge.refunded", "created": created,
			"data": map[string]any{"object": map[string]any{"id": "ch_1"}},
		},
		wantErr: paymentdomain.ErrEventIgnored,
	}, {
		name:    "missing id",
		event:   map[string]any{"type": "checkout.session.completed"},
		wantErr: paymentdomain.ErrInvalidEvent,
	}}

	adapter := &Adapter{webhookSecret: "whsec_test"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("marshal payload: %v", err)
			}
			event, err := adapter.Parse(context.Background(), payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if event.Type != tt.wantType {
				t.Fatalf("expected type %s, got %s", tt.wantType, event.Type)
			}
			if !event.Amount.Equal(decimal.NewFromInt(3776)) {
				t.Fatalf("expected amount 3776, got %s", event.Amount)
			}
			if event.BillingID != billingID {
				t.Fatalf("expected billing %s, got %s", billingID, event.BillingID)
			}
			if event.ProviderSessionID != "cs_test_1" {
				t.Fatalf("expected session cs_test_1, got %s", event.ProviderSessionID)
			}
			if event.Currency != "THB" {
				t.Fatalf("expected currency THB, got %s", event.Currency)
			}
		})
	}

	if _, err := adapter.Parse(context.Background(), []byte("{")); !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected invalid payload, got %v", err)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotForm map[string]string
	var gotIdempotency, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for key := range r.PostForm {
			gotForm[key] = r.PostForm.Get(key)
		}
		gotIdempotency = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"id":"cs_test_1","url":"https://checkout.stripe.com/c/pay/cs_test_1","status":"open","payment_status":"unpaid"}`))
	}))
	defer server.Close()

	gateway, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{SecretKey: "sk_test", APIBase: server.URL})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	result, err := gateway.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		Reference:     "1001",
		BillingID:     "2002",
		ReceiptNumber: "RCP-202610-000001",
		Amount:        decimal.RequireFromString("3776.50"),
		Currency:      "THB",
		SuccessURL:    "https://dorm.example/return?success=true",
		CancelURL:     "https://dorm.example/return?canceled=true",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if result.ProviderSessionID != "cs_test_1" || result.RedirectURL == "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if gotAuth != "Bearer sk_test" {
		t.Fatalf("unexpected authorization %q", gotAuth)
	}
	if gotIdempotency != "checkout:1001" {
		t.Fatalf("unexpected idempotency key %q", gotIdempotency)
	}
	want := map[string]string{
		"line_items[0][price_data][unit_amount]":        "377650",
		"line_items[0][price_data][currency]":           "thb",
		"line_items[0][price_data][product_data][name]": "Room billing RCP-202610-000001",
		"metadata[billing_id]":                          "2002",
		"client_reference_id":                           "2002",
		"mode":                                          "payment",
	}
	for key, value := range want {
		if gotForm[key] != value {
			t.Fatalf("form %s: expected %q, got %q", key, value, gotForm[key])
		}
	}

	if _, err := gateway.CreateCheckoutSession(context.Background(), paymentdomain.CheckoutRequest{
		Reference: "1002",
		Amount:    decimal.Zero,
		Currency:  "THB",
	}); !errors.Is(err, paymentdomain.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestFetchSessionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/checkout/sessions/cs_paid":
			_, _ = w.Write([]byte(`{"id":"cs_paid","status":"complete","payment_status":"paid"}`))
		case "/v1/checkout/sessions/cs_open":
			_, _ = w.Write([]byte(`{"id":"cs_open","status":"open","payment_status":"unpaid"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"No such checkout.session"}}`))
		}
	}))
	defer server.Close()

	gateway, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{SecretKey: "sk_test", APIBase: server.URL + "/"})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	ctx := context.Background()

	state, err := gateway.FetchSessionStatus(ctx, "cs_paid")
	if err != nil || !state.Paid {
		t.Fatalf("expected paid session, got %+v err=%v", state, err)
	}
	state, err = gateway.FetchSessionStatus(ctx, "cs_open")
	if err != nil || state.Paid || state.Status != "open" {
		t.Fatalf("expected open session, got %+v err=%v", state, err)
	}
	if _, err := gateway.FetchSessionStatus(ctx, "cs_missing"); err == nil || err.Error() != "No such checkout.session" {
		t.Fatalf("expected stripe error message, got %v", err)
	}
}

func TestNewGatewayRequiresSecret(t *testing.T) {
	if _, err := NewFactory().NewGateway(paymentdomain.GatewayConfig{}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	if got := minorUnits(decimal.RequireFromString("3776"), "THB"); got != 377600 {
		t.Fatalf("expected 377600, got %d", got)
	}
	if got := minorUnits(decimal.RequireFromString("1500"), "JPY"); got != 1500 {
		t.Fatalf("expected 1500, got %d", got)
	}
	if got := fromMinorUnits(377650, "THB"); !got.Equal(decimal.RequireFromString("3776.5")) {
		t.Fatalf("expected 3776.5, got %s", got)
	}
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}
