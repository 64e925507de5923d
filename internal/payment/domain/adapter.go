package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutRequest is what the service hands a gateway. Amount is always the
// stored billing sum.
type CheckoutRequest struct {
	Reference     string
	BillingID     string
	ReceiptNumber string
	Description   string
	CustomerName  string
	Amount        decimal.Decimal
	Currency      string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSessionResult struct {
	ProviderSessionID string
	RedirectURL       string
}

type SessionState struct {
	Paid   bool
	Status string
}

// Gateway is a hosted-checkout payment provider.
type Gateway interface {
	Provider() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSessionResult, error)
	FetchSessionStatus(ctx context.Context, providerSessionID string) (SessionState, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type GatewayConfig struct {
	SecretKey     string
	WebhookSecret string
	APIBase       string
	Production    bool
	Timeout       time.Duration
}

type GatewayFactory interface {
	Provider() string
	NewGateway(cfg GatewayConfig) (Gateway, error)
}
