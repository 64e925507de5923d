package domain

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

type StartCheckoutRequest struct {
	BillingID   string
	Amount      string
	Description string
	Provider    string
}

type CheckoutResponse struct {
	ID         string          `json:"id"`
	URL        string          `json:"url"`
	CheckoutID string          `json:"checkout_id"`
	Provider   string          `json:"provider"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

type RedirectOutcome struct {
	Success   bool
	Canceled  bool
	BillingID string
	SessionID string
}

type Resolution string

const (
	ResolutionPaid                Resolution = "paid"
	ResolutionAlreadyPaid         Resolution = "already_paid"
	ResolutionCanceled            Resolution = "canceled"
	ResolutionUnverified          Resolution = "unverified"
	ResolutionPendingConfirmation Resolution = "pending_confirmation"
)

type ResolveResult struct {
	BillingID  string     `json:"billing_id"`
	Resolution Resolution `json:"resolution"`
	Status     string     `json:"status"`
}

type WebhookResult struct {
	Provider  string `json:"provider"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	BillingID string `json:"billing_id,omitempty"`
	Ignored   bool   `json:"ignored"`
	Duplicate bool   `json:"duplicate"`
}

type Service interface {
	StartCheckout(ctx context.Context, req StartCheckoutRequest) (CheckoutResponse, error)
	ResolveRedirect(ctx context.Context, outcome RedirectOutcome) (ResolveResult, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (WebhookResult, error)
}

var (
	ErrInvalidBillingID   = errors.New("invalid_billing_id")
	ErrBillingNotFound    = errors.New("billing_not_found")
	ErrAlreadyPaid        = errors.New("billing_already_paid")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrProviderNotFound   = errors.New("payment_provider_not_found")
	ErrInvalidConfig      = errors.New("invalid_config")
	ErrGatewayUnavailable = errors.New("payment_gateway_unavailable")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidEvent       = errors.New("invalid_event")
	ErrEventIgnored       = errors.New("event_ignored")
)
