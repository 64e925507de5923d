package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
	stripeapi "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

const providerName = "stripe"

// Currencies Stripe bills without a minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewGateway(cfg paymentdomain.GatewayConfig) (paymentdomain.Gateway, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:    &http.Client{Timeout: timeout},
		LeveledLogger: &stripeapi.LeveledLogger{Level: stripeapi.LevelNull},
	}
	if apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBase), "/"); apiBase != "" {
		backendCfg.URL = stripeapi.String(apiBase)
	}

	return &Adapter{
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		sessions: session.Client{
			B:   stripeapi.GetBackendWithConfig(stripeapi.APIBackend, backendCfg),
			Key: secretKey,
		},
	}, nil
}

type Adapter struct {
	webhookSecret string
	sessions      session.Client
}

func (a *Adapter) Provider() string {
	return providerName
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSessionResult, error) {
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return paymentdomain.CheckoutSessionResult{}, paymentdomain.ErrInvalidConfig
	}
	unitAmount := minorUnits(req.Amount, currency)
	if unitAmount <= 0 {
		return paymentdomain.CheckoutSessionResult{}, paymentdomain.ErrInvalidAmount
	}

	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = "Room billing " + req.ReceiptNumber
	}

	params := &stripeapi.CheckoutSessionParams{
		Mode:              stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		ClientReferenceID: stripeapi.String(req.BillingID),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{{
			Quantity: stripeapi.Int64(1),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripeapi.String(strings.ToLower(currency)),
				UnitAmount: stripeapi.Int64(unitAmount),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(name),
				},
			},
		}},
		PaymentIntentData: &stripeapi.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"billing_id": req.BillingID},
		},
	}
	if req.SuccessURL != "" {
		params.SuccessURL = stripeapi.String(req.SuccessURL)
	}
	if req.CancelURL != "" {
		params.CancelURL = stripeapi.String(req.CancelURL)
	}
	params.AddMetadata("billing_id", req.BillingID)
	params.AddMetadata("receipt_number", req.ReceiptNumber)
	params.AddMetadata("checkout_id", req.Reference)
	params.SetIdempotencyKey("checkout:" + req.Reference)
	params.Context = ctx

	sess, err := a.sessions.New(params)
	if err != nil {
		return paymentdomain.CheckoutSessionResult{}, gatewayError(err)
	}
	if sess == nil || sess.ID == "" || strings.TrimSpace(sess.URL) == "" {
		return paymentdomain.CheckoutSessionResult{}, errors.New("stripe_response_invalid")
	}
	return paymentdomain.CheckoutSessionResult{
		ProviderSessionID: sess.ID,
		RedirectURL:       sess.URL,
	}, nil
}

func (a *Adapter) FetchSessionStatus(ctx context.Context, providerSessionID string) (paymentdomain.SessionState, error) {
	providerSessionID = strings.TrimSpace(providerSessionID)
	if providerSessionID == "" {
		return paymentdomain.SessionState{}, paymentdomain.ErrInvalidEvent
	}
	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := a.sessions.Get(providerSessionID, params)
	if err != nil {
		return paymentdomain.SessionState{}, gatewayError(err)
	}
	return paymentdomain.SessionState{
		Paid:   sess.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid,
		Status: string(sess.Status),
	}, nil
}

// Verify checks the Stripe-Signature header and rejects signatures outside
// the default replay tolerance.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidConfig
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, webhook.DefaultTolerance); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripeapi.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted, stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return a.parseSession(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case stripeapi.EventTypeCheckoutSessionAsyncPaymentFailed:
		return a.parseSession(event, payload, paymentdomain.EventTypePaymentFailed)
	case stripeapi.EventTypeCheckoutSessionExpired:
		return a.parseSession(event, payload, paymentdomain.EventTypeSessionExpired)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

func (a *Adapter) parseSession(event stripeapi.Event, payload []byte, eventType string) (*paymentdomain.PaymentEvent, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, paymentdomain.ErrInvalidPayload
	}
	var sess stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sess.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	// A completed session with a delayed payment method is not paid yet.
	if event.Type == stripeapi.EventTypeCheckoutSessionCompleted &&
		sess.PaymentStatus != stripeapi.CheckoutSessionPaymentStatusPaid {
		return nil, paymentdomain.ErrEventIgnored
	}

	currency := strings.ToUpper(strings.TrimSpace(string(sess.Currency)))
	return &paymentdomain.PaymentEvent{
		Provider:          providerName,
		ProviderEventID:   event.ID,
		ProviderSessionID: sess.ID,
		Type:              eventType,
		BillingID:         parseBillingID(&sess),
		Amount:            fromMinorUnits(sess.AmountTotal, currency),
		Currency:          currency,
		OccurredAt:        timestamp(sess.Created, event.Created),
		RawPayload:        payload,
	}, nil
}

// gatewayError surfaces the Stripe message instead of the serialized error.
func gatewayError(err error) error {
	var stripeErr *stripeapi.Error
	if errors.As(err, &stripeErr) && strings.TrimSpace(stripeErr.Msg) != "" {
		return errors.New(stripeErr.Msg)
	}
	return err
}

func parseBillingID(sess *stripeapi.CheckoutSession) snowflake.ID {
	raw := strings.TrimSpace(sess.Metadata["billing_id"])
	if raw == "" {
		raw = strings.TrimSpace(sess.ClientReferenceID)
	}
	if raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}

func minorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[currency] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[currency] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}
