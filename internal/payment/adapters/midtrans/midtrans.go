package midtrans

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	mt "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/dormhub/internal/payment/domain"
)

const (
	providerName       = "midtrans"
	settlementCurrency = "IDR"
)

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *mt.Error)
}

type coreAPI interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *mt.Error)
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewGateway(cfg paymentdomain.GatewayConfig) (paymentdomain.Gateway, error) {
	serverKey := strings.TrimSpace(cfg.SecretKey)
	if serverKey == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	env := mt.Sandbox
	if cfg.Production {
		env = mt.Production
	}

	snapClient := &snap.Client{}
	snapClient.New(serverKey, env)
	coreClient := &coreapi.Client{}
	coreClient.New(serverKey, env)

	return newAdapter(serverKey, snapClient, coreClient), nil
}

type Adapter struct {
	serverKey string
	snap      snapAPI
	core      coreAPI
}

func newAdapter(serverKey string, snapClient snapAPI, coreClient coreAPI) *Adapter {
	return &Adapter{serverKey: serverKey, snap: snapClient, core: coreClient}
}

func (a *Adapter) Provider() string {
	return providerName
}

// CreateCheckoutSession opens a Snap transaction. The checkout reference is
// used as the Midtrans order_id, so it doubles as the provider session id.
func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSessionResult, error) {
	// Snap charges whole rupiah only; the stored sum is never rounded.
	if !req.Amount.IsPositive() || !req.Amount.IsInteger() {
		return paymentdomain.CheckoutSessionResult{}, paymentdomain.ErrInvalidAmount
	}
	if !strings.EqualFold(strings.TrimSpace(req.Currency), settlementCurrency) {
		return paymentdomain.CheckoutSessionResult{}, paymentdomain.ErrInvalidConfig
	}
	gross := req.Amount.IntPart()
	orderID := strings.TrimSpace(req.Reference)
	if orderID == "" {
		return paymentdomain.CheckoutSessionResult{}, paymentdomain.ErrInvalidConfig
	}

	name := strings.TrimSpace(req.Description)
	if name == "" {
		name = "Room billing " + req.ReceiptNumber
	}

	snapReq := &snap.Request{
		TransactionDetails: mt.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: gross,
		},
		Items: &[]mt.ItemDetails{
			{
				ID:       req.ReceiptNumber,
				Name:     truncate(name, 50),
				Price:    gross,
				Qty:      1,
				Category: "dormitory",
			},
		},
		CustomField1: req.BillingID,
		CustomField2: req.ReceiptNumber,
	}
	if req.CustomerName != "" {
		snapReq.CustomerDetail = &mt.CustomerDetails{FName: truncate(req.CustomerName, 50)}
	}
	if req.SuccessURL != "" {
		snapReq.Callbacks = &snap.Callbacks{Finish: req.SuccessURL}
	}

	resp, mErr := a.snap.CreateTransaction(snapReq)
	if mErr != nil {
		return paymentdomain.CheckoutSessionResult{}, fmt.Errorf("midtrans create transaction: %s", mErr.Message)
	}
	if resp == nil || strings.TrimSpace(resp.RedirectURL) == "" {
		return paymentdomain.CheckoutSessionResult{}, fmt.Errorf("midtrans_response_invalid")
	}
	return paymentdomain.CheckoutSessionResult{
		ProviderSessionID: orderID,
		RedirectURL:       resp.RedirectURL,
	}, nil
}

func (a *Adapter) FetchSessionStatus(ctx context.Context, providerSessionID string) (paymentdomain.SessionState, error) {
	providerSessionID = strings.TrimSpace(providerSessionID)
	if providerSessionID == "" {
		return paymentdomain.SessionState{}, paymentdomain.ErrInvalidEvent
	}
	resp, mErr := a.core.CheckTransaction(providerSessionID)
	if mErr != nil {
		return paymentdomain.SessionState{}, fmt.Errorf("midtrans check transaction: %s", mErr.Message)
	}
	if resp == nil {
		return paymentdomain.SessionState{}, fmt.Errorf("midtrans_response_invalid")
	}
	return paymentdomain.SessionState{
		Paid:   isPaid(resp.TransactionStatus, resp.FraudStatus),
		Status: resp.TransactionStatus,
	}, nil
}

// Verify checks signature_key = sha512(order_id + status_code + gross_amount + server_key).
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	var notif notification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	want := strings.ToLower(strings.TrimSpace(notif.SignatureKey))
	if want == "" {
		return paymentdomain.ErrInvalidSignature
	}
	got := Signature(notif.OrderID, notif.StatusCode, notif.GrossAmount, a.serverKey)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var notif notification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(notif.OrderID) == "" || strings.TrimSpace(notif.TransactionStatus) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch {
	case isPaid(notif.TransactionStatus, notif.FraudStatus):
		eventType = paymentdomain.EventTypePaymentSucceeded
	case notif.TransactionStatus == "expire":
		eventType = paymentdomain.EventTypeSessionExpired
	case notif.TransactionStatus == "deny", notif.TransactionStatus == "cancel", notif.TransactionStatus == "failure":
		eventType = paymentdomain.EventTypePaymentFailed
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(notif.GrossAmount))
	if err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	// One transaction emits several notifications; each status is its own event.
	eventKey := strings.TrimSpace(notif.TransactionID)
	if eventKey == "" {
		eventKey = notif.OrderID
	}

	var billingID snowflake.ID
	if parsed, err := snowflake.ParseString(strings.TrimSpace(notif.CustomField1)); err == nil {
		billingID = parsed
	}

	return &paymentdomain.PaymentEvent{
		Provider:          providerName,
		ProviderEventID:   eventKey + ":" + notif.TransactionStatus,
		ProviderSessionID: notif.OrderID,
		Type:              eventType,
		BillingID:         billingID,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(notif.Currency)),
		OccurredAt:        parseTime(notif.TransactionTime),
		RawPayload:        payload,
	}, nil
}

type notification struct {
	TransactionTime   string `json:"transaction_time"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	Currency          string `json:"currency"`
	FraudStatus       string `json:"fraud_status"`
	CustomField1      string `json:"custom_field1"`
}

func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func isPaid(transactionStatus, fraudStatus string) bool {
	switch transactionStatus {
	case "settlement":
		return true
	case "capture":
		return fraudStatus == "" || fraudStatus == "accept"
	default:
		return false
	}
}

// Midtrans reports local time in Asia/Jakarta (UTC+7).
func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Now().UTC()
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.FixedZone("WIB", 7*60*60))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
