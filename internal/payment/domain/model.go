package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusExpired   SessionStatus = "expired"
	SessionStatusCanceled  SessionStatus = "canceled"
)

// CheckoutSession links one gateway checkout attempt to a billing record.
type CheckoutSession struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	BillingID         snowflake.ID    `json:"billing_id" gorm:"not null;index"`
	Provider          string          `json:"provider" gorm:"size:32;not null;uniqueIndex:ux_checkout_sessions_provider_session"`
	ProviderSessionID string          `json:"provider_session_id" gorm:"size:255;not null;uniqueIndex:ux_checkout_sessions_provider_session"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(14,2);not null"`
	Currency          string          `json:"currency" gorm:"size:3;not null"`
	RedirectURL       string          `json:"redirect_url" gorm:"type:text;not null"`
	Status            SessionStatus   `json:"status" gorm:"size:16;not null"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }

type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"size:32;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"size:255;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"size:64;not null"`
	BillingID       snowflake.ID   `json:"billing_id" gorm:"not null;default:0;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeSessionExpired   = "session_expired"
)

// PaymentEvent is the canonical webhook event parsed by adapters.
type PaymentEvent struct {
	Provider          string
	ProviderEventID   string
	ProviderSessionID string
	Type              string
	BillingID         snowflake.ID
	Amount            decimal.Decimal
	Currency          string
	OccurredAt        time.Time
	RawPayload        []byte
}
