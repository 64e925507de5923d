package domain

import (
	"context"
	"errors"
	"time"

	meterdomain "github.com/smallbiznis/dormhub/internal/meterstate/domain"
	occupancydomain "github.com/smallbiznis/dormhub/internal/occupancy/domain"
	"github.com/smallbiznis/dormhub/pkg/db/pagination"
)

type CreateBillingRequest struct {
	Snapshot       occupancydomain.RoomSnapshot
	Period         string
	Breakdown      Breakdown
	DueDate        time.Time
	IdempotencyKey string
}

// RunBillingRequest drives aggregate, calculate, create and propagate for
// one room. PreviousMeterReading defaults to the snapshot's latest reading.
type RunBillingRequest struct {
	RoomID               string `json:"-"`
	Period               string `json:"billing_month"`
	WaterUnits           string `json:"water_units"`
	PreviousMeterReading string `json:"previous_meter_reading"`
	CurrentMeterReading  string `json:"current_meter_reading"`
	DueDate              string `json:"due_date"`
	IdempotencyKey       string `json:"-"`
}

type RunBillingResult struct {
	Billing     BillingRecord                  `json:"billing"`
	Breakdown   Breakdown                      `json:"breakdown"`
	Propagation *meterdomain.PropagationResult `json:"propagation,omitempty"`
	Warnings    []string                       `json:"warnings"`
	Replayed    bool                           `json:"replayed"`
}

type PreviewRequest struct {
	RoomID               string `json:"room_id"`
	WaterUnits           string `json:"water_units"`
	PreviousMeterReading string `json:"previous_meter_reading"`
	CurrentMeterReading  string `json:"current_meter_reading"`
}

type PaidSource string

const (
	PaidSourceManual   PaidSource = "manual"
	PaidSourceRedirect PaidSource = "redirect"
	PaidSourceWebhook  PaidSource = "webhook"
)

type MarkPaidRequest struct {
	BillingID     string
	Source        PaidSource
	PaymentMethod string
}

type MarkPaidResult struct {
	Billing BillingRecord `json:"billing"`
	// Transitioned is false when the record was already paid.
	Transitioned bool `json:"transitioned"`
}

type ListBillingRequest struct {
	PageToken string
	PageSize  int
	Status    string
	RoomID    string
	Month     string
}

type ListBillingFilter struct {
	Status Status
	RoomID int64
	Month  *time.Time
	Today  time.Time
}

type ListBillingResponse struct {
	pagination.PageInfo
	Billings []BillingRecord `json:"billings"`
}

type Service interface {
	Preview(context.Context, PreviewRequest) (Breakdown, error)
	CreateBilling(context.Context, CreateBillingRequest) (BillingRecord, error)
	RunBilling(context.Context, RunBillingRequest) (RunBillingResult, error)
	GetByID(context.Context, string) (BillingRecord, error)
	List(context.Context, ListBillingRequest) (ListBillingResponse, error)
	MarkPaid(context.Context, MarkPaidRequest) (MarkPaidResult, error)
	MarkOverdue(context.Context) (int64, error)
}

var (
	ErrInvalidID           = errors.New("invalid_billing_id")
	ErrInvalidPeriod       = errors.New("invalid_billing_month")
	ErrInvalidDueDate      = errors.New("invalid_due_date")
	ErrInvalidWaterUnits   = errors.New("invalid_water_units")
	ErrInvalidMeterReading = errors.New("invalid_meter_reading")
	ErrInvalidStatus       = errors.New("invalid_billing_status")
	ErrInvalidPaidSource   = errors.New("invalid_paid_source")
	ErrNoOccupants         = errors.New("billing_requires_occupant")
	ErrTenantUnresolved    = errors.New("tenant_unresolved")
	ErrDuplicateBilling    = errors.New("duplicate_billing_period")
	ErrIdempotencyConflict = errors.New("idempotency_key_conflict")
	ErrNotFound            = errors.New("billing_not_found")
	ErrStoreUnavailable    = errors.New("billing_store_unavailable")
)
