package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue:
		return true
	default:
		return false
	}
}

// Payable reports whether a checkout or mark-paid may still move the record.
func (s Status) Payable() bool {
	return s == StatusPending || s == StatusOverdue
}

// BillingRecord is immutable after creation apart from status, paid_date and
// payment_method.
type BillingRecord struct {
	ID                   snowflake.ID      `gorm:"primaryKey" json:"id"`
	RoomID               snowflake.ID      `gorm:"not null;index" json:"room_id"`
	TenantID             snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	OccupancyID          snowflake.ID      `gorm:"not null" json:"occupancy_id"`
	BillingMonth         time.Time         `gorm:"not null;index" json:"billing_month"`
	PreviousMeterReading decimal.Decimal   `gorm:"type:numeric(14,3);not null" json:"previous_meter_reading"`
	CurrentMeterReading  decimal.Decimal   `gorm:"type:numeric(14,3);not null" json:"current_meter_reading"`
	RoomRent             decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"room_rent"`
	WaterUnits           decimal.Decimal   `gorm:"type:numeric(14,3);not null" json:"water_units"`
	WaterCost            decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"water_cost"`
	ElectricityUnits     decimal.Decimal   `gorm:"type:numeric(14,3);not null" json:"electricity_units"`
	ElectricityCost      decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"electricity_cost"`
	Sum                  decimal.Decimal   `gorm:"column:sum;type:numeric(14,2);not null" json:"sum"`
	Currency             string            `gorm:"size:3;not null" json:"currency"`
	DueDate              time.Time         `gorm:"not null;index" json:"due_date"`
	Status               Status            `gorm:"size:16;not null;index" json:"status"`
	PaidDate             *time.Time        `json:"paid_date"`
	PaymentMethod        string            `gorm:"size:64;not null;default:''" json:"payment_method,omitempty"`
	ReceiptNumber        string            `gorm:"size:32;not null;uniqueIndex" json:"receipt_number"`
	TenantName           string            `gorm:"size:255;not null" json:"tenant_name"`
	OccupantCount        int               `gorm:"not null" json:"occupant_count"`
	Metadata             datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt            time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"not null" json:"updated_at"`
}

func (BillingRecord) TableName() string { return "billings" }

// EffectiveStatus derives overdue for pending records whose due date has
// passed but that the sweep has not reached yet.
func (b BillingRecord) EffectiveStatus(today time.Time) Status {
	if b.Status == StatusPending && b.DueDate.Before(today) {
		return StatusOverdue
	}
	return b.Status
}

// ExportRow is the reporting shape of a billing row.
type ExportRow struct {
	BillingMonth     string  `json:"billing_month"`
	ReceiptNumber    string  `json:"receipt_number"`
	RoomRent         string  `json:"room_rent"`
	WaterUnits       string  `json:"water_units"`
	WaterCost        string  `json:"water_cost"`
	ElectricityUnits string  `json:"electricity_units"`
	ElectricityCost  string  `json:"electricity_cost"`
	Sum              string  `json:"sum"`
	DueDate          string  `json:"due_date"`
	Status           Status  `json:"status"`
	PaidDate         *string `json:"paid_date"`
}

func (b BillingRecord) Export() ExportRow {
	row := ExportRow{
		BillingMonth:     b.BillingMonth.Format(dateLayout),
		ReceiptNumber:    b.ReceiptNumber,
		RoomRent:         b.RoomRent.StringFixed(2),
		WaterUnits:       b.WaterUnits.String(),
		WaterCost:        b.WaterCost.StringFixed(2),
		ElectricityUnits: b.ElectricityUnits.String(),
		ElectricityCost:  b.ElectricityCost.StringFixed(2),
		Sum:              b.Sum.StringFixed(2),
		DueDate:          b.DueDate.Format(dateLayout),
		Status:           b.Status,
	}
	if b.PaidDate != nil {
		paid := b.PaidDate.Format(dateLayout)
		row.PaidDate = &paid
	}
	return row
}

// BillingRun records an operator-supplied idempotency key against the
// billing it produced.
type BillingRun struct {
	IdempotencyKey string       `gorm:"primaryKey;size:128" json:"idempotency_key"`
	BillingID      snowflake.ID `gorm:"not null" json:"billing_id"`
	RoomID         snowflake.ID `gorm:"not null" json:"room_id"`
	BillingMonth   time.Time    `gorm:"not null" json:"billing_month"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (BillingRun) TableName() string { return "billing_runs" }

// ReceiptSequence is the per-month counter behind receipt numbers.
type ReceiptSequence struct {
	Period    string `gorm:"primaryKey;size:6"`
	LastValue int64  `gorm:"not null"`
}

func (ReceiptSequence) TableName() string { return "receipt_sequences" }
