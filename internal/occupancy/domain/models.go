package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Occupancy struct {
	ID                 snowflake.ID    `gorm:"primaryKey" json:"id"`
	RoomID             snowflake.ID    `gorm:"not null;index" json:"room_id"`
	TenantID           snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	CheckInDate        time.Time       `gorm:"not null" json:"check_in_date"`
	CheckOutDate       *time.Time      `json:"check_out_date,omitempty"`
	IsCurrent          bool            `gorm:"not null;index" json:"is_current"`
	LatestMeterReading decimal.Decimal `gorm:"type:numeric(14,3);not null;default:0" json:"latest_meter_reading"`
	CreatedAt          time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"not null" json:"updated_at"`
}

func (Occupancy) TableName() string { return "occupancies" }

// Unresolved is shown in place of a room number or tenant name whose row is missing.
const Unresolved = "N/A"

type Occupant struct {
	TenantID    snowflake.ID `json:"tenant_id"`
	TenantName  string       `json:"tenant_name"`
	OccupancyID snowflake.ID `json:"occupancy_id"`
}

// RoomSnapshot is the aggregated view of one room's current occupants used as
// calculator input. Occupants keep aggregation order: check-in date, then id.
type RoomSnapshot struct {
	RoomID             snowflake.ID    `json:"room_id"`
	RoomNumber         string          `json:"room_number"`
	RoomPrice          decimal.Decimal `json:"room_price"`
	OccupantCount      int             `json:"occupant_count"`
	LatestMeterReading decimal.Decimal `json:"latest_meter_reading"`
	Occupants          []Occupant      `json:"occupants"`
}

// Primary returns the first occupant in aggregation order.
func (s RoomSnapshot) Primary() (Occupant, bool) {
	if len(s.Occupants) == 0 {
		return Occupant{}, false
	}
	return s.Occupants[0], true
}
