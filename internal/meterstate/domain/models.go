package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RoomMeter is the authoritative electricity reading of a room. Occupancy rows
// carry a mirror of it that the propagator keeps in sync.
type RoomMeter struct {
	RoomID    snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"room_id"`
	Reading   decimal.Decimal `gorm:"type:numeric(14,3);not null" json:"reading"`
	BillingID snowflake.ID    `gorm:"not null;default:0" json:"billing_id"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (RoomMeter) TableName() string { return "room_meters" }

// OccupantTarget is one occupancy row that mirrors the room meter.
type OccupantTarget struct {
	OccupancyID snowflake.ID
	TenantID    snowflake.ID
}

type OccupantOutcome struct {
	OccupancyID snowflake.ID `json:"occupancy_id"`
	TenantID    snowflake.ID `json:"tenant_id"`
	Err         error        `json:"-"`
	Error       string       `json:"error,omitempty"`
}

func (o OccupantOutcome) OK() bool { return o.Err == nil }

// PropagationResult holds one outcome per target, in target order.
type PropagationResult struct {
	RoomID    snowflake.ID      `json:"room_id"`
	Reading   decimal.Decimal   `json:"reading"`
	Outcomes  []OccupantOutcome `json:"outcomes"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

func (r PropagationResult) Partial() bool {
	return r.Failed > 0
}

// Warning describes a partial propagation for the operator, or "" when every
// write landed.
func (r PropagationResult) Warning() string {
	if !r.Partial() {
		return ""
	}
	failed := make([]string, 0, r.Failed)
	for _, outcome := range r.Outcomes {
		if !outcome.OK() {
			failed = append(failed, outcome.OccupancyID.String())
		}
	}
	return fmt.Sprintf(
		"meter reading %s was not written to %d of %d occupancies (%s); reconciliation will repair them",
		r.Reading.String(), r.Failed, len(r.Outcomes), strings.Join(failed, ", "),
	)
}
