package domain

import (
	"context"
	"errors"
)

type CheckInRequest struct {
	RoomID      string `json:"room_id"`
	TenantID    string `json:"tenant_id"`
	CheckInDate string `json:"check_in_date"`
}

type CheckOutRequest struct {
	OccupancyID  string `json:"-"`
	CheckOutDate string `json:"check_out_date"`
}

type Service interface {
	CheckIn(context.Context, CheckInRequest) (Occupancy, error)
	CheckOut(context.Context, CheckOutRequest) (Occupancy, error)
	GetByID(context.Context, string) (Occupancy, error)
}

// Aggregator collapses current occupancies into one snapshot per room.
type Aggregator interface {
	Snapshots(ctx context.Context) ([]RoomSnapshot, error)
	SnapshotForRoom(ctx context.Context, roomID string) (RoomSnapshot, error)
}

var (
	ErrInvalidID           = errors.New("invalid_occupancy_id")
	ErrInvalidRoom         = errors.New("invalid_room_id")
	ErrInvalidTenant       = errors.New("invalid_tenant_id")
	ErrInvalidDate         = errors.New("invalid_date")
	ErrNotFound            = errors.New("occupancy_not_found")
	ErrRoomNotFound        = errors.New("room_not_found")
	ErrTenantNotFound      = errors.New("tenant_not_found")
	ErrTenantAlreadyHoused = errors.New("tenant_already_checked_in")
	ErrRoomFull            = errors.New("room_at_capacity")
	ErrRoomUnavailable     = errors.New("room_under_maintenance")
	ErrAlreadyCheckedOut   = errors.New("occupancy_already_checked_out")
	ErrNoCurrentOccupants  = errors.New("room_has_no_current_occupants")
	// ErrAggregationFailed wraps read failures; the caller may retry.
	ErrAggregationFailed = errors.New("aggregation_failed")
)
