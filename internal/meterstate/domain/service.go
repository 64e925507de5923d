package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Propagator mirrors a new room reading onto every current occupant row.
// It never fails as a whole; per-row failures are reported in the result.
type Propagator interface {
	Propagate(ctx context.Context, roomID snowflake.ID, targets []OccupantTarget, reading decimal.Decimal) PropagationResult
}

// Reconciler copies authoritative room readings onto drifted occupancy rows.
type Reconciler interface {
	Reconcile(ctx context.Context) (int64, error)
}

var ErrOccupancyNotFound = errors.New("occupancy_not_found")
