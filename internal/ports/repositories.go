package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid/chargeflow/internal/domain"
)

// SlotReservation is the outcome of one atomic conditional decrement.
// BecameFull is true only on the reserve that drove available to zero, so
// the caller can emit STATION_OCCUPIED exactly once per transition.
type SlotReservation struct {
	Reserved       bool
	BecameFull     bool
	AvailableSlots int
	TotalSlots     int
}

// SlotRelease mirrors SlotReservation for the increment side. Released is
// false when the station was already at full capacity (duplicate
// compensation), which is a no-op, not an error.
type SlotRelease struct {
	Released        bool
	BecameAvailable bool
	AvailableSlots  int
	TotalSlots      int
}

// StationRepository owns the capacity counter. ReserveSlot and ReleaseSlot
// must be single storage-level conditional operations, never a read followed
// by a write.
type StationRepository interface {
	Save(ctx context.Context, station *domain.Station) error
	FindByID(ctx context.Context, id string) (*domain.Station, error)

	// ReserveSlot decrements available where available > 0 and status is
	// ACTIVE, flipping status to FULL in the same operation when it hits
	// zero. Returns Reserved=false (no error) on capacity exhaustion,
	// *domain.NotFoundError for an unknown station and
	// *domain.StationUnavailableError for MAINTENANCE/INACTIVE.
	ReserveSlot(ctx context.Context, id string) (SlotReservation, error)

	// ReleaseSlot increments available capped at total, flipping FULL back
	// to ACTIVE in the same operation.
	ReleaseSlot(ctx context.Context, id string) (SlotRelease, error)
}

// SessionRepository owns the session ledger rows. Create must enforce the
// one-active-session-per-vehicle invariant atomically (unique constraint or
// equivalent compare-and-swap) and report a violation as
// *domain.ConflictError. Lookups return (nil, nil) when the row is absent.
type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	FindActiveByVehicle(ctx context.Context, vehicleID string) (*domain.Session, error)

	// BeginCharging moves INITIATED to CHARGING conditionally.
	BeginCharging(ctx context.Context, id string) (*domain.Session, error)

	// Complete moves a non-terminal session to COMPLETED, stamping end
	// time, duration, energy and cost in the same conditional update.
	Complete(ctx context.Context, id string, endTime time.Time, energy, cost decimal.Decimal) (*domain.Session, error)

	// Terminate moves a non-terminal session to FAILED or CANCELLED. It is
	// idempotent when the session is already in exactly that terminal
	// state; any other terminal state is an illegal transition.
	Terminate(ctx context.Context, id string, state domain.SessionState, reason string) (*domain.Session, error)
}

// AlertRepository persists manual-intervention alerts.
type AlertRepository interface {
	Save(ctx context.Context, alert *domain.Alert) error
	FindByID(ctx context.Context, id string) (*domain.Alert, error)
	ListUnacknowledged(ctx context.Context, limit int) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, id string) error
}
