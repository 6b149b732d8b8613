package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/voltgrid/chargeflow/internal/domain"
)

// SlotPool prevents overbooking of station capacity under concurrent access.
type SlotPool interface {
	// Reserve returns false when the station has no free slot; that is the
	// expected branch for a full station, not an infrastructure failure.
	Reserve(ctx context.Context, stationID string) (bool, error)
	// Release is idempotent under duplicate compensation calls.
	Release(ctx context.Context, stationID string) error
}

// SessionLedger is the charging-session state machine.
type SessionLedger interface {
	StartSession(ctx context.Context, vehicleID, stationID, userID string) (*domain.Session, error)
	BeginCharging(ctx context.Context, sessionID string) (*domain.Session, error)
	// QuoteCost prices the given energy at the session's station rate
	// without mutating anything.
	QuoteCost(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (decimal.Decimal, *domain.Session, error)
	CompleteSession(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (*domain.Session, error)
	FailSession(ctx context.Context, sessionID, reason string) (*domain.Session, error)
	CancelSession(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Orchestrator runs the cross-resource start/end workflows. Every call
// returns exactly one terminal outcome; partial state is never exposed.
type Orchestrator interface {
	StartSessionSaga(ctx context.Context, vehicleID, stationID, userID string) (string, error)
	EndSessionSaga(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (*domain.Receipt, error)
}

// EventPublisher delivers domain events at-least-once to durable queues.
// A publish failure never reverses a committed saga step.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// AlertService surfaces manual-intervention conditions to operators.
type AlertService interface {
	Raise(ctx context.Context, alert domain.Alert)
}
