package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SessionState string

const (
	SessionStateInitiated SessionState = "INITIATED"
	SessionStateCharging  SessionState = "CHARGING"
	SessionStateCompleted SessionState = "COMPLETED"
	SessionStateFailed    SessionState = "FAILED"
	SessionStateCancelled SessionState = "CANCELLED"
)

// ActiveSessionStates are the non-terminal states. The partial unique index
// on sessions(vehicle_id) is scoped to these, which is what enforces the
// one-active-session-per-vehicle invariant at the storage level.
var ActiveSessionStates = []SessionState{SessionStateInitiated, SessionStateCharging}

func (s SessionState) Terminal() bool {
	switch s {
	case SessionStateCompleted, SessionStateFailed, SessionStateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to
// target. No transition is legal out of a terminal state.
func (s SessionState) CanTransitionTo(target SessionState) bool {
	if s.Terminal() {
		return false
	}
	switch target {
	case SessionStateCharging:
		return s == SessionStateInitiated
	case SessionStateCompleted, SessionStateFailed, SessionStateCancelled:
		return true
	}
	return false
}

// Session is one charging session in the ledger. A terminal session is never
// mutated again.
type Session struct {
	ID              string          `json:"id" gorm:"primaryKey"`
	VehicleID       string          `json:"vehicle_id" gorm:"index"`
	StationID       string          `json:"station_id" gorm:"index"`
	UserID          string          `json:"user_id" gorm:"index"`
	State           SessionState    `json:"state"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	DurationSeconds int64           `json:"duration_seconds"`
	EnergyKwh       decimal.Decimal `json:"energy_kwh" gorm:"type:numeric(12,3)"`
	Cost            decimal.Decimal `json:"cost" gorm:"type:numeric(12,2)"`
	Currency        string          `json:"currency"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// SessionCost prices energy at the station rate, fixed-point, rounded
// half-up to 2 decimal places (decimal.Round rounds half away from zero,
// which is half-up for non-negative amounts).
func SessionCost(energyKwh, pricePerKwh decimal.Decimal) decimal.Decimal {
	return energyKwh.Mul(pricePerKwh).Round(2)
}

// Receipt is the terminal result of a successful end-session saga.
type Receipt struct {
	SessionID       string          `json:"session_id"`
	StationID       string          `json:"station_id"`
	VehicleID       string          `json:"vehicle_id"`
	EnergyKwh       decimal.Decimal `json:"energy_kwh"`
	Cost            decimal.Decimal `json:"cost"`
	Currency        string          `json:"currency"`
	TransactionRef  string          `json:"transaction_ref"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	DurationSeconds int64           `json:"duration_seconds"`
}
