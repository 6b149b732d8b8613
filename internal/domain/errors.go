package domain

import "fmt"

// NotFoundError reports a missing station or session.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError rejects malformed input before any mutation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CapacityError means the station had no free slot. This is the expected
// branch for a full station, not an infrastructure failure.
type CapacityError struct {
	StationID string
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("station %s has no available slots", e.StationID)
}

// StationUnavailableError means the station is operator-disabled
// (MAINTENANCE or INACTIVE). Distinct from capacity exhaustion.
type StationUnavailableError struct {
	StationID string
	Status    StationStatus
}

func (e *StationUnavailableError) Error() string {
	return fmt.Sprintf("station %s is not accepting sessions (status %s)", e.StationID, e.Status)
}

// ConflictError means the vehicle already holds a non-terminal session.
type ConflictError struct {
	VehicleID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("vehicle %s already has an active charging session", e.VehicleID)
}

// CreditError covers billing denial, charge failure and timeout. A timed-out
// call is handled exactly like an explicit denial.
type CreditError struct {
	Stage   string // "validate", "charge" or "refund"
	Reason  string
	Timeout bool
	Err     error
}

func (e *CreditError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("credit %s timed out: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("credit %s failed: %s", e.Stage, e.Reason)
}

func (e *CreditError) Unwrap() error { return e.Err }

// IllegalTransitionError reports a session mutation attempted from a state
// the ledger's state machine does not allow it from.
type IllegalTransitionError struct {
	SessionID string
	From      SessionState
	To        SessionState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("session %s: illegal transition %s -> %s", e.SessionID, e.From, e.To)
}

// CompensationError wraps a compensating action that itself failed. This is
// the one case where automatic consistency is not guaranteed; it is surfaced
// as a manual-intervention alert, never retried silently forever.
type CompensationError struct {
	Saga   string
	Action string
	Err    error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("saga %s: compensation %s failed: %v", e.Saga, e.Action, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }
