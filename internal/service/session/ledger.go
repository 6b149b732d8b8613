// Package session implements the charging-session state machine: INITIATED
// and CHARGING are non-terminal; COMPLETED, FAILED and CANCELLED are
// terminal and immutable.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/observability/telemetry"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type Ledger struct {
	sessions ports.SessionRepository
	stations ports.StationRepository
	log      *zap.Logger
}

func NewLedger(sessions ports.SessionRepository, stations ports.StationRepository, log *zap.Logger) ports.SessionLedger {
	return &Ledger{
		sessions: sessions,
		stations: stations,
		log:      log,
	}
}

// StartSession creates an INITIATED session. The uniqueness check and the
// insert are one repository operation; a concurrent start for the same
// vehicle loses with a ConflictError rather than slipping through a
// read-then-write gap.
func (l *Ledger) StartSession(ctx context.Context, vehicleID, stationID, userID string) (*domain.Session, error) {
	if vehicleID == "" {
		return nil, &domain.ValidationError{Field: "vehicle_id", Reason: "required"}
	}
	if stationID == "" {
		return nil, &domain.ValidationError{Field: "station_id", Reason: "required"}
	}

	station, err := l.stations.FindByID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, &domain.NotFoundError{Resource: "station", ID: stationID}
	}

	now := time.Now()
	s := &domain.Session{
		ID:        uuid.New().String(),
		VehicleID: vehicleID,
		StationID: stationID,
		UserID:    userID,
		State:     domain.SessionStateInitiated,
		StartTime: now,
		Currency:  station.Currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.sessions.Create(ctx, s); err != nil {
		return nil, err
	}

	telemetry.ActiveChargingSessions.Inc()
	l.log.Info("Session started",
		zap.String("session_id", s.ID),
		zap.String("vehicle_id", vehicleID),
		zap.String("station_id", stationID),
	)
	return s, nil
}

func (l *Ledger) BeginCharging(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := l.sessions.BeginCharging(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	l.log.Info("Session charging", zap.String("session_id", sessionID))
	return s, nil
}

// QuoteCost prices energy at the session's station rate without mutating
// anything. The end-session saga calls this before committing money.
func (l *Ledger) QuoteCost(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (decimal.Decimal, *domain.Session, error) {
	if energyKwh.IsNegative() {
		return decimal.Zero, nil, &domain.ValidationError{Field: "energy_kwh", Reason: "must not be negative"}
	}

	s, err := l.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if s == nil {
		return decimal.Zero, nil, &domain.NotFoundError{Resource: "session", ID: sessionID}
	}
	if s.State.Terminal() {
		return decimal.Zero, nil, &domain.IllegalTransitionError{SessionID: sessionID, From: s.State, To: domain.SessionStateCompleted}
	}

	station, err := l.stations.FindByID(ctx, s.StationID)
	if err != nil {
		return decimal.Zero, nil, err
	}
	if station == nil {
		return decimal.Zero, nil, &domain.NotFoundError{Resource: "station", ID: s.StationID}
	}

	return domain.SessionCost(energyKwh, station.PricePerKwh), s, nil
}

func (l *Ledger) CompleteSession(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (*domain.Session, error) {
	cost, _, err := l.QuoteCost(ctx, sessionID, energyKwh)
	if err != nil {
		return nil, err
	}

	s, err := l.sessions.Complete(ctx, sessionID, time.Now(), energyKwh, cost)
	if err != nil {
		return nil, err
	}

	telemetry.ActiveChargingSessions.Dec()
	l.log.Info("Session completed",
		zap.String("session_id", sessionID),
		zap.String("energy_kwh", energyKwh.String()),
		zap.String("cost", cost.String()),
	)
	return s, nil
}

func (l *Ledger) FailSession(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	s, err := l.sessions.Terminate(ctx, sessionID, domain.SessionStateFailed, reason)
	if err != nil {
		return nil, err
	}
	telemetry.ActiveChargingSessions.Dec()
	l.log.Warn("Session failed",
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
	)
	return s, nil
}

func (l *Ledger) CancelSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	s, err := l.sessions.Terminate(ctx, sessionID, domain.SessionStateCancelled, "")
	if err != nil {
		return nil, err
	}
	telemetry.ActiveChargingSessions.Dec()
	l.log.Info("Session cancelled", zap.String("session_id", sessionID))
	return s, nil
}
