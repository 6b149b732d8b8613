// Package saga sequences the slot pool, the session ledger and the external
// credit check into the start/end charging workflows. There is no shared
// transaction across the three resources; instead every committed step has
// an explicit compensating action, and each call ends in exactly one
// terminal outcome.
package saga

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/observability/telemetry"
	"github.com/voltgrid/chargeflow/internal/ports"
)

const (
	sagaStartSession = "start_session"
	sagaEndSession   = "end_session"
)

type Orchestrator struct {
	slots     ports.SlotPool
	ledger    ports.SessionLedger
	credit    ports.CreditValidator
	publisher ports.EventPublisher
	alerts    ports.AlertService
	tracer    trace.Tracer
	log       *zap.Logger
}

func NewOrchestrator(
	slots ports.SlotPool,
	ledger ports.SessionLedger,
	credit ports.CreditValidator,
	publisher ports.EventPublisher,
	alerts ports.AlertService,
	log *zap.Logger,
) ports.Orchestrator {
	return &Orchestrator{
		slots:     slots,
		ledger:    ledger,
		credit:    credit,
		publisher: publisher,
		alerts:    alerts,
		tracer:    otel.Tracer("chargeflow/saga"),
		log:       log,
	}
}

// StartSessionSaga reserves a slot, opens a session and validates credit, in
// that order. A failure at any step undoes the committed steps in reverse
// before the error is returned; SESSION_FAILED is emitted only after
// compensation completes.
func (o *Orchestrator) StartSessionSaga(ctx context.Context, vehicleID, stationID, userID string) (string, error) {
	ctx, span := o.tracer.Start(ctx, "saga.start_session",
		trace.WithAttributes(
			attribute.String("vehicle_id", vehicleID),
			attribute.String("station_id", stationID),
		))
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.SagaDuration.WithLabelValues(sagaStartSession).Observe(time.Since(start).Seconds())
	}()

	if userID == "" {
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaStartSession, "validation").Inc()
		return "", &domain.ValidationError{Field: "user_id", Reason: "required"}
	}

	exec := newExecutionContext(sagaStartSession)

	// Step 1: reserve a slot. Nothing to compensate on failure.
	span.AddEvent(stepReserveSlot)
	reserved, err := o.slots.Reserve(ctx, stationID)
	if err != nil {
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaStartSession, "error").Inc()
		return "", err
	}
	if !reserved {
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaStartSession, "capacity").Inc()
		return "", &domain.CapacityError{StationID: stationID}
	}
	exec.commit(stepReserveSlot)

	// Step 2: open the session. The ledger's atomic uniqueness check is
	// what guarantees at most one concurrent start per vehicle succeeds.
	span.AddEvent(stepCreateSession)
	s, err := o.ledger.StartSession(ctx, vehicleID, stationID, userID)
	if err != nil {
		o.compensateStart(ctx, &exec, "", stationID)
		o.emitStartFailure(ctx, "", stationID, vehicleID, stepCreateSession, err.Error())
		outcome := "error"
		var conflict *domain.ConflictError
		if errors.As(err, &conflict) {
			outcome = "conflict"
		}
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaStartSession, outcome).Inc()
		return "", err
	}
	exec.commit(stepCreateSession)
	span.SetAttributes(attribute.String("session_id", s.ID))

	// Step 3: credit validation. Denial, error and timeout all compensate
	// steps 2 and 1.
	span.AddEvent(stepValidateUser)
	res, err := o.credit.Validate(ctx, userID)
	if err != nil || !res.Approved {
		credErr := asCreditError("validate", res, err)
		o.compensateStart(ctx, &exec, s.ID, stationID)
		o.emitStartFailure(ctx, s.ID, stationID, vehicleID, stepValidateUser, credErr.Reason)
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaStartSession, "credit_denied").Inc()
		return "", credErr
	}

	o.publish(ctx, domain.NewSessionStartedEvent(s))
	telemetry.SagaOutcomesTotal.WithLabelValues(sagaStartSession, "success").Inc()
	o.log.Info("Start-session saga committed",
		zap.String("session_id", s.ID),
		zap.String("vehicle_id", vehicleID),
		zap.String("station_id", stationID),
	)
	return s.ID, nil
}

// EndSessionSaga quotes the cost, charges it, completes the ledger entry and
// frees the slot. Money moves before the ledger write; if the ledger write
// then fails, the charge is refunded and the session marked FAILED - a
// charged-but-unrecorded session never exists silently.
func (o *Orchestrator) EndSessionSaga(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (*domain.Receipt, error) {
	ctx, span := o.tracer.Start(ctx, "saga.end_session",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()
	start := time.Now()
	defer func() {
		telemetry.SagaDuration.WithLabelValues(sagaEndSession).Observe(time.Since(start).Seconds())
	}()

	// Step 1: price the energy. Pure computation, no mutation.
	cost, s, err := o.ledger.QuoteCost(ctx, sessionID, energyKwh)
	if err != nil {
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaEndSession, "error").Inc()
		return nil, err
	}

	// Step 2: charge. On failure nothing has been committed; abort cleanly.
	span.AddEvent(stepChargeCredit)
	charge, err := o.credit.Charge(ctx, sessionID, cost, s.Currency)
	if err != nil || !charge.Success {
		credErr := chargeError(err)
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaEndSession, "credit_denied").Inc()
		return nil, credErr
	}

	// Step 3: record completion. Failing here with money already taken is
	// the one path that must not leave the session ambiguous.
	span.AddEvent(stepCompleteLedger)
	completed, err := o.ledger.CompleteSession(ctx, sessionID, energyKwh)
	if err != nil {
		o.undoCharge(ctx, sessionID, s.StationID, charge.TransactionRef)
		o.publish(ctx, domain.NewSessionFailedEvent(sessionID, s.StationID, s.VehicleID,
			stepCompleteLedger, err.Error()))
		telemetry.SagaOutcomesTotal.WithLabelValues(sagaEndSession, "error").Inc()
		return nil, err
	}

	// Step 4: free the slot. The session is already settled; a release
	// failure is an operator problem, not a saga abort.
	span.AddEvent(stepReleaseSlot)
	if err := o.slots.Release(ctx, completed.StationID); err != nil {
		o.raiseAlert(ctx, sagaEndSession, stepReleaseSlot, completed.ID, completed.StationID,
			&domain.CompensationError{Saga: sagaEndSession, Action: stepReleaseSlot, Err: err})
	}

	o.publish(ctx, domain.NewSessionCompletedEvent(completed))
	telemetry.SagaOutcomesTotal.WithLabelValues(sagaEndSession, "success").Inc()
	o.log.Info("End-session saga committed",
		zap.String("session_id", completed.ID),
		zap.String("cost", completed.Cost.String()),
	)

	return &domain.Receipt{
		SessionID:       completed.ID,
		StationID:       completed.StationID,
		VehicleID:       completed.VehicleID,
		EnergyKwh:       completed.EnergyKwh,
		Cost:            completed.Cost,
		Currency:        completed.Currency,
		TransactionRef:  charge.TransactionRef,
		StartTime:       completed.StartTime,
		EndTime:         *completed.EndTime,
		DurationSeconds: completed.DurationSeconds,
	}, nil
}

// compensateStart undoes the committed start-saga steps in reverse order. A
// compensation that itself fails raises a manual-intervention alert and
// moves on; retrying forever here would block the terminal outcome.
func (o *Orchestrator) compensateStart(ctx context.Context, exec *executionContext, sessionID, stationID string) {
	for _, step := range exec.committed() {
		switch step {
		case stepCreateSession:
			if sessionID == "" {
				continue
			}
			if _, err := o.ledger.CancelSession(ctx, sessionID); err != nil {
				o.raiseAlert(ctx, exec.saga, "cancel_session", sessionID, stationID,
					&domain.CompensationError{Saga: exec.saga, Action: "cancel_session", Err: err})
				continue
			}
			exec.compensated(step)
		case stepReserveSlot:
			if err := o.slots.Release(ctx, stationID); err != nil {
				o.raiseAlert(ctx, exec.saga, "release_slot", sessionID, stationID,
					&domain.CompensationError{Saga: exec.saga, Action: "release_slot", Err: err})
				continue
			}
			exec.compensated(step)
		}
	}
}

// undoCharge refunds a committed charge and marks the session FAILED.
func (o *Orchestrator) undoCharge(ctx context.Context, sessionID, stationID, transactionRef string) {
	refunded, err := o.credit.Refund(ctx, transactionRef)
	if err != nil || !refunded.Success {
		if err == nil {
			err = errors.New("refund rejected by provider")
		}
		o.raiseAlert(ctx, sagaEndSession, "refund_charge", sessionID, stationID,
			&domain.CompensationError{Saga: sagaEndSession, Action: "refund_charge", Err: err})
	}

	if _, err := o.ledger.FailSession(ctx, sessionID, "completion failed after charge"); err != nil {
		o.raiseAlert(ctx, sagaEndSession, "fail_session", sessionID, stationID,
			&domain.CompensationError{Saga: sagaEndSession, Action: "fail_session", Err: err})
	}
}

func (o *Orchestrator) emitStartFailure(ctx context.Context, sessionID, stationID, vehicleID, stage, reason string) {
	o.publish(ctx, domain.NewSessionFailedEvent(sessionID, stationID, vehicleID, stage, reason))
}

// publish is outside the atomicity boundary: a delivery failure is logged by
// the publisher and never unwinds a committed step.
func (o *Orchestrator) publish(ctx context.Context, evt domain.Event) {
	if err := o.publisher.Publish(ctx, evt); err != nil {
		o.log.Error("Event delivery failed",
			zap.String("event_type", string(evt.Type)),
			zap.String("event_id", evt.EventID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) raiseAlert(ctx context.Context, saga, action, sessionID, stationID string, cause error) {
	o.alerts.Raise(ctx, domain.Alert{
		ID:        uuid.New().String(),
		Severity:  domain.AlertSeverityCritical,
		Saga:      saga,
		Action:    action,
		SessionID: sessionID,
		StationID: stationID,
		Message:   cause.Error(),
		CreatedAt: time.Now(),
	})
}

// asCreditError normalizes a validation denial, transport error or timeout
// into one CreditError; a timed-out call is indistinguishable from an
// explicit denial to the caller.
func asCreditError(stage string, res *ports.ValidationResult, err error) *domain.CreditError {
	if err != nil {
		return &domain.CreditError{
			Stage:   stage,
			Reason:  err.Error(),
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return &domain.CreditError{Stage: stage, Reason: res.Reason}
}

func chargeError(err error) *domain.CreditError {
	if err != nil {
		return &domain.CreditError{
			Stage:   "charge",
			Reason:  err.Error(),
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return &domain.CreditError{Stage: "charge", Reason: "charge declined"}
}
