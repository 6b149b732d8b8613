package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

const uniqueViolationCode = "23505"

type SessionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSessionRepository(db *gorm.DB, log *zap.Logger) ports.SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log,
	}
}

// Create inserts the session. The partial unique index on
// sessions(vehicle_id) for non-terminal states makes the
// no-active-session check and the insert one atomic operation; a concurrent
// duplicate surfaces here as a unique violation, never as a lost race.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return &domain.ConflictError{VehicleID: s.VehicleID}
		}
		return err
	}
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) FindActiveByVehicle(ctx context.Context, vehicleID string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Where("vehicle_id = ? AND state IN ?", vehicleID, domain.ActiveSessionStates).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) BeginCharging(ctx context.Context, id string) (*domain.Session, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND state = ?", id, domain.SessionStateInitiated).
		Updates(map[string]interface{}{
			"state":      domain.SessionStateCharging,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, r.explainTransitionMiss(ctx, id, domain.SessionStateCharging)
	}
	return r.FindByID(ctx, id)
}

func (r *SessionRepository) Complete(ctx context.Context, id string, endTime time.Time, energy, cost decimal.Decimal) (*domain.Session, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND state IN ?", id, domain.ActiveSessionStates).
		Updates(map[string]interface{}{
			"state":            domain.SessionStateCompleted,
			"end_time":         endTime,
			"duration_seconds": gorm.Expr("CAST(EXTRACT(EPOCH FROM (?::timestamptz - start_time)) AS bigint)", endTime),
			"energy_kwh":       energy,
			"cost":             cost,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, r.explainTransitionMiss(ctx, id, domain.SessionStateCompleted)
	}
	return r.FindByID(ctx, id)
}

func (r *SessionRepository) Terminate(ctx context.Context, id string, state domain.SessionState, reason string) (*domain.Session, error) {
	if state != domain.SessionStateFailed && state != domain.SessionStateCancelled {
		return nil, &domain.ValidationError{Field: "state", Reason: "terminate accepts FAILED or CANCELLED only"}
	}

	now := time.Now()
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND state IN ?", id, domain.ActiveSessionStates).
		Updates(map[string]interface{}{
			"state":          state,
			"end_time":       now,
			"failure_reason": reason,
			"updated_at":     now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		cur, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, &domain.NotFoundError{Resource: "session", ID: id}
		}
		if cur.State == state {
			// Already in the requested terminal state: idempotent.
			return cur, nil
		}
		return nil, &domain.IllegalTransitionError{SessionID: id, From: cur.State, To: state}
	}
	return r.FindByID(ctx, id)
}

func (r *SessionRepository) explainTransitionMiss(ctx context.Context, id string, target domain.SessionState) error {
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return &domain.NotFoundError{Resource: "session", ID: id}
	}
	return &domain.IllegalTransitionError{SessionID: id, From: cur.State, To: target}
}
