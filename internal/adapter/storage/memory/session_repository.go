package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

var _ ports.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]*domain.Session)}
}

// Create enforces the one-active-session-per-vehicle invariant under the
// same lock as the insert, the in-memory equivalent of the partial unique
// index.
func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sessions {
		if existing.VehicleID == s.VehicleID && !existing.State.Terminal() {
			return &domain.ConflictError{VehicleID: s.VehicleID}
		}
	}

	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) FindActiveByVehicle(ctx context.Context, vehicleID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.VehicleID == vehicleID && !s.State.Terminal() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *SessionRepository) BeginCharging(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: id}
	}
	if s.State != domain.SessionStateInitiated {
		return nil, &domain.IllegalTransitionError{SessionID: id, From: s.State, To: domain.SessionStateCharging}
	}

	s.State = domain.SessionStateCharging
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) Complete(ctx context.Context, id string, endTime time.Time, energy, cost decimal.Decimal) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: id}
	}
	if s.State.Terminal() {
		return nil, &domain.IllegalTransitionError{SessionID: id, From: s.State, To: domain.SessionStateCompleted}
	}

	s.State = domain.SessionStateCompleted
	s.EndTime = &endTime
	s.DurationSeconds = int64(endTime.Sub(s.StartTime).Seconds())
	s.EnergyKwh = energy
	s.Cost = cost
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *SessionRepository) Terminate(ctx context.Context, id string, state domain.SessionState, reason string) (*domain.Session, error) {
	if state != domain.SessionStateFailed && state != domain.SessionStateCancelled {
		return nil, &domain.ValidationError{Field: "state", Reason: "terminate accepts FAILED or CANCELLED only"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: id}
	}
	if s.State == state {
		cp := *s
		return &cp, nil
	}
	if s.State.Terminal() {
		return nil, &domain.IllegalTransitionError{SessionID: id, From: s.State, To: state}
	}

	now := time.Now()
	s.State = state
	s.EndTime = &now
	s.FailureReason = reason
	s.UpdatedAt = now
	cp := *s
	return &cp, nil
}
