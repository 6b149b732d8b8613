package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

// MockStationRepository is a mock implementation of StationRepository
type MockStationRepository struct {
	mu       sync.Mutex
	stations map[string]*domain.Station

	SaveFunc        func(ctx context.Context, station *domain.Station) error
	FindByIDFunc    func(ctx context.Context, id string) (*domain.Station, error)
	ReserveSlotFunc func(ctx context.Context, id string) (ports.SlotReservation, error)
	ReleaseSlotFunc func(ctx context.Context, id string) (ports.SlotRelease, error)
}

func NewMockStationRepository() *MockStationRepository {
	return &MockStationRepository{
		stations: make(map[string]*domain.Station),
	}
}

func (m *MockStationRepository) Save(ctx context.Context, station *domain.Station) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, station)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *station
	m.stations[station.ID] = &copied
	return nil
}

func (m *MockStationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	station, ok := m.stations[id]
	if !ok {
		return nil, nil
	}
	copied := *station
	return &copied, nil
}

func (m *MockStationRepository) ReserveSlot(ctx context.Context, id string) (ports.SlotReservation, error) {
	if m.ReserveSlotFunc != nil {
		return m.ReserveSlotFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	station, ok := m.stations[id]
	if !ok {
		return ports.SlotReservation{}, &domain.NotFoundError{Resource: "station", ID: id}
	}
	if !station.Reservable() {
		return ports.SlotReservation{}, &domain.StationUnavailableError{StationID: id, Status: station.Status}
	}
	if station.AvailableSlots == 0 {
		return ports.SlotReservation{AvailableSlots: 0, TotalSlots: station.TotalSlots}, nil
	}
	station.AvailableSlots--
	becameFull := station.AvailableSlots == 0
	if becameFull {
		station.Status = domain.StationStatusFull
	}
	return ports.SlotReservation{
		Reserved:       true,
		BecameFull:     becameFull,
		AvailableSlots: station.AvailableSlots,
		TotalSlots:     station.TotalSlots,
	}, nil
}

func (m *MockStationRepository) ReleaseSlot(ctx context.Context, id string) (ports.SlotRelease, error) {
	if m.ReleaseSlotFunc != nil {
		return m.ReleaseSlotFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	station, ok := m.stations[id]
	if !ok {
		return ports.SlotRelease{}, &domain.NotFoundError{Resource: "station", ID: id}
	}
	if station.AvailableSlots >= station.TotalSlots {
		return ports.SlotRelease{AvailableSlots: station.AvailableSlots, TotalSlots: station.TotalSlots}, nil
	}
	station.AvailableSlots++
	becameAvailable := station.Status == domain.StationStatusFull && station.AvailableSlots == 1
	if station.Status == domain.StationStatusFull {
		station.Status = domain.StationStatusActive
	}
	return ports.SlotRelease{
		Released:        true,
		BecameAvailable: becameAvailable,
		AvailableSlots:  station.AvailableSlots,
		TotalSlots:      station.TotalSlots,
	}, nil
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session

	CreateFunc              func(ctx context.Context, s *domain.Session) error
	FindByIDFunc            func(ctx context.Context, id string) (*domain.Session, error)
	FindActiveByVehicleFunc func(ctx context.Context, vehicleID string) (*domain.Session, error)
	BeginChargingFunc       func(ctx context.Context, id string) (*domain.Session, error)
	CompleteFunc            func(ctx context.Context, id string, endTime time.Time, energy, cost decimal.Decimal) (*domain.Session, error)
	TerminateFunc           func(ctx context.Context, id string, state domain.SessionState, reason string) (*domain.Session, error)
}

func NewMockSessionRepository() *MockSessionRepository {
	return &MockSessionRepository{
		sessions: make(map[string]*domain.Session),
	}
}

func (m *MockSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.VehicleID == s.VehicleID && !existing.State.Terminal() {
			return &domain.ConflictError{VehicleID: s.VehicleID}
		}
	}
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

func (m *MockSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *MockSessionRepository) FindActiveByVehicle(ctx context.Context, vehicleID string) (*domain.Session, error) {
	if m.FindActiveByVehicleFunc != nil {
		return m.FindActiveByVehicleFunc(ctx, vehicleID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.VehicleID == vehicleID && !s.State.Terminal() {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockSessionRepository) BeginCharging(ctx context.Context, id string) (*domain.Session, error) {
	if m.BeginChargingFunc != nil {
		return m.BeginChargingFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: id}
	}
	if s.State != domain.SessionStateInitiated {
		return nil, &domain.IllegalTransitionError{SessionID: id, From: s.State, To: domain.SessionStateCharging}
	}
	s.State = domain.SessionStateCharging
	copied := *s
	return &copied, nil
}

func (m *MockSessionRepository) Complete(ctx context.Context, id string, endTime time.Time, energy, cost decimal.Decimal) (*domain.Session, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, id, endTime, energy, cost)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
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
	copied := *s
	return &copied, nil
}

func (m *MockSessionRepository) Terminate(ctx context.Context, id string, state domain.SessionState, reason string) (*domain.Session, error) {
	if m.TerminateFunc != nil {
		return m.TerminateFunc(ctx, id, state, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "session", ID: id}
	}
	if s.State == state {
		copied := *s
		return &copied, nil
	}
	if s.State.Terminal() {
		return nil, &domain.IllegalTransitionError{SessionID: id, From: s.State, To: state}
	}
	s.State = state
	s.FailureReason = reason
	copied := *s
	return &copied, nil
}

// MockAlertRepository is a mock implementation of AlertRepository
type MockAlertRepository struct {
	mu     sync.Mutex
	Alerts []domain.Alert

	SaveFunc func(ctx context.Context, alert *domain.Alert) error
}

func NewMockAlertRepository() *MockAlertRepository {
	return &MockAlertRepository{}
}

func (m *MockAlertRepository) Save(ctx context.Context, alert *domain.Alert) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, alert)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, *alert)
	return nil
}

func (m *MockAlertRepository) FindByID(ctx context.Context, id string) (*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Alerts {
		if m.Alerts[i].ID == id {
			copied := m.Alerts[i]
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *MockAlertRepository) ListUnacknowledged(ctx context.Context, limit int) ([]domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Alert
	for _, a := range m.Alerts {
		if !a.Acknowledged {
			out = append(out, a)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MockAlertRepository) Acknowledge(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Alerts {
		if m.Alerts[i].ID == id {
			m.Alerts[i].Acknowledged = true
			return nil
		}
	}
	return &domain.NotFoundError{Resource: "alert", ID: id}
}
