package mocks

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

// MockSlotPool is a mock implementation of SlotPool
type MockSlotPool struct {
	ReserveFunc func(ctx context.Context, stationID string) (bool, error)
	ReleaseFunc func(ctx context.Context, stationID string) error

	mu       sync.Mutex
	Reserved []string
	Released []string
}

func NewMockSlotPool() *MockSlotPool {
	return &MockSlotPool{}
}

func (m *MockSlotPool) Reserve(ctx context.Context, stationID string) (bool, error) {
	m.mu.Lock()
	m.Reserved = append(m.Reserved, stationID)
	m.mu.Unlock()
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, stationID)
	}
	return true, nil
}

func (m *MockSlotPool) Release(ctx context.Context, stationID string) error {
	m.mu.Lock()
	m.Released = append(m.Released, stationID)
	m.mu.Unlock()
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, stationID)
	}
	return nil
}

// MockSessionLedger is a mock implementation of SessionLedger
type MockSessionLedger struct {
	StartSessionFunc    func(ctx context.Context, vehicleID, stationID, userID string) (*domain.Session, error)
	BeginChargingFunc   func(ctx context.Context, sessionID string) (*domain.Session, error)
	QuoteCostFunc       func(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (decimal.Decimal, *domain.Session, error)
	CompleteSessionFunc func(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (*domain.Session, error)
	FailSessionFunc     func(ctx context.Context, sessionID, reason string) (*domain.Session, error)
	CancelSessionFunc   func(ctx context.Context, sessionID string) (*domain.Session, error)

	mu        sync.Mutex
	Failed    []string
	Cancelled []string
}

func NewMockSessionLedger() *MockSessionLedger {
	return &MockSessionLedger{}
}

func (m *MockSessionLedger) StartSession(ctx context.Context, vehicleID, stationID, userID string) (*domain.Session, error) {
	if m.StartSessionFunc != nil {
		return m.StartSessionFunc(ctx, vehicleID, stationID, userID)
	}
	return &domain.Session{
		ID:        "session-1",
		VehicleID: vehicleID,
		StationID: stationID,
		UserID:    userID,
		State:     domain.SessionStateInitiated,
	}, nil
}

func (m *MockSessionLedger) BeginCharging(ctx context.Context, sessionID string) (*domain.Session, error) {
	if m.BeginChargingFunc != nil {
		return m.BeginChargingFunc(ctx, sessionID)
	}
	return &domain.Session{ID: sessionID, State: domain.SessionStateCharging}, nil
}

func (m *MockSessionLedger) QuoteCost(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (decimal.Decimal, *domain.Session, error) {
	if m.QuoteCostFunc != nil {
		return m.QuoteCostFunc(ctx, sessionID, energyKwh)
	}
	return decimal.Zero, &domain.Session{ID: sessionID, State: domain.SessionStateCharging}, nil
}

func (m *MockSessionLedger) CompleteSession(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (*domain.Session, error) {
	if m.CompleteSessionFunc != nil {
		return m.CompleteSessionFunc(ctx, sessionID, energyKwh)
	}
	return &domain.Session{ID: sessionID, State: domain.SessionStateCompleted, EnergyKwh: energyKwh}, nil
}

func (m *MockSessionLedger) FailSession(ctx context.Context, sessionID, reason string) (*domain.Session, error) {
	m.mu.Lock()
	m.Failed = append(m.Failed, sessionID)
	m.mu.Unlock()
	if m.FailSessionFunc != nil {
		return m.FailSessionFunc(ctx, sessionID, reason)
	}
	return &domain.Session{ID: sessionID, State: domain.SessionStateFailed, FailureReason: reason}, nil
}

func (m *MockSessionLedger) CancelSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.mu.Lock()
	m.Cancelled = append(m.Cancelled, sessionID)
	m.mu.Unlock()
	if m.CancelSessionFunc != nil {
		return m.CancelSessionFunc(ctx, sessionID)
	}
	return &domain.Session{ID: sessionID, State: domain.SessionStateCancelled}, nil
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	PublishFunc func(ctx context.Context, evt domain.Event) error

	mu     sync.Mutex
	Events []domain.Event
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, evt domain.Event) error {
	m.mu.Lock()
	m.Events = append(m.Events, evt)
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, evt)
	}
	return nil
}

// EventsOfType returns published events matching the given type, in order.
func (m *MockEventPublisher) EventsOfType(t domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Event
	for _, evt := range m.Events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

// MockAlertService is a mock implementation of AlertService
type MockAlertService struct {
	RaiseFunc func(ctx context.Context, alert domain.Alert)

	mu     sync.Mutex
	Raised []domain.Alert
}

func NewMockAlertService() *MockAlertService {
	return &MockAlertService{}
}

func (m *MockAlertService) Raise(ctx context.Context, alert domain.Alert) {
	m.mu.Lock()
	m.Raised = append(m.Raised, alert)
	m.mu.Unlock()
	if m.RaiseFunc != nil {
		m.RaiseFunc(ctx, alert)
	}
}

// MockCreditValidator is a mock implementation of CreditValidator
type MockCreditValidator struct {
	ValidateFunc func(ctx context.Context, userID string) (*ports.ValidationResult, error)
	ChargeFunc   func(ctx context.Context, sessionID string, amount decimal.Decimal, currency string) (*ports.ChargeResult, error)
	RefundFunc   func(ctx context.Context, transactionRef string) (*ports.RefundResult, error)

	mu       sync.Mutex
	Charged  []decimal.Decimal
	Refunded []string
}

func NewMockCreditValidator() *MockCreditValidator {
	return &MockCreditValidator{}
}

func (m *MockCreditValidator) Validate(ctx context.Context, userID string) (*ports.ValidationResult, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, userID)
	}
	return &ports.ValidationResult{Approved: true}, nil
}

func (m *MockCreditValidator) Charge(ctx context.Context, sessionID string, amount decimal.Decimal, currency string) (*ports.ChargeResult, error) {
	m.mu.Lock()
	m.Charged = append(m.Charged, amount)
	m.mu.Unlock()
	if m.ChargeFunc != nil {
		return m.ChargeFunc(ctx, sessionID, amount, currency)
	}
	return &ports.ChargeResult{Success: true, TransactionRef: "txn-" + sessionID}, nil
}

func (m *MockCreditValidator) Refund(ctx context.Context, transactionRef string) (*ports.RefundResult, error) {
	m.mu.Lock()
	m.Refunded = append(m.Refunded, transactionRef)
	m.mu.Unlock()
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, transactionRef)
	}
	return &ports.RefundResult{Success: true}, nil
}
