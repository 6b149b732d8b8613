package saga

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/adapter/storage/memory"
	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/mocks"
	"github.com/voltgrid/chargeflow/internal/ports"
	"github.com/voltgrid/chargeflow/internal/service/session"
	"github.com/voltgrid/chargeflow/internal/service/slotpool"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// harness wires a full orchestrator over in-memory storage with mock credit,
// publisher and alerting.
type harness struct {
	orchestrator ports.Orchestrator
	stations     *memory.StationRepository
	sessions     *memory.SessionRepository
	credit       *mocks.MockCreditValidator
	publisher    *mocks.MockEventPublisher
	alerts       *mocks.MockAlertService
}

func newHarness(t *testing.T, slots int) *harness {
	t.Helper()

	stations := memory.NewStationRepository()
	sessions := memory.NewSessionRepository()
	credit := mocks.NewMockCreditValidator()
	publisher := mocks.NewMockEventPublisher()
	alerts := mocks.NewMockAlertService()
	log := newTestLogger()

	err := stations.Save(context.Background(), &domain.Station{
		ID:             "station-1",
		Name:           "Test Station",
		TotalSlots:     slots,
		AvailableSlots: slots,
		Status:         domain.StationStatusActive,
		PricePerKwh:    decimal.RequireFromString("12.00"),
		Currency:       "BRL",
	})
	if err != nil {
		t.Fatalf("seed station: %v", err)
	}

	pool := slotpool.NewService(stations, publisher, log)
	ledger := session.NewLedger(sessions, stations, log)

	return &harness{
		orchestrator: NewOrchestrator(pool, ledger, credit, publisher, alerts, log),
		stations:     stations,
		sessions:     sessions,
		credit:       credit,
		publisher:    publisher,
		alerts:       alerts,
	}
}

func (h *harness) availableSlots(t *testing.T) int {
	t.Helper()
	station, err := h.stations.FindByID(context.Background(), "station-1")
	if err != nil || station == nil {
		t.Fatalf("station lookup: %v", err)
	}
	return station.AvailableSlots
}

func TestStartSessionSaga_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 4)

	// Act
	sessionID, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session id")
	}
	if got := h.availableSlots(t); got != 3 {
		t.Errorf("expected 3 available slots, got %d", got)
	}
	s, _ := h.sessions.FindByID(ctx, sessionID)
	if s == nil || s.State != domain.SessionStateInitiated {
		t.Fatalf("expected INITIATED session, got %+v", s)
	}
	started := h.publisher.EventsOfType(domain.EventSessionStarted)
	if len(started) != 1 {
		t.Fatalf("expected one SESSION_STARTED event, got %d", len(started))
	}
	if started[0].SessionID != sessionID || started[0].StationID != "station-1" {
		t.Errorf("unexpected event envelope: %+v", started[0])
	}
	if len(h.alerts.Raised) != 0 {
		t.Errorf("expected no alerts, got %d", len(h.alerts.Raised))
	}
}

func TestStartSessionSaga_MissingUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 4)

	_, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "")

	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := h.availableSlots(t); got != 4 {
		t.Errorf("expected no slot taken, got %d available", got)
	}
}

func TestStartSessionSaga_CapacityExhausted(t *testing.T) {
	// Arrange: a one-slot station already occupied
	ctx := context.Background()
	h := newHarness(t, 1)
	if _, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1"); err != nil {
		t.Fatalf("first start: %v", err)
	}

	// Act
	_, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-2", "station-1", "user-2")

	// Assert
	var capacity *domain.CapacityError
	if !errors.As(err, &capacity) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if active, _ := h.sessions.FindActiveByVehicle(ctx, "vehicle-2"); active != nil {
		t.Error("expected no session for the rejected vehicle")
	}
}

// TestStartSessionSaga_CreditDenied is the full compensation path: slot
// reserved and session created, then the credit check denies. Both steps must
// be undone in reverse and SESSION_FAILED emitted after compensation.
func TestStartSessionSaga_CreditDenied(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 4)
	h.credit.ValidateFunc = func(ctx context.Context, userID string) (*ports.ValidationResult, error) {
		return &ports.ValidationResult{Approved: false, Reason: "insufficient credit"}, nil
	}

	// Act
	_, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")

	// Assert
	var credErr *domain.CreditError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CreditError, got %v", err)
	}
	if credErr.Timeout {
		t.Error("a denial is not a timeout")
	}
	if got := h.availableSlots(t); got != 4 {
		t.Errorf("expected the slot back after compensation, got %d available", got)
	}
	if active, _ := h.sessions.FindActiveByVehicle(ctx, "vehicle-1"); active != nil {
		t.Errorf("expected no active session after compensation, got %s", active.State)
	}
	failed := h.publisher.EventsOfType(domain.EventSessionFailed)
	if len(failed) != 1 {
		t.Fatalf("expected one SESSION_FAILED event, got %d", len(failed))
	}
	if len(h.publisher.EventsOfType(domain.EventSessionStarted)) != 0 {
		t.Error("SESSION_STARTED must not fire on a denied start")
	}
}

func TestStartSessionSaga_CreditTimeout(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 4)
	h.credit.ValidateFunc = func(ctx context.Context, userID string) (*ports.ValidationResult, error) {
		return nil, context.DeadlineExceeded
	}

	// Act
	_, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")

	// Assert: a timeout is handled exactly like a denial
	var credErr *domain.CreditError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CreditError, got %v", err)
	}
	if !credErr.Timeout {
		t.Error("expected Timeout flag on a deadline error")
	}
	if got := h.availableSlots(t); got != 4 {
		t.Errorf("expected the slot back after compensation, got %d available", got)
	}
}

func TestStartSessionSaga_ConflictReleasesSlot(t *testing.T) {
	// Arrange: vehicle-1 already charging
	ctx := context.Background()
	h := newHarness(t, 4)
	if _, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1"); err != nil {
		t.Fatalf("first start: %v", err)
	}

	// Act
	_, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")

	// Assert
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if got := h.availableSlots(t); got != 3 {
		t.Errorf("expected only the first reservation held, got %d available", got)
	}
}

// TestStartSessionSaga_ConcurrentSameVehicle races N starts for one vehicle;
// exactly one may win, and every loser's slot must come back.
func TestStartSessionSaga_ConcurrentSameVehicle(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 10)

	const contenders = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	// Act
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Assert
	if wins != 1 {
		t.Fatalf("expected exactly 1 winning start, got %d", wins)
	}
	if got := h.availableSlots(t); got != 9 {
		t.Errorf("expected 9 available slots after losers compensated, got %d", got)
	}
}

func TestStartSessionSaga_CompensationFailureRaisesAlert(t *testing.T) {
	// Arrange: credit denies and the slot release then fails
	ctx := context.Background()
	h := newHarness(t, 4)
	h.credit.ValidateFunc = func(ctx context.Context, userID string) (*ports.ValidationResult, error) {
		return &ports.ValidationResult{Approved: false, Reason: "insufficient credit"}, nil
	}

	pool := &mocks.MockSlotPool{
		ReleaseFunc: func(ctx context.Context, stationID string) error {
			return errors.New("storage offline")
		},
	}
	ledger := session.NewLedger(h.sessions, h.stations, newTestLogger())
	orchestrator := NewOrchestrator(pool, ledger, h.credit, h.publisher, h.alerts, newTestLogger())

	// Act
	_, err := orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")

	// Assert: credit error still surfaces, with a manual-intervention alert
	var credErr *domain.CreditError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CreditError, got %v", err)
	}
	if len(h.alerts.Raised) != 1 {
		t.Fatalf("expected one alert, got %d", len(h.alerts.Raised))
	}
	alert := h.alerts.Raised[0]
	if alert.Action != "release_slot" || alert.Severity != domain.AlertSeverityCritical {
		t.Errorf("unexpected alert: %+v", alert)
	}
}

func TestStartSessionSaga_PublishFailureIsNotFatal(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 4)
	h.publisher.PublishFunc = func(ctx context.Context, evt domain.Event) error {
		return errors.New("broker unreachable")
	}

	// Act
	sessionID, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")

	// Assert
	if err != nil {
		t.Fatalf("publish failure must not fail the saga, got %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected a session id")
	}
	if got := h.availableSlots(t); got != 3 {
		t.Errorf("expected the reservation to stand, got %d available", got)
	}
}

func TestEndSessionSaga_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 4)
	sessionID, err := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Act: 45.0 kWh at 12.00
	receipt, err := h.orchestrator.EndSessionSaga(ctx, sessionID, decimal.RequireFromString("45.0"))

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !receipt.Cost.Equal(decimal.RequireFromString("540.00")) {
		t.Errorf("expected cost 540.00, got %s", receipt.Cost)
	}
	if receipt.Currency != "BRL" {
		t.Errorf("expected BRL, got %s", receipt.Currency)
	}
	if receipt.TransactionRef == "" {
		t.Error("expected a transaction ref from the charge")
	}
	if got := h.availableSlots(t); got != 4 {
		t.Errorf("expected the slot freed, got %d available", got)
	}
	if len(h.credit.Charged) != 1 || !h.credit.Charged[0].Equal(decimal.RequireFromString("540.00")) {
		t.Errorf("expected one charge of 540.00, got %v", h.credit.Charged)
	}
	if len(h.publisher.EventsOfType(domain.EventSessionCompleted)) != 1 {
		t.Error("expected one SESSION_COMPLETED event")
	}
	if len(h.credit.Refunded) != 0 {
		t.Errorf("expected no refunds, got %v", h.credit.Refunded)
	}
}

func TestEndSessionSaga_ChargeDeclined(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 4)
	sessionID, _ := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")
	h.credit.ChargeFunc = func(ctx context.Context, sessionID string, amount decimal.Decimal, currency string) (*ports.ChargeResult, error) {
		return &ports.ChargeResult{Success: false}, nil
	}

	// Act
	_, err := h.orchestrator.EndSessionSaga(ctx, sessionID, decimal.RequireFromString("10"))

	// Assert: nothing was committed, so nothing compensates
	var credErr *domain.CreditError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CreditError, got %v", err)
	}
	s, _ := h.sessions.FindByID(ctx, sessionID)
	if s.State.Terminal() {
		t.Errorf("expected session still active after declined charge, got %s", s.State)
	}
	if got := h.availableSlots(t); got != 3 {
		t.Errorf("expected the slot still held, got %d available", got)
	}
	if len(h.credit.Refunded) != 0 {
		t.Errorf("expected no refunds, got %v", h.credit.Refunded)
	}
}

// TestEndSessionSaga_CompletionFailureRefunds covers the charged-but-
// unrecorded path: the ledger write fails after money moved, so the charge is
// refunded and the session marked FAILED.
func TestEndSessionSaga_CompletionFailureRefunds(t *testing.T) {
	// Arrange
	ctx := context.Background()
	credit := mocks.NewMockCreditValidator()
	publisher := mocks.NewMockEventPublisher()
	alerts := mocks.NewMockAlertService()
	pool := mocks.NewMockSlotPool()

	ledger := mocks.NewMockSessionLedger()
	ledger.QuoteCostFunc = func(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (decimal.Decimal, *domain.Session, error) {
		return decimal.RequireFromString("540.00"), &domain.Session{
			ID:        sessionID,
			StationID: "station-1",
			VehicleID: "vehicle-1",
			State:     domain.SessionStateCharging,
			Currency:  "BRL",
		}, nil
	}
	ledger.CompleteSessionFunc = func(ctx context.Context, sessionID string, energyKwh decimal.Decimal) (*domain.Session, error) {
		return nil, errors.New("ledger write failed")
	}

	orchestrator := NewOrchestrator(pool, ledger, credit, publisher, alerts, newTestLogger())

	// Act
	_, err := orchestrator.EndSessionSaga(ctx, "session-1", decimal.RequireFromString("45.0"))

	// Assert
	if err == nil {
		t.Fatal("expected the completion failure to surface")
	}
	if len(credit.Charged) != 1 {
		t.Fatalf("expected one charge, got %d", len(credit.Charged))
	}
	if len(credit.Refunded) != 1 {
		t.Fatalf("expected the charge refunded, got %d refunds", len(credit.Refunded))
	}
	if len(ledger.Failed) != 1 || ledger.Failed[0] != "session-1" {
		t.Errorf("expected the session marked FAILED, got %v", ledger.Failed)
	}
	if len(publisher.EventsOfType(domain.EventSessionFailed)) != 1 {
		t.Error("expected one SESSION_FAILED event")
	}
	if len(publisher.EventsOfType(domain.EventSessionCompleted)) != 0 {
		t.Error("SESSION_COMPLETED must not fire when the ledger write failed")
	}
}

func TestEndSessionSaga_ReleaseFailureStillSucceeds(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h := newHarness(t, 4)
	sessionID, _ := h.orchestrator.StartSessionSaga(ctx, "vehicle-1", "station-1", "user-1")

	pool := &mocks.MockSlotPool{
		ReleaseFunc: func(ctx context.Context, stationID string) error {
			return errors.New("storage offline")
		},
	}
	ledger := session.NewLedger(h.sessions, h.stations, newTestLogger())
	orchestrator := NewOrchestrator(pool, ledger, h.credit, h.publisher, h.alerts, newTestLogger())

	// Act
	receipt, err := orchestrator.EndSessionSaga(ctx, sessionID, decimal.RequireFromString("10"))

	// Assert: the session is settled; the stuck slot is an operator problem
	if err != nil {
		t.Fatalf("expected success despite release failure, got %v", err)
	}
	if receipt == nil {
		t.Fatal("expected a receipt")
	}
	if len(h.alerts.Raised) != 1 {
		t.Fatalf("expected one alert for the stuck slot, got %d", len(h.alerts.Raised))
	}
}

func TestEndSessionSaga_UnknownSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 4)

	_, err := h.orchestrator.EndSessionSaga(ctx, "no-such-session", decimal.RequireFromString("10"))

	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(h.credit.Charged) != 0 {
		t.Errorf("expected no charge for an unknown session, got %v", h.credit.Charged)
	}
}
