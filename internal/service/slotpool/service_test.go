package slotpool

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
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

func seedStation(t *testing.T, repo *memory.StationRepository, slots int) *domain.Station {
	t.Helper()
	station := &domain.Station{
		ID:             "station-1",
		Name:           "Test Station",
		TotalSlots:     slots,
		AvailableSlots: slots,
		Status:         domain.StationStatusActive,
		PricePerKwh:    decimal.NewFromFloat(2.50),
		Currency:       "BRL",
	}
	if err := repo.Save(context.Background(), station); err != nil {
		t.Fatalf("seed station: %v", err)
	}
	return station
}

func TestReserve_Success(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewStationRepository()
	seedStation(t, repo, 4)
	publisher := mocks.NewMockEventPublisher()
	pool := NewService(repo, publisher, newTestLogger())

	// Act
	reserved, err := pool.Reserve(ctx, "station-1")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !reserved {
		t.Fatal("expected reservation to succeed")
	}
	station, _ := repo.FindByID(ctx, "station-1")
	if station.AvailableSlots != 3 {
		t.Errorf("expected 3 available slots, got %d", station.AvailableSlots)
	}
	if len(publisher.Events) != 0 {
		t.Errorf("expected no events before the station fills, got %d", len(publisher.Events))
	}
}

func TestReserve_LastSlotEmitsStationOccupied(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewStationRepository()
	seedStation(t, repo, 1)
	publisher := mocks.NewMockEventPublisher()
	pool := NewService(repo, publisher, newTestLogger())

	// Act
	reserved, err := pool.Reserve(ctx, "station-1")

	// Assert
	if err != nil || !reserved {
		t.Fatalf("expected reservation to succeed, got reserved=%v err=%v", reserved, err)
	}
	station, _ := repo.FindByID(ctx, "station-1")
	if station.Status != domain.StationStatusFull {
		t.Errorf("expected status FULL, got %s", station.Status)
	}
	occupied := publisher.EventsOfType(domain.EventStationOccupied)
	if len(occupied) != 1 {
		t.Fatalf("expected exactly one STATION_OCCUPIED event, got %d", len(occupied))
	}
	if occupied[0].StationID != "station-1" {
		t.Errorf("expected station-1 in event, got %s", occupied[0].StationID)
	}
}

func TestReserve_Exhausted(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewStationRepository()
	seedStation(t, repo, 1)
	publisher := mocks.NewMockEventPublisher()
	pool := NewService(repo, publisher, newTestLogger())

	if _, err := pool.Reserve(ctx, "station-1"); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	// Act
	reserved, err := pool.Reserve(ctx, "station-1")

	// Assert
	if err != nil {
		t.Fatalf("capacity exhaustion must not be an error, got %v", err)
	}
	if reserved {
		t.Fatal("expected reservation to be refused on a full station")
	}
}

func TestReserve_UnavailableStation(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewStationRepository()
	station := seedStation(t, repo, 4)
	station.Status = domain.StationStatusMaintenance
	repo.Save(ctx, station)
	publisher := mocks.NewMockEventPublisher()
	pool := NewService(repo, publisher, newTestLogger())

	// Act
	_, err := pool.Reserve(ctx, "station-1")

	// Assert
	var unavailable *domain.StationUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StationUnavailableError, got %v", err)
	}
}

func TestRelease_FreesSlotAndEmitsStationAvailable(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewStationRepository()
	seedStation(t, repo, 1)
	publisher := mocks.NewMockEventPublisher()
	pool := NewService(repo, publisher, newTestLogger())
	pool.Reserve(ctx, "station-1")

	// Act
	err := pool.Release(ctx, "station-1")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	station, _ := repo.FindByID(ctx, "station-1")
	if station.Status != domain.StationStatusActive {
		t.Errorf("expected status back to ACTIVE, got %s", station.Status)
	}
	available := publisher.EventsOfType(domain.EventStationAvailable)
	if len(available) != 1 {
		t.Fatalf("expected exactly one STATION_AVAILABLE event, got %d", len(available))
	}
}

func TestRelease_IdempotentAtFullCapacity(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewStationRepository()
	seedStation(t, repo, 2)
	publisher := mocks.NewMockEventPublisher()
	pool := NewService(repo, publisher, newTestLogger())

	// Act: release without any reservation (duplicate compensation)
	err := pool.Release(ctx, "station-1")

	// Assert
	if err != nil {
		t.Fatalf("duplicate release must be a no-op, got %v", err)
	}
	station, _ := repo.FindByID(ctx, "station-1")
	if station.AvailableSlots != 2 {
		t.Errorf("expected capacity unchanged at 2, got %d", station.AvailableSlots)
	}
}

// TestReserve_ConcurrentLastSlot hammers one remaining slot from many
// goroutines; exactly one reservation may win.
func TestReserve_ConcurrentLastSlot(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := memory.NewStationRepository()
	seedStation(t, repo, 1)
	publisher := mocks.NewMockEventPublisher()
	pool := NewService(repo, publisher, newTestLogger())

	const contenders = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	// Act
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reserved, err := pool.Reserve(ctx, "station-1")
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if reserved {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Assert
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}
	station, _ := repo.FindByID(ctx, "station-1")
	if station.AvailableSlots != 0 {
		t.Errorf("expected 0 available slots, got %d", station.AvailableSlots)
	}
	if got := len(publisher.EventsOfType(domain.EventStationOccupied)); got != 1 {
		t.Errorf("expected one STATION_OCCUPIED event, got %d", got)
	}
}
