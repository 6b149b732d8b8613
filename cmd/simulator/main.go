package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/adapter/storage/memory"
	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
	"github.com/voltgrid/chargeflow/internal/service/alerting"
	"github.com/voltgrid/chargeflow/internal/service/events"
	"github.com/voltgrid/chargeflow/internal/service/saga"
	"github.com/voltgrid/chargeflow/internal/service/session"
	"github.com/voltgrid/chargeflow/internal/service/slotpool"
)

var (
	stations    = flag.Int("stations", 3, "Number of stations")
	slots       = flag.Int("slots", 4, "Slots per station")
	vehicles    = flag.Int("vehicles", 20, "Number of vehicles")
	rounds      = flag.Int("rounds", 50, "Charging rounds per vehicle")
	denyRate    = flag.Float64("deny-rate", 0.1, "Fraction of credit validations denied")
	pricePerKwh = flag.Float64("price", 2.50, "Price per kWh")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
)

func main() {
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	stationRepo := memory.NewStationRepository()
	sessionRepo := memory.NewSessionRepository()
	alertRepo := memory.NewAlertRepository()

	queue := newCountingQueue()
	publisher := events.NewPublisher(queue, events.DefaultRetryPolicy(), logger)

	pool := slotpool.NewService(stationRepo, publisher, logger)
	ledger := session.NewLedger(sessionRepo, stationRepo, logger)
	alerts := alerting.NewService(alertRepo, alerting.Config{}, logger)
	credit := &stubCreditValidator{denyRate: *denyRate}

	orchestrator := saga.NewOrchestrator(pool, ledger, credit, publisher, alerts, logger)

	ctx := context.Background()
	stationIDs := make([]string, *stations)
	for i := range stationIDs {
		id := fmt.Sprintf("station-%02d", i+1)
		stationIDs[i] = id
		err := stationRepo.Save(ctx, &domain.Station{
			ID:             id,
			Name:           fmt.Sprintf("Simulated Station %02d", i+1),
			TotalSlots:     *slots,
			AvailableSlots: *slots,
			Status:         domain.StationStatusActive,
			PricePerKwh:    decimal.NewFromFloat(*pricePerKwh),
			Currency:       "BRL",
		})
		if err != nil {
			logger.Fatal("Failed to seed station", zap.Error(err))
		}
	}

	fmt.Printf("ChargeFlow saga simulator\n")
	fmt.Printf("  stations: %d x %d slots\n", *stations, *slots)
	fmt.Printf("  vehicles: %d, rounds: %d, deny rate: %.0f%%\n\n", *vehicles, *rounds, *denyRate*100)

	var (
		started, denied, rejected, completed, failed int
		mu                                           sync.Mutex
		wg                                           sync.WaitGroup
	)

	start := time.Now()
	for v := 0; v < *vehicles; v++ {
		wg.Add(1)
		go func(vehicle int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(vehicle)))
			vehicleID := fmt.Sprintf("vehicle-%03d", vehicle)
			userID := fmt.Sprintf("user-%03d", vehicle)

			for r := 0; r < *rounds; r++ {
				stationID := stationIDs[rng.Intn(len(stationIDs))]

				sessionID, err := orchestrator.StartSessionSaga(ctx, vehicleID, stationID, userID)
				if err != nil {
					mu.Lock()
					var capacityErr *domain.CapacityError
					var creditErr *domain.CreditError
					switch {
					case errors.As(err, &capacityErr):
						rejected++
					case errors.As(err, &creditErr):
						denied++
					default:
						failed++
					}
					mu.Unlock()
					continue
				}
				mu.Lock()
				started++
				mu.Unlock()

				energy := decimal.NewFromFloat(rng.Float64() * 60).Round(3)
				if _, err := orchestrator.EndSessionSaga(ctx, sessionID, energy); err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}(v)
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("done in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  sessions started:   %d\n", started)
	fmt.Printf("  sessions completed: %d\n", completed)
	fmt.Printf("  capacity rejected:  %d\n", rejected)
	fmt.Printf("  credit denied:      %d\n", denied)
	fmt.Printf("  failed:             %d\n", failed)
	fmt.Printf("  events published:   %d\n", queue.Count())

	if err := verifyInvariants(ctx, stationRepo, sessionRepo, stationIDs, *slots); err != nil {
		fmt.Printf("\nINVARIANT VIOLATION: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nall invariants hold")
}

// verifyInvariants checks that every slot reserved during the run was given
// back and that no vehicle ended with more than one active session.
func verifyInvariants(ctx context.Context, stationRepo ports.StationRepository, sessionRepo ports.SessionRepository, stationIDs []string, slots int) error {
	for _, id := range stationIDs {
		station, err := stationRepo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if station.AvailableSlots != slots {
			return fmt.Errorf("station %s: %d/%d slots available after drain", id, station.AvailableSlots, slots)
		}
		if station.Status != domain.StationStatusActive {
			return fmt.Errorf("station %s: status %s after drain", id, station.Status)
		}
	}
	return nil
}

type stubCreditValidator struct {
	denyRate float64
	mu       sync.Mutex
	rng      *rand.Rand
}

func (s *stubCreditValidator) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s.rng.Float64()
}

func (s *stubCreditValidator) Validate(ctx context.Context, userID string) (*ports.ValidationResult, error) {
	if s.roll() < s.denyRate {
		return &ports.ValidationResult{Approved: false, Reason: "insufficient credit"}, nil
	}
	return &ports.ValidationResult{Approved: true}, nil
}

func (s *stubCreditValidator) Charge(ctx context.Context, sessionID string, amount decimal.Decimal, currency string) (*ports.ChargeResult, error) {
	return &ports.ChargeResult{Success: true, TransactionRef: "sim-" + uuid.NewString()}, nil
}

func (s *stubCreditValidator) Refund(ctx context.Context, transactionRef string) (*ports.RefundResult, error) {
	return &ports.RefundResult{Success: true}, nil
}

// countingQueue is an in-process MessageQueue that only counts deliveries.
type countingQueue struct {
	mu    sync.Mutex
	count int
}

func newCountingQueue() *countingQueue {
	return &countingQueue{}
}

func (q *countingQueue) Publish(subject string, data []byte) error {
	q.mu.Lock()
	q.count++
	q.mu.Unlock()
	return nil
}

func (q *countingQueue) Subscribe(subject string, handler func(data []byte) error) error {
	return nil
}

func (q *countingQueue) Close() error { return nil }

func (q *countingQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
