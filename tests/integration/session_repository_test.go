package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/voltgrid/chargeflow/internal/adapter/storage/postgres"
	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

func newSession(vehicleID, stationID string) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		StationID: stationID,
		UserID:    "user-1",
		State:     domain.SessionStateInitiated,
		StartTime: now,
		Currency:  "BRL",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSessionRepository_UniqueActivePerVehicle(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewSessionRepository(db, testLogger())
	ctx := context.Background()
	vehicleID := uuid.NewString()

	require.NoError(t, repo.Create(ctx, newSession(vehicleID, "station-1")))

	// The partial unique index rejects a second active session.
	err := repo.Create(ctx, newSession(vehicleID, "station-2"))
	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, vehicleID, conflict.VehicleID)
}

// TestSessionRepository_ConcurrentCreateSameVehicle drives the index race
// directly: N simultaneous inserts for one vehicle, one row wins.
func TestSessionRepository_ConcurrentCreateSameVehicle(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewSessionRepository(db, testLogger())
	ctx := context.Background()
	vehicleID := uuid.NewString()

	const contenders = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.Create(ctx, newSession(vehicleID, "station-1")); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, created, "exactly one active session per vehicle")
}

func TestSessionRepository_ActiveAllowedAfterTerminal(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewSessionRepository(db, testLogger())
	ctx := context.Background()
	vehicleID := uuid.NewString()

	first := newSession(vehicleID, "station-1")
	require.NoError(t, repo.Create(ctx, first))

	_, err := repo.Terminate(ctx, first.ID, domain.SessionStateCancelled, "")
	require.NoError(t, err)

	// Terminal rows fall out of the partial index scope.
	require.NoError(t, repo.Create(ctx, newSession(vehicleID, "station-1")))
}

func TestSessionRepository_CompleteStampsFields(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewSessionRepository(db, testLogger())
	ctx := context.Background()

	s := newSession(uuid.NewString(), "station-1")
	require.NoError(t, repo.Create(ctx, s))
	_, err := repo.BeginCharging(ctx, s.ID)
	require.NoError(t, err)

	endTime := time.Now().UTC().Add(30 * time.Minute)
	completed, err := repo.Complete(ctx, s.ID, endTime,
		decimal.RequireFromString("45.0"), decimal.RequireFromString("540.00"))
	require.NoError(t, err)
	require.Equal(t, domain.SessionStateCompleted, completed.State)
	require.True(t, completed.Cost.Equal(decimal.RequireFromString("540.00")))
	require.NotNil(t, completed.EndTime)
	require.InDelta(t, 1800, completed.DurationSeconds, 5)

	// Terminal is immutable.
	_, err = repo.Complete(ctx, s.ID, endTime, decimal.Zero, decimal.Zero)
	var illegal *domain.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
}

func TestSessionRepository_TerminateIdempotent(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewSessionRepository(db, testLogger())
	ctx := context.Background()

	s := newSession(uuid.NewString(), "station-1")
	require.NoError(t, repo.Create(ctx, s))

	_, err := repo.Terminate(ctx, s.ID, domain.SessionStateFailed, "credit denied")
	require.NoError(t, err)

	// Same terminal state again is a no-op.
	again, err := repo.Terminate(ctx, s.ID, domain.SessionStateFailed, "credit denied")
	require.NoError(t, err)
	require.Equal(t, domain.SessionStateFailed, again.State)

	// A different terminal state is illegal.
	_, err = repo.Terminate(ctx, s.ID, domain.SessionStateCancelled, "")
	var illegal *domain.IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
}

func TestSessionRepository_FindActiveByVehicle(t *testing.T) {
	db := setupPostgres(t)
	repo := postgres.NewSessionRepository(db, testLogger())
	ctx := context.Background()
	vehicleID := uuid.NewString()

	require.Nil(t, mustFindActive(t, repo, ctx, vehicleID))

	s := newSession(vehicleID, "station-1")
	require.NoError(t, repo.Create(ctx, s))

	active := mustFindActive(t, repo, ctx, vehicleID)
	require.NotNil(t, active)
	require.Equal(t, s.ID, active.ID)

	_, err := repo.Terminate(ctx, s.ID, domain.SessionStateCancelled, "")
	require.NoError(t, err)
	require.Nil(t, mustFindActive(t, repo, ctx, vehicleID))
}

func mustFindActive(t *testing.T, repo ports.SessionRepository, ctx context.Context, vehicleID string) *domain.Session {
	t.Helper()
	s, err := repo.FindActiveByVehicle(ctx, vehicleID)
	require.NoError(t, err)
	return s
}
