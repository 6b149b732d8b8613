package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/chargeflow/internal/adapter/cache"
	"github.com/voltgrid/chargeflow/internal/adapter/storage/postgres"
	"github.com/voltgrid/chargeflow/internal/ports"
)

var (
	pgOnce    sync.Once
	pgDB      *gorm.DB
	pgErr     error
	redisOnce sync.Once
	redisC    ports.Cache
	redisErr  error
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// setupPostgres starts one postgres container for the whole package and
// returns a migrated gorm handle.
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pgOnce.Do(func() {
		ctx := context.Background()

		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("chargeflow_test"),
			tcpostgres.WithUsername("chargeflow"),
			tcpostgres.WithPassword("chargeflow_test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			pgErr = err
			return
		}

		url, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			pgErr = err
			return
		}

		db, err := postgres.NewConnection(url, 25, 5, testLogger())
		if err != nil {
			pgErr = err
			return
		}
		if err := postgres.RunMigrations(db); err != nil {
			pgErr = err
			return
		}
		pgDB = db
	})

	if pgErr != nil {
		t.Fatalf("Failed to set up postgres container: %v", pgErr)
	}
	return pgDB
}

// setupRedis starts one redis container for the whole package and returns
// the cache adapter connected to it.
func setupRedis(t *testing.T) ports.Cache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	redisOnce.Do(func() {
		ctx := context.Background()

		container, err := tcredis.Run(ctx, "redis:7-alpine",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			redisErr = err
			return
		}

		url, err := container.ConnectionString(ctx)
		if err != nil {
			redisErr = err
			return
		}

		c, err := cache.NewRedisCache(url, testLogger())
		if err != nil {
			redisErr = err
			return
		}
		redisC = c
	})

	if redisErr != nil {
		t.Fatalf("Failed to set up redis container: %v", redisErr)
	}
	return redisC
}
