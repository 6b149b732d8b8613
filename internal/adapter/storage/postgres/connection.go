package postgres

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/voltgrid/chargeflow/internal/domain"
)

// NewConnection initializes a PostgreSQL connection pool using GORM.
func NewConnection(url string, maxOpen, maxIdle int, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if maxOpen <= 0 {
		maxOpen = 50
	}
	if maxIdle <= 0 {
		maxIdle = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)

	log.Info("Successfully connected to PostgreSQL")
	return db, nil
}

// RunMigrations creates the schema plus the partial unique index that
// enforces the one-active-session-per-vehicle invariant. The index is the
// atomic primitive the ledger's Create relies on; AutoMigrate alone cannot
// express it.
func RunMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Station{}, &domain.Session{}, &domain.Alert{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_vehicle_active
		ON sessions (vehicle_id)
		WHERE state IN ('INITIATED', 'CHARGING')`).Error
	if err != nil {
		return fmt.Errorf("create active-session index: %w", err)
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
