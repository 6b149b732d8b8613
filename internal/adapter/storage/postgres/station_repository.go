package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type StationRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStationRepository(db *gorm.DB, log *zap.Logger) ports.StationRepository {
	return &StationRepository{
		db:  db,
		log: log,
	}
}

func (r *StationRepository) Save(ctx context.Context, station *domain.Station) error {
	return r.db.WithContext(ctx).Save(station).Error
}

func (r *StationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	var station domain.Station
	err := r.db.WithContext(ctx).First(&station, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &station, nil
}

type slotRow struct {
	AvailableSlots int
	TotalSlots     int
	Status         domain.StationStatus
}

// ReserveSlot is a single conditional decrement. The WHERE clause closes the
// race window: two concurrent calls on a one-slot station can never both
// match, because each UPDATE re-evaluates available_slots under row lock.
func (r *StationRepository) ReserveSlot(ctx context.Context, id string) (ports.SlotReservation, error) {
	var row slotRow
	res := r.db.WithContext(ctx).Raw(`
		UPDATE stations
		SET available_slots = available_slots - 1,
		    status = CASE WHEN available_slots - 1 = 0 THEN 'FULL' ELSE status END,
		    updated_at = NOW()
		WHERE id = ? AND status = 'ACTIVE' AND available_slots > 0
		RETURNING available_slots, total_slots, status`, id).Scan(&row)
	if res.Error != nil {
		return ports.SlotReservation{}, res.Error
	}
	if res.RowsAffected == 0 {
		return r.explainReserveMiss(ctx, id)
	}

	return ports.SlotReservation{
		Reserved:       true,
		BecameFull:     row.AvailableSlots == 0,
		AvailableSlots: row.AvailableSlots,
		TotalSlots:     row.TotalSlots,
	}, nil
}

// explainReserveMiss disambiguates a zero-row reserve: unknown station,
// operator-disabled station, or plain capacity exhaustion.
func (r *StationRepository) explainReserveMiss(ctx context.Context, id string) (ports.SlotReservation, error) {
	station, err := r.FindByID(ctx, id)
	if err != nil {
		return ports.SlotReservation{}, err
	}
	if station == nil {
		return ports.SlotReservation{}, &domain.NotFoundError{Resource: "station", ID: id}
	}
	if !station.Reservable() {
		return ports.SlotReservation{}, &domain.StationUnavailableError{StationID: id, Status: station.Status}
	}
	return ports.SlotReservation{
		Reserved:       false,
		AvailableSlots: station.AvailableSlots,
		TotalSlots:     station.TotalSlots,
	}, nil
}

// ReleaseSlot is the matching conditional increment, capped at total_slots.
// Releasing an already-full-capacity station matches no row and is a no-op.
func (r *StationRepository) ReleaseSlot(ctx context.Context, id string) (ports.SlotRelease, error) {
	var row slotRow
	res := r.db.WithContext(ctx).Raw(`
		UPDATE stations
		SET available_slots = available_slots + 1,
		    status = CASE WHEN status = 'FULL' THEN 'ACTIVE' ELSE status END,
		    updated_at = NOW()
		WHERE id = ? AND available_slots < total_slots
		RETURNING available_slots, total_slots, status`, id).Scan(&row)
	if res.Error != nil {
		return ports.SlotRelease{}, res.Error
	}
	if res.RowsAffected == 0 {
		station, err := r.FindByID(ctx, id)
		if err != nil {
			return ports.SlotRelease{}, err
		}
		if station == nil {
			return ports.SlotRelease{}, &domain.NotFoundError{Resource: "station", ID: id}
		}
		// Already at full capacity: idempotent under duplicate compensation.
		return ports.SlotRelease{
			Released:       false,
			AvailableSlots: station.AvailableSlots,
			TotalSlots:     station.TotalSlots,
		}, nil
	}

	return ports.SlotRelease{
		Released:        true,
		BecameAvailable: row.Status == domain.StationStatusActive && row.AvailableSlots == 1,
		AvailableSlots:  row.AvailableSlots,
		TotalSlots:      row.TotalSlots,
	}, nil
}
