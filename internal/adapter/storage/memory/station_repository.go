// Package memory provides in-memory repositories with the same conditional
// semantics as the postgres adapters. The saga and slot-pool tests and the
// load simulator run against these.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type StationRepository struct {
	mu       sync.Mutex
	stations map[string]*domain.Station
}

var _ ports.StationRepository = (*StationRepository)(nil)

func NewStationRepository() *StationRepository {
	return &StationRepository{stations: make(map[string]*domain.Station)}
}

func (r *StationRepository) Save(ctx context.Context, station *domain.Station) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *station
	r.stations[station.ID] = &cp
	return nil
}

func (r *StationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	station, ok := r.stations[id]
	if !ok {
		return nil, nil
	}
	cp := *station
	return &cp, nil
}

// ReserveSlot performs check and decrement under one lock, mirroring the
// single conditional UPDATE of the postgres adapter.
func (r *StationRepository) ReserveSlot(ctx context.Context, id string) (ports.SlotReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	station, ok := r.stations[id]
	if !ok {
		return ports.SlotReservation{}, &domain.NotFoundError{Resource: "station", ID: id}
	}
	if !station.Reservable() {
		return ports.SlotReservation{}, &domain.StationUnavailableError{StationID: id, Status: station.Status}
	}
	if station.Status != domain.StationStatusActive || station.AvailableSlots <= 0 {
		return ports.SlotReservation{
			Reserved:       false,
			AvailableSlots: station.AvailableSlots,
			TotalSlots:     station.TotalSlots,
		}, nil
	}

	station.AvailableSlots--
	station.UpdatedAt = time.Now()
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

func (r *StationRepository) ReleaseSlot(ctx context.Context, id string) (ports.SlotRelease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	station, ok := r.stations[id]
	if !ok {
		return ports.SlotRelease{}, &domain.NotFoundError{Resource: "station", ID: id}
	}
	if station.AvailableSlots >= station.TotalSlots {
		return ports.SlotRelease{
			Released:       false,
			AvailableSlots: station.AvailableSlots,
			TotalSlots:     station.TotalSlots,
		}, nil
	}

	station.AvailableSlots++
	station.UpdatedAt = time.Now()
	becameAvailable := false
	if station.Status == domain.StationStatusFull {
		station.Status = domain.StationStatusActive
		becameAvailable = true
	}

	return ports.SlotRelease{
		Released:        true,
		BecameAvailable: becameAvailable,
		AvailableSlots:  station.AvailableSlots,
		TotalSlots:      station.TotalSlots,
	}, nil
}
