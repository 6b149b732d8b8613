package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type StationStatus string

const (
	StationStatusActive      StationStatus = "ACTIVE"
	StationStatusFull        StationStatus = "FULL"
	StationStatusMaintenance StationStatus = "MAINTENANCE"
	StationStatusInactive    StationStatus = "INACTIVE"
)

// Station is the capacity pool for one charging site. AvailableSlots is
// mutated only through the slot pool's atomic reserve/release operations;
// the invariant 0 <= available <= total holds at all times.
type Station struct {
	ID             string          `json:"id" gorm:"primaryKey"`
	Name           string          `json:"name"`
	TotalSlots     int             `json:"total_slots"`
	AvailableSlots int             `json:"available_slots"`
	Status         StationStatus   `json:"status" gorm:"index"`
	PricePerKwh    decimal.Decimal `json:"price_per_kwh" gorm:"type:numeric(10,2)"`
	Currency       string          `json:"currency"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Reservable reports whether the station accepts new reservations at all.
// A FULL station is reservable in principle (capacity is the expected
// rejection branch); MAINTENANCE and INACTIVE are operator-set and are not.
func (s *Station) Reservable() bool {
	return s.Status == StationStatusActive || s.Status == StationStatusFull
}
