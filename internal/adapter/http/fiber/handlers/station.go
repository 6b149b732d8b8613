package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type StationHandler struct {
	stations ports.StationRepository
	cache    ports.Cache
	log      *zap.Logger
}

func NewStationHandler(stations ports.StationRepository, cache ports.Cache, log *zap.Logger) *StationHandler {
	return &StationHandler{
		stations: stations,
		cache:    cache,
		log:      log,
	}
}

type CreateStationRequest struct {
	Name        string          `json:"name"`
	TotalSlots  int             `json:"total_slots"`
	PricePerKwh decimal.Decimal `json:"price_per_kwh"`
	Currency    string          `json:"currency"`
}

func (h *StationHandler) Create(c *fiber.Ctx) error {
	var req CreateStationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}
	if req.TotalSlots <= 0 {
		return &domain.ValidationError{Field: "total_slots", Reason: "must be positive"}
	}
	if req.PricePerKwh.IsNegative() {
		return &domain.ValidationError{Field: "price_per_kwh", Reason: "must not be negative"}
	}

	now := time.Now().UTC()
	station := &domain.Station{
		ID:             uuid.NewString(),
		Name:           req.Name,
		TotalSlots:     req.TotalSlots,
		AvailableSlots: req.TotalSlots,
		Status:         domain.StationStatusActive,
		PricePerKwh:    req.PricePerKwh,
		Currency:       req.Currency,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if station.Currency == "" {
		station.Currency = "BRL"
	}

	if err := h.stations.Save(c.Context(), station); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(station)
}

func (h *StationHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	station, err := h.stations.FindByID(c.Context(), id)
	if err != nil {
		return err
	}
	if station == nil {
		return &domain.NotFoundError{Resource: "station", ID: id}
	}
	return c.JSON(station)
}

// GetStatus serves the event-driven capacity projection from the cache and
// falls back to the repository when no projection has been written yet.
func (h *StationHandler) GetStatus(c *fiber.Ctx) error {
	id := c.Params("id")

	if cached, err := h.cache.Get(c.Context(), "station:"+id+":status"); err == nil {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	station, err := h.stations.FindByID(c.Context(), id)
	if err != nil {
		return err
	}
	if station == nil {
		return &domain.NotFoundError{Resource: "station", ID: id}
	}

	return c.JSON(fiber.Map{
		"station_id":      station.ID,
		"status":          station.Status,
		"available_slots": station.AvailableSlots,
		"total_slots":     station.TotalSlots,
	})
}
