package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/ports"
)

type SessionHandler struct {
	saga     ports.Orchestrator
	ledger   ports.SessionLedger
	sessions ports.SessionRepository
	log      *zap.Logger
}

func NewSessionHandler(saga ports.Orchestrator, ledger ports.SessionLedger, sessions ports.SessionRepository, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		saga:     saga,
		ledger:   ledger,
		sessions: sessions,
		log:      log,
	}
}

type StartSessionRequest struct {
	VehicleID string `json:"vehicle_id"`
	StationID string `json:"station_id"`
	UserID    string `json:"user_id"`
}

type StopSessionRequest struct {
	EnergyKwh decimal.Decimal `json:"energy_kwh"`
}

func (h *SessionHandler) Start(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	sessionID, err := h.saga.StartSessionSaga(c.Context(), req.VehicleID, req.StationID, req.UserID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_id": sessionID})
}

func (h *SessionHandler) BeginCharging(c *fiber.Ctx) error {
	id := c.Params("id")
	session, err := h.ledger.BeginCharging(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *SessionHandler) Stop(c *fiber.Ctx) error {
	id := c.Params("id")

	var req StopSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
	}

	receipt, err := h.saga.EndSessionSaga(c.Context(), id, req.EnergyKwh)
	if err != nil {
		return err
	}

	return c.JSON(receipt)
}

func (h *SessionHandler) Cancel(c *fiber.Ctx) error {
	id := c.Params("id")
	session, err := h.ledger.CancelSession(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	session, err := h.sessions.FindByID(c.Context(), id)
	if err != nil {
		return err
	}
	if session == nil {
		return &domain.NotFoundError{Resource: "session", ID: id}
	}
	return c.JSON(session)
}
