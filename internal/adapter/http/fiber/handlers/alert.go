package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/ports"
)

type AlertHandler struct {
	alerts ports.AlertRepository
	log    *zap.Logger
}

func NewAlertHandler(alerts ports.AlertRepository, log *zap.Logger) *AlertHandler {
	return &AlertHandler{alerts: alerts, log: log}
}

func (h *AlertHandler) List(c *fiber.Ctx) error {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	alerts, err := h.alerts.ListUnacknowledged(c.Context(), limit)
	if err != nil {
		return err
	}

	return c.JSON(alerts)
}

func (h *AlertHandler) Acknowledge(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.alerts.Acknowledge(c.Context(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
