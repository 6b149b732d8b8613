package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/voltgrid/chargeflow/internal/ports"
)

type HealthHandler struct {
	version string
	cache   ports.Cache
}

func NewHealthHandler(version string, cache ports.Cache) *HealthHandler {
	return &HealthHandler{version: version, cache: cache}
}

func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "version": h.version})
}

func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	if h.cache != nil {
		if err := h.cache.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"cache":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ready", "version": h.version})
}
