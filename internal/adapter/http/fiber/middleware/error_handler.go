package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/domain"
)

// ErrorHandler maps domain errors onto HTTP status codes so handlers can
// return service errors as-is.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := statusFor(err)

		if code == fiber.StatusInternalServerError {
			log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

func statusFor(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	var (
		validation  *domain.ValidationError
		notFound    *domain.NotFoundError
		capacity    *domain.CapacityError
		unavailable *domain.StationUnavailableError
		conflict    *domain.ConflictError
		credit      *domain.CreditError
		transition  *domain.IllegalTransitionError
	)

	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &capacity):
		return fiber.StatusConflict
	case errors.As(err, &unavailable):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &conflict):
		return fiber.StatusConflict
	case errors.As(err, &credit):
		return fiber.StatusPaymentRequired
	case errors.As(err, &transition):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
