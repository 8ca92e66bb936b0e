package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

// RecordCounter reports how many weather records are stored.
type RecordCounter interface {
	Count(ctx context.Context) (int, error)
}

// RegisterHealth mounts GET /health. It answers 503 when the store cannot be read.
func RegisterHealth(app *fiber.App, serviceName string, records RecordCounter, service *weather.Service) {
	app.Get("/health", func(c *fiber.Ctx) error {
		count, err := records.Count(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "store unavailable")
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  serviceName,
			"provider": service.ProviderName(),
			"records":  count,
			"sweeping": service.Sweeping(),
		})
	})
}
