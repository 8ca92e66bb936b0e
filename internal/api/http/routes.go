package httpapi

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/i474232898/weather-lookup-cache/internal/weather"
)

var validate = validator.New()

const errExactlyOneKey = "exactly one of city or zipCode query parameters is required"

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather", func(c *fiber.Ctx) error {
		q, err := parseLookupQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, errExactlyOneKey)
		}

		res, err := service.Lookup(c.UserContext(), q.toKey())
		if err != nil {
			if errors.Is(err, weather.ErrEmptyQuery) {
				return fiber.NewError(fiber.StatusBadRequest, errExactlyOneKey)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to look up weather data")
		}

		switch res.Outcome {
		case weather.OutcomeHit:
			c.Set("X-Cache", "HIT")
			return c.JSON(res.Record)
		case weather.OutcomeFetched:
			c.Set("X-Cache", "MISS")
			return c.JSON(res.Record)
		case weather.OutcomeNotFound:
			return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
		default:
			return fiber.NewError(fiber.StatusServiceUnavailable, "weather provider unavailable, try again later")
		}
	})

	v1.Get("/weather/records", func(c *fiber.Ctx) error {
		records, err := service.Records(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list weather records")
		}
		return c.JSON(fiber.Map{
			"count":   len(records),
			"records": records,
		})
	})

	v1.Post("/weather/refresh", func(c *fiber.Ctx) error {
		report, err := service.RefreshAll(c.UserContext())
		if err != nil {
			if errors.Is(err, weather.ErrSweepInProgress) {
				return fiber.NewError(fiber.StatusConflict, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "refresh sweep failed")
		}
		return c.JSON(report)
	})
}

// lookupQuery holds the query parameters identifying a location.
// Exactly one of City/ZipCode must be set.
type lookupQuery struct {
	City    string `validate:"required_without=ZipCode,excluded_with=ZipCode"`
	ZipCode string `validate:"required_without=City,excluded_with=City"`
}

func (q lookupQuery) toKey() weather.LookupKey {
	if q.ZipCode != "" {
		return weather.ZipKey(q.ZipCode)
	}
	return weather.CityKey(q.City)
}

func parseLookupQuery(c *fiber.Ctx) (lookupQuery, error) {
	var q lookupQuery

	// Query values alias the request buffer; the keys outlive the request.
	q.City = utils.CopyString(strings.TrimSpace(c.Query("city")))
	q.ZipCode = utils.CopyString(strings.TrimSpace(c.Query("zipCode")))

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}
