package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/air-temperature-backfill/internal/backfill"
	"github.com/i474232898/air-temperature-backfill/internal/dates"
	"github.com/i474232898/air-temperature-backfill/internal/pipeline"
	"github.com/i474232898/air-temperature-backfill/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
// defaultStation is used when a backfill request names no station.
func RegisterRoutes(app *fiber.App, service *pipeline.Service, defaultStation string) {
	v1 := app.Group("/api/v1")

	v1.Post("/backfill", func(c *fiber.Ctx) error {
		var req backfillRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if req.Station == "" {
			req.Station = defaultStation
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		report, err := service.Run(c.UserContext(), req.toRequest())
		if err != nil {
			switch {
			case errors.Is(err, dates.ErrInvalidRange):
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			case errors.Is(err, backfill.ErrDataIntegrity):
				return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
			case errors.Is(err, backfill.ErrCancelled):
				return fiber.NewError(fiber.StatusServiceUnavailable, "backfill cancelled")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "backfill failed")
		}

		return c.JSON(report)
	})

	v1.Get("/stations", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"stations": service.Stations()})
	})

	v1.Get("/stations/:station/readings", func(c *fiber.Ctx) error {
		var q readingsQuery
		q.Station = c.Params("station")
		q.From = c.Query("from")
		q.To = c.Query("to")

		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if q.To < q.From {
			return fiber.NewError(fiber.StatusBadRequest, "from must not be after to")
		}

		days, err := service.Readings(q.Station, dates.Key(q.From), dates.Key(q.To))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no readings for requested station and range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch readings")
		}

		return c.JSON(fiber.Map{
			"station": q.Station,
			"from":    q.From,
			"to":      q.To,
			"days":    days,
		})
	})

	v1.Get("/state", func(c *fiber.Ctx) error {
		fetched, err := service.FetchedDates(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load fetched state")
		}
		return c.JSON(fiber.Map{
			"count": len(fetched),
			"dates": fetched,
		})
	})
}

// backfillRequest is the body of POST /backfill.
type backfillRequest struct {
	Start   string `json:"start" validate:"required,datetime=2006-01-02"`
	End     string `json:"end" validate:"required,datetime=2006-01-02"`
	Station string `json:"station" validate:"required,alphanum,max=16"`
	Force   bool   `json:"force"`
}

func (b backfillRequest) toRequest() pipeline.Request {
	return pipeline.Request{
		Start:     dates.Key(b.Start),
		End:       dates.Key(b.End),
		StationID: b.Station,
		Force:     b.Force,
	}
}

// readingsQuery holds path and query parameters for the readings endpoint.
type readingsQuery struct {
	Station string `validate:"required,alphanum,max=16"`
	From    string `validate:"required,datetime=2006-01-02"`
	To      string `validate:"required,datetime=2006-01-02"`
}
