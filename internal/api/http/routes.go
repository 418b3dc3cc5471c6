package httpapi

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Carlos329173/AEMET/internal/weather"
)

var validate = validator.New()

// badRequestErrors are the input errors reported to callers as 400.
var badRequestErrors = []error{
	weather.ErrInvalidFormat,
	weather.ErrInvalidRange,
	weather.ErrUnknownStation,
	weather.ErrUnknownAggregation,
	weather.ErrUnknownVariable,
	weather.ErrInvalidTimezone,
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. defaultZone is
// used for the request bounds when the caller sends no location.
func RegisterRoutes(app *fiber.App, service *weather.Service, defaultZone *time.Location) {
	api := app.Group("/api")

	api.Get("/antartida/datos/fechaini/:fechaIniStr/fechafin/:fechaFinStr/estacion/:identificacion", func(c *fiber.Ctx) error {
		var q dataQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		req, err := weather.NewRequest(q.Start, q.End, q.Location, q.Station, q.Aggregation, q.Variables, defaultZone)
		if err != nil {
			return toHTTPError(err)
		}

		records, err := service.Query(c.UserContext(), req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(records)
	})

	api.Get("/stations", func(c *fiber.Ctx) error {
		cached, err := service.CachedStations(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list cached stations")
		}
		inCache := make(map[string]bool, len(cached))
		for _, code := range cached {
			inCache[code] = true
		}

		out := make([]stationView, 0)
		for _, st := range service.Stations().Stations() {
			out = append(out, stationView{Code: st.Code, Name: st.Name, Cached: inCache[st.Code]})
		}
		return c.JSON(out)
	})

	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(service.Stats().Snapshot())
	})
}

// ErrorHandler renders every handler error as {"error":true,"message":...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

func toHTTPError(err error) error {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to query weather data")
}

type stationView struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Cached bool   `json:"cached"`
}

// dataQuery holds the path and query parameters of the data endpoint.
type dataQuery struct {
	Start       string `validate:"required"`
	End         string `validate:"required"`
	Station     string `validate:"required"`
	Location    string
	Aggregation string
	Variables   []string
}

func (q *dataQuery) bind(c *fiber.Ctx) error {
	var err error
	if q.Start, err = pathParam(c, "fechaIniStr"); err != nil {
		return err
	}
	if q.End, err = pathParam(c, "fechaFinStr"); err != nil {
		return err
	}
	if q.Station, err = pathParam(c, "identificacion"); err != nil {
		return err
	}

	q.Location = strings.TrimSpace(c.Query("location"))
	q.Aggregation = strings.TrimSpace(c.Query("aggregation"))

	// variables may repeat, and each occurrence may hold a comma list.
	for _, raw := range c.Context().QueryArgs().PeekMulti("variables") {
		for _, name := range strings.Split(string(raw), ",") {
			if name = strings.TrimSpace(name); name != "" {
				q.Variables = append(q.Variables, name)
			}
		}
	}
	return nil
}

// pathParam returns the unescaped value of a path parameter, so station
// names with spaces work.
func pathParam(c *fiber.Ctx, key string) (string, error) {
	raw := c.Params(key)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.New("invalid path parameter " + key)
	}
	return strings.TrimSpace(v), nil
}
