// Package api exposes the map tables and the last run report over HTTP.
package api

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/pipeline"
	"dzs/taxi-etl/internal/store"
)

var validate = validator.New()

// ReportSource returns the report of the most recent load, or nil.
type ReportSource interface {
	LastReport() *pipeline.RunReport
}

// NewApp builds a Fiber app with the health endpoint, the v1 routes and a
// JSON error handler.
func NewApp(tables store.TableStore, reports ReportSource, logger logging.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "taxi-etl",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "taxi-etl",
		})
	})

	RegisterRoutes(app, tables, reports, logger)
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, tables store.TableStore, reports ReportSource, logger logging.Logger) {
	logger = logging.Component(logger, "api")
	v1 := app.Group("/api/v1")

	v1.Get("/tables/:name", func(c *fiber.Ctx) error {
		q := tableQuery{Name: c.Params("name"), Key: c.Query("key")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		table, revision, err := tables.Load(c.UserContext(), q.Name)
		if err != nil {
			logger.WithError(err).Error("Failed to load map table",
				logging.Field{Key: logging.FieldTable, Value: q.Name})
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load map table")
		}

		if q.Key != "" {
			id, ok := table.Lookup(q.Key)
			if !ok {
				return fiber.NewError(fiber.StatusNotFound, "key not found in map table")
			}
			return c.JSON(fiber.Map{
				"table":        q.Name,
				"key":          q.Key,
				"surrogate_id": id,
			})
		}

		return c.JSON(fiber.Map{
			"table":    q.Name,
			"revision": revision,
			"size":     table.Len(),
			"entries":  table.SortedEntries(),
		})
	})

	v1.Get("/runs/last", func(c *fiber.Ctx) error {
		var report *pipeline.RunReport
		if reports != nil {
			report = reports.LastReport()
		}
		if report == nil {
			return fiber.NewError(fiber.StatusNotFound, "no run has completed yet")
		}
		return c.JSON(report)
	})
}

// tableQuery holds the path and query parameters of the table endpoint.
type tableQuery struct {
	Name string `validate:"required,oneof=payment_type company"`
	Key  string
}
