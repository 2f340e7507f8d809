package httpapi

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/stationwatch/stationwatch/internal/export"
	"github.com/stationwatch/stationwatch/internal/query"
	"github.com/stationwatch/stationwatch/internal/snapshot"
	"github.com/stationwatch/stationwatch/internal/station"
	"github.com/stationwatch/stationwatch/internal/telemetry"
)

var validate = validator.New()

// Deps are the collaborators the HTTP surface reads from. Everything is
// read-only from here: handlers never mutate the store or the directory.
type Deps struct {
	Engine    *query.Engine
	Snapshot  *snapshot.Service
	Directory *station.Directory
	Exporter  *export.Exporter
	Location  *time.Location
	Logger    zerolog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	api := app.Group("/api")

	// Representative observations for a (window, tab) pair. Without both
	// parameters the latest cycle's cached rows are returned. On query
	// failure the handler degrades to the cached rows instead of erroring.
	api.Get("/data", func(c *fiber.Ctx) error {
		snap := deps.Snapshot.Get()

		var updated *string
		if !snap.UpdatedAt.IsZero() {
			s := telemetry.FormatCivil(snap.UpdatedAt)
			updated = &s
		}

		windowStr := c.Query("window")
		tabStr := c.Query("tab")
		if windowStr == "" || tabStr == "" {
			return c.JSON(fiber.Map{"updated_at": updated, "rows": cachedRows(snap)})
		}

		rows, err := deps.Engine.Select(c.Context(), query.ParseWindow(windowStr), query.ParseMetric(tabStr))
		if err != nil {
			deps.Logger.Error().Err(err).
				Str("window", windowStr).Str("tab", tabStr).
				Msg("window query failed; serving last good snapshot")
			return c.JSON(fiber.Map{"updated_at": updated, "rows": cachedRows(snap)})
		}
		if rows == nil {
			rows = []map[string]any{}
		}
		return c.JSON(fiber.Map{"updated_at": updated, "rows": rows})
	})

	// Station directory with denormalized zone and group memberships.
	api.Get("/stations", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"groups":   deps.Directory.GroupNames(),
			"stations": deps.Directory.All(),
		})
	})

	// On-demand rewrite of one day's CSV artifact.
	api.Get("/export", func(c *fiber.Ctx) error {
		var req exportQuery
		req.Date = c.Query("date")
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}

		day, err := time.ParseInLocation("2006-01-02", req.Date, deps.Location)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be YYYY-MM-DD")
		}

		path, err := deps.Exporter.WriteDay(c.Context(), day)
		if err != nil {
			deps.Logger.Error().Err(err).Str("date", req.Date).Msg("export failed")
			return fiber.NewError(fiber.StatusInternalServerError, "failed to write export")
		}
		return c.JSON(fiber.Map{"file": path})
	})
}

func cachedRows(snap snapshot.Snapshot) []telemetry.Observation {
	if snap.Rows == nil {
		return []telemetry.Observation{}
	}
	return snap.Rows
}

// exportQuery holds query parameters for the export endpoint.
type exportQuery struct {
	Date string `validate:"required,datetime=2006-01-02"`
}
