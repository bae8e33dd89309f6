package api

import (
	"context"
	"net/http"

	"github.com/datallboy/mediaq/internal/api/controllers"
	"github.com/datallboy/mediaq/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func RegisterRoutes(e *echo.Echo, app *app.Context, proc controllers.Processor) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("[API] %s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	e.GET("/healthz", func(c *echo.Context) error {
		if p, ok := app.Store.(pinger); ok {
			if err := p.Ping(c.Request().Context()); err != nil {
				return c.String(http.StatusServiceUnavailable, "store unavailable")
			}
		}
		return c.String(http.StatusOK, "ok")
	})

	jobs := &controllers.JobsController{App: app, Processor: proc}

	g := e.Group("/api")
	g.GET("/jobs", jobs.List)
	g.GET("/jobs/:id", jobs.Show)
	g.POST("/jobs/image", jobs.EnqueueImage)
	g.POST("/jobs/hls", jobs.EnqueueHLS)
	g.POST("/jobs/:id/retry", jobs.Retry)
	g.POST("/process", jobs.Process)
	g.GET("/stats", jobs.Stats)
}
