package httpserver

import (
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Abdo12KM/nour-alma3refa/internal/metrics"
)

// New creates a configured Echo server instance.
func New() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(countRequests)
	return e
}

// countRequests feeds the per-route request counter. The route template is
// used instead of the raw path so user ids do not explode the label space.
func countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		status := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
		}
		path := c.Path()
		if path == "" {
			path = c.Request().URL.Path
		}
		metrics.RequestCount.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
		return err
	}
}
