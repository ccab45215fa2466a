package web

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	ge "github.com/mimiro-io/grade-export"
)

type LoggerConfig struct {
	// Skipper defines a function to skip middleware.
	Skipper middleware.Skipper

	ServiceName string
	Logger      ge.Logger
	Metrics     ge.Metrics
}

// LoggerFilter logs every request and reports count, time and size to statsd.
// Handler errors are rendered here so the logged status is the one sent.
func LoggerFilter(config LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			start := time.Now()
			req := c.Request()
			res := c.Response()

			if err := next(c); err != nil {
				c.Error(err)
			}

			timed := time.Since(start)
			tags := []string{
				fmt.Sprintf("application:%s", config.ServiceName),
				fmt.Sprintf("method:%s", strings.ToLower(req.Method)),
				fmt.Sprintf("route:%s", c.Path()),
				fmt.Sprintf("status:%d", res.Status),
			}

			var err error
			if lerr := config.Metrics.Incr("http.count", tags, 1); lerr != nil {
				err = lerr
			}
			if lerr := config.Metrics.Timing("http.time", timed, tags, 1); lerr != nil {
				err = lerr
			}
			if lerr := config.Metrics.Gauge("http.size", float64(res.Size), tags, 1); lerr != nil {
				err = lerr
			}
			if err != nil {
				config.Logger.Warn("Error with metrics", "error", err.Error())
			}

			msg := fmt.Sprintf("%d - %s %s (time: %s, size: %d, user_agent: %s)",
				res.Status, req.Method, req.RequestURI, timed.String(), res.Size, req.UserAgent())

			args := []any{
				"time", timed.String(),
				"request", fmt.Sprintf("%s %s", req.Method, req.RequestURI),
				"status", res.Status,
				"size", res.Size,
				"user_agent", req.UserAgent(),
			}

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			if id != "" {
				args = append(args, "request_id", id)
			}

			config.Logger.Info(msg, args...)
			return nil
		}
	}
}
