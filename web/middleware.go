package web

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	ge "github.com/mimiro-io/grade-export"
)

type Middleware []echo.MiddlewareFunc

func NewMiddleware(core *ge.CoreService) Middleware {
	skipper := func(c echo.Context) bool {
		// skip health check
		return strings.HasPrefix(c.Request().URL.Path, "/health")
	}

	serviceName := ""
	var origins []string
	if lc := core.Config.LayerServiceConfig; lc != nil {
		serviceName = lc.ServiceName
		origins = lc.CorsOrigins
	}

	m := Middleware{LoggerFilter(LoggerConfig{
		Skipper:     skipper,
		ServiceName: serviceName,
		Logger:      core.Logger,
		Metrics:     core.Metrics,
	})}
	m = append(m, setupCors(origins))
	m = append(m, setupRecovery(skipper, core.Logger))
	return m
}

func setupCors(origins []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  origins,
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	})
}

func setupRecovery(skipper func(c echo.Context) bool, logger ge.Logger) echo.MiddlewareFunc {
	config := middleware.DefaultRecoverConfig
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			defer func() {
				if r := recover(); r != nil {
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					stack := make([]byte, config.StackSize)
					length := runtime.Stack(stack, !config.DisableStackAll)
					if !config.DisablePrintStack {
						logger.Warn(fmt.Sprintf("[PANIC RECOVER] %v %s\n", err, stack[:length]))
					}
					c.Error(err)
				}
			}()
			return next(c)
		}
	}
}
