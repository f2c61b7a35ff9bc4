package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
)

// requestLogger routes echo's request log through the shared logger.
func requestLogger(logger log.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]any{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency.String(),
			}
			if v.Error != nil {
				fields["error"] = v.Error
				logger.Warn(fields, "request failed")
				return nil
			}
			logger.Debug(fields, "request")
			return nil
		},
	})
}
