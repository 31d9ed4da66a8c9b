package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one structured access-log line per request. The route
// pattern is logged next to the raw path so parameterized routes like
// /fhir/$flatten-schema/:type aggregate under one key. Client errors
// log at warn, handler errors and 5xx at error.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			res := c.Response()
			evt := logger.Info()
			switch {
			case err != nil:
				evt = logger.Error().Err(err)
			case res.Status >= http.StatusInternalServerError:
				evt = logger.Error()
			case res.Status >= http.StatusBadRequest:
				evt = logger.Warn()
			}

			evt.
				Str("request_id", ContextRequestID(c)).
				Str("method", c.Request().Method).
				Str("route", c.Path()).
				Str("path", c.Request().URL.Path).
				Int("status", res.Status).
				Int64("bytes_out", res.Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request handled")

			return err
		}
	}
}
