package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/fhirtab/fhirtab/internal/platform/fhir"
)

// Recovery converts handler panics into a 500 OperationOutcome so one
// failing request cannot take the server down. The stack trace goes to
// the log only, never to the caller.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				logger.Error().
					Str("request_id", ContextRequestID(c)).
					Str("route", c.Path()).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				if !c.Response().Committed {
					_ = c.JSON(http.StatusInternalServerError,
						fhir.ErrorOutcome("internal server error"))
				}
			}()
			return next(c)
		}
	}
}
