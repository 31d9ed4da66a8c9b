package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// requestIDKey is the echo context key the middleware in this package
// shares for request correlation.
const requestIDKey = "request_id"

// ContextRequestID returns the request ID RequestID attached to the
// context, or "" when the middleware did not run.
func ContextRequestID(c echo.Context) string {
	rid, _ := c.Get(requestIDKey).(string)
	return rid
}

// RequestID attaches a request ID to the echo context and response
// header, honoring an inbound X-Request-ID when the caller set one.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(requestIDKey, rid)
			c.Response().Header().Set(echo.HeaderXRequestID, rid)
			return next(c)
		}
	}
}
