// Package logging wires github.com/rs/zerolog into the service, following
// the shape of Sergey-Bar-Alfred/services/gateway/logger (console writer in
// development, timestamped JSON otherwise), and adds the Fiber
// request-ID/access-log middleware SPEC_FULL.md's ambient stack calls for.
package logging

import (
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"
const requestIDLocalsKey = "requestId"
const loggerLocalsKey = "logger"

// New builds the process-wide logger. Set env=="development" for
// human-readable console output; anything else yields structured JSON
// suitable for log aggregation.
func New(env string) zerolog.Logger {
	var out zerolog.ConsoleWriter
	lvl := zerolog.InfoLevel
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		lvl = zerolog.DebugLevel
		zerolog.SetGlobalLevel(lvl)
		return zerolog.New(out).With().Timestamp().Logger()
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Middleware assigns (or propagates) a request ID, stashes a
// request-scoped child logger in c.Locals, echoes X-Request-ID on the
// response, and emits one access-log line per request per §6.1.
func Middleware(base zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(RequestIDHeader, reqID)
		c.Locals(requestIDLocalsKey, reqID)

		scoped := base.With().Str("requestId", reqID).Logger()
		c.Locals(loggerLocalsKey, &scoped)

		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		evt := scoped.Info()
		if c.Response().StatusCode() >= 500 {
			evt = scoped.Error()
		} else if c.Response().StatusCode() >= 400 {
			evt = scoped.Warn()
		}
		evt.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("latency", latency).
			Msg("request")

		return err
	}
}

// FromContext returns the request-scoped logger stashed by Middleware,
// falling back to a disabled logger if none was set (e.g. in unit tests
// that construct handlers directly).
func FromContext(c *fiber.Ctx) *zerolog.Logger {
	if l, ok := c.Locals(loggerLocalsKey).(*zerolog.Logger); ok {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// RequestID returns the request ID stashed by Middleware, or "" if absent.
func RequestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(requestIDLocalsKey).(string); ok {
		return id
	}
	return ""
}
