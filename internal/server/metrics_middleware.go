package server

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jackhudsonnnn/p2picks/internal/metrics"
)

// metricsMiddleware records the HTTPRequestsTotal/HTTPRequestDuration
// collectors per route/method/status, the request-path half of
// SPEC_FULL.md's DOMAIN STACK promauto wiring (the other half is the
// queue-depth/breaker-state background reporters started from
// cmd/server).
func metricsMiddleware(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	route := c.Route().Path
	method := c.Method()
	status := strconv.Itoa(c.Response().StatusCode())

	metrics.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())

	return err
}
