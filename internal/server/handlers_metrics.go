package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var metricsHTTPHandler = adaptor.HTTPHandler(promhttp.Handler())

// metricsHandler exposes the promauto collectors registered by
// internal/metrics, adapted onto Fiber's net/http-compatible handler.
func (s *FiberServer) metricsHandler(c *fiber.Ctx) error {
	return metricsHTTPHandler(c)
}
