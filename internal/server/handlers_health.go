package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jackhudsonnnn/p2picks/internal/livedata"
)

// healthHandler aggregates DB, Redis, circuit-breaker, and queue-worker
// status, extended from the teacher's healthHandler (which only checked
// db/cache/game) to cover every subsystem SPEC_FULL.md names, §6.1.
// Returns 503 "unhealthy" when the DB, Redis or queue check is down;
// otherwise 200, "degraded" when any league's circuit breaker is not
// closed and "healthy" when all are closed.
func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	dbHealth := s.deps.DB.Health(c.Context())
	cacheHealth := s.deps.Cache.Health(c.Context())

	breakers := fiber.Map{}
	degraded := false
	for _, league := range s.deps.Config.Leagues() {
		state := s.deps.Ingest.BreakerState(league)
		breakers[league] = state.String()
		if state != livedata.BreakerClosed {
			degraded = true
		}
	}

	queueDepth, err := s.deps.Queue.Depth(c.Context())
	queueStatus := "up"
	if err != nil {
		queueStatus = "down"
	}

	status := "healthy"
	code := fiber.StatusOK
	if dbHealth["status"] != "up" || cacheHealth["status"] != "up" || queueStatus != "up" {
		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	} else if degraded {
		status = "degraded"
	}

	return c.Status(code).JSON(fiber.Map{
		"status":   status,
		"database": dbHealth,
		"cache":    cacheHealth,
		"livedata": fiber.Map{"breakers": breakers},
		"queue": fiber.Map{
			"status": queueStatus,
			"depth":  queueDepth,
		},
	})
}
