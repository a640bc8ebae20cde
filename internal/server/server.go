// Package server wires the HTTP surface of §6.1: a Fiber app embedding
// every dependency the handlers need, the same FiberServer-embeds-*fiber.App
// shape as the teacher's internal/server/server.go, generalized from one
// crash-game engine to the full bet-proposal/session/resolver stack.
package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
	"github.com/jackhudsonnnn/p2picks/internal/cache"
	"github.com/jackhudsonnnn/p2picks/internal/config"
	"github.com/jackhudsonnnn/p2picks/internal/database"
	"github.com/jackhudsonnnn/p2picks/internal/hub"
	"github.com/jackhudsonnnn/p2picks/internal/idempotency"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
	"github.com/jackhudsonnnn/p2picks/internal/logging"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
	"github.com/jackhudsonnnn/p2picks/internal/proposal"
	"github.com/jackhudsonnnn/p2picks/internal/queue"
	"github.com/jackhudsonnnn/p2picks/internal/ratelimit"
	"github.com/jackhudsonnnn/p2picks/internal/resolver"
	"github.com/jackhudsonnnn/p2picks/internal/session"
)

// Deps bundles every wired dependency cmd/server assembles before calling
// New. Kept as one struct (rather than a long constructor parameter list)
// because the handlers cut across nearly all of it.
type Deps struct {
	Config *config.Config
	Logger zerolog.Logger

	DB    database.Service
	Cache cache.Service

	Bets           *database.BetProposalRepo
	Participations *database.BetParticipationRepo
	Tables         *database.TableRepo
	History        *database.ResolutionHistoryRepo
	FeedItems      *database.FeedItemRepo

	Registry  *modes.Registry
	Sessions  *session.Service
	Proposals *proposal.Service
	Limiter   *ratelimit.Limiter
	Idempotency *idempotency.Store

	Live    livedata.ReadAPI
	Ingest  *livedata.Ingest
	Queue   *queue.Queue
	Resolver *resolver.Worker
	Hub     *hub.Hub
}

// FiberServer is the Fiber app plus the dependencies its handlers close
// over, mirroring the teacher's `FiberServer{*fiber.App, db database.Service}`
// embedding, extended to the full dependency set this domain needs.
type FiberServer struct {
	*fiber.App
	deps Deps
}

// New builds the Fiber app with the shared error handler wired in, then
// registers routes. Handlers are methods on *FiberServer so they close
// over deps without a global.
func New(deps Deps) *FiberServer {
	s := &FiberServer{deps: deps}
	s.App = fiber.New(fiber.Config{
		ServerHeader: "p2picks",
		AppName:      "p2picks",
		ErrorHandler: s.errorHandler,
	})
	s.registerRoutes()
	return s
}

// errorHandler maps apperror.Error to the §7 envelope
// {error, code, requestId, details?}; anything else is logged at ERROR
// and answered with a generic 500, per §7 "Unknown errors ... responded
// to with generic 500, stack traces suppressed in production". Adapted
// from other_examples' net/http status-switch to fiber.Config.ErrorHandler.
func (s *FiberServer) errorHandler(c *fiber.Ctx, err error) error {
	requestID := logging.RequestID(c)

	if appErr, ok := apperror.As(err); ok {
		body := fiber.Map{
			"error":     appErr.Message,
			"code":      appErr.Code,
			"requestId": requestID,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		return c.Status(appErr.StatusCode).JSON(body)
	}

	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(fiber.Map{
			"error":     fe.Message,
			"requestId": requestID,
		})
	}

	logging.FromContext(c).Error().Err(err).Str("requestId", requestID).Msg("server: unhandled error")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":     "internal server error",
		"code":      "INTERNAL_ERROR",
		"requestId": requestID,
	})
}
