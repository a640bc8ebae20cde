package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/jackhudsonnnn/p2picks/internal/logging"
	"github.com/jackhudsonnnn/p2picks/internal/ratelimit"
)

// registerRoutes lays out the §6.1 endpoint table under /api/v1, the same
// route-group convention as the teacher's RegisterFiberRoutes, extended
// with the wizard/bet/ticket/table/websocket surface this domain adds.
func (s *FiberServer) registerRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     joinOrigins(s.deps.Config.CORSAllowedOrigins),
		AllowMethods:     "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Accept,Authorization,Content-Type,Idempotency-Key,X-Request-ID",
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.App.Use(logging.Middleware(s.deps.Logger))
	s.App.Use(metricsMiddleware)

	s.App.Get("/health", s.healthHandler)
	s.App.Get("/metrics", s.metricsHandler)

	api := s.App.Group("/api/v1")

	api.Get("/bet-proposals/bootstrap/league/:league", s.bootstrapHandler)

	api.Post("/bet-proposals/sessions", s.createSessionHandler)
	api.Post("/bet-proposals/sessions/:id/choices", s.applyChoiceHandler)
	api.Post("/bet-proposals/sessions/:id/general", s.setGeneralHandler)

	betLimit := ratelimit.Middleware(s.deps.Limiter, ratelimit.KindBets, subjectFromAuth)
	api.Post("/tables/:tableId/bets", betLimit, s.createBetHandler)

	api.Post("/bets/:betId/poke", betLimit, s.pokeHandler)
	api.Post("/bets/:betId/validate", s.validateHandler)
	api.Post("/bets/:betId/participate", s.participateHandler)
	api.Patch("/bets/:betId/guess", s.guessHandler)
	api.Get("/bets/:betId", s.getBetHandler)
	api.Get("/bets/:betId/live-info", s.liveInfoHandler)

	api.Get("/tickets", s.ticketsHandler)
	api.Get("/tables", s.tablesHandler)

	s.App.Get("/ws", websocket.New(s.websocketHandler))
}

func joinOrigins(origins []string) string {
	out := ""
	for i, o := range origins {
		if i > 0 {
			out += ","
		}
		out += o
	}
	if out == "" {
		return "*"
	}
	return out
}
