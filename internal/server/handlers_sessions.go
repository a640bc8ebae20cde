package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
)

// createSessionHandler starts a wizard over a mode, §4.C "createSession".
func (s *FiberServer) createSessionHandler(c *fiber.Ctx) error {
	var body struct {
		ModeKey      string `json:"mode_key"`
		League       string `json:"league"`
		LeagueGameID string `json:"league_game_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperror.ValidationError("invalid request body")
	}
	if body.ModeKey == "" || body.League == "" {
		return apperror.ValidationError("mode_key and league are required")
	}

	sess, err := s.deps.Sessions.CreateSession(c.Context(), body.ModeKey, body.League, body.LeagueGameID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

// applyChoiceHandler selects a wizard step's choice, §4.C "applyChoice".
func (s *FiberServer) applyChoiceHandler(c *fiber.Ctx) error {
	id := c.Params("id")

	var body struct {
		StepKey  string `json:"step_key"`
		ChoiceID string `json:"choice_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperror.ValidationError("invalid request body")
	}
	if body.StepKey == "" || body.ChoiceID == "" {
		return apperror.ValidationError("step_key and choice_id are required")
	}

	sess, err := s.deps.Sessions.ApplyChoice(c.Context(), id, body.StepKey, body.ChoiceID)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

// setGeneralHandler records wager/time-limit terms, §4.C "setGeneral".
func (s *FiberServer) setGeneralHandler(c *fiber.Ctx) error {
	id := c.Params("id")

	var body struct {
		WagerAmount      float64 `json:"wager_amount"`
		TimeLimitSeconds int     `json:"time_limit_seconds"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperror.ValidationError("invalid request body")
	}

	sess, err := s.deps.Sessions.SetGeneral(c.Context(), id, body.WagerAmount, body.TimeLimitSeconds)
	if err != nil {
		return err
	}
	return c.JSON(sess)
}
