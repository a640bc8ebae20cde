package server

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
	"github.com/jackhudsonnnn/p2picks/internal/database"
	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/idempotency"
	"github.com/jackhudsonnnn/p2picks/internal/logging"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
	"github.com/jackhudsonnnn/p2picks/internal/proposal"
	"github.com/jackhudsonnnn/p2picks/internal/queue"
)

// createBetHandler commits a new bet from either a config session or a raw
// body, §4.E. An Idempotency-Key header, when present, replays a prior
// response byte-for-byte instead of re-running the pipeline, per §8
// property 5.
func (s *FiberServer) createBetHandler(c *fiber.Ctx) error {
	uid, err := authUserID(c)
	if err != nil {
		return err
	}
	tableID := c.Params("tableId")

	idemKey := c.Get("Idempotency-Key")
	if idemKey != "" {
		rec, replay, err := s.deps.Idempotency.Claim(c.Context(), idemKey)
		if err != nil {
			return err
		}
		if replay {
			return c.Status(rec.StatusCode).Send(rec.Body)
		}
	}

	var body struct {
		ConfigSessionID  string         `json:"config_session_id"`
		ModeKey          string         `json:"mode_key"`
		League           string         `json:"league"`
		LeagueGameID     string         `json:"league_game_id"`
		ModeConfig       map[string]any `json:"mode_config"`
		Description      string         `json:"description"`
		WagerAmount      float64        `json:"wager_amount"`
		TimeLimitSeconds int            `json:"time_limit_seconds"`
	}
	if err := c.BodyParser(&body); err != nil {
		if idemKey != "" {
			_ = s.deps.Idempotency.Release(c.Context(), idemKey)
		}
		return apperror.ValidationError("invalid request body")
	}

	bet, err := s.deps.Proposals.Create(c.Context(), proposal.Request{
		TableID:          tableID,
		ProposerUserID:   uid,
		ConfigSessionID:  body.ConfigSessionID,
		ModeKey:          body.ModeKey,
		League:           body.League,
		LeagueGameID:     body.LeagueGameID,
		ModeConfig:       body.ModeConfig,
		Description:      body.Description,
		WagerAmount:      body.WagerAmount,
		TimeLimitSeconds: body.TimeLimitSeconds,
	})
	if err != nil {
		if bet.BetID == "" {
			if idemKey != "" {
				_ = s.deps.Idempotency.Release(c.Context(), idemKey)
			}
			return err
		}
		logging.FromContext(c).Warn().Err(err).Str("betId", bet.BetID).Msg("server: bet committed, follow-up write failed")
	}

	dto := toBetDTO(bet)
	if idemKey != "" {
		if payload, err := json.Marshal(dto); err == nil {
			_ = s.deps.Idempotency.Complete(c.Context(), idemKey, idempotency.Record{StatusCode: fiber.StatusCreated, Body: payload})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(dto)
}

// pokeHandler re-proposes a settled bet under a fresh id, §4.E "Poke".
func (s *FiberServer) pokeHandler(c *fiber.Ctx) error {
	uid, err := authUserID(c)
	if err != nil {
		return err
	}
	betID := c.Params("betId")

	bet, err := s.deps.Proposals.Poke(c.Context(), betID, uid)
	if err != nil {
		if bet.BetID == "" {
			return err
		}
		logging.FromContext(c).Warn().Err(err).Str("betId", bet.BetID).Msg("server: bet committed, follow-up write failed")
	}
	return c.Status(fiber.StatusCreated).JSON(toBetDTO(bet))
}

// getBetHandler is the supplemented read endpoint backing the poke and
// validate flows' need to fetch current bet status.
func (s *FiberServer) getBetHandler(c *fiber.Ctx) error {
	betID := c.Params("betId")
	bet, err := s.deps.Bets.Get(c.Context(), betID)
	if err != nil {
		if err == database.ErrNoRows {
			return apperror.NotFound("bet")
		}
		return err
	}
	return c.JSON(toBetDTO(bet))
}

// validateHandler is the manual-resolution admin endpoint §4.H example 3
// names: a participant or the proposer submits the observed
// winning_choice for a mode with no automatic validator. The choice is
// checked against the options recorded in the mode_config history event
// at proposal time, then handed to the Resolution Queue so the actual
// state transition still flows through the single-writer job handler.
func (s *FiberServer) validateHandler(c *fiber.Ctx) error {
	betID := c.Params("betId")

	var body struct {
		WinningChoice string `json:"winning_choice"`
	}
	if err := c.BodyParser(&body); err != nil || body.WinningChoice == "" {
		return apperror.ValidationError("winning_choice is required")
	}

	bet, err := s.deps.Bets.Get(c.Context(), betID)
	if err != nil {
		if err == database.ErrNoRows {
			return apperror.NotFound("bet")
		}
		return err
	}
	if bet.BetStatus != domain.BetStatusPending {
		return apperror.BadInput("bet is not awaiting resolution")
	}

	event, err := s.deps.History.LatestByType(c.Context(), betID, domain.EventTypeModeConfig)
	if err != nil {
		return apperror.Internal("mode configuration not found for bet").Wrap(err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(event.Payload, &cfg); err != nil {
		return apperror.Internal("could not decode mode configuration").Wrap(err)
	}
	options := decodeOptions(cfg["options"])

	if err := modes.ValidateManualChoice(options, body.WinningChoice); err != nil {
		return apperror.BadInput(err.Error())
	}

	if err := s.deps.Queue.Enqueue(c.Context(), queue.EnqueueRequest{
		Type:     queue.TypeSetWinningChoice,
		BetID:    betID,
		DedupKey: "resolve-" + betID,
		Payload:  map[string]string{"winningChoice": body.WinningChoice},
	}); err != nil {
		return apperror.Internal("failed to queue resolution").Wrap(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"bet_id": betID, "winning_choice": body.WinningChoice, "status": "queued"})
}

// decodeOptions extracts a []string from the mode_config's "options" key.
// The stored mode_config is decoded from JSON, so an options list arrives
// as []any; a []string is accepted as well.
func decodeOptions(raw any) []string {
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

// participateHandler inserts a (bet, user) acceptance row, the supplemented
// endpoint rounding out §1's "others accept within a time window" flow.
func (s *FiberServer) participateHandler(c *fiber.Ctx) error {
	uid, err := authUserID(c)
	if err != nil {
		return err
	}
	betID := c.Params("betId")

	bet, err := s.deps.Bets.Get(c.Context(), betID)
	if err != nil {
		if err == database.ErrNoRows {
			return apperror.NotFound("bet")
		}
		return err
	}
	if bet.BetStatus != domain.BetStatusActive {
		return apperror.BadInput("bet is no longer accepting participants")
	}

	member, err := s.deps.Tables.IsMember(c.Context(), bet.TableID, uid)
	if err != nil {
		return apperror.Internal("membership check failed").Wrap(err)
	}
	if !member {
		return apperror.Forbidden("not a member of this table")
	}

	participation := domain.BetParticipation{
		ParticipationID:   uuid.NewString(),
		BetID:             betID,
		UserID:            uid,
		UserGuess:         domain.NoEntryGuess,
		ParticipationTime: time.Now().UTC(),
	}
	if err := s.deps.Participations.Insert(c.Context(), participation); err != nil {
		return apperror.Internal("failed to record participation").Wrap(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"participation_id":   participation.ParticipationID,
		"bet_id":             betID,
		"user_id":            uid,
		"user_guess":         participation.UserGuess,
		"participation_time": participation.ParticipationTime,
	})
}

// guessHandler updates a participant's guess while the parent bet is still
// active, §3 "user_guess mutable while parent bet is active, frozen
// thereafter".
func (s *FiberServer) guessHandler(c *fiber.Ctx) error {
	uid, err := authUserID(c)
	if err != nil {
		return err
	}
	betID := c.Params("betId")

	var body struct {
		UserGuess string `json:"user_guess"`
	}
	if err := c.BodyParser(&body); err != nil || body.UserGuess == "" {
		return apperror.ValidationError("user_guess is required")
	}

	ok, err := s.deps.Participations.SetGuess(c.Context(), betID, uid, body.UserGuess)
	if err != nil {
		return apperror.Internal("failed to update guess").Wrap(err)
	}
	if !ok {
		return apperror.Conflict("bet is no longer active or no participation exists")
	}

	return c.JSON(fiber.Map{"bet_id": betID, "user_id": uid, "user_guess": body.UserGuess})
}

// liveInfoHandler surfaces a mode's live-info projection, §6.1 "GET
// /bets/:betId/live-info". For a resolved or washed bet it returns the
// persisted settlement snapshot (§4.H "Snapshot at settlement") rather
// than recomputing live, since the refined live-data file the mode would
// read from may already be cleaned up by the time a settled bet's UI
// re-fetches this endpoint.
func (s *FiberServer) liveInfoHandler(c *fiber.Ctx) error {
	betID := c.Params("betId")

	bet, err := s.deps.Bets.Get(c.Context(), betID)
	if err != nil {
		if err == database.ErrNoRows {
			return apperror.NotFound("bet")
		}
		return err
	}

	if bet.BetStatus == domain.BetStatusResolved || bet.BetStatus == domain.BetStatusWashed {
		event, err := s.deps.History.LatestByType(c.Context(), betID, domain.EventTypeLiveInfoSnapshot)
		if err != nil {
			return apperror.NotFound("live info snapshot")
		}
		return c.Type("json").Send(event.Payload)
	}

	mod, err := s.deps.Registry.Lookup(bet.League, bet.ModeKey)
	if err != nil {
		return apperror.Internal("bet's mode is no longer registered").Wrap(err)
	}

	event, err := s.deps.History.LatestByType(c.Context(), betID, domain.EventTypeModeConfig)
	if err != nil {
		return apperror.Internal("mode configuration not found for bet").Wrap(err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(event.Payload, &cfg); err != nil {
		return apperror.Internal("could not decode mode configuration").Wrap(err)
	}

	info, err := mod.GetLiveInfo(c.Context(), bet, cfg)
	if err != nil {
		return apperror.Internal("failed to compute live info").Wrap(err)
	}
	return c.JSON(info)
}
