// Package session implements the Config Session Service of
// SPEC_FULL.md §4.C: a Redis-hash-backed multi-step proposer wizard with a
// 15-minute TTL, generalized from the teacher's internal/game/manager.go
// JSON-marshal-into-Redis idiom (storeRoundInRedis/loadActiveBets) from
// round state to wizard state.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jackhudsonnnn/p2picks/internal/apperror"
	"github.com/jackhudsonnnn/p2picks/internal/modes"
)

const ttl = 15 * time.Minute
const redisKeyPrefix = "session:"

// Status is the wizard stage, §3 ConfigSession.status.
type Status string

const (
	StatusModeConfig Status = "mode_config"
	StatusGeneral    Status = "general"
	StatusSummary    Status = "summary"
)

func (s Status) rank() int {
	switch s {
	case StatusModeConfig:
		return 0
	case StatusGeneral:
		return 1
	case StatusSummary:
		return 2
	default:
		return -1
	}
}

// General holds the non-mode-specific bet parameters, §3
// ConfigSession.general.
type General struct {
	WagerAmount      *float64 `json:"wagerAmount,omitempty"`
	TimeLimitSeconds *int     `json:"timeLimitSeconds,omitempty"`
}

// Preview is the computed, human-readable summary of the in-flight bet
// spec, refreshed on every mutating call.
type Preview struct {
	Description      string   `json:"description,omitempty"`
	WinningCondition string   `json:"winningCondition,omitempty"`
	Options          []string `json:"options,omitempty"`
	Errors           []string `json:"errors,omitempty"`
}

// ConfigSession is the in-flight wizard state, §3.
type ConfigSession struct {
	SessionID    string                       `json:"sessionId"`
	ModeKey      string                       `json:"modeKey"`
	League       string                       `json:"league"`
	LeagueGameID string                       `json:"leagueGameId"`
	Steps        map[string]modes.WizardStep  `json:"steps"`
	General      General                      `json:"general"`
	Status       Status                       `json:"status"`
	Preview      Preview                      `json:"preview"`
	CreatedAt    time.Time                    `json:"createdAt"`
	ExpiresAt    time.Time                    `json:"expiresAt"`
}

// Service implements the session operations of §4.C.
type Service struct {
	client   *redis.Client
	registry *modes.Registry
}

func NewService(client *redis.Client, registry *modes.Registry) *Service {
	return &Service{client: client, registry: registry}
}

func key(id string) string {
	return redisKeyPrefix + id
}

func (s *Service) save(ctx context.Context, sess *ConfigSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: write: %w", err)
	}
	return nil
}

// GetSession loads a session, failing NOT_FOUND when expired or absent,
// §4.C "getSession(id) — fails NOT_FOUND when expired".
func (s *Service) GetSession(ctx context.Context, id string) (*ConfigSession, error) {
	data, err := s.client.Get(ctx, key(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, apperror.NotFound("config session")
		}
		return nil, fmt.Errorf("session: read: %w", err)
	}
	var sess ConfigSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &sess, nil
}

// CreateSession starts a new wizard, §4.C "createSession".
func (s *Service) CreateSession(ctx context.Context, modeKey, league, leagueGameID string) (*ConfigSession, error) {
	mod, err := s.registry.Lookup(league, modeKey)
	if err != nil {
		return nil, apperror.BadInput(fmt.Sprintf("mode %q unavailable for league %q", modeKey, league))
	}

	steps, err := mod.BuildUserConfig(ctx, modes.ConfigInput{League: league, LeagueGameID: leagueGameID})
	if err != nil {
		return nil, fmt.Errorf("session: build wizard steps: %w", err)
	}
	stepMap := make(map[string]modes.WizardStep, len(steps))
	for _, st := range steps {
		stepMap[st.Key] = st
	}

	now := time.Now()
	sess := &ConfigSession{
		SessionID:    uuid.NewString(),
		ModeKey:      modeKey,
		League:       league,
		LeagueGameID: leagueGameID,
		Steps:        stepMap,
		Status:       StatusModeConfig,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) input(sess *ConfigSession) modes.ConfigInput {
	return modes.ConfigInput{League: sess.League, LeagueGameID: sess.LeagueGameID, Steps: sess.Steps}
}

func (s *Service) allStepsCompleted(sess *ConfigSession) bool {
	for _, st := range sess.Steps {
		if !st.Completed {
			return false
		}
	}
	return true
}

func (s *Service) refreshPreview(ctx context.Context, sess *ConfigSession, mod modes.Module) error {
	input := s.input(sess)
	condition, err := mod.ComputeWinningCondition(ctx, input)
	if err != nil {
		return fmt.Errorf("session: compute winning condition: %w", err)
	}
	options, err := mod.ComputeOptions(ctx, input)
	if err != nil {
		return fmt.Errorf("session: compute options: %w", err)
	}
	sess.Preview = Preview{WinningCondition: condition, Options: options}

	if sess.Status.rank() >= StatusGeneral.rank() {
		result, err := mod.ValidateProposal(ctx, input)
		if err != nil {
			return fmt.Errorf("session: validate proposal: %w", err)
		}
		if !result.Valid {
			sess.Preview.Errors = []string{result.Error}
		}
	}
	return nil
}

// ApplyChoice selects an option for a wizard step, cascading clears and
// recomputing the preview, §4.C "applyChoice".
func (s *Service) ApplyChoice(ctx context.Context, id, stepKey, choiceID string) (*ConfigSession, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	mod, err := s.registry.Lookup(sess.League, sess.ModeKey)
	if err != nil {
		return nil, apperror.BadInput("mode no longer available")
	}

	step, ok := sess.Steps[stepKey]
	if !ok {
		return nil, apperror.BadInput(fmt.Sprintf("unknown step %q", stepKey))
	}

	var selectedChoice *modes.Choice
	for i := range step.Choices {
		if step.Choices[i].ID == choiceID {
			selectedChoice = &step.Choices[i]
			break
		}
	}
	if selectedChoice == nil {
		return nil, apperror.BadInput(fmt.Sprintf("unknown choice %q for step %q", choiceID, stepKey))
	}

	step.SelectedChoiceID = choiceID
	step.Completed = true
	sess.Steps[stepKey] = step

	for _, clearKey := range selectedChoice.Clears {
		if dep, ok := sess.Steps[clearKey]; ok {
			dep.SelectedChoiceID = ""
			dep.Completed = false
			sess.Steps[clearKey] = dep
		}
	}

	if err := s.refreshPreview(ctx, sess, mod); err != nil {
		return nil, err
	}

	if sess.Status == StatusModeConfig && s.allStepsCompleted(sess) {
		sess.Status = StatusGeneral
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

const (
	minWager, maxWager           = 0.25, 5.0
	minTimeLimit, maxTimeLimit   = 10, 120
)

// SetGeneral records wager/time-limit, §4.C "setGeneral". Only permitted
// once status >= general.
func (s *Service) SetGeneral(ctx context.Context, id string, wagerAmount float64, timeLimitSeconds int) (*ConfigSession, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.rank() < StatusGeneral.rank() {
		return nil, apperror.BadInput("complete the mode configuration before setting general terms")
	}
	if wagerAmount < minWager || wagerAmount > maxWager {
		return nil, apperror.ValidationError(fmt.Sprintf("wager_amount must be in [%.2f, %.2f]", minWager, maxWager))
	}
	if timeLimitSeconds < minTimeLimit || timeLimitSeconds > maxTimeLimit {
		return nil, apperror.ValidationError(fmt.Sprintf("time_limit_seconds must be in [%d, %d]", minTimeLimit, maxTimeLimit))
	}

	sess.General = General{WagerAmount: &wagerAmount, TimeLimitSeconds: &timeLimitSeconds}
	sess.Status = StatusSummary

	mod, err := s.registry.Lookup(sess.League, sess.ModeKey)
	if err != nil {
		return nil, apperror.BadInput("mode no longer available")
	}
	if err := s.refreshPreview(ctx, sess, mod); err != nil {
		return nil, err
	}

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetStage implements manualStageOverride: the client may move backward or
// sideways freely, but never forward past incomplete steps, §4.C.
func (s *Service) SetStage(ctx context.Context, id string, stage Status) (*ConfigSession, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if stage.rank() < 0 {
		return nil, apperror.BadInput(fmt.Sprintf("unknown stage %q", stage))
	}
	if stage.rank() > sess.Status.rank() && !s.allStepsCompleted(sess) {
		return nil, apperror.BadInput("cannot advance stage past incomplete steps")
	}
	sess.Status = stage
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Commit finalizes the session for the Bet Proposal Service, §4.C
// "commit(id) → bet". It returns the session but does not delete it — the
// caller (internal/proposal) deletes it only after the bet row commits
// successfully.
func (s *Service) Commit(ctx context.Context, id string) (*ConfigSession, error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusSummary {
		return nil, apperror.BadInput("session is not ready to commit")
	}
	if len(sess.Preview.Errors) > 0 {
		return nil, apperror.ValidationError("preview has unresolved errors")
	}
	if time.Now().After(sess.ExpiresAt) {
		return nil, apperror.NotFound("config session")
	}
	return sess, nil
}

// Destroy removes a session, called after a successful commit or an
// explicit cancel, §3 "destroyed on TTL or on explicit commit".
func (s *Service) Destroy(ctx context.Context, id string) error {
	return s.client.Del(ctx, key(id)).Err()
}
