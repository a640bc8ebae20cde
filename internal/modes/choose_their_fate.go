package modes

import (
	"context"
	"fmt"
	"time"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
)

// DriveOutcome enumerates the possession outcomes this mode resolves to,
// §4.H example 2.
const (
	OutcomeTouchdown = "Touchdown"
	OutcomeFieldGoal = "Field Goal"
	OutcomeSafety    = "Safety"
	OutcomePunt      = "Punt"
	OutcomeTurnover  = "Turnover"
)

// ChooseFateBaseline is the snapshot captured at proposal-commit time: the
// game, the team in possession, and the capture time. The teams list is
// not stored.
type ChooseFateBaseline struct {
	GameID           string    `json:"gameId"`
	PossessionTeamID string    `json:"possessionTeamId"`
	CapturedAt       string    `json:"capturedAt"`
}

// ChooseTheirFateMode implements "choose-their-fate on a drive outcome",
// §1 example and §4.H example 2. This mode only supports leagues whose
// provider integration exposes drive-level play-type data; the ingest
// layer carries only NFL refinement, so the mode is scoped to NFL.
type ChooseTheirFateMode struct {
	baselines *BaselineStore
}

func NewChooseTheirFateMode(baselines *BaselineStore) *ChooseTheirFateMode {
	return &ChooseTheirFateMode{baselines: baselines}
}

func (m *ChooseTheirFateMode) Key() string               { return "choose_their_fate" }
func (m *ChooseTheirFateMode) SupportedLeagues() []string { return []string{"NFL"} }
func (m *ChooseTheirFateMode) Label() string              { return "Choose Their Fate" }
func (m *ChooseTheirFateMode) Overview() string {
	return "Predict how the team with possession ends their current drive."
}

func (m *ChooseTheirFateMode) RequiresInProgress() bool { return true }

func (m *ChooseTheirFateMode) ComputeOptions(ctx context.Context, input ConfigInput) ([]string, error) {
	return []string{OutcomeTouchdown, OutcomeFieldGoal, OutcomeSafety, OutcomePunt, OutcomeTurnover, domain.NoEntryGuess}, nil
}

func (m *ChooseTheirFateMode) ComputeWinningCondition(ctx context.Context, input ConfigInput) (string, error) {
	return "Resolves to how the current possession's drive ends.", nil
}

func (m *ChooseTheirFateMode) BuildUserConfig(ctx context.Context, input ConfigInput) ([]WizardStep, error) {
	return []WizardStep{}, nil
}

func (m *ChooseTheirFateMode) ValidateProposal(ctx context.Context, input ConfigInput) (ValidationResult, error) {
	if input.LeagueGameID == "" {
		return ValidationResult{Valid: false, Error: "league_game_id is required"}, nil
	}
	return ValidationResult{Valid: true}, nil
}

func (m *ChooseTheirFateMode) PrepareConfig(ctx context.Context, input PrepareInput) (map[string]any, error) {
	return input.Config, nil
}

func (m *ChooseTheirFateMode) CaptureBaseline(ctx context.Context, live livedata.ReadAPI, betID string, config map[string]any) error {
	league, _ := config["league"].(string)
	gameID, _ := config["leagueGameId"].(string)

	possessionTeamID, err := live.GetPossessionTeamID(ctx, league, gameID)
	if err != nil {
		return fmt.Errorf("modes: choose_their_fate baseline possession: %w", err)
	}
	baseline := ChooseFateBaseline{GameID: gameID, PossessionTeamID: possessionTeamID, CapturedAt: time.Now().UTC().Format(time.RFC3339)}
	return m.baselines.Put(ctx, betID, baseline)
}

func (m *ChooseTheirFateMode) GetLiveInfo(ctx context.Context, bet domain.BetProposal, config map[string]any) (LiveInfo, error) {
	var baseline ChooseFateBaseline
	if err := m.baselines.Get(ctx, bet.BetID, &baseline); err != nil {
		return LiveInfo{}, err
	}
	return LiveInfo{Fields: []LiveInfoField{
		{Label: "Possession at proposal", Value: baseline.PossessionTeamID},
	}}, nil
}

// Validate resolves once the refined game doc reports a drive-ending play
// for the possession team captured at baseline, mapping the provider's
// play-type vocabulary to the DriveOutcome enum via
// driveOutcomeByPlayType, §4.H example 2.
func (m *ChooseTheirFateMode) Validate(ctx context.Context, bet domain.BetProposal, config map[string]any, live livedata.ReadAPI) (Decision, error) {
	if bet.LeagueGameID == nil {
		return Decision{Wash: true, Explanation: "no league_game_id on bet"}, nil
	}

	var baseline ChooseFateBaseline
	if err := m.baselines.Get(ctx, bet.BetID, &baseline); err != nil {
		return Decision{Wash: true, Explanation: "baseline unavailable"}, nil
	}

	doc, err := live.GetGameDoc(ctx, bet.League, *bet.LeagueGameID)
	if err != nil {
		return Decision{StillRunning: true}, nil
	}

	if outcome, possessionTeamID, ok := driveOutcome(doc); ok && possessionTeamID == baseline.PossessionTeamID {
		return Decision{WinningChoice: outcome}, nil
	}

	if doc.Status == livedata.StatusFinal {
		return Decision{Wash: true, Explanation: "resolve condition never reached"}, nil
	}
	return Decision{StillRunning: true}, nil
}

// driveOutcome extracts the last-drive outcome and the possession team it
// ended for, as refined into RefinedGameDoc.Extensions by the NFL refiner.
func driveOutcome(doc livedata.RefinedGameDoc) (outcome, possessionTeamID string, ok bool) {
	outcome, ok = doc.Extensions["lastDriveOutcome"].(string)
	if !ok {
		return "", "", false
	}
	possessionTeamID, _ = doc.Extensions["lastDrivePossessionTeamId"].(string)
	return outcome, possessionTeamID, true
}
