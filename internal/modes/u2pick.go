package modes

import (
	"context"
	"fmt"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
	"github.com/jackhudsonnnn/p2picks/internal/livedata"
)

// U2PickMode is the manual-resolution mode, §4.H example 3: "no automatic
// validator; resolved via the validateBet admin endpoint".
type U2PickMode struct{}

func NewU2PickMode() *U2PickMode { return &U2PickMode{} }

func (m *U2PickMode) Key() string               { return "u2pick" }
func (m *U2PickMode) SupportedLeagues() []string { return []string{"*"} }
func (m *U2PickMode) Label() string              { return "U2Pick" }
func (m *U2PickMode) Overview() string {
	return "Proposer names a free-form option list; a participant or proposer resolves it manually."
}

func (m *U2PickMode) RequiresInProgress() bool { return false }

func (m *U2PickMode) ComputeOptions(ctx context.Context, input ConfigInput) ([]string, error) {
	step := input.Steps["options"]
	opts := make([]string, 0, len(step.Choices)+1)
	for _, c := range step.Choices {
		opts = append(opts, c.Label)
	}
	opts = append(opts, domain.NoEntryGuess)
	return opts, nil
}

func (m *U2PickMode) ComputeWinningCondition(ctx context.Context, input ConfigInput) (string, error) {
	return "Resolved manually by a participant or the proposer once the outcome is known.", nil
}

func (m *U2PickMode) BuildUserConfig(ctx context.Context, input ConfigInput) ([]WizardStep, error) {
	return []WizardStep{{Key: "options", Label: "Options (2 or more)"}}, nil
}

func (m *U2PickMode) ValidateProposal(ctx context.Context, input ConfigInput) (ValidationResult, error) {
	step := input.Steps["options"]
	if len(step.Choices) < 2 {
		return ValidationResult{Valid: false, Error: "at least two options are required"}, nil
	}
	return ValidationResult{Valid: true}, nil
}

func (m *U2PickMode) PrepareConfig(ctx context.Context, input PrepareInput) (map[string]any, error) {
	return input.Config, nil
}

// CaptureBaseline is a no-op: resolution is manual, so nothing needs to be
// snapshotted at commit time.
func (m *U2PickMode) CaptureBaseline(ctx context.Context, live livedata.ReadAPI, betID string, config map[string]any) error {
	return nil
}

func (m *U2PickMode) GetLiveInfo(ctx context.Context, bet domain.BetProposal, config map[string]any) (LiveInfo, error) {
	return LiveInfo{Fields: []LiveInfoField{{Label: "Resolution", Value: "Manual"}}}, nil
}

// Validate never resolves automatically; §4.H "no automatic validator".
func (m *U2PickMode) Validate(ctx context.Context, bet domain.BetProposal, config map[string]any, live livedata.ReadAPI) (Decision, error) {
	return Decision{StillRunning: true}, nil
}

// ValidateManualChoice checks a proposed winning_choice against the
// options recorded in mode_config at proposal time, §4.H example 3 and
// scenario S5.
func ValidateManualChoice(options []string, choice string) error {
	for _, o := range options {
		if o == choice {
			return nil
		}
	}
	return fmt.Errorf("winning_choice %q is not among the recorded options", choice)
}
