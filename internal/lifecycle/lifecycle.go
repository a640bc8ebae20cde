// Package lifecycle implements the Bet Lifecycle Worker of SPEC_FULL.md
// §4.F: a clock-driven promotion of active bets to pending once their
// close_time has elapsed, with a restart catch-up pass.
package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
)

// BetRepo is the narrow slice of BetProposalRepo the worker needs, §4.F
// "polls for bets whose close_time ≤ now and bet_status = active" plus the
// conditional promotion UPDATE.
type BetRepo interface {
	ListExpiredActive(ctx context.Context, now time.Time) ([]domain.BetProposal, error)
	TransitionToPending(ctx context.Context, betID string) (bool, error)
}

// Worker runs the single-flight, timer-driven promotion loop, generalized
// from the teacher's internal/game ticker-loop idiom (time.Timer + a stop
// channel checked every tick, no overlapping ticks).
type Worker struct {
	bets   BetRepo
	logger zerolog.Logger

	pollInterval time.Duration
	catchup      time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewWorker(bets BetRepo, pollInterval, catchup time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		bets:         bets,
		logger:       logger,
		pollInterval: pollInterval,
		catchup:      catchup,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run performs the restart catch-up pass and then drives the poll loop
// until ctx is cancelled or Stop is called, §4.F "Catch-up: on start,
// scans all active bets with close_time < now − BET_LIFECYCLE_CATCHUP_MS".
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	w.catchUp(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.promoteExpired(ctx, time.Now())
		}
	}
}

func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Worker) catchUp(ctx context.Context) {
	threshold := time.Now().Add(-w.catchup)
	bets, err := w.bets.ListExpiredActive(ctx, threshold)
	if err != nil {
		w.logger.Error().Err(err).Msg("lifecycle: catch-up scan failed")
		return
	}
	if len(bets) == 0 {
		return
	}
	w.logger.Warn().Int("count", len(bets)).Msg("lifecycle: catch-up promoting stale active bets")
	w.promote(ctx, bets)
}

func (w *Worker) promoteExpired(ctx context.Context, now time.Time) {
	bets, err := w.bets.ListExpiredActive(ctx, now)
	if err != nil {
		w.logger.Error().Err(err).Msg("lifecycle: poll failed")
		return
	}
	w.promote(ctx, bets)
}

// promote never sets winning_choice, §4.F "No resolution here" — it only
// drives the conditional active->pending UPDATE, resolution is H's job.
func (w *Worker) promote(ctx context.Context, bets []domain.BetProposal) {
	for _, b := range bets {
		ok, err := w.bets.TransitionToPending(ctx, b.BetID)
		if err != nil {
			w.logger.Error().Err(err).Str("betId", b.BetID).Msg("lifecycle: transition failed")
			continue
		}
		if ok {
			w.logger.Info().Str("betId", b.BetID).Msg("lifecycle: bet promoted to pending")
		}
	}
}
