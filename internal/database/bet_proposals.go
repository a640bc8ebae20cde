package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
)

// ErrNoRows is returned by single-row repository lookups that find
// nothing, mirroring pgx.ErrNoRows without leaking the driver type to
// callers.
var ErrNoRows = errors.New("database: no rows")

// BetProposalRepo persists BetProposal rows, §3 "the relational store owns
// BetProposal ... every mutation of status or winning_choice flows through
// the Resolution Queue (single writer per bet)". Raw SQL over pgxpool,
// grounded on the fayak-betsandpedestres bet-resolution handler's direct
// pgx.Tx query style (no ORM appears anywhere in the pack for this
// domain).
type BetProposalRepo struct {
	pool *pgxpool.Pool
}

func NewBetProposalRepo(pool *pgxpool.Pool) *BetProposalRepo {
	return &BetProposalRepo{pool: pool}
}

func scanBetProposal(row pgx.Row) (domain.BetProposal, error) {
	var b domain.BetProposal
	err := row.Scan(
		&b.BetID, &b.TableID, &b.ProposerUserID, &b.League, &b.LeagueGameID,
		&b.ModeKey, &b.Description, &b.WagerAmount, &b.TimeLimitSecs,
		&b.ProposalTime, &b.CloseTime, &b.BetStatus, &b.WinningChoice,
		&b.ResolutionTime, &b.OriginBetID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BetProposal{}, ErrNoRows
	}
	return b, err
}

const betProposalColumns = `bet_id, table_id, proposer_user_id, league, league_game_id,
	mode_key, description, wager_amount, time_limit_seconds,
	proposal_time, close_time, bet_status, winning_choice,
	resolution_time, origin_bet_id`

func (r *BetProposalRepo) Insert(ctx context.Context, b domain.BetProposal) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		insert into bet_proposals (%s)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, betProposalColumns),
		b.BetID, b.TableID, b.ProposerUserID, b.League, b.LeagueGameID,
		b.ModeKey, b.Description, b.WagerAmount, b.TimeLimitSecs,
		b.ProposalTime, b.CloseTime, b.BetStatus, b.WinningChoice,
		b.ResolutionTime, b.OriginBetID,
	)
	return err
}

func (r *BetProposalRepo) Get(ctx context.Context, betID string) (domain.BetProposal, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`select %s from bet_proposals where bet_id = $1`, betProposalColumns), betID)
	return scanBetProposal(row)
}

// Delete removes a BetProposal row, used only for the compensating delete
// on creation failure, §4.E step 9.
func (r *BetProposalRepo) Delete(ctx context.Context, betID string) error {
	_, err := r.pool.Exec(ctx, `delete from bet_proposals where bet_id = $1`, betID)
	return err
}

// TransitionToPending performs the conditional UPDATE of §4.F: only a
// still-active, still-unresolved, past-close-time row is promoted.
func (r *BetProposalRepo) TransitionToPending(ctx context.Context, betID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		update bet_proposals
		set bet_status = 'pending'
		where bet_id = $1 and bet_status = 'active' and close_time <= now() and winning_choice is null
	`, betID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListExpiredActive returns active bets whose close_time has elapsed,
// §4.F "polls for bets whose close_time ≤ now and bet_status = active".
func (r *BetProposalRepo) ListExpiredActive(ctx context.Context, now time.Time) ([]domain.BetProposal, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		select %s from bet_proposals where bet_status = 'active' and close_time <= $1
	`, betProposalColumns), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BetProposal
	for rows.Next() {
		b, err := scanBetProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListResolvable returns bets the mode resolvers of §4.H may act on: both
// still-active bets (pre-close_time, resolvable the moment a mode's
// winning condition is met) and pending bets (post-close_time, awaiting
// resolution), per §4.G's job contract ("status ∈ {pending, active}").
func (r *BetProposalRepo) ListResolvable(ctx context.Context, league, modeKey string) ([]domain.BetProposal, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		select %s from bet_proposals where bet_status in ('active', 'pending') and league = $1 and mode_key = $2
	`, betProposalColumns), league, modeKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BetProposal
	for rows.Next() {
		b, err := scanBetProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetWinningChoice resolves a bet out of either active or pending,
// enforcing monotonic transition and immutability of winning_choice once
// set, §4.G's job contract ("status ∈ {pending, active}").
func (r *BetProposalRepo) SetWinningChoice(ctx context.Context, betID, winningChoice string, resolvedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		update bet_proposals
		set bet_status = 'resolved', winning_choice = $2, resolution_time = $3
		where bet_id = $1 and bet_status in ('pending', 'active') and winning_choice is null
	`, betID, winningChoice, resolvedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Wash marks an active or pending bet washed without a winner, §3
// BetStatus / §4.G's job contract.
func (r *BetProposalRepo) Wash(ctx context.Context, betID string, resolvedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		update bet_proposals
		set bet_status = 'washed', resolution_time = $2
		where bet_id = $1 and bet_status in ('pending', 'active') and winning_choice is null
	`, betID, resolvedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ClampWager rounds toward zero to 2dp and clamps into [0.25, 5], §4.E
// step 8.
func ClampWager(amount decimal.Decimal) decimal.Decimal {
	truncated := amount.Truncate(2)
	min := decimal.NewFromFloat(0.25)
	max := decimal.NewFromFloat(5.00)
	if truncated.LessThan(min) {
		return min
	}
	if truncated.GreaterThan(max) {
		return max
	}
	return truncated
}

// ClampTimeLimit clamps a time-limit to [10, 120] integer seconds, §4.E
// step 8.
func ClampTimeLimit(seconds int) int {
	if seconds < 10 {
		return 10
	}
	if seconds > 120 {
		return 120
	}
	return seconds
}
