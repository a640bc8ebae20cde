package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
)

// BetParticipationRepo persists one row per (bet, user) acceptance, §3
// BetParticipation. Unique per (bet_id, user_id); user_guess mutable only
// while the parent bet is active.
type BetParticipationRepo struct {
	pool *pgxpool.Pool
}

func NewBetParticipationRepo(pool *pgxpool.Pool) *BetParticipationRepo {
	return &BetParticipationRepo{pool: pool}
}

const participationColumns = `participation_id, bet_id, user_id, user_guess, participation_time`

func scanParticipation(row pgx.Row) (domain.BetParticipation, error) {
	var p domain.BetParticipation
	err := row.Scan(&p.ParticipationID, &p.BetID, &p.UserID, &p.UserGuess, &p.ParticipationTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BetParticipation{}, ErrNoRows
	}
	return p, err
}

func (r *BetParticipationRepo) Insert(ctx context.Context, p domain.BetParticipation) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(`
		insert into bet_participations (%s) values ($1,$2,$3,$4,$5)
		on conflict (bet_id, user_id) do nothing
	`, participationColumns), p.ParticipationID, p.BetID, p.UserID, p.UserGuess, p.ParticipationTime)
	return err
}

// SetGuess updates user_guess only while the parent bet is still active,
// §3 "user_guess mutable while parent bet is active, frozen thereafter".
func (r *BetParticipationRepo) SetGuess(ctx context.Context, betID, userID, guess string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		update bet_participations p
		set user_guess = $3
		from bet_proposals b
		where p.bet_id = b.bet_id and p.bet_id = $1 and p.user_id = $2 and b.bet_status = 'active'
	`, betID, userID, guess)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *BetParticipationRepo) ListByBet(ctx context.Context, betID string) ([]domain.BetParticipation, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`select %s from bet_participations where bet_id = $1`, participationColumns), betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BetParticipation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TicketCursor is the keyset position for the ticket-listing endpoint's
// `beforeParticipatedAt`/`beforeParticipationId` pair, §6.1.
type TicketCursor struct {
	ParticipatedAt  time.Time
	ParticipationID string
}

// ListTicketsByUser backs the ticket-listing endpoint, §3 "Ticket — a
// read-model projection (participation × bet)". Keyset-paginated, newest
// first, on (participation_time, participation_id) so pages stay stable
// under concurrent inserts (§6.1 "cursor-paginated user tickets").
func (r *BetParticipationRepo) ListTicketsByUser(ctx context.Context, userID string, limit int, cursor *TicketCursor) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`
		select p.participation_id, p.bet_id, p.user_id, p.user_guess, p.participation_time, %s
		from bet_participations p
		join bet_proposals b on b.bet_id = p.bet_id
		where p.user_id = $1
	`, betProposalColumnsAliased("b"))
	args := []any{userID}

	if cursor != nil {
		query += fmt.Sprintf(" and (p.participation_time, p.participation_id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cursor.ParticipatedAt, cursor.ParticipationID)
	}
	query += " order by p.participation_time desc, p.participation_id desc limit $" + fmt.Sprint(len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		err := rows.Scan(
			&t.ParticipationID, &t.BetID, &t.UserID, &t.UserGuess, &t.ParticipationTime,
			&t.Bet.BetID, &t.Bet.TableID, &t.Bet.ProposerUserID, &t.Bet.League, &t.Bet.LeagueGameID,
			&t.Bet.ModeKey, &t.Bet.Description, &t.Bet.WagerAmount, &t.Bet.TimeLimitSecs,
			&t.Bet.ProposalTime, &t.Bet.CloseTime, &t.Bet.BetStatus, &t.Bet.WinningChoice,
			&t.Bet.ResolutionTime, &t.Bet.OriginBetID,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func betProposalColumnsAliased(alias string) string {
	return fmt.Sprintf(`%s.bet_id, %s.table_id, %s.proposer_user_id, %s.league, %s.league_game_id,
		%s.mode_key, %s.description, %s.wager_amount, %s.time_limit_seconds,
		%s.proposal_time, %s.close_time, %s.bet_status, %s.winning_choice,
		%s.resolution_time, %s.origin_bet_id`,
		alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias, alias)
}
