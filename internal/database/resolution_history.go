package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
)

// ResolutionHistoryRepo is the append-only audit log of §3
// ResolutionHistoryEvent, also the persistence channel for mode_config
// snapshots and live_info_snapshot at settlement.
type ResolutionHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewResolutionHistoryRepo(pool *pgxpool.Pool) *ResolutionHistoryRepo {
	return &ResolutionHistoryRepo{pool: pool}
}

func (r *ResolutionHistoryRepo) Append(ctx context.Context, e domain.ResolutionHistoryEvent) error {
	_, err := r.pool.Exec(ctx, `
		insert into resolution_history (event_id, bet_id, event_type, payload, created_at)
		values ($1,$2,$3,$4,$5)
	`, e.EventID, e.BetID, e.EventType, e.Payload, e.CreatedAt)
	return err
}

// LatestByType returns the most recent event of a given type for a bet —
// used to read the authoritative mode_config, §3 "the most recent such
// event is authoritative".
func (r *ResolutionHistoryRepo) LatestByType(ctx context.Context, betID, eventType string) (domain.ResolutionHistoryEvent, error) {
	row := r.pool.QueryRow(ctx, `
		select event_id, bet_id, event_type, payload, created_at
		from resolution_history
		where bet_id = $1 and event_type = $2
		order by created_at desc
		limit 1
	`, betID, eventType)

	var e domain.ResolutionHistoryEvent
	err := row.Scan(&e.EventID, &e.BetID, &e.EventType, &e.Payload, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ResolutionHistoryEvent{}, ErrNoRows
		}
		return domain.ResolutionHistoryEvent{}, err
	}
	return e, nil
}

func (r *ResolutionHistoryRepo) ListByBet(ctx context.Context, betID string) ([]domain.ResolutionHistoryEvent, error) {
	rows, err := r.pool.Query(ctx, `
		select event_id, bet_id, event_type, payload, created_at
		from resolution_history where bet_id = $1 order by created_at asc
	`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ResolutionHistoryEvent
	for rows.Next() {
		var e domain.ResolutionHistoryEvent
		if err := rows.Scan(&e.EventID, &e.BetID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
