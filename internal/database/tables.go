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

// TableRepo persists the minimal private-room record the out-of-scope
// table/membership subsystem owns, §3 Table / Non-goals (full membership
// management is out of scope; only what the bet lifecycle needs is here).
type TableRepo struct {
	pool *pgxpool.Pool
}

func NewTableRepo(pool *pgxpool.Pool) *TableRepo {
	return &TableRepo{pool: pool}
}

func (r *TableRepo) Get(ctx context.Context, tableID string) (domain.Table, error) {
	row := r.pool.QueryRow(ctx, `select table_id, name, created_at, last_activity from tables where table_id = $1`, tableID)
	var t domain.Table
	err := row.Scan(&t.TableID, &t.Name, &t.CreatedAt, &t.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Table{}, ErrNoRows
	}
	return t, err
}

// IsMember checks table_members for (tableID, userID), the membership
// check §4.E step 1 depends on (external system per the spec's Non-goals,
// modeled here as a plain lookup table alongside BetProposal's schema).
func (r *TableRepo) IsMember(ctx context.Context, tableID, userID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		select exists(select 1 from table_members where table_id = $1 and user_id = $2)
	`, tableID, userID).Scan(&exists)
	return exists, err
}

func (r *TableRepo) TouchActivity(ctx context.Context, tableID string) error {
	_, err := r.pool.Exec(ctx, `update tables set last_activity = now() where table_id = $1`, tableID)
	return err
}

// TableCursor is the keyset position for the table-listing endpoint's
// `beforeActivityAt`/`beforeTableId` pair, §6.1.
type TableCursor struct {
	ActivityAt time.Time
	TableID    string
}

// ListForUser lists the tables a user belongs to, most recently active
// first, keyset-paginated on (last_activity, table_id) per §6.1
// "cursor-paginated tables".
func (r *TableRepo) ListForUser(ctx context.Context, userID string, limit int, cursor *TableCursor) ([]domain.Table, error) {
	query := `
		select t.table_id, t.name, t.created_at, t.last_activity
		from tables t
		join table_members m on m.table_id = t.table_id
		where m.user_id = $1
	`
	args := []any{userID}

	if cursor != nil {
		query += fmt.Sprintf(" and (t.last_activity, t.table_id) < ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, cursor.ActivityAt, cursor.TableID)
	}
	query += " order by t.last_activity desc, t.table_id desc limit $" + fmt.Sprint(len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Table
	for rows.Next() {
		var t domain.Table
		if err := rows.Scan(&t.TableID, &t.Name, &t.CreatedAt, &t.LastActivity); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
