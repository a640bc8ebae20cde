package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
)

// FeedItemRepo persists chat-feed entries surfaced on bet proposal and
// settlement, §4.E step 10.
type FeedItemRepo struct {
	pool *pgxpool.Pool
}

func NewFeedItemRepo(pool *pgxpool.Pool) *FeedItemRepo {
	return &FeedItemRepo{pool: pool}
}

func (r *FeedItemRepo) Insert(ctx context.Context, item domain.FeedItem) error {
	_, err := r.pool.Exec(ctx, `
		insert into feed_items (feed_item_id, table_id, kind, payload, created_at)
		values ($1,$2,$3,$4,$5)
	`, item.FeedItemID, item.TableID, item.Kind, item.Payload, item.CreatedAt)
	return err
}

func (r *FeedItemRepo) ListByTable(ctx context.Context, tableID string, limit int) ([]domain.FeedItem, error) {
	rows, err := r.pool.Query(ctx, `
		select feed_item_id, table_id, kind, payload, created_at
		from feed_items where table_id = $1 order by created_at desc limit $2
	`, tableID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeedItem
	for rows.Next() {
		var f domain.FeedItem
		if err := rows.Scan(&f.FeedItemID, &f.TableID, &f.Kind, &f.Payload, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
