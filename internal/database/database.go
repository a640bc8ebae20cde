// Package database owns the Postgres connection pool, schema migrations,
// and per-entity repositories backing BetProposal, BetParticipation,
// ResolutionHistoryEvent, tables, and feed_items (§3 "Ownership").
// Connection lifecycle (New/Health/Close) is grounded on the teacher's
// internal/database package contract (inferred from
// internal/database/database_test.go, the only file retrieved for it),
// rebuilt here on pgxpool per SPEC_FULL.md's DOMAIN STACK decision.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Service is the pgxpool-backed connection manager every repository is
// built on.
type Service interface {
	Pool() *pgxpool.Pool
	Health(ctx context.Context) map[string]string
	Close() error
}

type service struct {
	pool *pgxpool.Pool
}

// Config holds the connection parameters, read from internal/config.
type Config struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
}

func (c Config) dsn() string {
	schema := c.Schema
	if schema == "" {
		schema = "public"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, schema)
}

// New builds a pgxpool.Pool-backed Service from Config.
func New(ctx context.Context, cfg Config) (Service, error) {
	return newFromDSN(ctx, cfg.dsn())
}

// NewFromURL builds a Service directly from a connection-string URL, the
// shape internal/config.Config.DBURL carries (DB_URL/DATABASE_URL, §6.2),
// since pgxpool accepts a full DSN URL without needing it decomposed into
// Config's discrete fields.
func NewFromURL(ctx context.Context, dbURL string) (Service, error) {
	return newFromDSN(ctx, dbURL)
}

func newFromDSN(ctx context.Context, dsn string) (Service, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	return &service{pool: pool}, nil
}

func (s *service) Pool() *pgxpool.Pool { return s.pool }

// Health mirrors the teacher's map[string]string health probe shape.
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	stat := s.pool.Stat()
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["open_connections"] = fmt.Sprintf("%d", stat.TotalConns())
	stats["idle_connections"] = fmt.Sprintf("%d", stat.IdleConns())
	stats["acquired_connections"] = fmt.Sprintf("%d", stat.AcquiredConns())
	return stats
}

func (s *service) Close() error {
	s.pool.Close()
	return nil
}
