package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jackhudsonnnn/p2picks/internal/domain"
)

var testCfg Config

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("p2picks"),
		postgres.WithUsername("p2picks"),
		postgres.WithPassword("p2picks"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	host, err := dbContainer.Host(ctx)
	if err != nil {
		return dbContainer.Terminate, err
	}
	port, err := dbContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testCfg = Config{Host: host, Port: port.Port(), Database: "p2picks", Username: "p2picks", Password: "p2picks"}
	return dbContainer.Terminate, nil
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()
	if teardown != nil {
		teardown(context.Background())
	}
	os.Exit(code)
}

func TestNewAndHealth(t *testing.T) {
	ctx := context.Background()
	svc, err := New(ctx, testCfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.Close()

	stats := svc.Health(ctx)
	if stats["status"] != "up" {
		t.Fatalf("expected status up, got %+v", stats)
	}
}

func applySchema(t *testing.T, svc Service) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Pool().Exec(ctx, `
		create table if not exists bet_proposals (
			bet_id text primary key,
			table_id text not null,
			proposer_user_id text not null,
			league text not null,
			league_game_id text,
			mode_key text not null,
			description text not null,
			wager_amount numeric(10,2) not null,
			time_limit_seconds int not null,
			proposal_time timestamptz not null,
			close_time timestamptz not null,
			bet_status text not null,
			winning_choice text,
			resolution_time timestamptz,
			origin_bet_id text
		);
		create table if not exists bet_participations (
			participation_id text primary key,
			bet_id text not null references bet_proposals(bet_id),
			user_id text not null,
			user_guess text not null,
			participation_time timestamptz not null,
			unique (bet_id, user_id)
		);
	`)
	if err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func TestBetProposalRepo_InsertGetDelete(t *testing.T) {
	ctx := context.Background()
	svc, err := New(ctx, testCfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.Close()
	applySchema(t, svc)

	repo := NewBetProposalRepo(svc.Pool())
	now := time.Now().UTC().Truncate(time.Microsecond)
	bet := domain.BetProposal{
		BetID: "bet-1", TableID: "table-1", ProposerUserID: "user-1", League: "NFL",
		ModeKey: "u2pick", Description: "test", TimeLimitSecs: 60,
		ProposalTime: now, CloseTime: now.Add(60 * time.Second), BetStatus: domain.BetStatusActive,
	}
	if err := repo.Insert(ctx, bet); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := repo.Get(ctx, "bet-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.BetID != "bet-1" || got.BetStatus != domain.BetStatusActive {
		t.Errorf("got = %+v", got)
	}

	if err := repo.Delete(ctx, "bet-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, "bet-1"); err != ErrNoRows {
		t.Fatalf("Get() after delete = %v, want ErrNoRows", err)
	}
}

func TestBetProposalRepo_TransitionToPendingIsConditional(t *testing.T) {
	ctx := context.Background()
	svc, err := New(ctx, testCfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer svc.Close()
	applySchema(t, svc)

	repo := NewBetProposalRepo(svc.Pool())
	past := time.Now().UTC().Add(-time.Minute)
	bet := domain.BetProposal{
		BetID: "bet-2", TableID: "t", ProposerUserID: "u", League: "NFL", ModeKey: "u2pick",
		Description: "x", TimeLimitSecs: 10, ProposalTime: past.Add(-time.Minute), CloseTime: past,
		BetStatus: domain.BetStatusActive,
	}
	if err := repo.Insert(ctx, bet); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	ok, err := repo.TransitionToPending(ctx, "bet-2")
	if err != nil || !ok {
		t.Fatalf("TransitionToPending() = %v, %v, want true, nil", ok, err)
	}

	ok, err = repo.TransitionToPending(ctx, "bet-2")
	if err != nil || ok {
		t.Fatalf("second TransitionToPending() = %v, %v, want false, nil (already pending)", ok, err)
	}
}

func TestClampWagerAndTimeLimit(t *testing.T) {
	if got := ClampWager(decimal.RequireFromString("0.10")); !got.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("ClampWager(0.10) = %s, want 0.25", got)
	}
	if got := ClampWager(decimal.RequireFromString("7")); !got.Equal(decimal.RequireFromString("5")) {
		t.Errorf("ClampWager(7) = %s, want 5", got)
	}
	if got := ClampWager(decimal.RequireFromString("1.239")); !got.Equal(decimal.RequireFromString("1.23")) {
		t.Errorf("ClampWager(1.239) = %s, want 1.23", got)
	}
	if got := ClampTimeLimit(5); got != 10 {
		t.Errorf("ClampTimeLimit(5) = %d, want 10", got)
	}
	if got := ClampTimeLimit(200); got != 120 {
		t.Errorf("ClampTimeLimit(200) = %d, want 120", got)
	}
}
