package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		if had {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestLoad_MissingRedisURLIsFatal(t *testing.T) {
	clearEnv(t, "REDIS_URL", "DB_URL")
	os.Setenv("DB_URL", "postgres://localhost/db")
	defer os.Unsetenv("DB_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when REDIS_URL is missing")
	}
}

func TestLoad_MissingDBURLIsFatal(t *testing.T) {
	clearEnv(t, "REDIS_URL", "DB_URL")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	defer os.Unsetenv("REDIS_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DB_URL is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "REDIS_URL", "DB_URL", "PORT", "RESOLUTION_QUEUE_CONCURRENCY")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("DB_URL", "postgres://localhost/db")
	defer os.Unsetenv("REDIS_URL")
	defer os.Unsetenv("DB_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "5001" {
		t.Errorf("Port = %q, want 5001", cfg.Port)
	}
	if cfg.ResolutionQueueConcurrency != 5 {
		t.Errorf("ResolutionQueueConcurrency = %d, want 5", cfg.ResolutionQueueConcurrency)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "*" {
		t.Errorf("CORSAllowedOrigins = %v, want [*]", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_RejectsLowIngestInterval(t *testing.T) {
	clearEnv(t, "REDIS_URL", "DB_URL", "NFL_DATA_INTERVAL_SECONDS")
	os.Setenv("REDIS_URL", "redis://localhost:6379")
	os.Setenv("DB_URL", "postgres://localhost/db")
	os.Setenv("NFL_DATA_INTERVAL_SECONDS", "5")
	defer os.Unsetenv("REDIS_URL")
	defer os.Unsetenv("DB_URL")
	defer os.Unsetenv("NFL_DATA_INTERVAL_SECONDS")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for interval below 12s")
	}
}

func TestIngestInterval_DefaultsTo20s(t *testing.T) {
	cfg := &Config{DataIntervalSeconds: map[string]int{}}
	if got := cfg.IngestInterval("nfl"); got.Seconds() != 20 {
		t.Errorf("IngestInterval() = %v, want 20s", got)
	}
}
