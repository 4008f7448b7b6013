package config

import "testing"

func TestDefaultIsUsableStandalone(t *testing.T) {
	cfg := Default()
	if cfg.Port != 3000 {
		t.Fatalf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.DB.DSN() == "" {
		t.Fatalf("expected non-empty DSN")
	}
	if cfg.Redis.Addr() != "localhost:6379" {
		t.Fatalf("expected default redis addr, got %s", cfg.Redis.Addr())
	}
}

func TestFromEnvOverridesValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_POOL_MAX", "25")
	t.Setenv("QUEUE_CONCURRENCY", "20")
	t.Setenv("WALLET_ADDRESS", "0xDEADBEEF")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port override, got %d", cfg.Port)
	}
	if cfg.DB.Host != "db.internal" {
		t.Fatalf("expected db host override, got %s", cfg.DB.Host)
	}
	if cfg.DB.PoolMax != 25 {
		t.Fatalf("expected pool max override, got %d", cfg.DB.PoolMax)
	}
	if cfg.Queue.Concurrency != 20 {
		t.Fatalf("expected queue concurrency override, got %d", cfg.Queue.Concurrency)
	}
	if cfg.WalletAddress != "0xDEADBEEF" {
		t.Fatalf("expected wallet address override, got %s", cfg.WalletAddress)
	}
}

func TestFromEnvRejectsMalformedPoolSize(t *testing.T) {
	t.Setenv("DB_POOL_MAX", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for malformed DB_POOL_MAX")
	}
}

func TestFromEnvRejectsNonPositiveQueueConcurrency(t *testing.T) {
	t.Setenv("QUEUE_CONCURRENCY", "0")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for non-positive QUEUE_CONCURRENCY")
	}
}
