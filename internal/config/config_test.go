package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CLINIC_TZ", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.ClinicTimezone != "America/Sao_Paulo" {
		t.Fatalf("expected default timezone, got %s", cfg.ClinicTimezone)
	}
	if cfg.MaxMessagesPerMinute != 10 {
		t.Fatalf("expected default rate limit, got %d", cfg.MaxMessagesPerMinute)
	}
	if cfg.DedupWindow != 5*time.Minute {
		t.Fatalf("expected default dedup window, got %s", cfg.DedupWindow)
	}
	if cfg.HandoffTTL != 15*time.Minute {
		t.Fatalf("expected default handoff ttl, got %s", cfg.HandoffTTL)
	}
	if cfg.ReminderInterval != 10*time.Minute {
		t.Fatalf("expected default reminder interval, got %s", cfg.ReminderInterval)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("expected default model, got %s", cfg.OpenAIModel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("MAX_MESSAGES_PER_MINUTE", "20")
	t.Setenv("SCHEDULER_INTERVAL", "120s")
	t.Setenv("HANDOFF_TTL", "30m")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected database url override, got %s", cfg.DatabaseURL)
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected worker count override, got %d", cfg.WorkerCount)
	}
	if cfg.MaxMessagesPerMinute != 20 {
		t.Fatalf("expected rate limit override, got %d", cfg.MaxMessagesPerMinute)
	}
	if cfg.ReminderInterval != 2*time.Minute {
		t.Fatalf("expected reminder interval override, got %s", cfg.ReminderInterval)
	}
	if cfg.HandoffTTL != 30*time.Minute {
		t.Fatalf("expected handoff ttl override, got %s", cfg.HandoffTTL)
	}
}

func TestDurationFallbackOnGarbage(t *testing.T) {
	t.Setenv("SCHEDULER_INTERVAL", "often")
	cfg := Load()
	if cfg.ReminderInterval != 10*time.Minute {
		t.Fatalf("expected fallback interval, got %s", cfg.ReminderInterval)
	}
}
