package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORTAL_WELCOME_DELAY_MS", "")
	t.Setenv("PORTAL_REVIEW_SCOPE", "")
	t.Setenv("PORTAL_SNAPSHOT_BACKEND", "")
	t.Setenv("PORTAL_EVIDENCE_LATENCY_MS", "")
	t.Setenv("PORTAL_REPORT_LATENCY_MS", "")

	cfg := Load()
	if cfg.WelcomeDelay != 2*time.Second {
		t.Fatalf("expected 2s welcome delay, got %s", cfg.WelcomeDelay)
	}
	if cfg.ReviewScope != "department" {
		t.Fatalf("expected department review scope, got %q", cfg.ReviewScope)
	}
	if cfg.SnapshotBackend != "file" {
		t.Fatalf("expected file backend, got %q", cfg.SnapshotBackend)
	}
	if cfg.EvidenceLatency != 0 || cfg.ReportLatency != 0 {
		t.Fatalf("expected no submit latency, got %s/%s", cfg.EvidenceLatency, cfg.ReportLatency)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORTAL_WELCOME_DELAY_MS", "50")
	t.Setenv("PORTAL_REVIEW_SCOPE", "GLOBAL")
	t.Setenv("PORTAL_SEED_USERS", "false")
	t.Setenv("PORTAL_ACCESS_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.WelcomeDelay != 50*time.Millisecond {
		t.Fatalf("expected 50ms welcome delay, got %s", cfg.WelcomeDelay)
	}
	if cfg.ReviewScope != "global" {
		t.Fatalf("expected lowercased scope, got %q", cfg.ReviewScope)
	}
	if cfg.SeedUsers {
		t.Fatal("expected seeding disabled")
	}
	if cfg.AccessTTL != 8*time.Hour {
		t.Fatalf("expected fallback ttl, got %s", cfg.AccessTTL)
	}
}
