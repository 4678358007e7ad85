package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StrengthPolicy != "warn" {
		t.Errorf("StrengthPolicy = %q, want warn", cfg.StrengthPolicy)
	}
	if cfg.PRNDefaultMaxPerDay != 4 {
		t.Errorf("PRNDefaultMaxPerDay = %d, want 4", cfg.PRNDefaultMaxPerDay)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if !cfg.CacheEnabled || !cfg.RateLimitEnabled {
		t.Error("cache and rate limiting default to enabled")
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("Load() should fail without ANTHROPIC_API_KEY")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("STRENGTH_POLICY", "strict")
	t.Setenv("EXTERNAL_TIMEOUT_MS", "2500")
	t.Setenv("CACHE_ENABLED", "false")
	t.Setenv("PRN_DEFAULT_MAX_PER_DAY", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9090" || cfg.StrengthPolicy != "strict" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.ExternalTimeout != 2500*time.Millisecond {
		t.Errorf("ExternalTimeout = %v", cfg.ExternalTimeout)
	}
	if cfg.CacheEnabled {
		t.Error("CACHE_ENABLED=false not applied")
	}
	if cfg.PRNDefaultMaxPerDay != 6 {
		t.Errorf("PRNDefaultMaxPerDay = %d, want 6", cfg.PRNDefaultMaxPerDay)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	t.Setenv("STRENGTH_POLICY", "lenient")
	if _, err := Load(); err == nil {
		t.Error("unknown strength policy should fail")
	}
	t.Setenv("STRENGTH_POLICY", "warn")

	t.Setenv("PRN_DEFAULT_MAX_PER_DAY", "0")
	if _, err := Load(); err == nil {
		t.Error("PRN_DEFAULT_MAX_PER_DAY=0 should fail")
	}
}

func TestListenAddr(t *testing.T) {
	if got := (&Config{Port: "8080"}).ListenAddr(); got != ":8080" {
		t.Errorf("ListenAddr() = %q", got)
	}
	if got := (&Config{Port: "0.0.0.0:8080"}).ListenAddr(); got != "0.0.0.0:8080" {
		t.Errorf("ListenAddr() = %q", got)
	}
}
