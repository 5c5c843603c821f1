// Package config tests for environment-backed configuration.
package config

import (
	"testing"
	"time"
)

// TestLoad_defaults verifies the documented defaults.
func TestLoad_defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Jobs.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Jobs.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Jobs.PollInterval)
	}
	if cfg.Jobs.MaxPollAttempts != 45 {
		t.Errorf("MaxPollAttempts = %d, want 45", cfg.Jobs.MaxPollAttempts)
	}
	if cfg.Jobs.DedupWindow != 5*time.Second {
		t.Errorf("DedupWindow = %v, want 5s", cfg.Jobs.DedupWindow)
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Sync.MaxRetries)
	}
	if cfg.Sync.StartupProbeDelay != 3*time.Second {
		t.Errorf("StartupProbeDelay = %v, want 3s", cfg.Sync.StartupProbeDelay)
	}
}

// TestLoad_overrides verifies env vars override defaults.
func TestLoad_overrides(t *testing.T) {
	t.Setenv("SNAPNOTE_MAX_CONCURRENT_JOBS", "5")
	t.Setenv("SNAPNOTE_POLL_INTERVAL", "500ms")
	t.Setenv("SNAPNOTE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Jobs.MaxConcurrent != 5 {
		t.Errorf("MaxConcurrent = %d, want 5", cfg.Jobs.MaxConcurrent)
	}
	if cfg.Jobs.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.Jobs.PollInterval)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
}

// TestLoad_badValues verifies malformed env values fall back rather than fail.
func TestLoad_badValues(t *testing.T) {
	t.Setenv("SNAPNOTE_MAX_POLL_ATTEMPTS", "not-a-number")
	t.Setenv("SNAPNOTE_POLL_INTERVAL", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Jobs.MaxPollAttempts != 45 {
		t.Errorf("MaxPollAttempts = %d, want fallback 45", cfg.Jobs.MaxPollAttempts)
	}
	if cfg.Jobs.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want fallback 2s", cfg.Jobs.PollInterval)
	}
}

// TestValidate verifies rejection of unusable configurations.
func TestValidate(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	cfg.Jobs.MaxConcurrent = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject MaxConcurrent=0")
	}

	cfg.Jobs.MaxConcurrent = 3
	cfg.API.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject empty base URL")
	}
}
