package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.GeneratedCount != 4 || cfg.TotalParticipants() != 5 {
		t.Fatalf("expected 4 generated + 1 human, got %d/%d", cfg.GeneratedCount, cfg.TotalParticipants())
	}
	if cfg.Duration != 5*time.Minute {
		t.Fatalf("expected 5m session, got %s", cfg.Duration)
	}
	if cfg.MinDelay != 1500*time.Millisecond || cfg.MaxDelay != 3500*time.Millisecond {
		t.Fatalf("unexpected pacing range %s-%s", cfg.MinDelay, cfg.MaxDelay)
	}
	if len(cfg.NamePool) != len(DefaultNamePool) {
		t.Fatalf("expected default name pool, got %d names", len(cfg.NamePool))
	}
	if cfg.Mode != ModeCLI {
		t.Fatalf("expected cli mode by default, got %q", cfg.Mode)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("RTT_AI_PARTICIPANTS", "2")
	t.Setenv("RTT_CHAT_DURATION", "90s")
	t.Setenv("RTT_NAME_POOL", "Ann,Bo,Cy")
	t.Setenv("RTT_MODE", "TUI")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected env config to load, got %v", err)
	}
	if cfg.GeneratedCount != 2 {
		t.Fatalf("expected 2 generated participants, got %d", cfg.GeneratedCount)
	}
	if cfg.Duration != 90*time.Second {
		t.Fatalf("expected 90s, got %s", cfg.Duration)
	}
	if len(cfg.NamePool) != 3 || cfg.NamePool[2] != "Cy" {
		t.Fatalf("unexpected name pool %v", cfg.NamePool)
	}
	if cfg.Mode != ModeTUI {
		t.Fatalf("expected mode to be normalised to tui, got %q", cfg.Mode)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	cfg, err := Load(func(c *Config) { c.MaxTurns = 7 })
	if err != nil {
		t.Fatalf("expected override to load, got %v", err)
	}
	if cfg.MaxTurns != 7 {
		t.Fatalf("expected override to win, got %d", cfg.MaxTurns)
	}
}

func TestValidateRejectsInvertedDelayRange(t *testing.T) {
	_, err := Load(func(c *Config) {
		c.MinDelay = 3 * time.Second
		c.MaxDelay = time.Second
	})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "MaxDelay" {
		t.Fatalf("expected MaxDelay to be blamed, got %q", cfgErr.Field)
	}
}

func TestValidateRejectsSmallNamePool(t *testing.T) {
	_, err := Load(func(c *Config) {
		c.NamePool = []string{"Ann", "Bo"}
		c.GeneratedCount = 3
	})
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "NamePool" {
		t.Fatalf("expected NamePool configuration error, got %v", err)
	}
}

func TestValidateAllowsSmallPoolWithPositionalNames(t *testing.T) {
	_, err := Load(func(c *Config) {
		c.NamePool = []string{"Ann"}
		c.UseRandomNames = false
	})
	if err != nil {
		t.Fatalf("expected positional names to ignore pool size, got %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	_, err := Load(func(c *Config) { c.Mode = "gui" })
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "Mode" {
		t.Fatalf("expected Mode configuration error, got %v", err)
	}
}

func TestValidateRejectsZeroGenerated(t *testing.T) {
	_, err := Load(func(c *Config) { c.GeneratedCount = 0 })
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "GeneratedCount" {
		t.Fatalf("expected GeneratedCount configuration error, got %v", err)
	}
}

func TestNewLoggerDisabledWithoutFile(t *testing.T) {
	logger, err := NewLogger(&Config{})
	if err != nil {
		t.Fatalf("expected nop logger, got %v", err)
	}
	logger.Info("discarded")
}
