package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "8080")
	}
	if cfg.Registry.LockPeriod != 10*time.Minute {
		t.Errorf("Registry.LockPeriod = %v, want %v", cfg.Registry.LockPeriod, 10*time.Minute)
	}
	if cfg.Registry.CooldownPeriod != 5*time.Minute {
		t.Errorf("Registry.CooldownPeriod = %v, want %v", cfg.Registry.CooldownPeriod, 5*time.Minute)
	}
	if cfg.Registry.DevFaucet {
		t.Error("Registry.DevFaucet should default to false")
	}
	if cfg.Cache.VerifyTTL != 30*time.Second {
		t.Errorf("Cache.VerifyTTL = %v, want %v", cfg.Cache.VerifyTTL, 30*time.Second)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REGISTRY_LOCK_PERIOD", "1h")
	t.Setenv("REGISTRY_DEV_FAUCET", "true")
	t.Setenv("RATE_LIMIT_FREE_TIER", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, "9090")
	}
	if cfg.Registry.LockPeriod != time.Hour {
		t.Errorf("Registry.LockPeriod = %v, want %v", cfg.Registry.LockPeriod, time.Hour)
	}
	if !cfg.Registry.DevFaucet {
		t.Error("Registry.DevFaucet should be true")
	}
	if cfg.RateLimit.FreeTier != 5 {
		t.Errorf("RateLimit.FreeTier = %d, want 5", cfg.RateLimit.FreeTier)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	if got := getEnvAsInt("TEST_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt with bad value = %d, want default 7", got)
	}

	t.Setenv("TEST_DUR", "garbage")
	if got := getEnvAsDuration("TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("getEnvAsDuration with bad value = %v, want default 1m", got)
	}

	t.Setenv("TEST_BOOL", "yes-please")
	if got := getEnvAsBool("TEST_BOOL", true); got != true {
		t.Errorf("getEnvAsBool with bad value = %v, want default true", got)
	}
}
