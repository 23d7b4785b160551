package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWhenFilesAbsent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.json"), filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.RotationStrategy != StrategyRoundRobin || cfg.RetryTimes != 3 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.HeartbeatIntervalSeconds != 15 || cfg.MemoryHighMB != 512 {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadMergesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"port":9999,"rotation_strategy":"request_count","retry_times":-1}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path, filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Port)
	}
	if cfg.RotationStrategy != StrategyRequestCount {
		t.Errorf("strategy = %q, want request_count", cfg.RotationStrategy)
	}
	if cfg.RetryTimes != 3 {
		t.Errorf("retry_times = %d, want clamped back to default", cfg.RetryTimes)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("API_KEY", "from-env")
	t.Setenv("ROTATION_STRATEGY", "quota_exhausted")

	cfg, err := Load(filepath.Join(dir, "config.json"), filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("api key = %q, want env override", cfg.APIKey)
	}
	if cfg.RotationStrategy != StrategyQuotaExhausted {
		t.Errorf("strategy = %q, want quota_exhausted", cfg.RotationStrategy)
	}
}
