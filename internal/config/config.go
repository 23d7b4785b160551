// Package config loads the gateway's on-disk configuration. It is a thin,
// intentionally simple reader — the admin config route (out of scope for
// this module) is the only supported way to persist edits once the process
// is running.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RotationStrategy names one of the rotator's selection strategies.
type RotationStrategy string

const (
	StrategyRoundRobin     RotationStrategy = "round_robin"
	StrategyQuotaExhausted RotationStrategy = "quota_exhausted"
	StrategyRequestCount   RotationStrategy = "request_count"
)

// Config is the root configuration object, persisted as config.json.
type Config struct {
	Port   int    `json:"port"`
	APIKey string `json:"api_key"`

	DataDir string `json:"data_dir"`

	RotationStrategy     RotationStrategy `json:"rotation_strategy"`
	RequestCountPerToken int              `json:"request_count_per_token"`
	SkipProjectDiscovery bool             `json:"skip_project_discovery"`

	RetryTimes int `json:"retry_times"`

	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"`

	MemoryHighMB int `json:"memory_high_mb"`

	SystemInstruction string `json:"system_instruction"`

	PassSignatureToClient bool `json:"pass_signature_to_client"`

	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Default returns the configuration used when no config.json is present.
func Default() *Config {
	return &Config{
		Port:                     8080,
		DataDir:                  "data",
		RotationStrategy:         StrategyRoundRobin,
		RequestCountPerToken:     10,
		RetryTimes:               3,
		HeartbeatIntervalSeconds: 15,
		MemoryHighMB:             512,
		LogLevel:                 "info",
	}
}

// Load reads config.json (if present) over the defaults, then applies any
// `.env` overrides via godotenv.
func Load(configPath, envPath string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	_ = godotenv.Load(envPath) // best effort; absence is not an error

	applyEnvOverrides(cfg)
	normalize(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("ROTATION_STRATEGY")); v != "" {
		cfg.RotationStrategy = RotationStrategy(v)
	}
}

func normalize(cfg *Config) {
	if cfg.RotationStrategy == "" {
		cfg.RotationStrategy = StrategyRoundRobin
	}
	if cfg.RequestCountPerToken <= 0 {
		cfg.RequestCountPerToken = 10
	}
	if cfg.RetryTimes <= 0 {
		cfg.RetryTimes = 3
	}
	if cfg.HeartbeatIntervalSeconds <= 0 {
		cfg.HeartbeatIntervalSeconds = 15
	}
	if cfg.MemoryHighMB <= 0 {
		cfg.MemoryHighMB = 512
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
}

// HeartbeatInterval returns the configured heartbeat cadence as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}
