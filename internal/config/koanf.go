// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"killfeed.yaml",
	"killfeed.yml",
	"/etc/killfeed/killfeed.yaml",
	"/etc/killfeed/killfeed.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// FeatureLogProcessing gates the log-tail pipeline and its manual trigger.
const FeatureLogProcessing = "log_processing"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Poller: PollerConfig{
			CSV: PipelineConfig{
				Enabled:      true,
				Interval:     5 * time.Minute,
				StartupDelay: 15 * time.Second,
				Lookback:     15 * time.Minute,
			},
			Log: PipelineConfig{
				Enabled:      true,
				Interval:     1 * time.Minute,
				StartupDelay: 15 * time.Second,
				Lookback:     15 * time.Minute,
			},
		},
		Coordinator: CoordinatorConfig{
			Window:        1 * time.Hour,
			HighWater:     10000,
			Retain:        1000,
			SweepInterval: 5 * time.Minute,
		},
		Transfer: TransferConfig{
			Timeout:      30 * time.Second,
			OpsPerSecond: 10,
		},
		Database: DatabaseConfig{
			Path:      "/data/killfeed.duckdb",
			MaxMemory: "1GB",
			Threads:   0,
		},
		Checkpoint: CheckpointConfig{
			Enabled:       true,
			Path:          "/data/checkpoints",
			FlushInterval: 30 * time.Second,
		},
		Bus: BusConfig{
			Enabled:         false,
			NATSURL:         "",
			Embedded:        false,
			StoreDir:        "/data/nats",
			Stream:          "KILLFEED",
			DuplicateWindow: 2 * time.Minute,
		},
		API: APIConfig{
			Enabled:           true,
			Listen:            "0.0.0.0:8080",
			RateLimitRequests: 60,
			RateLimitWindow:   1 * time.Minute,
			CORSOrigins:       []string{},
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
		Premium: PremiumConfig{
			Features: map[string]int{
				FeatureLogProcessing: 1,
			},
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Encrypted server passwords are decrypted after validation.
func LoadWithKoanf() (*Config, error) {
	return load(findConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// LOG_LEVEL -> logging.level
	// CSV_POLL_INTERVAL -> poller.csv.interval
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processFeatureTiers(k); err != nil {
		return nil, fmt.Errorf("failed to process premium features: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := cfg.DecryptPasswords(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are parsed from comma-separated environment values.
var sliceConfigPaths = []string{
	"api.cors_origins",
}

// processSliceFields converts comma-separated string values to slices.
// Values already loaded as slices (defaults, YAML) are left untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		k.Delete(path)
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// featureTiersPath is the only map-typed key settable from the environment,
// as "name=tier" pairs separated by commas.
const featureTiersPath = "premium.features"

// processFeatureTiers converts a PREMIUM_FEATURES string into a feature map.
// Values already loaded as a map (defaults, YAML) are left untouched.
func processFeatureTiers(k *koanf.Koanf) error {
	strVal, ok := k.Get(featureTiersPath).(string)
	if !ok {
		return nil
	}

	tiers := make(map[string]interface{})
	for _, pair := range strings.Split(strVal, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, tierStr, found := strings.Cut(pair, "=")
		if !found {
			return fmt.Errorf("invalid feature %q: expected name=tier", pair)
		}
		tier, err := strconv.Atoi(strings.TrimSpace(tierStr))
		if err != nil {
			return fmt.Errorf("invalid tier for feature %q: %w", name, err)
		}
		tiers[strings.TrimSpace(name)] = tier
	}

	// k.Set merges maps, so the string value is removed first.
	k.Delete(featureTiersPath)
	if err := k.Set(featureTiersPath, tiers); err != nil {
		return fmt.Errorf("failed to set %s: %w", featureTiersPath, err)
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Pollers
		"csv_poll_enabled":       "poller.csv.enabled",
		"csv_poll_interval":      "poller.csv.interval",
		"csv_poll_startup_delay": "poller.csv.startup_delay",
		"csv_poll_lookback":      "poller.csv.lookback",
		"log_poll_enabled":       "poller.log.enabled",
		"log_poll_interval":      "poller.log.interval",
		"log_poll_startup_delay": "poller.log.startup_delay",
		"log_poll_lookback":      "poller.log.lookback",

		// Coordinator
		"dedup_window":         "coordinator.window",
		"dedup_high_water":     "coordinator.high_water",
		"dedup_retain":         "coordinator.retain",
		"dedup_sweep_interval": "coordinator.sweep_interval",

		// Transfer
		"sftp_timeout":        "transfer.timeout",
		"sftp_ops_per_second": "transfer.ops_per_second",
		"sftp_known_hosts":    "transfer.known_hosts_path",
		"credential_secret":   "transfer.credential_secret",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Checkpoints
		"checkpoint_enabled":        "checkpoint.enabled",
		"checkpoint_path":           "checkpoint.path",
		"checkpoint_flush_interval": "checkpoint.flush_interval",

		// Event bus
		"bus_enabled":          "bus.enabled",
		"nats_url":             "bus.nats_url",
		"bus_embedded":         "bus.embedded",
		"bus_store_dir":        "bus.store_dir",
		"bus_stream":           "bus.stream",
		"bus_duplicate_window": "bus.duplicate_window",

		// Ops API
		"api_enabled":         "api.enabled",
		"api_listen":          "api.listen",
		"api_admin_token":     "api.admin_token",
		"rate_limit_requests": "api.rate_limit_requests",
		"rate_limit_window":   "api.rate_limit_window",
		"cors_origins":        "api.cors_origins",

		// Supervisor
		"supervisor_failure_threshold": "supervisor.failure_threshold",
		"supervisor_failure_decay":     "supervisor.failure_decay",
		"supervisor_failure_backoff":   "supervisor.failure_backoff",
		"supervisor_shutdown_timeout":  "supervisor.shutdown_timeout",

		// Premium
		"premium_features": featureTiersPath,
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	return ""
}
