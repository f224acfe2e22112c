// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

// Package config provides configuration management for killfeed.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (killfeed.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Game servers are only configurable from the YAML file (the servers list).
// Everything else has an environment variable, see envTransformFunc.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Logging     LoggingConfig     `koanf:"logging"`
	Poller      PollerConfig      `koanf:"poller"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	Transfer    TransferConfig    `koanf:"transfer"`
	Database    DatabaseConfig    `koanf:"database"`
	Checkpoint  CheckpointConfig  `koanf:"checkpoint"`
	Bus         BusConfig         `koanf:"bus"`
	API         APIConfig         `koanf:"api"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
	Premium     PremiumConfig     `koanf:"premium"`
	Servers     []ServerConfig    `koanf:"servers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: json
	Format string `koanf:"format"`

	// Caller adds file:line to each log line.
	Caller bool `koanf:"caller"`
}

// PollerConfig holds the settings of both ingestion pipelines.
type PollerConfig struct {
	CSV PipelineConfig `koanf:"csv"`
	Log PipelineConfig `koanf:"log"`
}

// PipelineConfig controls one poller instance.
type PipelineConfig struct {
	Enabled bool `koanf:"enabled"`

	// Interval between scheduled ticks. A tick that starts while the previous
	// one is still running is skipped.
	Interval time.Duration `koanf:"interval"`

	// StartupDelay postpones the first tick after start.
	StartupDelay time.Duration `koanf:"startup_delay"`

	// Lookback is how far back a server is scanned when it has no last-checked time.
	Lookback time.Duration `koanf:"lookback"`
}

// CoordinatorConfig sizes the cross-pipeline seen-set.
type CoordinatorConfig struct {
	Window        time.Duration `koanf:"window"`
	HighWater     int           `koanf:"high_water"`
	Retain        int           `koanf:"retain"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// TransferConfig holds SFTP transfer settings.
type TransferConfig struct {
	// Timeout bounds every remote operation.
	Timeout time.Duration `koanf:"timeout"`

	// OpsPerSecond paces remote operations per server. Zero disables pacing.
	OpsPerSecond float64 `koanf:"ops_per_second"`

	// KnownHostsPath enables host key verification. Empty accepts any host key.
	KnownHostsPath string `koanf:"known_hosts_path"`

	// CredentialSecret decrypts server passwords stored as "enc:<ciphertext>".
	CredentialSecret string `koanf:"credential_secret"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // Number of DuckDB threads (0 = DuckDB default)
}

// CheckpointConfig holds BadgerDB cursor persistence settings.
type CheckpointConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Path          string        `koanf:"path"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Enabled bool `koanf:"enabled"`

	// NATSURL selects the NATS JetStream publisher. Empty uses the in-process
	// channel unless Embedded is set.
	NATSURL string `koanf:"nats_url"`

	// Embedded starts an in-process NATS server with JetStream storage in StoreDir.
	Embedded bool   `koanf:"embedded"`
	StoreDir string `koanf:"store_dir"`

	// Stream is the JetStream stream carrying killfeed.> subjects.
	Stream          string        `koanf:"stream"`
	DuplicateWindow time.Duration `koanf:"duplicate_window"`
}

// APIConfig holds settings of the ops HTTP surface.
type APIConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Listen            string        `koanf:"listen"`
	AdminToken        string        `koanf:"admin_token"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins allows browser dashboards on other origins to read the
	// public endpoints. Empty disables CORS headers.
	CORSOrigins []string `koanf:"cors_origins"`
}

// SupervisorConfig holds suture tree settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// PremiumConfig maps feature names to the minimum tier that unlocks them.
type PremiumConfig struct {
	Features map[string]int `koanf:"features"`
}

// ServerConfig describes one game server reachable over SFTP.
type ServerConfig struct {
	ServerID         string `koanf:"server_id" validate:"required,server_id"`
	OriginalServerID string `koanf:"original_server_id" validate:"omitempty,server_id"`
	ServerName       string `koanf:"server_name"`
	Hostname         string `koanf:"hostname" validate:"required"`
	Port             int    `koanf:"port" validate:"gte=0,lte=65535"`
	Username         string `koanf:"username" validate:"required"`
	Password         string `koanf:"password"`
	SFTPPath         string `koanf:"sftp_path"`
	LogPattern       string `koanf:"log_pattern" validate:"log_pattern"`
	WorldDir         string `koanf:"world_dir" validate:"world_dir"`
	CSVEnabled       bool   `koanf:"csv_enabled"`
	LogEnabled       bool   `koanf:"log_enabled"`
	PremiumTier      int    `koanf:"premium_tier" validate:"gte=0"`
}

// DefaultSFTPPort is used when neither Port nor Hostname carries a port.
const DefaultSFTPPort = 22

// DefaultLogPattern matches the Deadside server log file name.
const DefaultLogPattern = `Deadside\.log`

// Host returns the hostname without any ":port" suffix.
func (s ServerConfig) Host() string {
	host, _ := s.splitHostname()
	return host
}

// SSHPort returns the effective port. A port embedded in Hostname wins over Port.
func (s ServerConfig) SSHPort() int {
	if _, port := s.splitHostname(); port > 0 {
		return port
	}
	if s.Port > 0 {
		return s.Port
	}
	return DefaultSFTPPort
}

// Address returns host:port for dialing.
func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.SSHPort()))
}

func (s ServerConfig) splitHostname() (string, int) {
	host := strings.TrimSpace(s.Hostname)
	name, portStr, found := strings.Cut(host, ":")
	if !found {
		return host, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return name, 0
	}
	return name, port
}

// PathServerID returns the identifier used in remote directory names.
//
// Order: OriginalServerID, a numeric suffix after the last '_' in the hostname,
// the first all-digit word of at least four characters in ServerName, ServerID.
func (s ServerConfig) PathServerID() string {
	if id := strings.TrimSpace(s.OriginalServerID); id != "" {
		return id
	}
	host := s.Host()
	if i := strings.LastIndex(host, "_"); i >= 0 && isDigits(host[i+1:]) {
		return host[i+1:]
	}
	for _, word := range strings.Fields(s.ServerName) {
		if len(word) >= 4 && isDigits(word) {
			return word
		}
	}
	return s.ServerID
}

// EffectiveLogPattern returns LogPattern or DefaultLogPattern.
func (s ServerConfig) EffectiveLogPattern() string {
	if s.LogPattern == "" {
		return DefaultLogPattern
	}
	return s.LogPattern
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Server returns the configuration of the named server.
func (c *Config) Server(serverID string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.ServerID == serverID {
			return s, true
		}
	}
	return ServerConfig{}, false
}
