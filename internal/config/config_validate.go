// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/validation"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}

	if err := c.validatePoller(); err != nil {
		return err
	}

	if err := c.validateCoordinator(); err != nil {
		return err
	}

	if err := c.validateTransfer(); err != nil {
		return err
	}

	if err := c.validateCheckpoint(); err != nil {
		return err
	}

	if err := c.validateBus(); err != nil {
		return err
	}

	if err := c.validateAPI(); err != nil {
		return err
	}

	return c.validateServers()
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console (got %q)", c.Logging.Format)
	}
}

func (c *Config) validatePoller() error {
	pipelines := []struct {
		name string
		cfg  PipelineConfig
	}{
		{"csv", c.Poller.CSV},
		{"log", c.Poller.Log},
	}
	for _, p := range pipelines {
		if !p.cfg.Enabled {
			continue
		}
		if p.cfg.Interval <= 0 {
			return fmt.Errorf("poller.%s.interval must be positive", p.name)
		}
		if p.cfg.StartupDelay < 0 {
			return fmt.Errorf("poller.%s.startup_delay must not be negative", p.name)
		}
		if p.cfg.Lookback <= 0 {
			return fmt.Errorf("poller.%s.lookback must be positive", p.name)
		}
	}
	return nil
}

func (c *Config) validateCoordinator() error {
	if c.Coordinator.Window <= 0 {
		return fmt.Errorf("coordinator.window must be positive")
	}
	if c.Coordinator.HighWater <= 0 {
		return fmt.Errorf("coordinator.high_water must be positive")
	}
	if c.Coordinator.Retain <= 0 || c.Coordinator.Retain > c.Coordinator.HighWater {
		return fmt.Errorf("coordinator.retain must be between 1 and high_water (%d)", c.Coordinator.HighWater)
	}
	return nil
}

func (c *Config) validateTransfer() error {
	if c.Transfer.Timeout <= 0 {
		return fmt.Errorf("transfer.timeout must be positive")
	}
	if c.Transfer.OpsPerSecond < 0 {
		return fmt.Errorf("transfer.ops_per_second must not be negative")
	}
	return nil
}

func (c *Config) validateCheckpoint() error {
	if !c.Checkpoint.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Checkpoint.Path) == "" {
		return fmt.Errorf("CHECKPOINT_PATH is required when CHECKPOINT_ENABLED=true")
	}
	if c.Checkpoint.FlushInterval <= 0 {
		return fmt.Errorf("checkpoint.flush_interval must be positive")
	}
	return nil
}

func (c *Config) validateBus() error {
	if !c.Bus.Enabled {
		return nil
	}
	if c.Bus.Embedded && c.Bus.NATSURL != "" {
		return fmt.Errorf("bus.embedded and NATS_URL are mutually exclusive")
	}
	if c.Bus.Embedded && strings.TrimSpace(c.Bus.StoreDir) == "" {
		return fmt.Errorf("BUS_STORE_DIR is required when BUS_EMBEDDED=true")
	}
	if (c.Bus.Embedded || c.Bus.NATSURL != "") && strings.TrimSpace(c.Bus.Stream) == "" {
		return fmt.Errorf("bus.stream is required for the NATS publisher")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
		return fmt.Errorf("API_LISTEN must be host:port: %w", err)
	}
	if c.API.RateLimitRequests < 0 {
		return fmt.Errorf("api.rate_limit_requests must not be negative")
	}
	if c.API.RateLimitRequests > 0 && c.API.RateLimitWindow <= 0 {
		return fmt.Errorf("api.rate_limit_window must be positive when rate limiting is enabled")
	}
	return nil
}

// validateServers runs struct validation on each server and rejects duplicate IDs.
func (c *Config) validateServers() error {
	seen := make(map[string]struct{}, len(c.Servers))
	for i := range c.Servers {
		s := &c.Servers[i]
		if err := validation.ValidateStruct(s); err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
		if _, dup := seen[s.ServerID]; dup {
			return fmt.Errorf("servers[%d]: duplicate server_id %q", i, s.ServerID)
		}
		seen[s.ServerID] = struct{}{}

		if s.SFTPPath != "" && !strings.HasPrefix(s.SFTPPath, "/") {
			logging.Warn().
				Str("server_id", s.ServerID).
				Str("sftp_path", s.SFTPPath).
				Msg("Relative sftp_path is ignored, using derived remote paths")
		}
	}
	return nil
}
