// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	applog "enhancer/internal/log"
)

// LoadConfig loads configuration from a YAML file specified by path. If
// path is empty it searches default locations ("config.yaml"); if no
// file is found it uses built-in defaults. Environment overrides apply
// after file values, and the final result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		candidates := []string{
			"config.yaml",
		}
		found := false
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				found = true
				break
			}
		}
		if !found {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment overrides apply AFTER file values.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets deploy environments adjust a handful of knobs
// without editing the config file. ENV_ prefixed, parse errors ignored.
func (cfg *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Debugf("Config: overriding debug from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
	}
	if val, ok := os.LookupEnv("ENV_PREFS_FILE"); ok {
		cfg.Enhancer.PrefsFile = val
	}
	if val, ok := os.LookupEnv("ENV_WEBSOCKET_ADDR"); ok {
		cfg.Transport.WebSocketAddr = val
	}

	// ENV_UDP_{...} are specific to the meter feed.
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Debugf("Config: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
		}
	}
}
