// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package config

import (
	"fmt"
	"os"
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
	"config.yaml",
	"config.yml",
	"/etc/vigil/config.yaml",
	"/etc/vigil/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8470,
			Timeout:     30 * time.Second,
			CORSOrigins: []string{"*"},
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Intake: IntakeConfig{
			ConfidenceFloor: 0.8,
			MaxClockSkew:    2 * time.Second,
			DedupWindow:     time.Second,
		},
		Presence: PresenceConfig{
			GraceInterval: 30 * time.Minute,
			SweepInterval: 30 * time.Second,
		},
		Alerting: AlertingConfig{
			AbsenceThreshold:        2 * time.Hour,
			HighPriorityThreshold:   4 * time.Hour,
			UnknownConfidenceFloor:  0.5,
			UnknownEscalationCount:  3,
			UnknownEscalationWindow: 10 * time.Minute,
		},
		Notify: NotifyConfig{
			QueueSize:     256,
			MaxAttempts:   3,
			RetryBackoff:  time.Second,
			RatePerMinute: 30,
			Webhook: WebhookConfig{
				Enabled: false,
				URL:     "",
				Timeout: 10 * time.Second,
			},
			Email: EmailConfig{
				Enabled:  false,
				Host:     "",
				Port:     587,
				Username: "",
				Password: "",
				From:     "",
				To:       []string{},
				UseTLS:   true,
			},
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://127.0.0.1:4222",
			Subject:       "vigil.detections",
			QueueGroup:    "vigil-intake",
			ReconnectWait: 2 * time.Second,
		},
		Store: StoreConfig{
			Path: "/data/vigil/alerts",
		},
		Roster: RosterConfig{
			Path: "roster.yaml",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// This function is the preferred way to load configuration and provides:
//   - Type-safe configuration unmarshaling
//   - Clear precedence: ENV > File > Defaults
//   - Support for nested configuration via koanf struct tags
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// HTTP_PORT -> server.port
	// ALERT_ABSENCE_THRESHOLD -> alerting.absence_threshold
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	// Check environment variable first
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	// Search default paths
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
	"notify.email.to",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// This is necessary because env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		// If it's a string, split by comma
		if strVal, ok := val.(string); ok {
			if strVal == "" {
				continue
			}
			parts := strings.Split(strVal, ",")
			trimmed := make([]string, 0, len(parts))
			for _, p := range parts {
				p = strings.TrimSpace(p)
				if p != "" {
					trimmed = append(trimmed, p)
				}
			}
			if len(trimmed) > 0 {
				if err := k.Set(path, trimmed); err != nil {
					return fmt.Errorf("failed to set %s: %w", path, err)
				}
			}
		}
	}
	return nil
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - INTAKE_CONFIDENCE_FLOOR -> intake.confidence_floor
//   - ALERT_ABSENCE_THRESHOLD -> alerting.absence_threshold
//   - SMTP_HOST -> notify.email.host
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",
		"cors_origins": "server.cors_origins",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",
		"rate_limit_requests":   "api.rate_limit_reqs",
		"rate_limit_window":     "api.rate_limit_window",

		// Intake mappings
		"intake_confidence_floor": "intake.confidence_floor",
		"intake_max_clock_skew":   "intake.max_clock_skew",
		"intake_dedup_window":     "intake.dedup_window",

		// Presence mappings
		"presence_grace_interval": "presence.grace_interval",
		"presence_sweep_interval": "presence.sweep_interval",

		// Alerting mappings
		"alert_absence_threshold":         "alerting.absence_threshold",
		"alert_high_priority_threshold":   "alerting.high_priority_threshold",
		"alert_unknown_confidence_floor":  "alerting.unknown_confidence_floor",
		"alert_unknown_escalation_count":  "alerting.unknown_escalation_count",
		"alert_unknown_escalation_window": "alerting.unknown_escalation_window",

		// Notification mappings
		"notify_queue_size":      "notify.queue_size",
		"notify_max_attempts":    "notify.max_attempts",
		"notify_retry_backoff":   "notify.retry_backoff",
		"notify_rate_per_minute": "notify.rate_per_minute",
		"webhook_enabled":        "notify.webhook.enabled",
		"webhook_url":            "notify.webhook.url",
		"webhook_timeout":        "notify.webhook.timeout",
		"email_enabled":          "notify.email.enabled",
		"smtp_host":              "notify.email.host",
		"smtp_port":              "notify.email.port",
		"smtp_username":          "notify.email.username",
		"smtp_password":          "notify.email.password",
		"smtp_use_tls":           "notify.email.use_tls",
		"email_from":             "notify.email.from",
		"email_to":               "notify.email.to",

		// NATS mappings
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_subject":        "nats.subject",
		"nats_queue_group":    "nats.queue_group",
		"nats_reconnect_wait": "nats.reconnect_wait",

		// Store mappings
		"alert_store_path": "store.path",

		// Roster mappings
		"roster_path": "roster.path",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
