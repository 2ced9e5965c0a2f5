// Vigil - Faculty Presence Monitoring and Alert Lifecycle Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

// Package config provides layered configuration loading for Vigil.
//
// Configuration is assembled from three sources with clear precedence:
//
//	Environment Variables > Config File (YAML) > Built-in Defaults
//
// See LoadWithKoanf for the loading pipeline.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration for the Vigil server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	API      APIConfig      `koanf:"api"`
	Intake   IntakeConfig   `koanf:"intake"`
	Presence PresenceConfig `koanf:"presence"`
	Alerting AlertingConfig `koanf:"alerting"`
	Notify   NotifyConfig   `koanf:"notify"`
	NATS     NATSConfig     `koanf:"nats"`
	Store    StoreConfig    `koanf:"store"`
	Roster   RosterConfig   `koanf:"roster"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	CORSOrigins []string      `koanf:"cors_origins"`
}

// APIConfig holds API behavior settings.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`

	// RateLimitReqs is the number of event submissions allowed per client IP
	// within RateLimitWindow.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// IntakeConfig holds detection event validation settings.
type IntakeConfig struct {
	// ConfidenceFloor is the minimum recognition confidence for a
	// recognized-person event to be accepted.
	ConfidenceFloor float64 `koanf:"confidence_floor"`

	// MaxClockSkew bounds how far a reported capture timestamp may run
	// ahead of server time before the event is rejected. Late captures
	// are accepted regardless of age.
	MaxClockSkew time.Duration `koanf:"max_clock_skew"`

	// DedupWindow is how long an event fingerprint is remembered for
	// duplicate suppression.
	DedupWindow time.Duration `koanf:"dedup_window"`
}

// PresenceConfig holds presence tracking settings.
type PresenceConfig struct {
	// GraceInterval is how long a subject may go unseen before being
	// marked absent.
	GraceInterval time.Duration `koanf:"grace_interval"`

	// SweepInterval is how often the absence sweeper runs.
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// AlertingConfig holds alert rule thresholds.
type AlertingConfig struct {
	// AbsenceThreshold is the unseen duration that opens an absence alert
	// at medium priority.
	AbsenceThreshold time.Duration `koanf:"absence_threshold"`

	// HighPriorityThreshold is the unseen duration at which an open
	// absence alert escalates to high priority.
	HighPriorityThreshold time.Duration `koanf:"high_priority_threshold"`

	// UnknownConfidenceFloor is the minimum confidence for an unknown-person
	// detection to raise an alert.
	UnknownConfidenceFloor float64 `koanf:"unknown_confidence_floor"`

	// UnknownEscalationCount is the number of unknown-person detections on
	// one camera within UnknownEscalationWindow that escalates the alert.
	UnknownEscalationCount  int           `koanf:"unknown_escalation_count"`
	UnknownEscalationWindow time.Duration `koanf:"unknown_escalation_window"`
}

// NotifyConfig holds notification dispatch settings.
type NotifyConfig struct {
	QueueSize     int           `koanf:"queue_size"`
	MaxAttempts   int           `koanf:"max_attempts"`
	RetryBackoff  time.Duration `koanf:"retry_backoff"`
	RatePerMinute int           `koanf:"rate_per_minute"`

	Webhook WebhookConfig `koanf:"webhook"`
	Email   EmailConfig   `koanf:"email"`
}

// WebhookConfig holds webhook notifier settings.
type WebhookConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// EmailConfig holds SMTP notifier settings.
type EmailConfig struct {
	Enabled  bool     `koanf:"enabled"`
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	Username string   `koanf:"username"`
	Password string   `koanf:"password"`
	From     string   `koanf:"from"`
	To       []string `koanf:"to"`
	UseTLS   bool     `koanf:"use_tls"`
}

// NATSConfig holds detection event transport settings.
// Camera workers publish raw detections on Subject; Vigil consumes them
// through a queue-group subscription so multiple replicas share the load.
type NATSConfig struct {
	Enabled       bool          `koanf:"enabled"`
	URL           string        `koanf:"url"`
	Subject       string        `koanf:"subject"`
	QueueGroup    string        `koanf:"queue_group"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// StoreConfig holds alert journal settings.
type StoreConfig struct {
	// Path is the Badger directory for the durable alert journal.
	// Empty disables persistence (alerts live in memory only).
	Path string `koanf:"path"`
}

// RosterConfig holds faculty roster settings.
type RosterConfig struct {
	// Path is the YAML roster file listing faculty subjects and cameras.
	Path string `koanf:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or inconsistent values.
// It returns a descriptive error for the first problem found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}

	if c.API.DefaultPageSize < 1 {
		return fmt.Errorf("api.default_page_size must be at least 1, got %d", c.API.DefaultPageSize)
	}
	if c.API.MaxPageSize < c.API.DefaultPageSize {
		return fmt.Errorf("api.max_page_size (%d) must be >= api.default_page_size (%d)",
			c.API.MaxPageSize, c.API.DefaultPageSize)
	}

	if c.Intake.ConfidenceFloor < 0 || c.Intake.ConfidenceFloor > 1 {
		return fmt.Errorf("intake.confidence_floor must be 0-1, got %g", c.Intake.ConfidenceFloor)
	}
	if c.Intake.MaxClockSkew <= 0 {
		return fmt.Errorf("intake.max_clock_skew must be positive, got %s", c.Intake.MaxClockSkew)
	}
	if c.Intake.DedupWindow <= 0 {
		return fmt.Errorf("intake.dedup_window must be positive, got %s", c.Intake.DedupWindow)
	}

	if c.Presence.GraceInterval <= 0 {
		return fmt.Errorf("presence.grace_interval must be positive, got %s", c.Presence.GraceInterval)
	}
	if c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("presence.sweep_interval must be positive, got %s", c.Presence.SweepInterval)
	}

	if c.Alerting.AbsenceThreshold <= 0 {
		return fmt.Errorf("alerting.absence_threshold must be positive, got %s", c.Alerting.AbsenceThreshold)
	}
	if c.Alerting.HighPriorityThreshold <= c.Alerting.AbsenceThreshold {
		return fmt.Errorf("alerting.high_priority_threshold (%s) must exceed alerting.absence_threshold (%s)",
			c.Alerting.HighPriorityThreshold, c.Alerting.AbsenceThreshold)
	}
	if c.Alerting.UnknownConfidenceFloor < 0 || c.Alerting.UnknownConfidenceFloor > 1 {
		return fmt.Errorf("alerting.unknown_confidence_floor must be within [0, 1], got %.2f",
			c.Alerting.UnknownConfidenceFloor)
	}
	if c.Alerting.UnknownEscalationCount < 1 {
		return fmt.Errorf("alerting.unknown_escalation_count must be at least 1, got %d",
			c.Alerting.UnknownEscalationCount)
	}
	if c.Alerting.UnknownEscalationWindow <= 0 {
		return fmt.Errorf("alerting.unknown_escalation_window must be positive, got %s",
			c.Alerting.UnknownEscalationWindow)
	}

	if c.Notify.QueueSize < 1 {
		return fmt.Errorf("notify.queue_size must be at least 1, got %d", c.Notify.QueueSize)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notify.max_attempts must be at least 1, got %d", c.Notify.MaxAttempts)
	}
	if c.Notify.Webhook.Enabled {
		if c.Notify.Webhook.URL == "" {
			return fmt.Errorf("notify.webhook.url is required when webhook notifications are enabled")
		}
		u, err := url.Parse(c.Notify.Webhook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("notify.webhook.url must be a valid http(s) URL, got %q", c.Notify.Webhook.URL)
		}
	}
	if c.Notify.Email.Enabled {
		if c.Notify.Email.Host == "" {
			return fmt.Errorf("notify.email.host is required when email notifications are enabled")
		}
		if c.Notify.Email.From == "" {
			return fmt.Errorf("notify.email.from is required when email notifications are enabled")
		}
		if len(c.Notify.Email.To) == 0 {
			return fmt.Errorf("notify.email.to requires at least one recipient when email notifications are enabled")
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when NATS intake is enabled")
	}
	if c.NATS.Enabled && c.NATS.Subject == "" {
		return fmt.Errorf("nats.subject is required when NATS intake is enabled")
	}

	return nil
}
