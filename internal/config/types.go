package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Reminder ReminderConfig `json:"reminder"`
	Metrics  MetricsConfig  `json:"metrics,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChat is the chat id receiving WARN+ log records (optional).
	LogChat int64 `json:"log_chat,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// ParsePollTimeout returns the long-poll timeout, defaulting to 10s.
func (c TelegramConfig) ParsePollTimeout() (time.Duration, error) {
	return durationField("telegram.poll_timeout", c.PollTimeout, 10*time.Second)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	LogChat LoggingChat `json:"log_chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the reminder store backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindbot.db" }
//	"storage": { "driver": "postgres", "path": "postgres://..."}
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// ParseBusyTimeout returns the sqlite busy timeout; zero means the driver
// default.
func (c StorageConfig) ParseBusyTimeout() (time.Duration, error) {
	return durationField("storage.busy_timeout", c.BusyTimeout, 0)
}

// ReminderConfig tunes the scheduling core.
//
// All durations are Go duration strings (e.g. "30s", "24h").
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "30s"
//   - attempt_timeout: "15s"
//   - retention: "24h"
//   - purge_schedule: "0 4 * * *" (cron, daily at 04:00)
type ReminderConfig struct {
	PollInterval   string `json:"poll_interval,omitempty"`
	AttemptTimeout string `json:"attempt_timeout,omitempty"`
	Retention      string `json:"retention,omitempty"`
	PurgeSchedule  string `json:"purge_schedule,omitempty"`
}

func (c ReminderConfig) ParsePollInterval() (time.Duration, error) {
	return durationField("reminder.poll_interval", c.PollInterval, 30*time.Second)
}

func (c ReminderConfig) ParseAttemptTimeout() (time.Duration, error) {
	return durationField("reminder.attempt_timeout", c.AttemptTimeout, 15*time.Second)
}

func (c ReminderConfig) ParseRetention() (time.Duration, error) {
	return durationField("reminder.retention", c.Retention, 24*time.Hour)
}

// MetricsConfig controls the optional Prometheus endpoint.
//
// Prefer binding to localhost (e.g. "127.0.0.1:9090").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

// durationField parses one duration-string config field. Empty and zero
// values fall back to def; negative values are rejected.
func durationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
