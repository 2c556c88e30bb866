package config

import (
	"fmt"
	"time"
)

// SupportedGridMinutes is the only grid the rounding table is defined for.
const SupportedGridMinutes = 5

type Config struct {
	Env                        string
	Timezone                   string
	EventLogPath               string
	EventLogLocale             string
	GitRepositories            []string
	GitAuthor                  string
	DailyCapHours              float64
	OverlapLongThresholdHours  float64
	RebootGraceMinutes         int
	GridMinutes                int
	WorkBreakMinutes           int
	DatabaseURL                string
	GoogleCloudCredentialsJSON string
	GoogleCalendarID           string
	DiscordToken               string
	DiscordChannelID           string
	ReportWebhookURL           string
	DryRun                     bool
}

// ConfigurationError is fatal at startup and never raised mid-run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return invalid(req.name, "is required")
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return invalid("TIMEZONE", "unknown zone %q: %v", c.Timezone, err)
	}
	if c.GridMinutes != SupportedGridMinutes {
		return invalid("GRID_MINUTES", "only %d is supported, got %d", SupportedGridMinutes, c.GridMinutes)
	}
	if c.DailyCapHours <= 0 || c.DailyCapHours > 24 {
		return invalid("DAILY_CAP_HOURS", "must be in (0, 24], got %v", c.DailyCapHours)
	}
	if c.OverlapLongThresholdHours <= 0 {
		return invalid("OVERLAP_LONG_THRESHOLD_HOURS", "must be positive, got %v", c.OverlapLongThresholdHours)
	}
	if c.RebootGraceMinutes <= 0 {
		return invalid("REBOOT_GRACE_MINUTES", "must be positive, got %d", c.RebootGraceMinutes)
	}
	if c.WorkBreakMinutes <= 0 {
		return invalid("WORK_BREAK_MINUTES", "must be positive, got %d", c.WorkBreakMinutes)
	}
	if c.GoogleCalendarID != "" && c.GoogleCloudCredentialsJSON == "" {
		return invalid("GOOGLE_CLOUD_CREDENTIALS_JSON", "is required when GOOGLE_CALENDAR_ID is set")
	}
	if (c.DiscordToken == "") != (c.DiscordChannelID == "") {
		return invalid("DISCORD_CHANNEL_ID", "DISCORD_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if len(c.GitRepositories) > 0 && c.GitAuthor == "" {
		return invalid("GIT_AUTHOR", "is required when GIT_REPOSITORIES is set")
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "TIMEZONE", value: c.Timezone},
		{name: "EVENT_LOG_PATH", value: c.EventLogPath},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Location returns the canonical zone every instant is normalized to.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, invalid("TIMEZONE", "unknown zone %q: %v", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) DailyCapSeconds() float64 {
	return c.DailyCapHours * 3600
}

func (c *Config) RebootGrace() time.Duration {
	return time.Duration(c.RebootGraceMinutes) * time.Minute
}

func (c *Config) WorkBreak() time.Duration {
	return time.Duration(c.WorkBreakMinutes) * time.Minute
}

func (c *Config) CalendarEnabled() bool {
	return c.GoogleCalendarID != ""
}

func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != "" && c.DiscordChannelID != ""
}
