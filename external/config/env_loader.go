package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	internalconfig "github.com/foxseedlab/rdhours/internal/config"
)

type envConfig struct {
	Env                        string   `env:"ENV" envDefault:"production"`
	Timezone                   string   `env:"TIMEZONE" envDefault:"Europe/Berlin"`
	EventLogPath               string   `env:"EVENT_LOG_PATH"`
	EventLogLocale             string   `env:"EVENT_LOG_LOCALE"`
	GitRepositories            []string `env:"GIT_REPOSITORIES" envSeparator:","`
	GitAuthor                  string   `env:"GIT_AUTHOR"`
	DailyCapHours              float64  `env:"DAILY_CAP_HOURS" envDefault:"11"`
	OverlapLongThresholdHours  float64  `env:"OVERLAP_LONG_THRESHOLD_HOURS" envDefault:"1.0"`
	RebootGraceMinutes         int      `env:"REBOOT_GRACE_MINUTES" envDefault:"5"`
	GridMinutes                int      `env:"GRID_MINUTES" envDefault:"5"`
	WorkBreakMinutes           int      `env:"WORK_BREAK_MINUTES" envDefault:"30"`
	DatabaseURL                string   `env:"DATABASE_URL"`
	GoogleCloudCredentialsJSON string   `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleCalendarID           string   `env:"GOOGLE_CALENDAR_ID"`
	DiscordToken               string   `env:"DISCORD_TOKEN"`
	DiscordChannelID           string   `env:"DISCORD_CHANNEL_ID"`
	ReportWebhookURL           string   `env:"REPORT_WEBHOOK_URL"`
	DryRun                     bool     `env:"DRY_RUN" envDefault:"false"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*internalconfig.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                        raw.Env,
		Timezone:                   raw.Timezone,
		EventLogPath:               raw.EventLogPath,
		EventLogLocale:             raw.EventLogLocale,
		GitRepositories:            compact(raw.GitRepositories),
		GitAuthor:                  raw.GitAuthor,
		DailyCapHours:              raw.DailyCapHours,
		OverlapLongThresholdHours:  raw.OverlapLongThresholdHours,
		RebootGraceMinutes:         raw.RebootGraceMinutes,
		GridMinutes:                raw.GridMinutes,
		WorkBreakMinutes:           raw.WorkBreakMinutes,
		DatabaseURL:                raw.DatabaseURL,
		GoogleCloudCredentialsJSON: raw.GoogleCloudCredentialsJSON,
		GoogleCalendarID:           raw.GoogleCalendarID,
		DiscordToken:               raw.DiscordToken,
		DiscordChannelID:           raw.DiscordChannelID,
		ReportWebhookURL:           raw.ReportWebhookURL,
		DryRun:                     raw.DryRun,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
