// Package config loads the workflow runner's configuration from
// environment variables. There is deliberately no CLI flag surface; every
// knob is an env var with a production default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"jax-trading-assistant/marketwire/internal/domain"
)

// Mode is the runner's operating mode: "commit", "validate", or "test" for
// local dry runs without any external adapters. Only "test" changes what the
// runner does (it exits before any adapter is built); the scheduled
// extraction job runs the Extractor Orchestrator in commit mode whichever
// Mode is set.
type Mode string

const (
	ModeCommit   Mode = "commit"
	ModeValidate Mode = "validate"
	ModeTest     Mode = "test"
)

// Config is the full, typed configuration surface of the workflow runner.
type Config struct {
	SourceCredentialsPath string

	OCRAPIKey string

	BrokerHost     string
	BrokerPort     int
	BrokerClientID int

	MailHost     string
	MailPort     int
	MailUser     string
	MailPassword string
	MailFrom     string
	MailTo       []string

	ScheduleExtractionTime string
	ScheduleAMTime         string
	SchedulePMTime         string
	ScheduleTimezone       string

	RuntimeParallelism      int
	RuntimeBrokerSpacingMs  int
	RuntimePerCallDeadlines map[string]time.Duration

	CategoriesWeekly []domain.Category
	CategoriesDaily  []domain.Category

	Mode Mode

	DatabaseDSN string
	RedisURL    string
}

// Load reads Config from the process environment, applying defaults for
// anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		SourceCredentialsPath: envStr("SOURCE_CREDENTIALS_PATH", ""),
		OCRAPIKey:             envStr("OCR_API_KEY", ""),

		BrokerHost:     envStr("BROKER_HOST", "127.0.0.1"),
		BrokerPort:     envInt("BROKER_PORT", 7497),
		BrokerClientID: envInt("BROKER_CLIENT_ID", 1),

		MailHost:     envStr("MAIL_HOST", ""),
		MailPort:     envInt("MAIL_PORT", 587),
		MailUser:     envStr("MAIL_USER", ""),
		MailPassword: envStr("MAIL_PASSWORD", ""),
		MailFrom:     envStr("MAIL_FROM", ""),
		MailTo:       envList("MAIL_TO"),

		ScheduleExtractionTime: envStr("SCHEDULE_EXTRACTION_TIME", "09:00"),
		ScheduleAMTime:         envStr("SCHEDULE_AM_TIME", "10:45"),
		SchedulePMTime:         envStr("SCHEDULE_PM_TIME", "14:30"),
		ScheduleTimezone:       envStr("SCHEDULE_TIMEZONE", "America/New_York"),

		RuntimeParallelism:     envInt("RUNTIME_PARALLELISM", 8),
		RuntimeBrokerSpacingMs: envInt("RUNTIME_BROKER_SPACING_MS", 500),

		CategoriesWeekly: categoriesOf(envList("CATEGORIES_WEEKLY", "etfs", "ideas")),
		CategoriesDaily:  categoriesOf(envList("CATEGORIES_DAILY", "daily", "digitalassets")),

		Mode: Mode(envStr("MODE", string(ModeCommit))),

		DatabaseDSN: envStr("DATABASE_DSN", ""),
		RedisURL:    envStr("REDIS_URL", "localhost:6379"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigError, err)
	}
	return cfg, nil
}

// Validate enforces the minimal configuration invariants needed to start.
func (c *Config) Validate() error {
	if c.Mode != ModeCommit && c.Mode != ModeValidate && c.Mode != ModeTest {
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	if c.Mode != ModeTest && c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required outside test mode")
	}
	if c.RuntimeParallelism <= 0 {
		c.RuntimeParallelism = 8
	}
	if c.RuntimeBrokerSpacingMs <= 0 {
		c.RuntimeBrokerSpacingMs = 500
	}
	for _, t := range []string{c.ScheduleExtractionTime, c.ScheduleAMTime, c.SchedulePMTime} {
		var hour, minute int
		if _, err := fmt.Sscanf(t, "%d:%d", &hour, &minute); err != nil {
			return fmt.Errorf("invalid schedule time %q: %w", t, err)
		}
	}
	return nil
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envList(key string, def ...string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func categoriesOf(names []string) []domain.Category {
	out := make([]domain.Category, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Category(strings.ToLower(strings.TrimSpace(n))))
	}
	return out
}
