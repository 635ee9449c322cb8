// Package config loads taskrunner settings from an optional YAML file and
// TASKRUNNER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

const envPrefix = "TASKRUNNER_"

type Config struct {
	Port      string `yaml:"port"`
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Timezone  string `yaml:"timezone"`
	BaseURL   string `yaml:"base_url"`

	TickInterval   string `yaml:"tick_interval"`
	TokenTTL       string `yaml:"token_ttl"`
	SnoozeDuration string `yaml:"snooze_duration"`
	SentRetention  string `yaml:"sent_retention"`

	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	VAPIDSubscriber string `yaml:"vapid_subscriber"`
	TokenSecret     string `yaml:"token_secret"`

	// SnoozeRate is the number of snooze requests allowed per client per minute.
	SnoozeRate int `yaml:"snooze_rate"`

	// Resolved by Load.
	Location  *time.Location `yaml:"-"`
	Tick      time.Duration  `yaml:"-"`
	TokenLife time.Duration  `yaml:"-"`
	Snooze    time.Duration  `yaml:"-"`
	Retention time.Duration  `yaml:"-"`
}

func defaults() Config {
	return Config{
		Port:            "8080",
		DBPath:          "taskrunner.db",
		LogLevel:        "info",
		LogFormat:       "text",
		Timezone:        "Local",
		TickInterval:    "1m",
		TokenTTL:        "1h",
		SnoozeDuration:  "10m",
		SentRetention:   "48h",
		VAPIDSubscriber: "mailto:noreply@taskrunner.local",
		SnoozeRate:      10,
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	overrideFromEnv(&cfg)

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overrideFromEnv(cfg *Config) {
	str := map[string]*string{
		"PORT":              &cfg.Port,
		"DB_PATH":           &cfg.DBPath,
		"LOG_LEVEL":         &cfg.LogLevel,
		"LOG_FORMAT":        &cfg.LogFormat,
		"TIMEZONE":          &cfg.Timezone,
		"BASE_URL":          &cfg.BaseURL,
		"TICK_INTERVAL":     &cfg.TickInterval,
		"TOKEN_TTL":         &cfg.TokenTTL,
		"SNOOZE_DURATION":   &cfg.SnoozeDuration,
		"SENT_RETENTION":    &cfg.SentRetention,
		"VAPID_PUBLIC_KEY":  &cfg.VAPIDPublicKey,
		"VAPID_PRIVATE_KEY": &cfg.VAPIDPrivateKey,
		"VAPID_SUBSCRIBER":  &cfg.VAPIDSubscriber,
		"TOKEN_SECRET":      &cfg.TokenSecret,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv(envPrefix + "SNOOZE_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SnoozeRate = n
		}
	}
}

func (c *Config) resolve() error {
	var errs []error

	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("port: %q is not a number", c.Port))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path: must not be empty"))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	c.Location = loc

	c.Tick, err = positiveDuration("tick_interval", c.TickInterval)
	errs = append(errs, err)
	c.TokenLife, err = positiveDuration("token_ttl", c.TokenTTL)
	errs = append(errs, err)
	c.Snooze, err = positiveDuration("snooze_duration", c.SnoozeDuration)
	errs = append(errs, err)
	c.Retention, err = positiveDuration("sent_retention", c.SentRetention)
	errs = append(errs, err)

	if c.SnoozeRate <= 0 {
		errs = append(errs, fmt.Errorf("snooze_rate: must be > 0, got %d", c.SnoozeRate))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func positiveDuration(field, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be > 0", field)
	}
	return d, nil
}
