// Package config reads runtime settings from a .env file and the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"meetmetrics/internal/caldav"
	"meetmetrics/internal/delivery"
	"meetmetrics/internal/google"
	"meetmetrics/internal/models"
	"meetmetrics/internal/session"
	"meetmetrics/internal/store"
)

const (
	defaultRedirectURL = "http://localhost:8080/callback"
	defaultHTTPAddr    = ":8080"
	defaultSMTPPort    = 587
)

// Config is the complete runtime configuration.
type Config struct {
	Google           session.Secrets
	GoogleRedirect   string
	GoogleCalendarID string
	CalDAV           caldav.Settings
	SMTP             delivery.SMTPSettings
	Location         *time.Location
	LogLevel         string
	HTTPAddr         string
	DatabasePath     string
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()
	return FromLookup(os.Getenv)
}

// FromLookup builds a Config from a variable lookup function.
func FromLookup(getenv func(string) string) (Config, error) {
	cfg := Config{
		Google: session.Secrets{
			ClientID:     getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: getenv("GOOGLE_CLIENT_SECRET"),
		},
		GoogleRedirect:   withDefault(getenv("GOOGLE_REDIRECT_URL"), defaultRedirectURL),
		GoogleCalendarID: withDefault(getenv("GOOGLE_CALENDAR_ID"), google.DefaultCalendarID),
		CalDAV: caldav.Settings{
			URL:          getenv("CALDAV_URL"),
			Username:     getenv("CALDAV_USERNAME"),
			Password:     getenv("CALDAV_PASSWORD"),
			CalendarName: getenv("CALDAV_CALENDAR_NAME"),
		},
		SMTP: delivery.SMTPSettings{
			Host:     getenv("SMTP_HOST"),
			Port:     defaultSMTPPort,
			Username: getenv("SMTP_USERNAME"),
			Password: getenv("SMTP_PASSWORD"),
			From:     getenv("SMTP_FROM"),
		},
		LogLevel:     withDefault(getenv("LOG_LEVEL"), "info"),
		HTTPAddr:     withDefault(getenv("HTTP_ADDR"), defaultHTTPAddr),
		DatabasePath: getenv("DATABASE_PATH"),
	}

	if port := getenv("SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return Config{}, fmt.Errorf("%w: invalid SMTP_PORT %q", models.ErrConfiguration, port)
		}
		cfg.SMTP.Port = p
	}

	tzStr := withDefault(getenv("PRIMARY_TIMEZONE"), "UTC")
	loc, err := time.LoadLocation(tzStr)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid timezone '%s': %w", models.ErrConfiguration, tzStr, err)
	}
	cfg.Location = loc

	if cfg.DatabasePath == "" {
		path, err := store.DefaultPath()
		if err != nil {
			return Config{}, fmt.Errorf("%w: %w", models.ErrConfiguration, err)
		}
		cfg.DatabasePath = path
	}
	return cfg, nil
}

// GoogleConfigured reports whether both OAuth client secrets are present.
func (c Config) GoogleConfigured() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
