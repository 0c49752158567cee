// Package config provides YAML-based configuration loading for Pitstop.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Pitstop configuration, loaded from config.yaml.
type Config struct {
	// Platform selects the chat adapter, currently "slack".
	Platform string `yaml:"platform"`

	// Approver is the chat ID of the administrator who reviews requests.
	Approver string `yaml:"approver"`

	// Contacts is the free-form text sent for the contacts menu item.
	Contacts string `yaml:"contacts"`

	Slack     SlackConfig     `yaml:"slack"`
	DB        DBConfig        `yaml:"db"`
	Google    GoogleConfig    `yaml:"google"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Services  []ServiceConfig `yaml:"services"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Digest    DigestConfig    `yaml:"digest"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// SlackConfig holds Slack socket mode credentials.
type SlackConfig struct {
	AppToken string `yaml:"app_token"`
	BotToken string `yaml:"bot_token"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	User     string `yaml:"user"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// GoogleConfig holds credentials for the calendar and spreadsheet APIs.
type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
	SheetID         string `yaml:"sheet_id"`
}

// ScheduleConfig defines the business hours and slot arithmetic.
type ScheduleConfig struct {
	TimezoneOffsetHours int `yaml:"timezone_offset_hours"`
	OpenHour            int `yaml:"open_hour"`
	CloseHour           int `yaml:"close_hour"`
	GridStepMin         int `yaml:"grid_step_min"`
	SlotStepMin         int `yaml:"slot_step_min"`
	MaxDates            int `yaml:"max_dates"`
	HorizonDays         int `yaml:"horizon_days"`
	MaxDaysAhead        int `yaml:"max_days_ahead"`
}

// ServiceConfig is one bookable service.
type ServiceConfig struct {
	Name          string  `yaml:"name"`
	DurationHours float64 `yaml:"duration_hours"`
}

// SessionsConfig controls expiry of abandoned conversations.
type SessionsConfig struct {
	SweepCron string `yaml:"sweep_cron"`
	MaxAgeMin int    `yaml:"max_age_min"`
}

// DigestConfig controls the daily summary sent to the approver.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// DashboardConfig controls the embedded web dashboard.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "slack"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "pitstop.db"
	}
	if c.DB.Host == "" {
		c.DB.Host = "127.0.0.1"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.DB.Database == "" {
		c.DB.Database = "pitstop"
	}
	if c.Schedule.TimezoneOffsetHours == 0 {
		c.Schedule.TimezoneOffsetHours = 4
	}
	if c.Schedule.OpenHour == 0 {
		c.Schedule.OpenHour = 10
	}
	if c.Schedule.CloseHour == 0 {
		c.Schedule.CloseHour = 22
	}
	if c.Schedule.GridStepMin == 0 {
		c.Schedule.GridStepMin = 5
	}
	if c.Schedule.SlotStepMin == 0 {
		c.Schedule.SlotStepMin = 30
	}
	if c.Schedule.MaxDates == 0 {
		c.Schedule.MaxDates = 7
	}
	if c.Schedule.HorizonDays == 0 {
		c.Schedule.HorizonDays = 30
	}
	if c.Schedule.MaxDaysAhead == 0 {
		c.Schedule.MaxDaysAhead = 60
	}
	if len(c.Services) == 0 {
		c.Services = []ServiceConfig{
			{Name: "Замена масла", DurationHours: 0.5},
			{Name: "Чистка салона", DurationHours: 1},
			{Name: "Ремонт двигателя", DurationHours: 1.5},
		}
	}
	if c.Sessions.SweepCron == "" {
		c.Sessions.SweepCron = "*/10 * * * *"
	}
	if c.Sessions.MaxAgeMin == 0 {
		c.Sessions.MaxAgeMin = 30
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 21 * * *"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8090
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Approver == "" {
		errs = append(errs, "approver is required")
	}
	switch c.Platform {
	case "slack":
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
	case "telegram":
		// Accepted here, rejected later by the adapter factory.
	default:
		errs = append(errs, fmt.Sprintf("unknown platform %q", c.Platform))
	}
	switch c.DB.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("unknown db.driver %q", c.DB.Driver))
	}
	if c.DB.Driver == "mysql" && c.DB.User == "" {
		errs = append(errs, "db.user is required for mysql")
	}
	if c.Schedule.OpenHour >= c.Schedule.CloseHour {
		errs = append(errs, "schedule.open_hour must be before schedule.close_hour")
	}
	for i, s := range c.Services {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("services[%d].name is required", i))
		}
		if s.DurationHours <= 0 {
			errs = append(errs, fmt.Sprintf("services[%d].duration_hours must be positive", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
