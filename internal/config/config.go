// Package config provides configuration management for the NSE analytics toolkit.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Loader   LoaderConfig   `mapstructure:"loader" validate:"required"`
	Download DownloadConfig `mapstructure:"download" validate:"required"`
	Metrics  MetricsConfig  `mapstructure:"metrics" validate:"required"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Report   ReportConfig   `mapstructure:"report"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
}

// LoaderConfig represents the F&O reconciliation loader configuration
type LoaderConfig struct {
	SourceDir string `mapstructure:"source_dir" validate:"required"`
	// RetryBound is the hard ceiling on full read-write-validate attempts
	// per trading date.
	RetryBound int `mapstructure:"retry_bound" validate:"required,gte=1,lte=10"`
	// MaxDropRate is the tolerated fraction of rows dropped during
	// normalization before a date is treated as corrupt.
	MaxDropRate float64 `mapstructure:"max_drop_rate" validate:"gte=0,lte=1"`
}

// DownloadConfig represents the bhavcopy download client configuration
type DownloadConfig struct {
	BaseURL        string  `mapstructure:"base_url" validate:"required,url"`
	PrimeURL       string  `mapstructure:"prime_url" validate:"required,url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" validate:"required,gt=0"`
	RateLimit      float64 `mapstructure:"rate_limit" validate:"required,gt=0"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// ScheduleConfig represents the daily download+load job schedule
type ScheduleConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DailyRun string `mapstructure:"daily_run"`
}

// ReportConfig represents monthly aggregation settings
type ReportConfig struct {
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
	TopSymbols      int `mapstructure:"top_symbols"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// DownloadTimeout returns the download client timeout as a duration
func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// ReportCacheTTL returns the aggregate cache TTL as a duration
func (c *Config) ReportCacheTTL() time.Duration {
	if c.Report.CacheTTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Report.CacheTTLMinutes) * time.Minute
}
