// Package config loads ibreport configuration files.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete ibreport configuration.
type Config struct {
	UserAgent string          `json:"userAgent" validate:"required"`
	Log       LogConfig       `json:"log"`
	Redis     RedisConfig     `json:"redis"`
	Redash    RedashConfig    `json:"redash"`
	Google    GoogleConfig    `json:"google"`
	Ads       AdsConfig       `json:"ads"`
	Server    ServerConfig    `json:"server"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=json console"`
}

// RedisConfig configures the shared Redis used for throttle state and the table cache.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string `json:"addr" validate:"omitempty,hostname_port"`
	Password string `json:"password"`
	DB       int    `json:"db" validate:"gte=0,lte=15"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// RedashConfig configures the BI-query wrapper.
type RedashConfig struct {
	URL          string `json:"url" validate:"omitempty,url"`
	APIKey       string `json:"apiKey"`
	PollInterval string `json:"pollInterval" validate:"duration"`
	CacheTTL     string `json:"cacheTTL" validate:"omitempty,duration"`
}

// PollIntervalDuration returns the parsed job poll interval.
func (r RedashConfig) PollIntervalDuration() time.Duration {
	return mustDuration(r.PollInterval)
}

// CacheTTLDuration returns the parsed cache TTL (0 disables caching).
func (r RedashConfig) CacheTTLDuration() time.Duration {
	return mustDuration(r.CacheTTL)
}

// GoogleConfig configures the Google API wrappers.
type GoogleConfig struct {
	// CredentialsFile is a service account key file.
	CredentialsFile string `json:"credentialsFile"`

	// Subject is the user impersonated through domain-wide delegation. Optional.
	Subject string `json:"subject" validate:"omitempty,email"`

	AnalyticsViewID   string   `json:"analyticsViewId"`
	SearchConsoleSite string   `json:"searchConsoleSite"`
	DriveFolderID     string   `json:"driveFolderId"`
	ShareWith         []string `json:"shareWith" validate:"dive,email"`
}

// AdsConfig configures the keyword volume wrapper.
type AdsConfig struct {
	Endpoint        string   `json:"endpoint" validate:"omitempty,url"`
	CustomerID      string   `json:"customerId" validate:"omitempty,numeric"`
	LoginCustomerID string   `json:"loginCustomerId" validate:"omitempty,numeric"`
	DeveloperToken  string   `json:"developerToken"`
	Language        string   `json:"language"`
	GeoTargets      []string `json:"geoTargets"`
}

// ServerConfig configures cmd/report-server.
type ServerConfig struct {
	Addr         string `json:"addr" validate:"required"`
	ReadTimeout  string `json:"readTimeout" validate:"duration"`
	WriteTimeout string `json:"writeTimeout" validate:"duration"`
}

// ReadTimeoutDuration returns the parsed read timeout.
func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return mustDuration(s.ReadTimeout)
}

// WriteTimeoutDuration returns the parsed write timeout.
func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return mustDuration(s.WriteTimeout)
}

// TelemetryConfig selects where request traces are exported over OTLP.
// With both endpoints empty tracing stays disabled.
type TelemetryConfig struct {
	// GRPCEndpoint takes priority over HTTPEndpoint.
	GRPCEndpoint string            `json:"grpcEndpoint" validate:"omitempty,url"`
	HTTPEndpoint string            `json:"httpEndpoint" validate:"omitempty,url"`
	Headers      map[string]string `json:"headers"`
}

// Enabled reports whether an OTLP endpoint is configured.
func (t TelemetryConfig) Enabled() bool {
	return t.GRPCEndpoint != "" || t.HTTPEndpoint != ""
}

// Default returns the configuration used for every field a file leaves unset.
func Default() Config {
	return Config{
		UserAgent: "ibreport/1.0",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Redash: RedashConfig{
			PollInterval: "1s",
		},
		Ads: AdsConfig{
			Endpoint: "https://googleads.googleapis.com",
			Language: "languageConstants/1000",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  "15s",
			WriteTimeout: "5m",
		},
	}
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("register duration validation: %w", err)
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	_, err := time.ParseDuration(fl.Field().String())
	return err == nil
}

// mustDuration parses a value already checked by Validate; invalid or empty values yield 0.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
