// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs every page, request and pending job poll.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs completed fetches and finished jobs.
	LevelInfo LogLevel = "info"

	// LevelWarn logs truncated results and throttling.
	LevelWarn LogLevel = "warn"

	// LevelError logs failed requests and jobs only.
	LevelError LogLevel = "error"
)

// Format selects the encoding of log entries.
type Format string

const (
	// FormatJSON writes one JSON object per entry.
	FormatJSON Format = "json"

	// FormatConsole writes colourised, human readable lines.
	FormatConsole Format = "console"
)

var zerologLevels = map[LogLevel]zerolog.Level{
	LevelDebug: zerolog.DebugLevel,
	LevelInfo:  zerolog.InfoLevel,
	LevelWarn:  zerolog.WarnLevel,
	LevelError: zerolog.ErrorLevel,
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written. Unknown levels mean info.
	Level LogLevel

	// Format defaults to FormatJSON.
	Format Format

	// Output defaults to os.Stderr so stdout stays free for report output.
	Output io.Writer

	// App, when set, is added to every entry as the "app" field.
	App string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// NewConfig validates level and format names as found in configuration files and flags.
func NewConfig(level, format, app string, out io.Writer) (Config, error) {
	cfg := DefaultConfig()
	cfg.App = app
	if out != nil {
		cfg.Output = out
	}

	l, err := ParseLevel(level)
	if err != nil {
		return cfg, err
	}
	cfg.Level = l

	switch f := Format(strings.ToLower(strings.TrimSpace(format))); f {
	case "":
	case FormatJSON, FormatConsole:
		cfg.Format = f
	default:
		return cfg, fmt.Errorf("unknown log format %q (want json or console)", format)
	}
	return cfg, nil
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	level, ok := zerologLevels[cfg.Level]
	if !ok {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Format == FormatConsole {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.App != "" {
		ctx = ctx.Str("app", cfg.App)
	}
	logger := ctx.Logger()
	log.Logger = logger
	return logger
}

// ParseLevel validates a level name such as a --log-level flag value.
func ParseLevel(s string) (LogLevel, error) {
	l := LogLevel(strings.ToLower(strings.TrimSpace(s)))
	if l == "warning" {
		l = LevelWarn
	}
	if _, ok := zerologLevels[l]; !ok {
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
	return l, nil
}

// NewLogger derives a logger tagged with component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Levels by example:
//
// Debug: every fetched page (iteration, page_rows, total_rows), requests (method, path),
// cache hits and misses, job polls that are still pending.
//
// Info: completed fetches (pages, rows, reason, truncated), finished jobs, recovered
// throttling, server startup and shutdown.
//
// Warn: truncated results, upstream throttling, retry exhaustion, queries without a result.
//
// Error: requests that failed after retries, failed jobs, configuration errors.
//
// Field names:
//   - component: package emitting the entry (pagination, http-client, redash, ...)
//   - source: paginated source name
//   - service: upstream API name
//   - path, status: request path and HTTP status
//   - error_class: client, server, rate_limit, network
//   - pages, rows, reason, truncated: fetch outcome
//   - job_id, polls: job polling state
