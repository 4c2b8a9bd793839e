package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dario.cat/mergo"
	"github.com/rs/zerolog/log"
	"github.com/titanous/json5"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IBREPORT_"

// splitExt splits "ibreport.json5" into "ibreport" and "json5".
func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// LocalPath returns the override file read next to name: <name>.local.<ext>.
func LocalPath(name string) string {
	prefix, ext := splitExt(filepath.Base(name))
	if ext == "" {
		return filepath.Join(filepath.Dir(name), prefix+".local")
	}
	return filepath.Join(filepath.Dir(name), fmt.Sprintf("%s.local.%s", prefix, ext))
}

// ReadFile reads a JSON5 file merged with its local override, the override taking priority.
// It returns os.ErrNotExist when neither file exists.
func ReadFile[T any](name string) (T, error) {
	var out T
	found := false

	data, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(data) > 0 {
		if err := json5.Unmarshal(data, &out); err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		found = true
	}

	localPath := LocalPath(name)
	local, err := os.ReadFile(localPath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(local) > 0 {
		var override T
		if err := json5.Unmarshal(local, &override); err != nil {
			return out, fmt.Errorf("parse %s: %w", localPath, err)
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("merge %s: %w", localPath, err)
		}
		log.Debug().Str("local", localPath).Msg("Merging config with local overrides")
		found = true
	}

	if !found {
		return out, os.ErrNotExist
	}
	return out, nil
}

// Load builds the configuration from defaults, the file at path (if any) and its local
// override, then IBREPORT_* environment variables, and validates the result.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		fromFile, err := ReadFile[Config](path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, err
		}
		if err := mergo.Merge(&cfg, fromFile, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envBindings maps environment variable suffixes to config fields.
func envBindings(cfg *Config) map[string]*string {
	return map[string]*string{
		"USER_AGENT":          &cfg.UserAgent,
		"LOG_LEVEL":           &cfg.Log.Level,
		"LOG_FORMAT":          &cfg.Log.Format,
		"REDIS_ADDR":          &cfg.Redis.Addr,
		"REDIS_PASSWORD":      &cfg.Redis.Password,
		"REDASH_URL":          &cfg.Redash.URL,
		"REDASH_API_KEY":      &cfg.Redash.APIKey,
		"REDASH_CACHE_TTL":    &cfg.Redash.CacheTTL,
		"GOOGLE_CREDENTIALS":  &cfg.Google.CredentialsFile,
		"GOOGLE_SUBJECT":      &cfg.Google.Subject,
		"ANALYTICS_VIEW_ID":   &cfg.Google.AnalyticsViewID,
		"SEARCHCONSOLE_SITE":  &cfg.Google.SearchConsoleSite,
		"DRIVE_FOLDER_ID":     &cfg.Google.DriveFolderID,
		"ADS_CUSTOMER_ID":     &cfg.Ads.CustomerID,
		"ADS_DEVELOPER_TOKEN": &cfg.Ads.DeveloperToken,
		"SERVER_ADDR":         &cfg.Server.Addr,
		"OTLP_GRPC_ENDPOINT":  &cfg.Telemetry.GRPCEndpoint,
		"OTLP_HTTP_ENDPOINT":  &cfg.Telemetry.HTTPEndpoint,
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for suffix, field := range envBindings(cfg) {
		if v, ok := lookup(EnvPrefix + suffix); ok && v != "" {
			*field = v
		}
	}
	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sREDIS_DB: %w", EnvPrefix, err)
		}
		cfg.Redis.DB = db
	}
	if v, ok := lookup(EnvPrefix + "SHARE_WITH"); ok && v != "" {
		cfg.Google.ShareWith = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
