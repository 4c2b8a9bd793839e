// Package googleauth builds authenticated HTTP clients for Google APIs from service account keys.
package googleauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/analyticsreporting/v4"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"
	"google.golang.org/api/sheets/v4"
)

// AdWordsScope grants access to the Google Ads API.
const AdWordsScope = "https://www.googleapis.com/auth/adwords"

// Scope sets used by the wrappers.
var (
	AnalyticsScopes     = []string{analyticsreporting.AnalyticsReadonlyScope}
	SearchConsoleScopes = []string{searchconsole.WebmastersReadonlyScope}
	SheetsScopes        = []string{sheets.SpreadsheetsScope, drive.DriveScope}
	AdsScopes           = []string{AdWordsScope}
)

// ErrNoCredentials is returned when neither a key file nor key JSON is configured.
var ErrNoCredentials = errors.New("no service account credentials configured")

// Config selects a service account key and the scopes to request.
type Config struct {
	// CredentialsFile is the path of a service account JSON key.
	CredentialsFile string

	// CredentialsJSON is the key itself; it takes priority over CredentialsFile.
	CredentialsJSON []byte

	// Subject is the user to impersonate with domain-wide delegation. Optional.
	Subject string

	Scopes []string
}

func (c Config) keyJSON() ([]byte, error) {
	if len(c.CredentialsJSON) > 0 {
		return c.CredentialsJSON, nil
	}
	if c.CredentialsFile == "" {
		return nil, ErrNoCredentials
	}
	data, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return data, nil
}

// HTTPClient returns an HTTP client that signs requests with the service account.
// The client refreshes its token on its own for as long as ctx lives.
func HTTPClient(ctx context.Context, cfg Config) (*http.Client, error) {
	if len(cfg.Scopes) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}
	data, err := cfg.keyJSON()
	if err != nil {
		return nil, err
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	jwtConfig.Subject = cfg.Subject

	return jwtConfig.Client(ctx), nil
}

// ClientOptions returns the options for constructing a google.golang.org/api service.
func ClientOptions(ctx context.Context, cfg Config) ([]option.ClientOption, error) {
	hc, err := HTTPClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithHTTPClient(hc)}, nil
}
