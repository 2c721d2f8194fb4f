// Package credentials resolves warehouse API credentials from a file and the
// environment.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-sync/internal/core/domain"
)

// Environment variables that override individual file fields.
const (
	EnvTenantID     = "WAREHOUSE_TENANT_ID"
	EnvKeyID        = "WAREHOUSE_SAAK"
	EnvKeySecret    = "WAREHOUSE_SASK"
	EnvClientID     = "WAREHOUSE_CLIENT_ID"
	EnvClientSecret = "WAREHOUSE_CLIENT_SECRET"
	EnvAPIURL       = "WAREHOUSE_API_URL"
	EnvSSOURL       = "WAREHOUSE_SSO_URL"
)

// file is the on-disk layout. JSON files parse too.
type file struct {
	TenantID     string `yaml:"tenantId"`
	SAAK         string `yaml:"saak"`
	SASK         string `yaml:"sask"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	APIURL       string `yaml:"apiUrl"`
	SSOURL       string `yaml:"ssoUrl"`
}

// Resolver builds Credentials from an optional file plus environment overrides.
type Resolver struct {
	Path   string
	Getenv func(string) string
}

// NewResolver creates a resolver reading path (may be empty) and the process
// environment.
func NewResolver(path string) *Resolver {
	return &Resolver{Path: path, Getenv: os.Getenv}
}

// Resolve loads the file if one is configured, applies non-empty environment
// values on top, and validates the result.
func (r *Resolver) Resolve() (*domain.Credentials, error) {
	var f file
	if r.Path != "" {
		data, err := os.ReadFile(r.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// env only
		case err != nil:
			return nil, fmt.Errorf("read credentials file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("%w: parse credentials file %s: %v", domain.ErrInvalidInput, r.Path, err)
			}
		}
	}

	getenv := r.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&f.TenantID, EnvTenantID)
	override(&f.SAAK, EnvKeyID)
	override(&f.SASK, EnvKeySecret)
	override(&f.ClientID, EnvClientID)
	override(&f.ClientSecret, EnvClientSecret)
	override(&f.APIURL, EnvAPIURL)
	override(&f.SSOURL, EnvSSOURL)

	creds := &domain.Credentials{
		Tenant:       f.TenantID,
		KeyID:        f.SAAK,
		KeySecret:    f.SASK,
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		APIBaseURL:   strings.TrimRight(f.APIURL, "/"),
		SSOBaseURL:   strings.TrimRight(f.SSOURL, "/"),
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}
