package domain

import (
	"fmt"
	"strings"
	"time"
)

// Credentials identify this service to the warehouse query API.
// KeyID and KeySecret are the service-account access/secret key pair (SAAK/SASK)
// used as the password-grant username and password. Never persisted.
type Credentials struct {
	Tenant       string `json:"tenant"`
	KeyID        string `json:"-"`
	KeySecret    string `json:"-"`
	ClientID     string `json:"-"`
	ClientSecret string `json:"-"`
	APIBaseURL   string `json:"api_base_url"`
	SSOBaseURL   string `json:"sso_base_url"`
}

// Missing returns the names of empty required fields.
func (c *Credentials) Missing() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("tenant", c.Tenant)
	check("keyId", c.KeyID)
	check("keySecret", c.KeySecret)
	check("clientId", c.ClientID)
	check("clientSecret", c.ClientSecret)
	check("apiBaseUrl", c.APIBaseURL)
	check("ssoBaseUrl", c.SSOBaseURL)
	return missing
}

// Validate returns ErrInvalidInput naming every missing field.
func (c *Credentials) Validate() error {
	if missing := c.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: missing credentials: %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// Token is a bearer token and the instant it stops being reused
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token may still be reused at now.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Before(t.ExpiresAt)
}
