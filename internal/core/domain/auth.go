package domain

import "time"

// OperatorClaims identify a dashboard operator presenting a bearer token
type OperatorClaims struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// NewOperatorClaims creates claims for subject valid for ttl from now.
func NewOperatorClaims(subject string, now time.Time, ttl time.Duration) *OperatorClaims {
	return &OperatorClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

// IsExpired reports whether the claims are past their expiry at now.
func (c *OperatorClaims) IsExpired(now time.Time) bool {
	return now.Unix() >= c.ExpiresAt
}
