package driven

import "github.com/custodia-labs/sercha-sync/internal/core/domain"

// AuthAdapter signs and verifies dashboard bearer tokens.
type AuthAdapter interface {
	GenerateToken(claims *domain.OperatorClaims) (string, error)
	ParseToken(token string) (*domain.OperatorClaims, error)
}
