package token

import (
	"github.com/niksbanna/ehr-portal-sub000/internal/revocation"
	authmw "github.com/niksbanna/ehr-portal-sub000/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims projects validated claims onto what the auth gate needs.
// The fingerprint is taken over the raw token string.
func ToMiddlewareClaims(raw string, claims *Claims) *authmw.JWTClaims {
	out := &authmw.JWTClaims{
		UserID:      claims.Subject,
		Role:        claims.Role,
		Fingerprint: revocation.Fingerprint(raw),
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out
}

// JWTServiceAdapter satisfies authmw.JWTValidator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(tokenString, claims), nil
}
