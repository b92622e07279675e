package auth

import (
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/noc-kit/faultdesk/internal/domain"
)

// Role is the caller role asserted by the external claims provider.
type Role string

const (
	RoleHelpdesk Role = "helpdesk"
	RoleAdmin    Role = "admin"
)

// Claims describes the JWT payload this service accepts. Tokens are issued
// elsewhere; we only verify them.
type Claims struct {
	SubjectID string `json:"sub"`
	Name      string `json:"name,omitempty"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// Origin maps the caller role to a progress update origin tag.
func (c *Claims) Origin() domain.UpdateOrigin {
	if c.Role == RoleAdmin {
		return domain.OriginAdmin
	}
	return domain.OriginHelpdesk
}

// Verifier validates JWTs from the external claims provider.
type Verifier struct {
	secret []byte
}

// NewVerifier builds a verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ParseToken validates and returns claims.
func (v *Verifier) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Role != RoleHelpdesk && claims.Role != RoleAdmin {
		return nil, errors.New("unknown role claim")
	}
	return claims, nil
}
