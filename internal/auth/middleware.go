package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noc-kit/faultdesk/pkg/util"
)

const principalKey = "auth_principal"

// AuthMiddleware verifies bearer tokens and attaches the claims to the
// request context.
type AuthMiddleware struct {
	verifier *Verifier
}

// NewAuthMiddleware builds the middleware.
func NewAuthMiddleware(verifier *Verifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// Handle rejects requests without a valid bearer token.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return util.NewUnauthorized("bearer token required")
	}
	claims, err := m.verifier.ParseToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return util.NewUnauthorized("invalid token")
	}
	c.Locals(principalKey, claims)
	return c.Next()
}

// PrincipalFromContext returns the verified claims, if any.
func PrincipalFromContext(c *fiber.Ctx) (*Claims, bool) {
	claims, ok := c.Locals(principalKey).(*Claims)
	return claims, ok
}

// RequireAdmin gates administrative endpoints.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := PrincipalFromContext(c)
		if !ok {
			return util.NewUnauthorized("authentication required")
		}
		if claims.Role != RoleAdmin {
			return util.NewForbidden("admin role required")
		}
		return c.Next()
	}
}
