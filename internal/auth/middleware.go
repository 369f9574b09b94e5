package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"registry-backend/internal/apperror"
)

const ctxPrincipalKey = "principal"

// Require guards a single route: the bearer token must authorize perm.
// The resolved principal is available to the handler via CurrentPrincipal.
func Require(authz Authorizer, perm Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return err
		}
		p, err := authz.Authorize(c.UserContext(), token, perm)
		if err != nil {
			return err
		}
		c.Locals(ctxPrincipalKey, p)
		return c.Next()
	}
}

// CurrentPrincipal returns the caller resolved by Require, or nil on
// unguarded routes.
func CurrentPrincipal(c *fiber.Ctx) *Principal {
	p, _ := c.Locals(ctxPrincipalKey).(*Principal)
	return p
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperror.Unauthorized("Unauthenticated.")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperror.Unauthorized("Authorization header must be 'Bearer <token>'.")
	}
	return strings.TrimSpace(parts[1]), nil
}
