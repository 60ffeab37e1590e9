package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"objectgate/internal/authz"
	"objectgate/internal/store"
)

// Middleware returns a Fiber middleware that validates the bearer token and
// sets a fresh Principal snapshot on the request. Each request gets its own
// snapshot, so the permission cache never outlives one request.
func Middleware(db *store.Store, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return authz.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return authz.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return authz.UnauthorizedError("Invalid or expired token")
		}

		p, err := LoadPrincipal(c.Context(), db, claims.Subject)
		if errors.Is(err, store.ErrNotFound) {
			return authz.UnauthorizedError("Unknown user")
		}
		if err != nil {
			return err
		}

		c.Locals("principal", p)
		return c.Next()
	}
}

// RequireSuperuser checks the authenticated principal is an active superuser.
func RequireSuperuser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := authz.GetPrincipal(c)
		if !p.Authenticated() {
			return authz.UnauthorizedError("Missing auth token")
		}
		if !p.Superuser {
			return authz.PermissionDeniedError("Superuser access required")
		}
		return c.Next()
	}
}
