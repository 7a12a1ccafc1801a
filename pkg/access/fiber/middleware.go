package fiber

import (
	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/access"
	"github.com/gofiber/fiber/v2"
)

// StaticMiddleware is a middleware whose action and object access parameters can
// be described at runtime as opposed to request time.
func StaticMiddleware(
	object string,
	action access.Action,
	enforcer access.Enforcer,
) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := enforcer.Enforce(access.Request{
			Subject: GetSubject(c),
			Object:  object,
			Action:  action,
		})
		if err == nil {
			return c.Next()
		}
		switch {
		case errors.Is(err, access.Unauthenticated):
			c.Status(fiber.StatusUnauthorized)
		case errors.Is(err, access.Forbidden):
			c.Status(fiber.StatusForbidden)
		default:
			c.Status(fiber.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"error": err.Error()})
	}
}
