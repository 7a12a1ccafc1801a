package fiber

import (
	"strings"

	"github.com/cockroachdb/errors"
	fiberaccess "github.com/eshiol/j3-rest-api/pkg/access/fiber"
	"github.com/eshiol/j3-rest-api/pkg/auth/token"
	"github.com/gofiber/fiber/v2"
)

// TokenMiddleware parses a token from the request and checks if it is valid.
// If the token is valid, it sets the user's key as the subject of the request.
// Requests without a valid token are rejected.
func TokenMiddleware(svc *token.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tk, found, err := parseToken(c)
		if !found {
			err = errors.New("[auth] - token required")
		}
		if err != nil {
			return unauthorized(c, err)
		}
		key, err := svc.Validate(tk)
		if err != nil {
			return unauthorized(c, err)
		}
		fiberaccess.SetSubject(c, key)
		return c.Next()
	}
}

// GuestTokenMiddleware is TokenMiddleware for routes open to guests. Requests
// without a token proceed as guests, but a token that is present must be valid.
func GuestTokenMiddleware(svc *token.Service) fiber.Handler {
	required := TokenMiddleware(svc)
	return func(c *fiber.Ctx) error {
		if _, found, _ := parseToken(c); !found {
			return c.Next()
		}
		return required(c)
	}
}

func unauthorized(c *fiber.Ctx, err error) error {
	c.Status(fiber.StatusUnauthorized)
	return c.JSON(fiber.Map{"error": err.Error()})
}

type tokenParser func(c *fiber.Ctx) (token string, found bool, err error)

const (
	tokenCookieName               = "token"
	headerTokenPrefix             = "Bearer "
	invalidAuthorizationHeaderMsg = `
	invalid authorization header. Format should be

		'Authorization: Bearer <Token>'
	`
)

var tokenParsers = []tokenParser{
	tryParseCookieToken,
	tryParseHeaderToken,
}

func parseToken(c *fiber.Ctx) (string, bool, error) {
	for _, tp := range tokenParsers {
		if tk, found, err := tp(c); found {
			return tk, true, err
		}
	}
	return "", false, nil
}

func tryParseCookieToken(c *fiber.Ctx) (string, bool, error) {
	tk := c.Cookies(tokenCookieName)
	return tk, len(tk) != 0, nil
}

func tryParseHeaderToken(c *fiber.Ctx) (string, bool, error) {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if len(authHeader) == 0 {
		return "", false, nil
	}
	splitToken := strings.Split(authHeader, headerTokenPrefix)
	if len(splitToken) != 2 {
		return "", true, errors.New(invalidAuthorizationHeaderMsg)
	}
	return splitToken[1], true, nil
}
