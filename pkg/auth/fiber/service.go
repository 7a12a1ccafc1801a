package fiber

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	fiberaccess "github.com/eshiol/j3-rest-api/pkg/access/fiber"
	"github.com/eshiol/j3-rest-api/pkg/auth"
	"github.com/eshiol/j3-rest-api/pkg/auth/password"
	"github.com/eshiol/j3-rest-api/pkg/auth/token"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/eshiol/j3-rest-api/pkg/user"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Service exposes registration, login and credential changes.
type Service struct {
	User   *user.Service
	Token  *token.Service
	DB     *pebble.DB
	Auth   auth.Authenticator
	Logger *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger.Named("auth")
}

// BindTo registers the routes of the service under /auth.
func (s *Service) BindTo(parent fiber.Router) {
	router := parent.Group("/auth")
	router.Post("/login", s.login)
	router.Post("/register", s.register)
	protected := router.Group("/protected")
	protected.Use(TokenMiddleware(s.Token))
	protected.Post("/change-password", s.changePassword)
	protected.Post("/change-username", s.changeUsername)
}

func (s *Service) login(c *fiber.Ctx) error {
	var creds auth.InsecureCredentials
	if err := c.BodyParser(&creds); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.Auth.Authenticate(creds); err != nil {
		c.Status(fiber.StatusUnauthorized)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	u, err := s.User.RetrieveByUsername(creds.Username)
	if err != nil {
		c.Status(fiber.StatusNotFound)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	c.Status(fiber.StatusOK)
	return s.tokenResponse(c, u)
}

func (s *Service) register(c *fiber.Ctx) error {
	var creds auth.InsecureCredentials
	if err := c.BodyParser(&creds); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	txn := storage.BeginTxn(s.DB)
	defer func() { _ = txn.Close() }()
	if err := s.Auth.Register(txn, creds); err != nil {
		if errors.Is(err, auth.UsernameTaken) {
			c.Status(fiber.StatusConflict)
		} else {
			c.Status(fiber.StatusBadRequest)
		}
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	u := &user.User{Username: creds.Username}
	if err := s.User.Create(txn, u); err != nil {
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if err := txn.Commit(pebble.Sync); err != nil {
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	s.logger().Info("registered user", zap.String("username", u.Username), zap.Stringer("key", u.Key))
	c.Status(fiber.StatusCreated)
	return s.tokenResponse(c, *u)
}

type changePasswordRequest struct {
	auth.InsecureCredentials
	NewPassword password.Raw `json:"newPassword"`
}

func (s *Service) changePassword(c *fiber.Ctx) error {
	var cpr changePasswordRequest
	if err := c.BodyParser(&cpr); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if !s.ownedBySubject(c, cpr.Username) {
		c.Status(fiber.StatusForbidden)
		return c.JSON(fiber.Map{"error": credentialsMismatchMsg})
	}
	txn := storage.BeginTxn(s.DB)
	defer func() { _ = txn.Close() }()
	if err := s.Auth.UpdatePassword(txn, cpr.InsecureCredentials, cpr.NewPassword); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if err := txn.Commit(pebble.Sync); err != nil {
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	c.Status(fiber.StatusNoContent)
	return nil
}

type changeUsernameRequest struct {
	auth.InsecureCredentials
	NewUsername string `json:"newUsername"`
}

func (s *Service) changeUsername(c *fiber.Ctx) error {
	var cur changeUsernameRequest
	if err := c.BodyParser(&cur); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if !s.ownedBySubject(c, cur.Username) {
		c.Status(fiber.StatusForbidden)
		return c.JSON(fiber.Map{"error": credentialsMismatchMsg})
	}
	txn := storage.BeginTxn(s.DB)
	defer func() { _ = txn.Close() }()
	if err := s.Auth.UpdateUsername(txn, cur.InsecureCredentials, cur.NewUsername); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.User.Rename(txn, fiberaccess.GetSubject(c), cur.NewUsername); err != nil {
		c.Status(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if err := txn.Commit(pebble.Sync); err != nil {
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	c.Status(fiber.StatusNoContent)
	return nil
}

const credentialsMismatchMsg = "[auth] - credentials do not belong to the token holder"

// ownedBySubject returns true if username belongs to the token holder.
func (s *Service) ownedBySubject(c *fiber.Ctx, username string) bool {
	u, err := s.User.RetrieveByUsername(username)
	return err == nil && u.Key == fiberaccess.GetSubject(c)
}

func (s *Service) tokenResponse(c *fiber.Ctx, u user.User) error {
	tk, err := s.Token.New(u.Key)
	if err != nil {
		c.Status(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"user": u, "token": tk})
}
