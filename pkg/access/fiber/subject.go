package fiber

import (
	"github.com/eshiol/j3-rest-api/pkg/access"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const subjectKey = "subject"

// SetSubject records the acting user of a request.
func SetSubject(c *fiber.Ctx, key uuid.UUID) { c.Locals(subjectKey, key) }

// GetSubject returns the acting user of a request, access.Guest if no user was
// recorded.
func GetSubject(c *fiber.Ctx) uuid.UUID {
	key, ok := c.Locals(subjectKey).(uuid.UUID)
	if !ok {
		return access.Guest
	}
	return key
}
