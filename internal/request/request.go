package request

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"registry-backend/internal/apperror"
	"registry-backend/internal/validation"
)

// Bind decodes the body into in and validates it.
func Bind(c *fiber.Ctx, in any) error {
	if err := c.BodyParser(in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return validation.Struct(in)
}

// ID parses the :id route parameter. Anything that cannot be an id is
// reported as not found, exactly like an unknown id.
func ID(c *fiber.Ctx, resource string) (uint, error) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, apperror.NotFound("%s %s not found.", resource, raw)
	}
	return uint(id), nil
}

// Expand reads ?expand=a,b (or the older ?query_with=a,b) and checks it
// against allowed.
func Expand(c *fiber.Ctx, allowed ...string) (validation.Expansions, error) {
	raw := c.Query("expand")
	if raw == "" {
		raw = c.Query("query_with")
	}
	return validation.ParseExpand(raw, allowed...)
}

// Message is the small acknowledgement body most mutations answer with.
func Message(c *fiber.Ctx, msg string, extra ...fiber.Map) error {
	body := fiber.Map{"message": msg}
	for _, m := range extra {
		for k, v := range m {
			body[k] = v
		}
	}
	return c.JSON(body)
}
