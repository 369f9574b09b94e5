package branch

import (
	"github.com/gofiber/fiber/v2"

	"registry-backend/internal/auth"
	"registry-backend/internal/request"
)

// GET /branches?expand=township,users
func ListHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		exp, err := request.Expand(c, Expansions...)
		if err != nil {
			return err
		}
		branches, err := svc.List(c.UserContext(), exp)
		if err != nil {
			return err
		}
		return c.JSON(branches)
	}
}

// POST /branches
func CreateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body Input
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		t, err := svc.Create(c.UserContext(), auth.CurrentPrincipal(c).Actor(), body)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// GET /branches/:id
func GetHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "Branch")
		if err != nil {
			return err
		}
		exp, err := request.Expand(c, Expansions...)
		if err != nil {
			return err
		}
		t, err := svc.Get(c.UserContext(), id, exp)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// PUT /branches/:id
func UpdateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "Branch")
		if err != nil {
			return err
		}
		var body Input
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		t, err := svc.Update(c.UserContext(), auth.CurrentPrincipal(c).Actor(), id, body)
		if err != nil {
			return err
		}
		return c.JSON(t)
	}
}

// DELETE /branches/:id
func DeleteHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "Branch")
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), auth.CurrentPrincipal(c).Actor(), id); err != nil {
			return err
		}
		return request.Message(c, "Successfully deleted.")
	}
}
