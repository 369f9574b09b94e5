package user

import (
	"github.com/gofiber/fiber/v2"

	"registry-backend/internal/apperror"
	"registry-backend/internal/auth"
	"registry-backend/internal/request"
)

// GET /users?expand=branch
func ListHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		exp, err := request.Expand(c, Expansions...)
		if err != nil {
			return err
		}
		users, err := svc.List(c.UserContext(), exp)
		if err != nil {
			return err
		}
		return c.JSON(users)
	}
}

// POST /users
func CreateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateInput
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		created, err := svc.Create(c.UserContext(), auth.CurrentPrincipal(c).Actor(), body)
		if err != nil {
			return err
		}
		extra := fiber.Map{"id": created.User.ID}
		if created.TemporaryPassword != "" {
			extra["temporary_password"] = created.TemporaryPassword
		}
		return request.Message(c, "Successfully created.", extra)
	}
}

// GET /users/:id
func GetHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "User")
		if err != nil {
			return err
		}
		u, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(u)
	}
}

// PUT /users/:id
func UpdateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "User")
		if err != nil {
			return err
		}
		var body UpdateInput
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		u, err := svc.Update(c.UserContext(), auth.CurrentPrincipal(c).Actor(), id, body)
		if err != nil {
			return err
		}
		return request.Message(c, "Successfully updated.", fiber.Map{"id": u.ID})
	}
}

// DELETE /users/:id
func DeleteHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "User")
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), auth.CurrentPrincipal(c).Actor(), id); err != nil {
			return err
		}
		return request.Message(c, "Successfully deleted.")
	}
}

// POST /users/:id/change-password
func ChangePasswordHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "User")
		if err != nil {
			return err
		}
		p := auth.CurrentPrincipal(c)
		// A user holding a temporary password may only replace their own.
		if p != nil && p.MustChangePassword && p.UserID != id {
			return apperror.Forbidden("You must change your password before continuing.")
		}

		var body ChangePasswordInput
		if err := request.Bind(c, &body); err != nil {
			return err
		}
		if err := svc.ChangePassword(c.UserContext(), p.Actor(), id, body); err != nil {
			return err
		}
		return request.Message(c, "Password changed successfully.")
	}
}

// POST /users/:id/reset-password
func ResetPasswordHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := request.ID(c, "User")
		if err != nil {
			return err
		}
		temp, err := svc.ResetPassword(c.UserContext(), auth.CurrentPrincipal(c).Actor(), id)
		if err != nil {
			return err
		}
		return request.Message(c, "Password reset successfully.", fiber.Map{"temporary_password": temp})
	}
}
