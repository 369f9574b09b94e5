package auth

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"registry-backend/internal/apperror"
	"registry-backend/internal/models"
	"registry-backend/internal/request"
)

type LoginRequest struct {
	UserName string `json:"user_name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /users/login
func LoginHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := request.Bind(c, &body); err != nil {
			return err
		}

		user, token, err := svc.Login(c.UserContext(), body.UserName, body.Password)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"user":  user,
			"token": token,
		})
	}
}

// POST /users/logout
func LogoutHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := CurrentPrincipal(c)
		if p == nil {
			return apperror.Unauthorized("Unauthenticated.")
		}
		if err := svc.Revoke(c.UserContext(), p.TokenHash); err != nil {
			return err
		}
		return request.Message(c, "Successfully logged out.")
	}
}

// GET /me
func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := CurrentPrincipal(c)
		if p == nil {
			return apperror.Unauthorized("Unauthenticated.")
		}

		var user models.User
		err := db.WithContext(c.UserContext()).Preload("Branch").First(&user, p.UserID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.Unauthorized("Unauthenticated.")
		}
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}
