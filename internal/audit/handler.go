package audit

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"registry-backend/internal/apperror"
)

const maxListLimit = 500

// GET /audit-logs?entity_type=branch&entity_id=1&user_id=1&limit=50
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{
			EntityType: c.Query("entity_type"),
			Limit:      maxListLimit,
		}

		v := apperror.NewValidation()
		if raw := c.Query("entity_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || id == 0 {
				v.Add("entity_id", "The entity id field must be a positive integer.")
			}
			f.EntityID = uint(id)
		}
		if raw := c.Query("user_id"); raw != "" {
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || id == 0 {
				v.Add("user_id", "The user id field must be a positive integer.")
			}
			f.UserID = uint(id)
		}
		if raw := c.Query("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit <= 0 || limit > maxListLimit {
				v.Add("limit", fmt.Sprintf("The limit field must be between 1 and %d.", maxListLimit))
			} else {
				f.Limit = limit
			}
		}
		if err := v.Err(); err != nil {
			return err
		}

		logs, err := List(c.UserContext(), db, f)
		if err != nil {
			return err
		}
		return c.JSON(logs)
	}
}
