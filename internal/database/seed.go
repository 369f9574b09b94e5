package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"registry-backend/internal/models"
)

const (
	SeedTownshipName = "Yangon"
	SeedBranchName   = "North Dagon"
	SeedAdminName    = "admin"
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// Seed creates the initial township, branch and admin account. Existing rows
// are left untouched, so it is safe to run more than once. The admin is
// flagged to change the given password on first use.
func Seed(ctx context.Context, db *gorm.DB, hasher PasswordHasher, adminPassword string, logger *zap.Logger) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		township := models.Township{Name: SeedTownshipName}
		if err := tx.Where("name = ?", township.Name).FirstOrCreate(&township).Error; err != nil {
			return fmt.Errorf("seeding township: %w", err)
		}

		branch := models.Branch{Name: SeedBranchName, TownshipID: township.ID}
		if err := tx.Where("name = ?", branch.Name).FirstOrCreate(&branch).Error; err != nil {
			return fmt.Errorf("seeding branch: %w", err)
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("user_name = ?", SeedAdminName).Count(&count).Error; err != nil {
			return fmt.Errorf("checking admin: %w", err)
		}
		if count > 0 {
			logger.Info("admin user already exists, skipping")
			return nil
		}

		digest, err := hasher.Hash(adminPassword)
		if err != nil {
			return fmt.Errorf("hashing admin password: %w", err)
		}
		admin := models.User{
			UserName:           SeedAdminName,
			Password:           digest,
			BranchID:           branch.ID,
			MustChangePassword: true,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("seeding admin: %w", err)
		}

		logger.Info("seeded initial data",
			zap.Uint("township_id", township.ID),
			zap.Uint("branch_id", branch.ID),
			zap.Uint("admin_id", admin.ID),
		)
		return nil
	})
}
