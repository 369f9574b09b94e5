package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"registry-backend/internal/apperror"
	"registry-backend/internal/audit"
	"registry-backend/internal/auth"
	"registry-backend/internal/models"
	"registry-backend/internal/validation"
)

const (
	EntityType   = "user"
	ExpandBranch = "branch"
)

var Expansions = []string{ExpandBranch}

type UpdateInput struct {
	UserName string `json:"user_name" validate:"required,max=100,nomarkup"`
	BranchID uint   `json:"branch_id" validate:"required,gt=0"`
}

// CreateInput carries an optional initial password. Without one a
// temporary password is generated.
type CreateInput struct {
	UserName string `json:"user_name" validate:"required,max=100,nomarkup"`
	BranchID uint   `json:"branch_id" validate:"required,gt=0"`
	Password string `json:"password" validate:"omitempty,min=6,maxbytes=72"`
}

type ChangePasswordInput struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6,maxbytes=72,nefield=OldPassword"`
}

// Created is the result of Create. TemporaryPassword is only set when the
// caller did not choose a password.
type Created struct {
	User              *models.User
	TemporaryPassword string
}

type Service struct {
	db         *gorm.DB
	creds      *auth.Service
	tempLength int
	logger     *zap.Logger
}

func NewService(db *gorm.DB, creds *auth.Service, tempLength int, logger *zap.Logger) *Service {
	return &Service{db: db, creds: creds, tempLength: tempLength, logger: logger}
}

// List returns every user ordered by user name.
func (s *Service) List(ctx context.Context, exp validation.Expansions) ([]models.User, error) {
	var users []models.User
	if err := withBranch(s.db.WithContext(ctx), exp).Order("user_name").Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// Get always includes the user's branch.
func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	return find(s.db.WithContext(ctx).Preload("Branch"), id)
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in CreateInput) (*Created, error) {
	in.UserName = strings.TrimSpace(in.UserName)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	out := &Created{}
	password := in.Password
	if password == "" {
		generated, err := auth.RandomPassword(s.tempLength)
		if err != nil {
			return nil, err
		}
		password = generated
		out.TemporaryPassword = generated
	}
	digest, err := s.hash("password", password)
	if err != nil {
		return nil, err
	}

	u := models.User{
		UserName:           in.UserName,
		Password:           digest,
		BranchID:           in.BranchID,
		MustChangePassword: out.TemporaryPassword != "",
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkInput(tx, in.UserName, in.BranchID, 0); err != nil {
			return err
		}
		if err := tx.Omit("Branch").Create(&u).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    u.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("created user %q in branch %d", u.UserName, u.BranchID),
			After:       u,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.Uint("id", u.ID), zap.Bool("temporary_password", out.TemporaryPassword != ""))
	out.User = &u
	return out, nil
}

func (s *Service) Update(ctx context.Context, actor audit.Actor, id uint, in UpdateInput) (*models.User, error) {
	in.UserName = strings.TrimSpace(in.UserName)

	var u *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if u, err = find(tx, id); err != nil {
			return err
		}
		if err := validation.Struct(in); err != nil {
			return err
		}
		if err := checkInput(tx, in.UserName, in.BranchID, id); err != nil {
			return err
		}

		before := *u
		u.UserName = in.UserName
		u.BranchID = in.BranchID
		if err := tx.Omit("Branch").Save(u).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    u.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("updated user %q", u.UserName),
			Before:      before,
			After:       *u,
		})
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes the user and every token it still holds.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := find(tx, id)
		if err != nil {
			return err
		}
		if err := s.creds.WithTx(tx).RevokeAll(ctx, id); err != nil {
			return err
		}
		if err := tx.Delete(&models.User{}, id).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("deleted user %q", u.UserName),
			Before:      *u,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.Uint("id", id))
	return nil
}

// ChangePassword replaces the password after checking the old one, clears
// the forced change flag and signs the user out everywhere.
func (s *Service) ChangePassword(ctx context.Context, actor audit.Actor, id uint, in ChangePasswordInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := find(tx, id)
		if err != nil {
			return err
		}
		if err := validation.Struct(in); err != nil {
			return err
		}
		if !s.creds.Verify(in.OldPassword, u.Password) {
			return apperror.InvalidCredential("Old password is invalid.")
		}

		digest, err := s.hash("new_password", in.NewPassword)
		if err != nil {
			return err
		}
		wasForced := u.MustChangePassword
		if err := tx.Model(u).Updates(map[string]any{
			"password":             digest,
			"must_change_password": false,
		}).Error; err != nil {
			return fmt.Errorf("saving password: %w", err)
		}
		if err := s.creds.WithTx(tx).RevokeAll(ctx, id); err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    id,
			Action:      models.AuditActionChangePassword,
			Description: fmt.Sprintf("changed password of user %q", u.UserName),
			Before:      passwordState{MustChangePassword: wasForced},
			After:       passwordState{MustChangePassword: false},
		})
	})
}

// ResetPassword assigns a random temporary password, returned once, that
// the user has to replace before doing anything else.
func (s *Service) ResetPassword(ctx context.Context, actor audit.Actor, id uint) (string, error) {
	temp, err := auth.RandomPassword(s.tempLength)
	if err != nil {
		return "", err
	}
	digest, err := s.hash("password", temp)
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := find(tx, id)
		if err != nil {
			return err
		}
		wasForced := u.MustChangePassword
		if err := tx.Model(u).Updates(map[string]any{
			"password":             digest,
			"must_change_password": true,
		}).Error; err != nil {
			return fmt.Errorf("saving password: %w", err)
		}
		if err := s.creds.WithTx(tx).RevokeAll(ctx, id); err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    id,
			Action:      models.AuditActionResetPassword,
			Description: fmt.Sprintf("reset password of user %q", u.UserName),
			Before:      passwordState{MustChangePassword: wasForced},
			After:       passwordState{MustChangePassword: true},
		})
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("password reset", zap.Uint("user_id", id), zap.Uint("by", actor.UserID))
	return temp, nil
}

// hash reports bcrypt's length limit against field instead of failing the
// request.
func (s *Service) hash(field, plaintext string) (string, error) {
	digest, err := s.creds.Hash(plaintext)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", apperror.FieldError(field, fmt.Sprintf("The %s field must not be greater than 72 bytes.", strings.ReplaceAll(field, "_", " ")))
	}
	return digest, err
}

// passwordState is what the audit trail records for password changes.
// Digests are never logged.
type passwordState struct {
	MustChangePassword bool `json:"must_change_password"`
}

func withBranch(db *gorm.DB, exp validation.Expansions) *gorm.DB {
	if exp.Has(ExpandBranch) {
		return db.Preload("Branch")
	}
	return db
}

func find(db *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	err := db.First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("User %d not found.", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %d: %w", id, err)
	}
	return &u, nil
}

func checkInput(tx *gorm.DB, userName string, branchID, exceptID uint) error {
	v := apperror.NewValidation()

	taken, err := validation.IsTaken(tx, &models.User{}, "user_name", userName, exceptID)
	if err != nil {
		return fmt.Errorf("checking user name: %w", err)
	}
	if taken {
		v.Add("user_name", "The user name has already been taken.")
	}

	ok, err := validation.Exists(tx, &models.Branch{}, branchID)
	if err != nil {
		return fmt.Errorf("checking branch: %w", err)
	}
	if !ok {
		v.Add("branch_id", "The selected branch id is invalid.")
	}
	return v.Err()
}
