package branch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"registry-backend/internal/apperror"
	"registry-backend/internal/audit"
	"registry-backend/internal/models"
	"registry-backend/internal/validation"
)

const (
	EntityType     = "branch"
	ExpandTownship = "township"
	ExpandUsers    = "users"
)

var Expansions = []string{ExpandTownship, ExpandUsers}

type Input struct {
	Name       string `json:"name" validate:"required,max=100,nomarkup"`
	TownshipID uint   `json:"township_id" validate:"required,gt=0"`
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

func (s *Service) List(ctx context.Context, exp validation.Expansions) ([]models.Branch, error) {
	db := s.db.WithContext(ctx)
	var branches []models.Branch
	if err := withTownship(db, exp).Order("id").Find(&branches).Error; err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	if exp.Has(ExpandUsers) {
		if err := attachUsers(db, branches); err != nil {
			return nil, err
		}
	}
	return branches, nil
}

func (s *Service) Get(ctx context.Context, id uint, exp validation.Expansions) (*models.Branch, error) {
	db := s.db.WithContext(ctx)
	b, err := find(withTownship(db, exp), id)
	if err != nil {
		return nil, err
	}
	if exp.Has(ExpandUsers) {
		list := []models.Branch{*b}
		if err := attachUsers(db, list); err != nil {
			return nil, err
		}
		b = &list[0]
	}
	return b, nil
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in Input) (*models.Branch, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var b models.Branch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkInput(tx, in, 0); err != nil {
			return err
		}
		b = models.Branch{Name: in.Name, TownshipID: in.TownshipID}
		if err := tx.Create(&b).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    b.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("created branch %q in township %d", b.Name, b.TownshipID),
			After:       b,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("branch created", zap.Uint("id", b.ID), zap.Uint("township_id", b.TownshipID))
	return &b, nil
}

func (s *Service) Update(ctx context.Context, actor audit.Actor, id uint, in Input) (*models.Branch, error) {
	in.Name = strings.TrimSpace(in.Name)

	var b *models.Branch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if b, err = find(tx, id); err != nil {
			return err
		}
		if err := validation.Struct(in); err != nil {
			return err
		}
		if err := checkInput(tx, in, id); err != nil {
			return err
		}

		before := *b
		b.Name = in.Name
		b.TownshipID = in.TownshipID
		if err := tx.Omit("Township").Save(b).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    b.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("updated branch %q", b.Name),
			Before:      before,
			After:       *b,
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Delete removes the branch permanently. Branches that still have users
// are kept and a Conflict is returned.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, err := find(tx, id)
		if err != nil {
			return err
		}

		var users int64
		if err := tx.Model(&models.User{}).Where("branch_id = ?", id).Count(&users).Error; err != nil {
			return fmt.Errorf("counting users: %w", err)
		}
		if users > 0 {
			return apperror.Conflict("Branch %d still has %d user(s); delete or move them first.", id, users)
		}

		if err := tx.Delete(&models.Branch{}, id).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("deleted branch %q", b.Name),
			Before:      *b,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("branch deleted", zap.Uint("id", id))
	return nil
}

func withTownship(db *gorm.DB, exp validation.Expansions) *gorm.DB {
	if exp.Has(ExpandTownship) {
		return db.Preload("Township")
	}
	return db
}

func find(db *gorm.DB, id uint) (*models.Branch, error) {
	var b models.Branch
	err := db.First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Branch %d not found.", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading branch %d: %w", id, err)
	}
	return &b, nil
}

// checkInput reports every field problem at once, the way validation
// failures are reported.
func checkInput(tx *gorm.DB, in Input, exceptID uint) error {
	v := apperror.NewValidation()

	taken, err := validation.IsTaken(tx, &models.Branch{}, "name", in.Name, exceptID)
	if err != nil {
		return fmt.Errorf("checking branch name: %w", err)
	}
	if taken {
		v.Add("name", "The name has already been taken.")
	}

	ok, err := validation.Exists(tx, &models.Township{}, in.TownshipID)
	if err != nil {
		return fmt.Errorf("checking township: %w", err)
	}
	if !ok {
		v.Add("township_id", "The selected township id is invalid.")
	}
	return v.Err()
}

func attachUsers(db *gorm.DB, branches []models.Branch) error {
	if len(branches) == 0 {
		return nil
	}
	ids := make([]uint, len(branches))
	for i := range branches {
		ids[i] = branches[i].ID
	}
	var users []models.User
	if err := db.Where("branch_id IN ?", ids).Order("user_name").Find(&users).Error; err != nil {
		return fmt.Errorf("loading users: %w", err)
	}
	byBranch := make(map[uint][]models.User, len(branches))
	for _, u := range users {
		byBranch[u.BranchID] = append(byBranch[u.BranchID], u)
	}
	for i := range branches {
		branches[i].Users = byBranch[branches[i].ID]
	}
	return nil
}
