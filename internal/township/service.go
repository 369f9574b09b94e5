package township

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
	EntityType      = "township"
	ExpandBranches  = "branches"
	uniqueNameField = "name"
)

// Expansions lists the relations GET requests may inline.
var Expansions = []string{ExpandBranches}

type Input struct {
	Name string `json:"name" validate:"required,max=100,nomarkup"`
}

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// List returns every township ordered by id.
func (s *Service) List(ctx context.Context, exp validation.Expansions) ([]models.Township, error) {
	db := s.db.WithContext(ctx)
	var townships []models.Township
	if err := db.Order("id").Find(&townships).Error; err != nil {
		return nil, fmt.Errorf("listing townships: %w", err)
	}
	if exp.Has(ExpandBranches) {
		if err := attachBranches(db, townships); err != nil {
			return nil, err
		}
	}
	return townships, nil
}

func (s *Service) Get(ctx context.Context, id uint, exp validation.Expansions) (*models.Township, error) {
	db := s.db.WithContext(ctx)
	t, err := find(db, id)
	if err != nil {
		return nil, err
	}
	if exp.Has(ExpandBranches) {
		list := []models.Township{*t}
		if err := attachBranches(db, list); err != nil {
			return nil, err
		}
		t = &list[0]
	}
	return t, nil
}

func (s *Service) Create(ctx context.Context, actor audit.Actor, in Input) (*models.Township, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var t models.Township
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, in, 0); err != nil {
			return err
		}
		t = models.Township{Name: in.Name}
		if err := tx.Create(&t).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    t.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("created township %q", t.Name),
			After:       t,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("township created", zap.Uint("id", t.ID), zap.String("name", t.Name))
	return &t, nil
}

// Update replaces every field of the township. The township may keep its
// own name; another township's name is rejected.
func (s *Service) Update(ctx context.Context, actor audit.Actor, id uint, in Input) (*models.Township, error) {
	in.Name = strings.TrimSpace(in.Name)

	var t *models.Township
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if t, err = find(tx, id); err != nil {
			return err
		}
		if err := validation.Struct(in); err != nil {
			return err
		}
		if err := checkUnique(tx, in, id); err != nil {
			return err
		}

		before := *t
		t.Name = in.Name
		if err := tx.Save(t).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    t.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("updated township %q", t.Name),
			Before:      before,
			After:       *t,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes the township permanently. Townships that still own
// branches are kept and a Conflict is returned.
func (s *Service) Delete(ctx context.Context, actor audit.Actor, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		t, err := find(tx, id)
		if err != nil {
			return err
		}

		var branches int64
		if err := tx.Model(&models.Branch{}).Where("township_id = ?", id).Count(&branches).Error; err != nil {
			return fmt.Errorf("counting branches: %w", err)
		}
		if branches > 0 {
			return apperror.Conflict("Township %d still has %d branch(es); delete or move them first.", id, branches)
		}

		if err := tx.Delete(&models.Township{}, id).Error; err != nil {
			return apperror.FromStore(err)
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  EntityType,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("deleted township %q", t.Name),
			Before:      *t,
		})
	})
	if err != nil {
		return err
	}
	s.logger.Info("township deleted", zap.Uint("id", id))
	return nil
}

func find(db *gorm.DB, id uint) (*models.Township, error) {
	var t models.Township
	err := db.First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Township %d not found.", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading township %d: %w", id, err)
	}
	return &t, nil
}

func checkUnique(tx *gorm.DB, in Input, exceptID uint) error {
	taken, err := validation.IsTaken(tx, &models.Township{}, uniqueNameField, in.Name, exceptID)
	if err != nil {
		return fmt.Errorf("checking township name: %w", err)
	}
	if taken {
		return apperror.FieldError("name", "The name has already been taken.")
	}
	return nil
}

func attachBranches(db *gorm.DB, townships []models.Township) error {
	if len(townships) == 0 {
		return nil
	}
	ids := make([]uint, len(townships))
	for i := range townships {
		ids[i] = townships[i].ID
	}
	var branches []models.Branch
	if err := db.Where("township_id IN ?", ids).Order("id").Find(&branches).Error; err != nil {
		return fmt.Errorf("loading branches: %w", err)
	}
	byTownship := make(map[uint][]models.Branch, len(townships))
	for _, b := range branches {
		byTownship[b.TownshipID] = append(byTownship[b.TownshipID], b)
	}
	for i := range townships {
		townships[i].Branches = byTownship[townships[i].ID]
	}
	return nil
}
