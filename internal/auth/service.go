package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"registry-backend/internal/apperror"
	"registry-backend/internal/audit"
	"registry-backend/internal/models"
)

// Principal is the authenticated caller behind a bearer token.
type Principal struct {
	UserID             uint
	UserName           string
	BranchID           uint
	MustChangePassword bool
	TokenHash          string
}

// Actor attributes audit entries to the principal. A nil principal yields
// the zero actor, used by the seeder and internal callers.
func (p *Principal) Actor() audit.Actor {
	if p == nil {
		return audit.Actor{}
	}
	return audit.Actor{UserID: p.UserID, UserName: p.UserName}
}

// Service is the credential service: password hashing, token issuance,
// revocation and login.
type Service struct {
	db     *gorm.DB
	hasher *Hasher
	tokens *Tokens
	logger *zap.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, hasher *Hasher, tokens *Tokens, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// WithTx returns a copy of the service that runs its queries in tx.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	cp := *s
	cp.db = tx
	return &cp
}

func (s *Service) Hash(plaintext string) (string, error) {
	return s.hasher.Hash(plaintext)
}

func (s *Service) Verify(plaintext, digest string) bool {
	return s.hasher.Verify(plaintext, digest)
}

// Login checks the credentials and issues a fresh token. Tokens issued
// earlier stay valid.
func (s *Service) Login(ctx context.Context, userName, password string) (*models.User, string, error) {
	// Stored names are trimmed.
	userName = strings.TrimSpace(userName)
	var user models.User
	err := s.db.WithContext(ctx).Where("user_name = ?", userName).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", apperror.NotFound("This account is not found.")
	}
	if err != nil {
		return nil, "", fmt.Errorf("loading user: %w", err)
	}

	if !s.hasher.Verify(password, user.Password) {
		s.logger.Info("login rejected", zap.Uint("user_id", user.ID))
		return nil, "", apperror.InvalidCredential("Password is invalid.")
	}

	token, err := s.IssueToken(ctx, &user)
	if err != nil {
		return nil, "", err
	}
	s.logger.Info("user logged in", zap.Uint("user_id", user.ID))
	return &user, token, nil
}

// IssueToken creates and records a new token for user. The plaintext is
// returned only here.
func (s *Service) IssueToken(ctx context.Context, user *models.User) (string, error) {
	now := s.now()
	token, expiresAt, err := s.tokens.Issue(user.ID, now)
	if err != nil {
		return "", err
	}
	rec := models.AccessToken{
		UserID:    user.ID,
		Name:      user.UserName,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Omit("User").Create(&rec).Error; err != nil {
		return "", fmt.Errorf("storing token: %w", err)
	}
	return token, nil
}

// RevokeAll invalidates every outstanding token of the user.
func (s *Service) RevokeAll(ctx context.Context, userID uint) error {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.AccessToken{})
	if res.Error != nil {
		return fmt.Errorf("revoking tokens: %w", res.Error)
	}
	s.logger.Info("tokens revoked", zap.Uint("user_id", userID), zap.Int64("count", res.RowsAffected))
	return nil
}

// Revoke invalidates a single token, used by logout.
func (s *Service) Revoke(ctx context.Context, tokenHash string) error {
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&models.AccessToken{}).Error; err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	return nil
}

// Authenticate resolves a bearer token to its principal. Any failure is
// reported as Unauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperror.Unauthorized("Unauthenticated.")
	}
	userID, err := s.tokens.Parse(token)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return nil, apperror.Unauthorized("Unauthenticated.")
	}

	db := s.db.WithContext(ctx)
	hash := HashToken(token)
	var rec models.AccessToken
	err = db.Preload("User").Where("token_hash = ? AND user_id = ?", hash, userID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Unauthorized("Unauthenticated.")
	}
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}

	now := s.now()
	if rec.ExpiresAt != nil && now.After(*rec.ExpiresAt) {
		return nil, apperror.Unauthorized("Unauthenticated.")
	}
	if rec.User == nil {
		return nil, apperror.Unauthorized("Unauthenticated.")
	}

	if err := db.Model(&models.AccessToken{}).Where("id = ?", rec.ID).Update("last_used_at", now).Error; err != nil {
		s.logger.Warn("could not touch token", zap.Uint("token_id", rec.ID), zap.Error(err))
	}

	return &Principal{
		UserID:             rec.User.ID,
		UserName:           rec.User.UserName,
		BranchID:           rec.User.BranchID,
		MustChangePassword: rec.User.MustChangePassword,
		TokenHash:          hash,
	}, nil
}
