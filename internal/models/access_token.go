package models

import "time"

// AccessToken is the server side record of an issued bearer token. Only the
// SHA-256 digest of the token string is kept.
type AccessToken struct {
	ID         uint   `gorm:"primaryKey"`
	UserID     uint   `gorm:"not null;index"`
	Name       string `gorm:"size:100"`
	TokenHash  string `gorm:"size:64;not null;uniqueIndex"`
	LastUsedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time

	User *User `gorm:"constraint:OnDelete:CASCADE;"`
}

func (AccessToken) TableName() string {
	return "personal_access_tokens"
}
