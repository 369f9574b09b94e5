package models

import "time"

type User struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UserName string `gorm:"size:100;not null;uniqueIndex" json:"user_name"`
	// bcrypt digest, never serialised
	Password string `gorm:"size:255;not null" json:"-"`
	BranchID uint   `gorm:"not null;index" json:"branch_id"`
	// Set after a reset or when the account was created with a generated
	// password. Tokens of such a user only allow changing the password.
	MustChangePassword bool      `gorm:"not null;default:false" json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	Branch *Branch `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"branch,omitempty"`
}
