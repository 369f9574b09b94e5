package models

import "time"

type Township struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Filled on demand by expansion; the foreign key lives on Branch.
	Branches []Branch `gorm:"-" json:"branches,omitempty"`
}
