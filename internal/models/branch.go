package models

import "time"

type Branch struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	TownshipID uint      `gorm:"not null;index" json:"township_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	Township *Township `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"township,omitempty"`
	Users    []User    `gorm:"-" json:"users,omitempty"`
}
