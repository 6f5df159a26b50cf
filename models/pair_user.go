package models

import (
	"time"

	"gorm.io/gorm"
)

// PairUser is a local snapshot of user data needed to render couple views.
// Owned and managed solely by the sync engine — populated by the pair-user
// sync worker from the profile service, never written by request handlers.
type PairUser struct {
	ID                string  `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID    string  `gorm:"uniqueIndex;not null" json:"external_user_id"` // the profile service's UUID
	Username          string  `gorm:"index;not null" json:"username"`
	DisplayName       *string `json:"display_name,omitempty"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
