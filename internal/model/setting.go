package model

import (
	"time"

	"github.com/google/uuid"
)

// Setting is one key/value row of system configuration. Value holds the
// JSON encoding of the setting.
type Setting struct {
	Key         string     `gorm:"type:text;primary_key" json:"key"`
	Value       string     `gorm:"type:text;not null" json:"value"`
	UpdatedByID *uuid.UUID `gorm:"type:uuid" json:"updated_by_id,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Setting) TableName() string {
	return "system_settings"
}
