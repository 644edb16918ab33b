// internal/model/user.go
package model

import (
	"strings"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Email        string          `gorm:"type:citext;uniqueIndex;not null" json:"email"`
	FirstName    string          `gorm:"type:text;not null;default:''" json:"first_name"`
	LastName     string          `gorm:"type:text;not null;default:''" json:"last_name"`
	Role         permission.Role `gorm:"type:text;not null;default:'user'" json:"role"`
	IsActive     bool            `gorm:"not null;default:true" json:"is_active"`
	PasswordHash string          `gorm:"type:text;not null" json:"-"`
	LastSignInAt *time.Time      `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// FullName joins first and last name, skipping empty parts.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) CSVHeader() []string {
	return []string{"id", "email", "first_name", "last_name", "role", "is_active", "last_sign_in_at", "created_at"}
}

func (u *User) CSVRecord() []string {
	return []string{
		u.ID.String(),
		u.Email,
		u.FirstName,
		u.LastName,
		string(u.Role),
		formatBool(u.IsActive),
		formatTimePtr(u.LastSignInAt),
		u.CreatedAt.UTC().Format(time.RFC3339),
	}
}
