package model

import (
	"time"

	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/google/uuid"
)

type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationCancelled InvitationStatus = "cancelled"
	InvitationExpired   InvitationStatus = "expired"
)

func (s InvitationStatus) Valid() bool {
	switch s {
	case InvitationPending, InvitationAccepted, InvitationCancelled, InvitationExpired:
		return true
	}
	return false
}

// InvitationTTL is how long an invitation token stays redeemable.
const InvitationTTL = 7 * 24 * time.Hour

type Invitation struct {
	ID             uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID          `gorm:"type:uuid;not null;index" json:"organization_id"`
	Email          string             `gorm:"type:citext;not null;index" json:"email"`
	Role           permission.OrgRole `gorm:"type:text;not null" json:"role"`
	TokenHash      string             `gorm:"type:text;uniqueIndex;not null" json:"-"`
	InvitedByID    uuid.UUID          `gorm:"type:uuid;not null" json:"invited_by_id"`
	Status         InvitationStatus   `gorm:"type:text;not null;default:'pending'" json:"status"`
	ExpiresAt      time.Time          `gorm:"not null" json:"expires_at"`
	AcceptedAt     *time.Time         `json:"accepted_at,omitempty"`
	AcceptedByID   *uuid.UUID         `gorm:"type:uuid" json:"accepted_by_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

// IsExpired reports whether the invitation can no longer be redeemed at now,
// independent of its stored status.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
