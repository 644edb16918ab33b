// internal/model/organization.go
package model

import (
	"strconv"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/google/uuid"
)

type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanStarter    PlanType = "starter"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

// PlanMemberLimits is the default member cap per plan; 0 means unlimited.
var PlanMemberLimits = map[PlanType]int{
	PlanFree:       5,
	PlanStarter:    10,
	PlanPro:        50,
	PlanEnterprise: 0,
}

func (p PlanType) Valid() bool {
	_, ok := PlanMemberLimits[p]
	return ok
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue, SubscriptionCancelled:
		return true
	}
	return false
}

type Organization struct {
	ID                 uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name               string             `gorm:"type:text;not null" json:"name"`
	Slug               string             `gorm:"type:text;uniqueIndex;not null" json:"slug"`
	PlanType           PlanType           `gorm:"type:text;not null;default:'free'" json:"plan_type"`
	SubscriptionStatus SubscriptionStatus `gorm:"type:text;not null;default:'active'" json:"subscription_status"`
	MaxMembers         int                `gorm:"not null;default:5" json:"max_members"`
	CreatedByID        *uuid.UUID         `gorm:"type:uuid" json:"created_by_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	Members []OrganizationMember `gorm:"foreignKey:OrganizationID" json:"-"`
}

// HasCapacity reports whether one more member fits under the cap.
func (o *Organization) HasCapacity(currentMembers int64) bool {
	return o.MaxMembers <= 0 || currentMembers < int64(o.MaxMembers)
}

func (o *Organization) CSVHeader() []string {
	return []string{"id", "name", "slug", "plan_type", "subscription_status", "max_members", "created_by_id", "created_at"}
}

func (o *Organization) CSVRecord() []string {
	return []string{
		o.ID.String(),
		o.Name,
		o.Slug,
		string(o.PlanType),
		string(o.SubscriptionStatus),
		strconv.Itoa(o.MaxMembers),
		formatUUIDPtr(o.CreatedByID),
		o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type OrganizationMember struct {
	ID             uuid.UUID          `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrganizationID uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_org_member" json:"organization_id"`
	UserID         uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex:idx_org_member" json:"user_id"`
	Role           permission.OrgRole `gorm:"type:text;not null" json:"role"`
	InvitedByID    *uuid.UUID         `gorm:"type:uuid" json:"invited_by_id,omitempty"`
	JoinedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
	User         *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
