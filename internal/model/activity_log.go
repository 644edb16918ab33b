package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActivityLog is an append-only record of an administrative action.
type ActivityLog struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID       *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"type:text;not null;index"`
	ResourceType string     `json:"resource_type" gorm:"type:text"`
	ResourceID   string     `json:"resource_id" gorm:"type:text"`
	Metadata     JSONMap    `json:"metadata" gorm:"type:jsonb"`
	IPAddress    string     `json:"ip_address" gorm:"type:text"`
	UserAgent    string     `json:"user_agent" gorm:"type:text"`
	RequestID    string     `json:"request_id" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at" gorm:"default:CURRENT_TIMESTAMP;index"`
}

func (ActivityLog) TableName() string {
	return "activity_logs"
}

func (l *ActivityLog) CSVHeader() []string {
	return []string{"id", "created_at", "user_id", "action", "resource_type", "resource_id", "ip_address", "user_agent", "request_id", "metadata"}
}

func (l *ActivityLog) CSVRecord() []string {
	var userID string
	if l.UserID != nil {
		userID = l.UserID.String()
	}

	var metadata string
	if len(l.Metadata) > 0 {
		if b, err := json.Marshal(l.Metadata); err == nil {
			metadata = string(b)
		}
	}

	return []string{
		l.ID.String(),
		l.CreatedAt.UTC().Format(time.RFC3339),
		userID,
		l.Action,
		l.ResourceType,
		l.ResourceID,
		l.IPAddress,
		l.UserAgent,
		l.RequestID,
		metadata,
	}
}

// ActionCount is one row of an activity summary.
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// Activity actions
const (
	ActionUserCreate         = "user.create"
	ActionUserUpdate         = "user.update"
	ActionUserActivate       = "user.activate"
	ActionUserDeactivate     = "user.deactivate"
	ActionUserDelete         = "user.delete"
	ActionUserExport         = "user.export"
	ActionOrgCreate          = "organization.create"
	ActionOrgUpdate          = "organization.update"
	ActionOrgDelete          = "organization.delete"
	ActionOrgExport          = "organization.export"
	ActionMemberRoleChange   = "organization.member_role_change"
	ActionMemberRemove       = "organization.member_remove"
	ActionInvitationCreate   = "invitation.create"
	ActionInvitationAccept   = "invitation.accept"
	ActionInvitationCancel   = "invitation.cancel"
	ActionInvitationResend   = "invitation.resend"
	ActionInvitationExpire   = "invitation.expire"
	ActionSettingsUpdate     = "settings.update"
	ActionActivityLogExport  = "activity_log.export"
	ActionSystemBootstrap    = "system.bootstrap"
	ActionAuthSignIn         = "auth.sign_in"
	ActionAuthSignUp         = "auth.sign_up"
)

// Resource types
const (
	ResourceUser         = "user"
	ResourceOrganization = "organization"
	ResourceInvitation   = "invitation"
	ResourceSettings     = "settings"
	ResourceActivityLog  = "activity_log"
	ResourceSystem       = "system"
)

// JSONMap represents a generic map stored as JSONB in the database
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for JSONMap
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for JSONMap
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(JSONMap)
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion failed: failed to decode JSONB")
	}

	return json.Unmarshal(bytes, m)
}
