package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/go-playground/validator/v10"
)

const settingsCacheKey = "system_settings"

// SystemSettings is the flattened view of the system_settings table. Each
// JSON field name is the row key.
type SystemSettings struct {
	SiteName                 string          `json:"site_name" validate:"required,max=100"`
	SiteDescription          string          `json:"site_description" validate:"max=500"`
	SupportEmail             string          `json:"support_email" validate:"omitempty,email"`
	AllowRegistration        bool            `json:"allow_registration"`
	RequireEmailVerification bool            `json:"require_email_verification"`
	MaintenanceMode          bool            `json:"maintenance_mode"`
	DefaultUserRole          permission.Role `json:"default_user_role" validate:"oneof=user moderator"`
	// MaxOrganizationsPerUser of 0 means unlimited.
	MaxOrganizationsPerUser int `json:"max_organizations_per_user" validate:"min=0,max=1000"`
}

// DefaultSystemSettings returns the values used for keys with no row.
func DefaultSystemSettings() SystemSettings {
	return SystemSettings{
		SiteName:                "TenantKit",
		AllowRegistration:       true,
		DefaultUserRole:         permission.RoleUser,
		MaxOrganizationsPerUser: 5,
	}
}

// PublicSettings is the subset of settings exposed without authentication.
type PublicSettings struct {
	SiteName          string `json:"site_name"`
	SiteDescription   string `json:"site_description"`
	AllowRegistration bool   `json:"allow_registration"`
	MaintenanceMode   bool   `json:"maintenance_mode"`
}

// SettingsUpdate is a partial update; nil fields are left unchanged.
type SettingsUpdate struct {
	SiteName                 *string          `json:"site_name"`
	SiteDescription          *string          `json:"site_description"`
	SupportEmail             *string          `json:"support_email"`
	AllowRegistration        *bool            `json:"allow_registration"`
	RequireEmailVerification *bool            `json:"require_email_verification"`
	MaintenanceMode          *bool            `json:"maintenance_mode"`
	DefaultUserRole          *permission.Role `json:"default_user_role"`
	MaxOrganizationsPerUser  *int             `json:"max_organizations_per_user"`
}

type SettingsService struct {
	repo     repository.SettingRepositoryIface
	cache    *CacheService
	gate     *AdminGate
	audit    audit.Logger
	validate *validator.Validate
}

func NewSettingsService(repo repository.SettingRepositoryIface, cache *CacheService, gate *AdminGate, logger audit.Logger) *SettingsService {
	return &SettingsService{
		repo:     repo,
		cache:    cache,
		gate:     gate,
		audit:    logger,
		validate: newValidator(),
	}
}

// Current returns the effective settings without a permission check. It is
// used internally by signup, organization creation and the public view.
func (s *SettingsService) Current(ctx context.Context) (SystemSettings, error) {
	var settings SystemSettings
	err := s.cache.GetOrSet(ctx, settingsCacheKey, &settings, func() (interface{}, error) {
		return s.load(ctx)
	})
	if err != nil {
		return SystemSettings{}, fmt.Errorf("loading settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsService) load(ctx context.Context) (SystemSettings, error) {
	rows, err := s.repo.FindAll(ctx)
	if err != nil {
		return SystemSettings{}, err
	}

	merged := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		merged[row.Key] = json.RawMessage(row.Value)
	}

	settings := DefaultSystemSettings()
	for key, raw := range merged {
		field, ok := settingFields[key]
		if !ok {
			continue
		}
		target := reflect.ValueOf(&settings).Elem().Field(field).Addr().Interface()
		if err := json.Unmarshal(raw, target); err != nil {
			slog.WarnContext(ctx, "ignoring malformed setting", "key", key, "error", err)
		}
	}
	return settings, nil
}

// settingFields maps a JSON key to its SystemSettings field index.
var settingFields = func() map[string]int {
	t := reflect.TypeOf(SystemSettings{})
	out := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		out[name] = i
	}
	return out
}()

func (s *SettingsService) Get(ctx context.Context, caller Caller) (SystemSettings, error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewSettings); err != nil {
		return SystemSettings{}, err
	}
	return s.Current(ctx)
}

func (s *SettingsService) Public(ctx context.Context) (PublicSettings, error) {
	settings, err := s.Current(ctx)
	if err != nil {
		return PublicSettings{}, err
	}
	return PublicSettings{
		SiteName:          settings.SiteName,
		SiteDescription:   settings.SiteDescription,
		AllowRegistration: settings.AllowRegistration,
		MaintenanceMode:   settings.MaintenanceMode,
	}, nil
}

// Update applies in over the current settings, validates the result and
// upserts the keys that changed.
func (s *SettingsService) Update(ctx context.Context, caller Caller, in SettingsUpdate) (SystemSettings, error) {
	admin, err := s.gate.RequireAdmin(ctx, caller, permission.EditSettings)
	if err != nil {
		return SystemSettings{}, err
	}

	current, err := s.Current(ctx)
	if err != nil {
		return SystemSettings{}, err
	}

	next := current
	applyString(&next.SiteName, in.SiteName)
	applyString(&next.SiteDescription, in.SiteDescription)
	applyString(&next.SupportEmail, in.SupportEmail)
	applyBool(&next.AllowRegistration, in.AllowRegistration)
	applyBool(&next.RequireEmailVerification, in.RequireEmailVerification)
	applyBool(&next.MaintenanceMode, in.MaintenanceMode)
	if in.DefaultUserRole != nil {
		next.DefaultUserRole = *in.DefaultUserRole
	}
	if in.MaxOrganizationsPerUser != nil {
		next.MaxOrganizationsPerUser = *in.MaxOrganizationsPerUser
	}
	next.SiteName = strings.TrimSpace(next.SiteName)
	next.SupportEmail = strings.TrimSpace(next.SupportEmail)

	if err := validateStruct(s.validate, next); err != nil {
		return SystemSettings{}, err
	}

	rows, changed, err := diffSettings(current, next, admin)
	if err != nil {
		return SystemSettings{}, err
	}
	if len(rows) == 0 {
		return current, nil
	}

	if err := s.repo.Upsert(ctx, rows); err != nil {
		return SystemSettings{}, fmt.Errorf("saving settings: %w", err)
	}
	if err := s.cache.Delete(ctx, settingsCacheKey); err != nil {
		return SystemSettings{}, err
	}

	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionSettingsUpdate,
		ResourceType: model.ResourceSettings,
		Metadata:     map[string]interface{}{"changed": changed},
	})
	return next, nil
}

func diffSettings(current, next SystemSettings, admin *model.User) ([]*model.Setting, []string, error) {
	cur := reflect.ValueOf(current)
	nxt := reflect.ValueOf(next)
	t := cur.Type()
	now := time.Now().UTC()

	var rows []*model.Setting
	var changed []string
	for i := 0; i < t.NumField(); i++ {
		if reflect.DeepEqual(cur.Field(i).Interface(), nxt.Field(i).Interface()) {
			continue
		}
		key, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		value, err := json.Marshal(nxt.Field(i).Interface())
		if err != nil {
			return nil, nil, fmt.Errorf("encoding setting %s: %w", key, err)
		}
		id := admin.ID
		rows = append(rows, &model.Setting{
			Key:         key,
			Value:       string(value),
			UpdatedByID: &id,
			UpdatedAt:   now,
		})
		changed = append(changed, key)
	}
	return rows, changed, nil
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
