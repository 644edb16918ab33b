package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/permsync"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	maxSlugLength = 50
	// maxSlugSuffix bounds the numbered candidates tried for a generated slug.
	maxSlugSuffix = 20
)

type OrganizationService struct {
	repo     repository.OrganizationRepositoryIface
	gate     *AdminGate
	settings *SettingsService
	mirror   permsync.Mirror
	audit    audit.Logger
	validate *validator.Validate
}

func NewOrganizationService(
	repo repository.OrganizationRepositoryIface,
	gate *AdminGate,
	settings *SettingsService,
	mirror permsync.Mirror,
	logger audit.Logger,
) *OrganizationService {
	if mirror == nil {
		mirror = permsync.Noop{}
	}
	return &OrganizationService{
		repo:     repo,
		gate:     gate,
		settings: settings,
		mirror:   mirror,
		audit:    logger,
		validate: newValidator(),
	}
}

// orgAccess is the caller's standing in one organization.
type orgAccess struct {
	user   *model.User
	member *model.OrganizationMember
}

func (a orgAccess) orgRole() permission.OrgRole {
	if a.member == nil {
		return ""
	}
	return a.member.Role
}

func (a orgAccess) platform(p permission.Permission) bool {
	return a.user.IsActive && permission.HasPermission(a.user.Role, p)
}

func (s *OrganizationService) access(ctx context.Context, caller Caller, orgID uuid.UUID) (orgAccess, error) {
	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return orgAccess{}, err
	}
	member, err := s.repo.FindMember(ctx, orgID, user.ID)
	if err != nil && !errors.Is(err, domain.ErrMemberNotFound) {
		return orgAccess{}, fmt.Errorf("loading membership: %w", err)
	}
	return orgAccess{user: user, member: member}, nil
}

type CreateOrganizationInput struct {
	Name     string         `json:"name" validate:"required,max=100"`
	Slug     string         `json:"slug" validate:"omitempty,max=50,slug"`
	PlanType model.PlanType `json:"plan_type" validate:"omitempty,oneof=free starter pro enterprise"`
}

// Create makes a new organization owned by the caller.
func (s *OrganizationService) Create(ctx context.Context, caller Caller, in CreateOrganizationInput) (*model.Organization, error) {
	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	if in.PlanType == "" {
		in.PlanType = model.PlanFree
	}
	if in.PlanType != model.PlanFree && !permission.HasPermission(user.Role, permission.EditOrganizations) {
		return nil, domain.ErrInsufficientPermissions
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if settings.MaxOrganizationsPerUser > 0 && !permission.IsAdminRole(user.Role) {
		count, err := s.repo.CountCreatedBy(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("counting organizations: %w", err)
		}
		if count >= int64(settings.MaxOrganizationsPerUser) {
			return nil, domain.ErrOrganizationLimit
		}
	}

	generated := in.Slug == ""
	slug := in.Slug
	if generated {
		if slug, err = s.uniqueSlug(ctx, Slugify(in.Name)); err != nil {
			return nil, err
		}
	}

	creatorID := user.ID
	org := &model.Organization{
		ID:                 uuid.New(),
		Name:               in.Name,
		Slug:               slug,
		PlanType:           in.PlanType,
		SubscriptionStatus: model.SubscriptionActive,
		MaxMembers:         model.PlanMemberLimits[in.PlanType],
		CreatedByID:        &creatorID,
	}
	owner := &model.OrganizationMember{
		ID:       uuid.New(),
		UserID:   user.ID,
		Role:     permission.OrgRoleOwner,
		JoinedAt: time.Now().UTC(),
	}

	err = s.repo.Create(ctx, org, owner)
	if errors.Is(err, domain.ErrSlugTaken) && generated {
		// Lost a race for the generated slug; one retry with a random suffix.
		org.Slug = withSuffix(slug, uuid.NewString()[:6])
		err = s.repo.Create(ctx, org, owner)
	}
	if err != nil {
		return nil, err
	}

	s.grant(ctx, permsync.Membership{OrganizationID: org.ID, UserID: user.ID, Role: string(permission.OrgRoleOwner)})
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionOrgCreate,
		ResourceType: model.ResourceOrganization,
		ResourceID:   org.ID.String(),
		Metadata: map[string]interface{}{
			"name":      org.Name,
			"slug":      org.Slug,
			"plan_type": string(org.PlanType),
		},
	})
	return org, nil
}

// uniqueSlug returns base, or base-N for the first free N.
func (s *OrganizationService) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for n := 2; n <= maxSlugSuffix+1; n++ {
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = withSuffix(base, strconv.Itoa(n))
	}
	return withSuffix(base, uuid.NewString()[:6]), nil
}

func withSuffix(slug, suffix string) string {
	limit := maxSlugLength - len(suffix) - 1
	if len(slug) > limit {
		slug = strings.TrimRight(slug[:limit], "-")
	}
	return slug + "-" + suffix
}

// Slugify lowercases name and collapses every run of other characters
// into a single hyphen.
func Slugify(name string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}

	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "org"
	}
	return slug
}

// Get returns an organization by id to its members or platform viewers.
func (s *OrganizationService) Get(ctx context.Context, caller Caller, id uuid.UUID) (*model.Organization, error) {
	acc, err := s.access(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if acc.member == nil && !acc.platform(permission.ViewOrganizations) {
		return nil, domain.ErrForbidden
	}
	return s.repo.FindByID(ctx, id)
}

func (s *OrganizationService) GetBySlug(ctx context.Context, caller Caller, slug string) (*model.Organization, error) {
	org, err := s.repo.FindBySlug(ctx, strings.ToLower(slug))
	if err != nil {
		return nil, err
	}
	acc, err := s.access(ctx, caller, org.ID)
	if err != nil {
		return nil, err
	}
	if acc.member == nil && !acc.platform(permission.ViewOrganizations) {
		return nil, domain.ErrForbidden
	}
	return org, nil
}

// ListMine returns the caller's memberships with their organizations. The
// caller's active organization, when set, comes first; selecting an
// organization the caller does not belong to is ErrMemberNotFound.
func (s *OrganizationService) ListMine(ctx context.Context, caller Caller) ([]*model.OrganizationMember, error) {
	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, err
	}
	memberships, err := s.repo.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	if caller.ActiveOrgID == nil {
		return memberships, nil
	}

	for i, m := range memberships {
		if m.OrganizationID == *caller.ActiveOrgID {
			copy(memberships[1:i+1], memberships[:i])
			memberships[0] = m
			return memberships, nil
		}
	}
	return nil, domain.ErrMemberNotFound
}

type OrganizationListInput struct {
	Search             string
	PlanType           model.PlanType
	SubscriptionStatus model.SubscriptionStatus
	Page               repository.Page
}

func (in OrganizationListInput) filter() repository.OrganizationFilter {
	return repository.OrganizationFilter{
		Search:             strings.TrimSpace(in.Search),
		PlanType:           in.PlanType,
		SubscriptionStatus: in.SubscriptionStatus,
		Page:               in.Page.Normalize(),
	}
}

func (s *OrganizationService) AdminList(ctx context.Context, caller Caller, in OrganizationListInput) (Page[*model.Organization], error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewOrganizations); err != nil {
		return Page[*model.Organization]{}, err
	}

	f := in.filter()
	orgs, total, err := s.repo.List(ctx, f)
	if err != nil {
		return Page[*model.Organization]{}, fmt.Errorf("listing organizations: %w", err)
	}
	return newPage(orgs, total, f.Page), nil
}

func (s *OrganizationService) Export(ctx context.Context, caller Caller, in OrganizationListInput) ([]*model.Organization, error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewOrganizations, permission.ExportData); err != nil {
		return nil, err
	}

	f := in.filter()
	orgs, err := collectAll(func(p repository.Page) ([]*model.Organization, int64, error) {
		f.Page = p
		return s.repo.List(ctx, f)
	})
	if err != nil {
		return nil, fmt.Errorf("exporting organizations: %w", err)
	}

	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionOrgExport,
		ResourceType: model.ResourceOrganization,
		Metadata:     map[string]interface{}{"count": len(orgs)},
	})
	return orgs, nil
}

type UpdateOrganizationInput struct {
	Name               *string                   `json:"name" validate:"omitempty,max=100"`
	Slug               *string                   `json:"slug" validate:"omitempty,max=50,slug"`
	PlanType           *model.PlanType           `json:"plan_type" validate:"omitempty,oneof=free starter pro enterprise"`
	SubscriptionStatus *model.SubscriptionStatus `json:"subscription_status" validate:"omitempty,oneof=active trialing past_due cancelled"`
	MaxMembers         *int                      `json:"max_members" validate:"omitempty,min=0"`
}

func (in UpdateOrganizationInput) billing() bool {
	return in.PlanType != nil || in.SubscriptionStatus != nil || in.MaxMembers != nil
}

// Update changes an organization. Name and slug are open to org owners and
// admins; billing fields need the platform edit_organizations permission.
func (s *OrganizationService) Update(ctx context.Context, caller Caller, id uuid.UUID, in UpdateOrganizationInput) (*model.Organization, error) {
	acc, err := s.access(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	platform := acc.platform(permission.EditOrganizations)
	if in.billing() && !platform {
		return nil, domain.ErrInsufficientPermissions
	}
	if !platform && !permission.CanManageMembers(acc.orgRole()) {
		return nil, domain.ErrForbidden
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, domain.NewValidationError(map[string]string{"name": "is required"})
		}
		in.Name = &name
	}
	if in.Slug != nil {
		slug := strings.ToLower(strings.TrimSpace(*in.Slug))
		in.Slug = &slug
	}
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if in.Name != nil && *in.Name != org.Name {
		org.Name = *in.Name
		changes["name"] = org.Name
	}
	if in.Slug != nil && *in.Slug != org.Slug {
		org.Slug = *in.Slug
		changes["slug"] = org.Slug
	}
	if in.PlanType != nil && *in.PlanType != org.PlanType {
		org.PlanType = *in.PlanType
		org.MaxMembers = model.PlanMemberLimits[org.PlanType]
		changes["plan_type"] = string(org.PlanType)
	}
	if in.SubscriptionStatus != nil && *in.SubscriptionStatus != org.SubscriptionStatus {
		org.SubscriptionStatus = *in.SubscriptionStatus
		changes["subscription_status"] = string(org.SubscriptionStatus)
	}
	if in.MaxMembers != nil && *in.MaxMembers != org.MaxMembers {
		org.MaxMembers = *in.MaxMembers
		changes["max_members"] = org.MaxMembers
	}
	if len(changes) == 0 {
		return org, nil
	}

	if err := s.repo.Update(ctx, org); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionOrgUpdate,
		ResourceType: model.ResourceOrganization,
		ResourceID:   org.ID.String(),
		Metadata:     changes,
	})
	return org, nil
}

// Delete removes an organization. Allowed for its owners and platform
// admins holding delete_organizations.
func (s *OrganizationService) Delete(ctx context.Context, caller Caller, id uuid.UUID) error {
	acc, err := s.access(ctx, caller, id)
	if err != nil {
		return err
	}
	if acc.orgRole() != permission.OrgRoleOwner && !acc.platform(permission.DeleteOrganizations) {
		return domain.ErrForbidden
	}

	org, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.mirror.DropOrganization(ctx, id); err != nil {
		slog.WarnContext(ctx, "failed to drop organization relationships", "organizationID", id, "error", err)
	}
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionOrgDelete,
		ResourceType: model.ResourceOrganization,
		ResourceID:   id.String(),
		Metadata: map[string]interface{}{
			"name": org.Name,
			"slug": org.Slug,
		},
	})
	return nil
}

func (s *OrganizationService) ListMembers(ctx context.Context, caller Caller, orgID uuid.UUID) ([]*model.OrganizationMember, error) {
	acc, err := s.access(ctx, caller, orgID)
	if err != nil {
		return nil, err
	}
	if acc.member == nil && !acc.platform(permission.ViewOrganizations) {
		return nil, domain.ErrForbidden
	}
	members, err := s.repo.ListMembers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	return members, nil
}

// UpdateMemberRole changes a member's role. Only owners may grant or revoke
// ownership, and the last owner cannot be demoted.
func (s *OrganizationService) UpdateMemberRole(ctx context.Context, caller Caller, orgID, userID uuid.UUID, role permission.OrgRole) (*model.OrganizationMember, error) {
	if !role.Valid() {
		return nil, domain.ErrInvalidOrgRole
	}
	acc, err := s.access(ctx, caller, orgID)
	if err != nil {
		return nil, err
	}

	target, err := s.repo.FindMember(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if target.Role == role {
		return target, nil
	}
	if !acc.platform(permission.EditOrganizations) && !permission.CanAssign(acc.orgRole(), target.Role, role) {
		return nil, domain.ErrInsufficientPermissions
	}

	previous := target.Role
	updated, err := s.repo.UpdateMemberRole(ctx, orgID, userID, role)
	if err != nil {
		return nil, err
	}

	if err := s.mirror.Revoke(ctx, permsync.Membership{OrganizationID: orgID, UserID: userID, Role: string(previous)}); err != nil {
		slog.WarnContext(ctx, "failed to revoke membership relationship", "organizationID", orgID, "userID", userID, "error", err)
	}
	s.grant(ctx, permsync.Membership{OrganizationID: orgID, UserID: userID, Role: string(role)})
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionMemberRoleChange,
		ResourceType: model.ResourceOrganization,
		ResourceID:   orgID.String(),
		Metadata: map[string]interface{}{
			"user_id": userID.String(),
			"from":    string(previous),
			"to":      string(role),
		},
	})
	return updated, nil
}

// RemoveMember removes userID from the organization. Members may always
// remove themselves; removing an owner takes an owner.
func (s *OrganizationService) RemoveMember(ctx context.Context, caller Caller, orgID, userID uuid.UUID) error {
	acc, err := s.access(ctx, caller, orgID)
	if err != nil {
		return err
	}

	target, err := s.repo.FindMember(ctx, orgID, userID)
	if err != nil {
		return err
	}

	self := acc.user.ID == userID
	platform := acc.platform(permission.EditOrganizations)
	if !self && !platform {
		if !permission.CanManageMembers(acc.orgRole()) {
			return domain.ErrInsufficientPermissions
		}
		if target.Role == permission.OrgRoleOwner && acc.orgRole() != permission.OrgRoleOwner {
			return domain.ErrInsufficientPermissions
		}
	}

	removed, err := s.repo.RemoveMember(ctx, orgID, userID)
	if err != nil {
		return err
	}

	if err := s.mirror.Revoke(ctx, permsync.Membership{OrganizationID: orgID, UserID: userID, Role: string(removed.Role)}); err != nil {
		slog.WarnContext(ctx, "failed to revoke membership relationship", "organizationID", orgID, "userID", userID, "error", err)
	}
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionMemberRemove,
		ResourceType: model.ResourceOrganization,
		ResourceID:   orgID.String(),
		Metadata: map[string]interface{}{
			"user_id": userID.String(),
			"role":    string(removed.Role),
			"self":    self,
		},
	})
	return nil
}

func (s *OrganizationService) grant(ctx context.Context, m permsync.Membership) {
	if err := s.mirror.Grant(ctx, m); err != nil {
		slog.WarnContext(ctx, "failed to mirror membership", "organizationID", m.OrganizationID, "userID", m.UserID, "error", err)
	}
}
