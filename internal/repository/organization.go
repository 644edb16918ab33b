// internal/repository/organization.go
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const organizationSlugConstraint = "organizations_slug_key"

type OrganizationFilter struct {
	Search             string
	PlanType           model.PlanType
	SubscriptionStatus model.SubscriptionStatus
	Page               Page
}

type OrganizationRepositoryIface interface {
	Create(ctx context.Context, org *model.Organization, owner *model.OrganizationMember) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Organization, error)
	FindBySlug(ctx context.Context, slug string) (*model.Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Update(ctx context.Context, org *model.Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter OrganizationFilter) ([]*model.Organization, int64, error)
	CountCreatedBy(ctx context.Context, userID uuid.UUID) (int64, error)

	ListMemberships(ctx context.Context, userID uuid.UUID) ([]*model.OrganizationMember, error)
	ListAllMembers(ctx context.Context) ([]*model.OrganizationMember, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]*model.OrganizationMember, error)
	FindMember(ctx context.Context, orgID, userID uuid.UUID) (*model.OrganizationMember, error)
	CountMembers(ctx context.Context, orgID uuid.UUID) (int64, error)
	UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role permission.OrgRole) (*model.OrganizationMember, error)
	RemoveMember(ctx context.Context, orgID, userID uuid.UUID) (*model.OrganizationMember, error)
}

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts the organization and its owner membership atomically.
func (r *OrganizationRepository) Create(ctx context.Context, org *model.Organization, owner *model.OrganizationMember) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(org).Error; err != nil {
			if isUniqueViolation(err, organizationSlugConstraint) {
				return domain.ErrSlugTaken
			}
			return fmt.Errorf("creating organization: %w", err)
		}

		owner.OrganizationID = org.ID
		owner.Role = permission.OrgRoleOwner
		if err := tx.Create(owner).Error; err != nil {
			return fmt.Errorf("creating owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSlugTaken) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("finding organization: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) FindBySlug(ctx context.Context, slug string) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.WithContext(ctx).First(&org, "slug = ?", slug).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("finding organization: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Organization{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return count > 0, nil
}

func (r *OrganizationRepository) Update(ctx context.Context, org *model.Organization) error {
	if err := r.db.WithContext(ctx).Omit("Members").Save(org).Error; err != nil {
		if isUniqueViolation(err, organizationSlugConstraint) {
			return domain.ErrSlugTaken
		}
		return fmt.Errorf("updating organization: %w", err)
	}
	return nil
}

// Delete removes the organization. Memberships and invitations cascade.
func (r *OrganizationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&model.Organization{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("deleting organization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrOrganizationNotFound
	}
	return nil
}

func (r *OrganizationRepository) List(ctx context.Context, filter OrganizationFilter) ([]*model.Organization, int64, error) {
	var orgs []*model.Organization
	var count int64

	query := r.db.WithContext(ctx).Model(&model.Organization{})
	if filter.Search != "" {
		p := likePattern(filter.Search)
		query = query.Where("name ILIKE ? OR slug ILIKE ?", p, p)
	}
	if filter.PlanType != "" {
		query = query.Where("plan_type = ?", filter.PlanType)
	}
	if filter.SubscriptionStatus != "" {
		query = query.Where("subscription_status = ?", filter.SubscriptionStatus)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count organizations: %w", err)
	}

	result := query.Order("created_at DESC").Scopes(paginate(filter.Page.Normalize())).Find(&orgs)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list organizations: %w", result.Error)
	}
	return orgs, count, nil
}

func (r *OrganizationRepository) CountCreatedBy(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Organization{}).Where("created_by_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting organizations: %w", err)
	}
	return count, nil
}

// ListMemberships returns the user's memberships with their organizations.
func (r *OrganizationRepository) ListMemberships(ctx context.Context, userID uuid.UUID) ([]*model.OrganizationMember, error) {
	var members []*model.OrganizationMember
	if err := r.db.WithContext(ctx).
		Preload("Organization").
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("finding user memberships: %w", err)
	}
	return members, nil
}

func (r *OrganizationRepository) ListAllMembers(ctx context.Context) ([]*model.OrganizationMember, error) {
	var members []*model.OrganizationMember
	if err := r.db.WithContext(ctx).Order("organization_id, joined_at").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("finding memberships: %w", err)
	}
	return members, nil
}

func (r *OrganizationRepository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*model.OrganizationMember, error) {
	var members []*model.OrganizationMember
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("organization_id = ?", orgID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("finding organization members: %w", err)
	}
	return members, nil
}

func (r *OrganizationRepository) FindMember(ctx context.Context, orgID, userID uuid.UUID) (*model.OrganizationMember, error) {
	var member model.OrganizationMember
	if err := r.db.WithContext(ctx).
		First(&member, "organization_id = ? AND user_id = ?", orgID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, fmt.Errorf("finding member: %w", err)
	}
	return &member, nil
}

func (r *OrganizationRepository) CountMembers(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.OrganizationMember{}).Where("organization_id = ?", orgID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting members: %w", err)
	}
	return count, nil
}

// lockMembers locks every membership row of the organization and returns
// the target member plus the owner count.
func lockMembers(tx *gorm.DB, orgID, userID uuid.UUID) (*model.OrganizationMember, int, error) {
	var members []model.OrganizationMember
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ?", orgID).
		Find(&members).Error; err != nil {
		return nil, 0, fmt.Errorf("locking members: %w", err)
	}

	var target *model.OrganizationMember
	owners := 0
	for i := range members {
		if members[i].Role == permission.OrgRoleOwner {
			owners++
		}
		if members[i].UserID == userID {
			target = &members[i]
		}
	}
	if target == nil {
		return nil, owners, domain.ErrMemberNotFound
	}
	return target, owners, nil
}

// UpdateMemberRole changes a member's role, refusing to demote the last owner.
func (r *OrganizationRepository) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role permission.OrgRole) (*model.OrganizationMember, error) {
	var updated model.OrganizationMember
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, owners, err := lockMembers(tx, orgID, userID)
		if err != nil {
			return err
		}
		if member.Role == permission.OrgRoleOwner && role != permission.OrgRoleOwner && owners < 2 {
			return domain.ErrSoleOwner
		}

		if err := tx.Model(member).Update("role", role).Error; err != nil {
			return fmt.Errorf("updating member role: %w", err)
		}
		updated = *member
		updated.Role = role
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSoleOwner) || errors.Is(err, domain.ErrMemberNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("transaction failed: %w", err)
	}
	return &updated, nil
}

// RemoveMember deletes a membership, refusing to remove the last owner.
// It returns the removed row.
func (r *OrganizationRepository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) (*model.OrganizationMember, error) {
	var removed model.OrganizationMember
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, owners, err := lockMembers(tx, orgID, userID)
		if err != nil {
			return err
		}
		if member.Role == permission.OrgRoleOwner && owners < 2 {
			return domain.ErrSoleOwner
		}

		if err := tx.Delete(&model.OrganizationMember{}, "id = ?", member.ID).Error; err != nil {
			return fmt.Errorf("deleting member: %w", err)
		}
		removed = *member
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSoleOwner) || errors.Is(err, domain.ErrMemberNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("transaction failed: %w", err)
	}
	return &removed, nil
}
