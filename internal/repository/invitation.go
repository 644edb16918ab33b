// internal/repository/invitation.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pendingInvitationIndex enforces one live invitation per (organization, email).
const pendingInvitationIndex = "invitations_pending_org_email_idx"

// AcceptParams describes a membership to create from an accepted invitation.
type AcceptParams struct {
	InvitationID   uuid.UUID
	OrganizationID uuid.UUID
	UserID         uuid.UUID
	Role           permission.OrgRole
	InvitedByID    uuid.UUID
	Now            time.Time
}

type InvitationRepositoryIface interface {
	Create(ctx context.Context, inv *model.Invitation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Invitation, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Invitation, error)
	FindPending(ctx context.Context, orgID uuid.UUID, email string) (*model.Invitation, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, status model.InvitationStatus) ([]*model.Invitation, error)
	ListPendingForEmail(ctx context.Context, email string, now time.Time) ([]*model.Invitation, error)
	Cancel(ctx context.Context, id uuid.UUID) error
	Rotate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	Accept(ctx context.Context, params AcceptParams) (*model.OrganizationMember, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type InvitationRepository struct {
	db *gorm.DB
}

func NewInvitationRepository(db *gorm.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) Create(ctx context.Context, inv *model.Invitation) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(inv).Error; err != nil {
		if isUniqueViolation(err, pendingInvitationIndex) {
			return domain.ErrInvitationExists
		}
		return fmt.Errorf("creating invitation: %w", err)
	}
	return nil
}

func (r *InvitationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Invitation, error) {
	var inv model.Invitation
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("finding invitation: %w", err)
	}
	return &inv, nil
}

func (r *InvitationRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Invitation, error) {
	var inv model.Invitation
	if err := r.db.WithContext(ctx).
		Preload("Organization").
		First(&inv, "token_hash = ?", tokenHash).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("finding invitation: %w", err)
	}
	return &inv, nil
}

// FindPending returns the pending invitation for email in the organization,
// which may already be past its expiry.
func (r *InvitationRepository) FindPending(ctx context.Context, orgID uuid.UUID, email string) (*model.Invitation, error) {
	var inv model.Invitation
	if err := r.db.WithContext(ctx).
		Where("organization_id = ? AND email = ? AND status = ?", orgID, email, model.InvitationPending).
		First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvitationNotFound
		}
		return nil, fmt.Errorf("finding pending invitation: %w", err)
	}
	return &inv, nil
}

func (r *InvitationRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID, status model.InvitationStatus) ([]*model.Invitation, error) {
	var invs []*model.Invitation
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("created_at DESC").Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return invs, nil
}

func (r *InvitationRepository) ListPendingForEmail(ctx context.Context, email string, now time.Time) ([]*model.Invitation, error) {
	var invs []*model.Invitation
	if err := r.db.WithContext(ctx).
		Preload("Organization").
		Where("email = ? AND status = ? AND expires_at > ?", email, model.InvitationPending, now).
		Order("created_at DESC").
		Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return invs, nil
}

// transition applies updates only while the invitation is still pending.
func (r *InvitationRepository) transition(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.Invitation{}).
		Where("id = ? AND status = ?", id, model.InvitationPending).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating invitation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInvitationNotFound
	}
	return nil
}

func (r *InvitationRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, map[string]interface{}{"status": model.InvitationCancelled})
}

func (r *InvitationRepository) Rotate(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	return r.transition(ctx, id, map[string]interface{}{
		"token_hash": tokenHash,
		"expires_at": expiresAt,
	})
}

func (r *InvitationRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, map[string]interface{}{"status": model.InvitationExpired})
}

// Accept redeems the invitation and creates the membership in one
// transaction. The organization row is locked so capacity checks of
// concurrent accepts serialize, and the status flip is conditional so a
// token redeems at most once.
func (r *InvitationRepository) Accept(ctx context.Context, p AcceptParams) (*model.OrganizationMember, error) {
	var member *model.OrganizationMember
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var org model.Organization
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&org, "id = ?", p.OrganizationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrOrganizationNotFound
			}
			return fmt.Errorf("locking organization: %w", err)
		}

		var count int64
		if err := tx.Model(&model.OrganizationMember{}).Where("organization_id = ?", org.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("counting members: %w", err)
		}
		if !org.HasCapacity(count) {
			return domain.ErrOrganizationFull
		}

		result := tx.Model(&model.Invitation{}).
			Where("id = ? AND status = ? AND expires_at > ?", p.InvitationID, model.InvitationPending, p.Now).
			Updates(map[string]interface{}{
				"status":         model.InvitationAccepted,
				"accepted_at":    p.Now,
				"accepted_by_id": p.UserID,
			})
		if result.Error != nil {
			return fmt.Errorf("accepting invitation: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvitationNotFound
		}

		invitedBy := p.InvitedByID
		member = &model.OrganizationMember{
			OrganizationID: p.OrganizationID,
			UserID:         p.UserID,
			Role:           p.Role,
			InvitedByID:    &invitedBy,
			JoinedAt:       p.Now,
		}
		if err := tx.Omit(clause.Associations).Create(member).Error; err != nil {
			if isUniqueViolation(err, "") {
				return domain.ErrAlreadyMember
			}
			return fmt.Errorf("creating membership: %w", err)
		}
		return nil
	})
	if err != nil {
		for _, sentinel := range []error{
			domain.ErrOrganizationNotFound,
			domain.ErrOrganizationFull,
			domain.ErrInvitationNotFound,
			domain.ErrAlreadyMember,
		} {
			if errors.Is(err, sentinel) {
				return nil, sentinel
			}
		}
		return nil, fmt.Errorf("transaction failed: %w", err)
	}
	return member, nil
}

// ExpireStale flips every pending invitation past its expiry to expired.
func (r *InvitationRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Invitation{}).
		Where("status = ? AND expires_at <= ?", model.InvitationPending, now).
		Update("status", model.InvitationExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("expiring invitations: %w", result.Error)
	}
	return result.RowsAffected, nil
}
