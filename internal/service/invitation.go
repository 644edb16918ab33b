package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/email/mailer"
	"github.com/dangerclosesec/tenantkit/internal/metrics"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/permsync"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/dangerclosesec/tenantkit/internal/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tokenBytes = 32

// InvitationMailer delivers invitation emails.
type InvitationMailer interface {
	SendOrganizationInvitation(ctx context.Context, inv mailer.OrganizationInvitation) error
}

type InvitationService struct {
	repo     repository.InvitationRepositoryIface
	orgs     repository.OrganizationRepositoryIface
	users    repository.UserRepositoryIface
	gate     *AdminGate
	mailer   InvitationMailer
	mirror   permsync.Mirror
	audit    audit.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate
	now      func() time.Time
}

func NewInvitationService(
	repo repository.InvitationRepositoryIface,
	orgs repository.OrganizationRepositoryIface,
	users repository.UserRepositoryIface,
	gate *AdminGate,
	m InvitationMailer,
	mirror permsync.Mirror,
	logger audit.Logger,
	met *metrics.Metrics,
) *InvitationService {
	if mirror == nil {
		mirror = permsync.Noop{}
	}
	return &InvitationService{
		repo:     repo,
		orgs:     orgs,
		users:    users,
		gate:     gate,
		mailer:   m,
		mirror:   mirror,
		audit:    logger,
		metrics:  met,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *InvitationService) SetClock(now func() time.Time) {
	s.now = now
}

// newInvitationToken returns an opaque token and the hash stored for it.
func newInvitationToken() (string, string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generating token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashInvitationToken(token), nil
}

// HashInvitationToken returns the hex SHA-256 digest persisted for token.
func HashInvitationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type CreateInvitationInput struct {
	Email string             `json:"email" validate:"required,email,max=254"`
	Role  permission.OrgRole `json:"role" validate:"required,oneof=owner admin manager member"`
}

// InvitationResult carries the plaintext token, which is never persisted
// and only returned here.
type InvitationResult struct {
	Invitation *model.Invitation `json:"invitation"`
	Token      string            `json:"token"`
	EmailSent  bool              `json:"email_sent"`
}

// Create invites email into the organization.
func (s *InvitationService) Create(ctx context.Context, caller Caller, orgID uuid.UUID, in CreateInvitationInput) (_ *InvitationResult, err error) {
	ctx, span := startSpan(ctx, "InvitationService.Create", attribute.String("organization.id", orgID.String()))
	defer func() { endSpan(span, err) }()

	inviter, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, err
	}

	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	if in.Role == permission.OrgRoleOwner {
		return nil, domain.ErrCannotInviteOwner
	}

	granter, err := s.inviterRole(ctx, inviter, orgID)
	if err != nil {
		return nil, err
	}
	if !permission.CanInvite(granter) || !permission.CanGrant(granter, in.Role) {
		return nil, domain.ErrInsufficientPermissions
	}

	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNotMember(ctx, orgID, in.Email); err != nil {
		return nil, err
	}

	now := s.now()
	existing, err := s.repo.FindPending(ctx, orgID, in.Email)
	switch {
	case err == nil && !existing.IsExpired(now):
		return nil, domain.ErrInvitationExists
	case err == nil:
		// Free the pending slot held by a stale row.
		if err := s.repo.MarkExpired(ctx, existing.ID); err != nil && !errors.Is(err, domain.ErrInvitationNotFound) {
			return nil, err
		}
	case !errors.Is(err, domain.ErrInvitationNotFound):
		return nil, err
	}

	count, err := s.orgs.CountMembers(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("counting members: %w", err)
	}
	if !org.HasCapacity(count) {
		return nil, domain.ErrOrganizationFull
	}

	token, hash, err := newInvitationToken()
	if err != nil {
		return nil, err
	}

	inv := &model.Invitation{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Email:          in.Email,
		Role:           in.Role,
		TokenHash:      hash,
		InvitedByID:    inviter.ID,
		Status:         model.InvitationPending,
		ExpiresAt:      now.Add(model.InvitationTTL),
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	inv.Organization = org

	sent := s.send(ctx, inv, org, inviter, token)
	s.metrics.InvitationEvent("created")
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionInvitationCreate,
		ResourceType: model.ResourceInvitation,
		ResourceID:   inv.ID.String(),
		Metadata: map[string]interface{}{
			"organization_id": orgID.String(),
			"email":           inv.Email,
			"role":            string(inv.Role),
			"email_sent":      sent,
		},
	})

	return &InvitationResult{Invitation: inv, Token: token, EmailSent: sent}, nil
}

// inviterRole is the role used for grant checks. Platform admins with
// edit_organizations invite as an organization admin.
func (s *InvitationService) inviterRole(ctx context.Context, user *model.User, orgID uuid.UUID) (permission.OrgRole, error) {
	member, err := s.orgs.FindMember(ctx, orgID, user.ID)
	if err != nil && !errors.Is(err, domain.ErrMemberNotFound) {
		return "", fmt.Errorf("loading membership: %w", err)
	}
	var role permission.OrgRole
	if member != nil {
		role = member.Role
	}
	if permission.HasPermission(user.Role, permission.EditOrganizations) && role.Rank() < permission.OrgRoleAdmin.Rank() {
		role = permission.OrgRoleAdmin
	}
	return role, nil
}

func (s *InvitationService) ensureNotMember(ctx context.Context, orgID uuid.UUID, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up invitee: %w", err)
	}
	_, err = s.orgs.FindMember(ctx, orgID, user.ID)
	switch {
	case err == nil:
		return domain.ErrAlreadyMember
	case errors.Is(err, domain.ErrMemberNotFound):
		return nil
	default:
		return fmt.Errorf("checking membership: %w", err)
	}
}

// send mails the invitation and reports whether delivery succeeded.
func (s *InvitationService) send(ctx context.Context, inv *model.Invitation, org *model.Organization, inviter *model.User, token string) bool {
	if s.mailer == nil {
		return false
	}
	inviterName := inviter.FullName()
	if inviterName == "" {
		inviterName = inviter.Email
	}
	err := s.mailer.SendOrganizationInvitation(ctx, mailer.OrganizationInvitation{
		To:               inv.Email,
		OrganizationName: org.Name,
		InviterName:      inviterName,
		Role:             string(inv.Role),
		Token:            token,
		ExpiresAt:        inv.ExpiresAt,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to send invitation email",
			"invitationID", inv.ID,
			"organizationID", org.ID,
			"error", err)
		s.metrics.InvitationEvent("email_failed")
		return false
	}
	return true
}

// InvitationPreview is what an invitee sees before accepting.
type InvitationPreview struct {
	ID               uuid.UUID          `json:"id"`
	OrganizationID   uuid.UUID          `json:"organization_id"`
	OrganizationName string             `json:"organization_name"`
	OrganizationSlug string             `json:"organization_slug"`
	Email            string             `json:"email"`
	Role             permission.OrgRole `json:"role"`
	ExpiresAt        time.Time          `json:"expires_at"`
}

// Lookup resolves a token for the public accept page.
func (s *InvitationService) Lookup(ctx context.Context, token string) (*InvitationPreview, error) {
	inv, err := s.repo.FindByTokenHash(ctx, HashInvitationToken(token))
	if err != nil {
		return nil, err
	}
	if inv.IsExpired(s.now()) {
		return nil, domain.ErrInvitationExpired
	}
	if inv.Status != model.InvitationPending {
		return nil, domain.ErrInvitationNotFound
	}

	preview := &InvitationPreview{
		ID:             inv.ID,
		OrganizationID: inv.OrganizationID,
		Email:          inv.Email,
		Role:           inv.Role,
		ExpiresAt:      inv.ExpiresAt,
	}
	if inv.Organization != nil {
		preview.OrganizationName = inv.Organization.Name
		preview.OrganizationSlug = inv.Organization.Slug
	}
	return preview, nil
}

// Accept redeems token for the caller and returns the new membership.
func (s *InvitationService) Accept(ctx context.Context, caller Caller, token string) (_ *model.OrganizationMember, err error) {
	ctx, span := startSpan(ctx, "InvitationService.Accept")
	defer func() { endSpan(span, err) }()

	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.FindByTokenHash(ctx, HashInvitationToken(token))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("invitation.id", inv.ID.String()),
		attribute.String("organization.id", inv.OrganizationID.String()),
	)

	now := s.now()
	if inv.IsExpired(now) {
		if inv.Status == model.InvitationPending {
			if err := s.repo.MarkExpired(ctx, inv.ID); err != nil && !errors.Is(err, domain.ErrInvitationNotFound) {
				slog.WarnContext(ctx, "failed to mark invitation expired", "invitationID", inv.ID, "error", err)
			}
		}
		s.metrics.InvitationEvent("expired")
		return nil, domain.ErrInvitationExpired
	}
	if inv.Status != model.InvitationPending {
		return nil, domain.ErrInvitationNotFound
	}
	if normalizeEmail(user.Email) != normalizeEmail(inv.Email) && user.Role != permission.RoleSuperAdmin {
		return nil, domain.ErrEmailMismatch
	}

	_, err = s.orgs.FindMember(ctx, inv.OrganizationID, user.ID)
	switch {
	case err == nil:
		return nil, domain.ErrAlreadyMember
	case !errors.Is(err, domain.ErrMemberNotFound):
		return nil, fmt.Errorf("checking membership: %w", err)
	}

	member, err := s.repo.Accept(ctx, repository.AcceptParams{
		InvitationID:   inv.ID,
		OrganizationID: inv.OrganizationID,
		UserID:         user.ID,
		Role:           inv.Role,
		InvitedByID:    inv.InvitedByID,
		Now:            now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.mirror.Grant(ctx, permsync.Membership{OrganizationID: member.OrganizationID, UserID: user.ID, Role: string(member.Role)}); err != nil {
		slog.WarnContext(ctx, "failed to mirror membership", "organizationID", member.OrganizationID, "userID", user.ID, "error", err)
	}
	s.metrics.InvitationEvent("accepted")
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionInvitationAccept,
		ResourceType: model.ResourceInvitation,
		ResourceID:   inv.ID.String(),
		Metadata: map[string]interface{}{
			"organization_id": inv.OrganizationID.String(),
			"role":            string(inv.Role),
		},
	})
	return member, nil
}

// manageable loads an invitation of orgID that the caller may cancel or
// resend: its inviter, an org owner or admin, or a platform admin.
func (s *InvitationService) manageable(ctx context.Context, caller Caller, orgID, invID uuid.UUID) (*model.User, *model.Invitation, error) {
	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, nil, err
	}

	inv, err := s.repo.FindByID(ctx, invID)
	if err != nil {
		return nil, nil, err
	}
	if inv.OrganizationID != orgID {
		return nil, nil, domain.ErrInvitationNotFound
	}
	if inv.InvitedByID == user.ID {
		return user, inv, nil
	}

	role, err := s.inviterRole(ctx, user, orgID)
	if err != nil {
		return nil, nil, err
	}
	if !permission.CanManageMembers(role) {
		return nil, nil, domain.ErrInsufficientPermissions
	}
	return user, inv, nil
}

func (s *InvitationService) Cancel(ctx context.Context, caller Caller, orgID, invID uuid.UUID) error {
	_, inv, err := s.manageable(ctx, caller, orgID, invID)
	if err != nil {
		return err
	}
	if err := s.repo.Cancel(ctx, inv.ID); err != nil {
		return err
	}

	s.metrics.InvitationEvent("cancelled")
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionInvitationCancel,
		ResourceType: model.ResourceInvitation,
		ResourceID:   inv.ID.String(),
		Metadata: map[string]interface{}{
			"organization_id": orgID.String(),
			"email":           inv.Email,
		},
	})
	return nil
}

// Resend rotates the token of a pending invitation, extends its expiry and
// mails it again.
func (s *InvitationService) Resend(ctx context.Context, caller Caller, orgID, invID uuid.UUID) (*InvitationResult, error) {
	user, inv, err := s.manageable(ctx, caller, orgID, invID)
	if err != nil {
		return nil, err
	}
	if inv.Status != model.InvitationPending {
		return nil, domain.ErrInvitationNotFound
	}

	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	token, hash, err := newInvitationToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(model.InvitationTTL)
	if err := s.repo.Rotate(ctx, inv.ID, hash, expiresAt); err != nil {
		return nil, err
	}
	inv.TokenHash = hash
	inv.ExpiresAt = expiresAt
	inv.Organization = org

	sent := s.send(ctx, inv, org, user, token)
	s.metrics.InvitationEvent("resent")
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionInvitationResend,
		ResourceType: model.ResourceInvitation,
		ResourceID:   inv.ID.String(),
		Metadata: map[string]interface{}{
			"organization_id": orgID.String(),
			"email":           inv.Email,
			"email_sent":      sent,
		},
	})
	return &InvitationResult{Invitation: inv, Token: token, EmailSent: sent}, nil
}

// ListForOrganization returns the organization's invitations, optionally
// filtered by status. Managers and above may list.
func (s *InvitationService) ListForOrganization(ctx context.Context, caller Caller, orgID uuid.UUID, status model.InvitationStatus) ([]*model.Invitation, error) {
	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, domain.NewValidationError(map[string]string{"status": "must be one of: pending accepted cancelled expired"})
	}

	role, err := s.inviterRole(ctx, user, orgID)
	if err != nil {
		return nil, err
	}
	if !permission.CanInvite(role) && !permission.HasPermission(user.Role, permission.ViewOrganizations) {
		return nil, domain.ErrInsufficientPermissions
	}

	invs, err := s.repo.ListByOrganization(ctx, orgID, status)
	if err != nil {
		return nil, err
	}
	if invs == nil {
		invs = []*model.Invitation{}
	}
	return invs, nil
}

// ListMine returns live invitations addressed to the caller's email.
func (s *InvitationService) ListMine(ctx context.Context, caller Caller) ([]*model.Invitation, error) {
	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, err
	}
	invs, err := s.repo.ListPendingForEmail(ctx, normalizeEmail(user.Email), s.now())
	if err != nil {
		return nil, err
	}
	if invs == nil {
		invs = []*model.Invitation{}
	}
	return invs, nil
}

// ExpireStale flips every pending invitation past its expiry to expired.
func (s *InvitationService) ExpireStale(ctx context.Context, actor audit.Actor) (n int64, err error) {
	ctx, span := startSpan(ctx, "InvitationService.ExpireStale")
	defer func() { endSpan(span, err) }()

	n, err = s.repo.ExpireStale(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expiring invitations: %w", err)
	}
	span.SetAttributes(attribute.Int64("invitations.expired", n))
	s.metrics.InvitationsExpired(n)

	if n > 0 {
		s.audit.Log(ctx, actor, audit.Entry{
			Action:       model.ActionInvitationExpire,
			ResourceType: model.ResourceSystem,
			Metadata:     map[string]interface{}{"count": n},
		})
	}
	return n, nil
}
