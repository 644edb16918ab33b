package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/email/mailer"
	"github.com/dangerclosesec/tenantkit/internal/mocks"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/dangerclosesec/tenantkit/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeInvitationMailer struct {
	sent []mailer.OrganizationInvitation
	err  error
}

func (f *fakeInvitationMailer) SendOrganizationInvitation(_ context.Context, inv mailer.OrganizationInvitation) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, inv)
	return nil
}

type invitationFixture struct {
	users  *mocks.MockUserRepositoryIface
	orgs   *mocks.MockOrganizationRepositoryIface
	invs   *mocks.MockInvitationRepositoryIface
	mailer *fakeInvitationMailer
	audit  *recordingAudit
	svc    *service.InvitationService
	now    time.Time
}

func newInvitationFixture(ctrl *gomock.Controller) *invitationFixture {
	f := &invitationFixture{
		users:  mocks.NewMockUserRepositoryIface(ctrl),
		orgs:   mocks.NewMockOrganizationRepositoryIface(ctrl),
		invs:   mocks.NewMockInvitationRepositoryIface(ctrl),
		mailer: &fakeInvitationMailer{},
		audit:  &recordingAudit{},
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	gate := service.NewAdminGate(f.users)
	f.svc = service.NewInvitationService(f.invs, f.orgs, f.users, gate, f.mailer, nil, f.audit, nil)
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func TestInvitationScenario(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newInvitationFixture(ctrl)
	ctx := context.Background()

	alice := newUser("alice@x.com", permission.RoleUser)
	alice.FirstName = "Alice"
	bob := newUser("bob@x.com", permission.RoleUser)
	org := &model.Organization{
		ID:         uuid.New(),
		Name:       "Acme",
		Slug:       "acme",
		PlanType:   model.PlanFree,
		MaxMembers: 5,
	}
	aliceMember := &model.OrganizationMember{OrganizationID: org.ID, UserID: alice.ID, Role: permission.OrgRoleOwner}

	var stored *model.Invitation

	// Alice invites bob.
	f.users.EXPECT().FindByID(gomock.Any(), alice.ID).Return(alice, nil)
	f.orgs.EXPECT().FindMember(gomock.Any(), org.ID, alice.ID).Return(aliceMember, nil)
	f.orgs.EXPECT().FindByID(gomock.Any(), org.ID).Return(org, nil)
	f.users.EXPECT().FindByEmail(gomock.Any(), "bob@x.com").Return(nil, domain.ErrUserNotFound)
	f.invs.EXPECT().FindPending(gomock.Any(), org.ID, "bob@x.com").Return(nil, domain.ErrInvitationNotFound)
	f.orgs.EXPECT().CountMembers(gomock.Any(), org.ID).Return(int64(1), nil)
	f.invs.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, inv *model.Invitation) error {
		copied := *inv
		stored = &copied
		return nil
	})

	result, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{
		Email: " Bob@X.com ",
		Role:  permission.OrgRoleMember,
	})
	require.NoError(t, err)
	require.NotNil(t, stored)

	assert.True(t, result.EmailSent)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "bob@x.com", stored.Email)
	assert.Equal(t, model.InvitationPending, stored.Status)
	assert.Equal(t, f.now.Add(7*24*time.Hour), stored.ExpiresAt)
	assert.Equal(t, service.HashInvitationToken(result.Token), stored.TokenHash)
	assert.NotEqual(t, result.Token, stored.TokenHash)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, result.Token, f.mailer.sent[0].Token)
	assert.Equal(t, "Acme", f.mailer.sent[0].OrganizationName)
	assert.Equal(t, "Alice", f.mailer.sent[0].InviterName)

	// Bob accepts three days later.
	f.now = f.now.Add(3 * 24 * time.Hour)
	f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
	f.invs.EXPECT().FindByTokenHash(gomock.Any(), stored.TokenHash).Return(stored, nil)
	f.orgs.EXPECT().FindMember(gomock.Any(), org.ID, bob.ID).Return(nil, domain.ErrMemberNotFound)
	f.invs.EXPECT().Accept(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p repository.AcceptParams) (*model.OrganizationMember, error) {
		assert.Equal(t, stored.ID, p.InvitationID)
		assert.Equal(t, bob.ID, p.UserID)
		assert.Equal(t, alice.ID, p.InvitedByID)
		assert.Equal(t, f.now, p.Now)
		stored.Status = model.InvitationAccepted
		return &model.OrganizationMember{
			ID:             uuid.New(),
			OrganizationID: p.OrganizationID,
			UserID:         p.UserID,
			Role:           p.Role,
			JoinedAt:       p.Now,
		}, nil
	})

	member, err := f.svc.Accept(ctx, callerFor(bob), result.Token)
	require.NoError(t, err)
	assert.Equal(t, permission.OrgRoleMember, member.Role)
	assert.Equal(t, org.ID, member.OrganizationID)
	assert.Equal(t, model.InvitationAccepted, stored.Status)

	// The same token cannot be redeemed twice.
	f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
	f.invs.EXPECT().FindByTokenHash(gomock.Any(), stored.TokenHash).Return(stored, nil)

	_, err = f.svc.Accept(ctx, callerFor(bob), result.Token)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)

	assert.Equal(t, []string{model.ActionInvitationCreate, model.ActionInvitationAccept}, f.audit.actions())
}

func pendingInvitation(orgID uuid.UUID, email string, expiresAt time.Time) (*model.Invitation, string) {
	token := "tok-" + uuid.NewString()
	return &model.Invitation{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Email:          email,
		Role:           permission.OrgRoleMember,
		TokenHash:      service.HashInvitationToken(token),
		InvitedByID:    uuid.New(),
		Status:         model.InvitationPending,
		ExpiresAt:      expiresAt,
	}, token
}

func TestInvitationAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("expired after eight days", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		bob := newUser("bob@x.com", permission.RoleUser)
		inv, token := pendingInvitation(uuid.New(), bob.Email, f.now.Add(model.InvitationTTL))

		f.now = f.now.Add(8 * 24 * time.Hour)
		f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)
		f.invs.EXPECT().MarkExpired(gomock.Any(), inv.ID).Return(nil)

		_, err := f.svc.Accept(ctx, callerFor(bob), token)
		assert.ErrorIs(t, err, domain.ErrInvitationExpired)
	})

	t.Run("expiry wins over status", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		bob := newUser("bob@x.com", permission.RoleUser)
		inv, token := pendingInvitation(uuid.New(), bob.Email, f.now.Add(-time.Minute))
		inv.Status = model.InvitationCancelled

		f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)

		_, err := f.svc.Accept(ctx, callerFor(bob), token)
		assert.ErrorIs(t, err, domain.ErrInvitationExpired)
	})

	t.Run("expires exactly at now", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		bob := newUser("bob@x.com", permission.RoleUser)
		inv, token := pendingInvitation(uuid.New(), bob.Email, f.now)

		f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)
		f.invs.EXPECT().MarkExpired(gomock.Any(), inv.ID).Return(domain.ErrInvitationNotFound)

		_, err := f.svc.Accept(ctx, callerFor(bob), token)
		assert.ErrorIs(t, err, domain.ErrInvitationExpired)
	})

	t.Run("already a member", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		bob := newUser("bob@x.com", permission.RoleUser)
		inv, token := pendingInvitation(uuid.New(), bob.Email, f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), inv.OrganizationID, bob.ID).
			Return(&model.OrganizationMember{Role: permission.OrgRoleMember}, nil)

		_, err := f.svc.Accept(ctx, callerFor(bob), token)
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	})

	t.Run("email mismatch", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		carol := newUser("carol@x.com", permission.RoleAdmin)
		inv, token := pendingInvitation(uuid.New(), "bob@x.com", f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), carol.ID).Return(carol, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)

		_, err := f.svc.Accept(ctx, callerFor(carol), token)
		assert.ErrorIs(t, err, domain.ErrEmailMismatch)
	})

	t.Run("email compared case-insensitively", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		bob := newUser("Bob@X.com", permission.RoleUser)
		inv, token := pendingInvitation(uuid.New(), "bob@x.com", f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), inv.OrganizationID, bob.ID).Return(nil, domain.ErrMemberNotFound)
		f.invs.EXPECT().Accept(gomock.Any(), gomock.Any()).
			Return(&model.OrganizationMember{OrganizationID: inv.OrganizationID, UserID: bob.ID, Role: inv.Role}, nil)

		_, err := f.svc.Accept(ctx, callerFor(bob), token)
		assert.NoError(t, err)
	})

	t.Run("super admin may redeem any address", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		root := newUser("root@x.com", permission.RoleSuperAdmin)
		inv, token := pendingInvitation(uuid.New(), "bob@x.com", f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), root.ID).Return(root, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), inv.OrganizationID, root.ID).Return(nil, domain.ErrMemberNotFound)
		f.invs.EXPECT().Accept(gomock.Any(), gomock.Any()).
			Return(&model.OrganizationMember{OrganizationID: inv.OrganizationID, UserID: root.ID, Role: inv.Role}, nil)

		_, err := f.svc.Accept(ctx, callerFor(root), token)
		assert.NoError(t, err)
	})

	t.Run("lost race", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		bob := newUser("bob@x.com", permission.RoleUser)
		inv, token := pendingInvitation(uuid.New(), bob.Email, f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), bob.ID).Return(bob, nil)
		f.invs.EXPECT().FindByTokenHash(gomock.Any(), inv.TokenHash).Return(inv, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), inv.OrganizationID, bob.ID).Return(nil, domain.ErrMemberNotFound)
		f.invs.EXPECT().Accept(gomock.Any(), gomock.Any()).Return(nil, domain.ErrInvitationNotFound)

		_, err := f.svc.Accept(ctx, callerFor(bob), token)
		assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)

		_, err := f.svc.Accept(ctx, service.Caller{}, "whatever")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}

func TestInvitationCreateRejections(t *testing.T) {
	ctx := context.Background()
	org := &model.Organization{ID: uuid.New(), Name: "Acme", Slug: "acme", MaxMembers: 2}

	t.Run("owner role", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		alice := newUser("alice@x.com", permission.RoleUser)
		f.users.EXPECT().FindByID(gomock.Any(), alice.ID).Return(alice, nil)

		_, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleOwner})
		assert.ErrorIs(t, err, domain.ErrCannotInviteOwner)
	})

	t.Run("manager cannot grant admin", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		mgr := newUser("mgr@x.com", permission.RoleUser)
		f.users.EXPECT().FindByID(gomock.Any(), mgr.ID).Return(mgr, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), org.ID, mgr.ID).
			Return(&model.OrganizationMember{Role: permission.OrgRoleManager}, nil)

		_, err := f.svc.Create(ctx, callerFor(mgr), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleAdmin})
		assert.ErrorIs(t, err, domain.ErrInsufficientPermissions)
	})

	t.Run("plain member cannot invite", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		m := newUser("m@x.com", permission.RoleUser)
		f.users.EXPECT().FindByID(gomock.Any(), m.ID).Return(m, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), org.ID, m.ID).
			Return(&model.OrganizationMember{Role: permission.OrgRoleMember}, nil)

		_, err := f.svc.Create(ctx, callerFor(m), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleMember})
		assert.ErrorIs(t, err, domain.ErrInsufficientPermissions)
	})

	t.Run("invalid email", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		alice := newUser("alice@x.com", permission.RoleUser)
		f.users.EXPECT().FindByID(gomock.Any(), alice.ID).Return(alice, nil)

		_, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{Email: "nope", Role: permission.OrgRoleMember})
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Fields, "email")
	})

	setupOwner := func(f *invitationFixture) *model.User {
		alice := newUser("alice@x.com", permission.RoleUser)
		f.users.EXPECT().FindByID(gomock.Any(), alice.ID).Return(alice, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), org.ID, alice.ID).
			Return(&model.OrganizationMember{Role: permission.OrgRoleOwner}, nil)
		f.orgs.EXPECT().FindByID(gomock.Any(), org.ID).Return(org, nil)
		return alice
	}

	t.Run("invitee already a member", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		alice := setupOwner(f)
		bob := newUser("bob@x.com", permission.RoleUser)
		f.users.EXPECT().FindByEmail(gomock.Any(), "bob@x.com").Return(bob, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), org.ID, bob.ID).
			Return(&model.OrganizationMember{Role: permission.OrgRoleMember}, nil)

		_, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleMember})
		assert.ErrorIs(t, err, domain.ErrAlreadyMember)
	})

	t.Run("live pending invitation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		alice := setupOwner(f)
		existing, _ := pendingInvitation(org.ID, "bob@x.com", f.now.Add(time.Hour))
		f.users.EXPECT().FindByEmail(gomock.Any(), "bob@x.com").Return(nil, domain.ErrUserNotFound)
		f.invs.EXPECT().FindPending(gomock.Any(), org.ID, "bob@x.com").Return(existing, nil)

		_, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleMember})
		assert.ErrorIs(t, err, domain.ErrInvitationExists)
	})

	t.Run("stale pending invitation is expired first", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		alice := setupOwner(f)
		stale, _ := pendingInvitation(org.ID, "bob@x.com", f.now.Add(-time.Hour))
		f.users.EXPECT().FindByEmail(gomock.Any(), "bob@x.com").Return(nil, domain.ErrUserNotFound)
		f.invs.EXPECT().FindPending(gomock.Any(), org.ID, "bob@x.com").Return(stale, nil)
		f.invs.EXPECT().MarkExpired(gomock.Any(), stale.ID).Return(nil)
		f.orgs.EXPECT().CountMembers(gomock.Any(), org.ID).Return(int64(1), nil)
		f.invs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		result, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleMember})
		require.NoError(t, err)
		assert.NotEqual(t, stale.ID, result.Invitation.ID)
	})

	t.Run("organization full", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		alice := setupOwner(f)
		f.users.EXPECT().FindByEmail(gomock.Any(), "bob@x.com").Return(nil, domain.ErrUserNotFound)
		f.invs.EXPECT().FindPending(gomock.Any(), org.ID, "bob@x.com").Return(nil, domain.ErrInvitationNotFound)
		f.orgs.EXPECT().CountMembers(gomock.Any(), org.ID).Return(int64(2), nil)

		_, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleMember})
		assert.ErrorIs(t, err, domain.ErrOrganizationFull)
	})

	t.Run("mail failure still creates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		f.mailer.err = errors.New("smtp down")
		alice := setupOwner(f)
		f.users.EXPECT().FindByEmail(gomock.Any(), "bob@x.com").Return(nil, domain.ErrUserNotFound)
		f.invs.EXPECT().FindPending(gomock.Any(), org.ID, "bob@x.com").Return(nil, domain.ErrInvitationNotFound)
		f.orgs.EXPECT().CountMembers(gomock.Any(), org.ID).Return(int64(1), nil)
		f.invs.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		result, err := f.svc.Create(ctx, callerFor(alice), org.ID, service.CreateInvitationInput{Email: "bob@x.com", Role: permission.OrgRoleMember})
		require.NoError(t, err)
		assert.False(t, result.EmailSent)
	})
}

func TestInvitationLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newInvitationFixture(ctrl)
	org := &model.Organization{ID: uuid.New(), Name: "Acme", Slug: "acme"}

	live, liveToken := pendingInvitation(org.ID, "bob@x.com", f.now.Add(time.Hour))
	live.Organization = org
	f.invs.EXPECT().FindByTokenHash(gomock.Any(), live.TokenHash).Return(live, nil)

	preview, err := f.svc.Lookup(context.Background(), liveToken)
	require.NoError(t, err)
	assert.Equal(t, "Acme", preview.OrganizationName)
	assert.Equal(t, "acme", preview.OrganizationSlug)

	expired, expiredToken := pendingInvitation(org.ID, "bob@x.com", f.now.Add(-time.Hour))
	f.invs.EXPECT().FindByTokenHash(gomock.Any(), expired.TokenHash).Return(expired, nil)

	_, err = f.svc.Lookup(context.Background(), expiredToken)
	assert.ErrorIs(t, err, domain.ErrInvitationExpired)

	accepted, acceptedToken := pendingInvitation(org.ID, "bob@x.com", f.now.Add(time.Hour))
	accepted.Status = model.InvitationAccepted
	f.invs.EXPECT().FindByTokenHash(gomock.Any(), accepted.TokenHash).Return(accepted, nil)

	_, err = f.svc.Lookup(context.Background(), acceptedToken)
	assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
}

func TestInvitationCancelAndResend(t *testing.T) {
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("inviter cancels", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		mgr := newUser("mgr@x.com", permission.RoleUser)
		inv, _ := pendingInvitation(orgID, "bob@x.com", f.now.Add(time.Hour))
		inv.InvitedByID = mgr.ID

		f.users.EXPECT().FindByID(gomock.Any(), mgr.ID).Return(mgr, nil)
		f.invs.EXPECT().FindByID(gomock.Any(), inv.ID).Return(inv, nil)
		f.invs.EXPECT().Cancel(gomock.Any(), inv.ID).Return(nil)

		require.NoError(t, f.svc.Cancel(ctx, callerFor(mgr), orgID, inv.ID))
		assert.Equal(t, []string{model.ActionInvitationCancel}, f.audit.actions())
	})

	t.Run("other manager cannot cancel", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		mgr := newUser("mgr2@x.com", permission.RoleUser)
		inv, _ := pendingInvitation(orgID, "bob@x.com", f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), mgr.ID).Return(mgr, nil)
		f.invs.EXPECT().FindByID(gomock.Any(), inv.ID).Return(inv, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), orgID, mgr.ID).
			Return(&model.OrganizationMember{Role: permission.OrgRoleManager}, nil)

		err := f.svc.Cancel(ctx, callerFor(mgr), orgID, inv.ID)
		assert.ErrorIs(t, err, domain.ErrInsufficientPermissions)
	})

	t.Run("invitation from another organization", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		owner := newUser("owner@x.com", permission.RoleUser)
		inv, _ := pendingInvitation(uuid.New(), "bob@x.com", f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), owner.ID).Return(owner, nil)
		f.invs.EXPECT().FindByID(gomock.Any(), inv.ID).Return(inv, nil)

		err := f.svc.Cancel(ctx, callerFor(owner), orgID, inv.ID)
		assert.ErrorIs(t, err, domain.ErrInvitationNotFound)
	})

	t.Run("resend rotates the token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		f := newInvitationFixture(ctrl)
		owner := newUser("owner@x.com", permission.RoleUser)
		org := &model.Organization{ID: orgID, Name: "Acme", Slug: "acme"}
		inv, oldToken := pendingInvitation(orgID, "bob@x.com", f.now.Add(time.Hour))

		f.users.EXPECT().FindByID(gomock.Any(), owner.ID).Return(owner, nil)
		f.invs.EXPECT().FindByID(gomock.Any(), inv.ID).Return(inv, nil)
		f.orgs.EXPECT().FindMember(gomock.Any(), orgID, owner.ID).
			Return(&model.OrganizationMember{Role: permission.OrgRoleOwner}, nil)
		f.orgs.EXPECT().FindByID(gomock.Any(), orgID).Return(org, nil)
		f.invs.EXPECT().Rotate(gomock.Any(), inv.ID, gomock.Any(), f.now.Add(model.InvitationTTL)).Return(nil)

		result, err := f.svc.Resend(ctx, callerFor(owner), orgID, inv.ID)
		require.NoError(t, err)
		assert.NotEqual(t, oldToken, result.Token)
		assert.Equal(t, service.HashInvitationToken(result.Token), result.Invitation.TokenHash)
		assert.True(t, result.EmailSent)
	})
}

func TestInvitationExpireStale(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := newInvitationFixture(ctrl)

	f.invs.EXPECT().ExpireStale(gomock.Any(), f.now).Return(int64(3), nil)

	n, err := f.svc.ExpireStale(context.Background(), callerFor(newUser("ops@x.com", permission.RoleUser)).Actor())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []string{model.ActionInvitationExpire}, f.audit.actions())
}
