package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// WelcomeMailer greets newly registered accounts.
type WelcomeMailer interface {
	SendWelcome(ctx context.Context, to, firstName string) error
}

// AccountService covers self-service sign up, sign in and profile reads.
type AccountService struct {
	users    repository.UserRepositoryIface
	orgs     repository.OrganizationRepositoryIface
	settings *SettingsService
	gate     *AdminGate
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenManager
	mailer   WelcomeMailer
	audit    audit.Logger
	validate *validator.Validate
}

func NewAccountService(
	users repository.UserRepositoryIface,
	orgs repository.OrganizationRepositoryIface,
	settings *SettingsService,
	gate *AdminGate,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	m WelcomeMailer,
	logger audit.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		orgs:     orgs,
		settings: settings,
		gate:     gate,
		hasher:   hasher,
		tokens:   tokens,
		mailer:   m,
		audit:    logger,
		validate: newValidator(),
	}
}

type SignupInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

func (s *AccountService) Signup(ctx context.Context, caller Caller, in SignupInput) (*Session, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.AllowRegistration {
		return nil, domain.ErrRegistrationClosed
	}

	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	if !auth.CheckPasswordStrength(in.Password) {
		return nil, domain.ErrPasswordTooWeak
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	role := settings.DefaultUserRole
	if role != permission.RoleModerator {
		role = permission.RoleUser
	}
	user := &model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		IsActive:     true,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if s.mailer != nil {
		if err := s.mailer.SendWelcome(ctx, user.Email, user.FirstName); err != nil {
			slog.WarnContext(ctx, "failed to send welcome email", "userID", user.ID, "error", err)
		}
	}

	session, err := newSession(s.tokens, user)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, caller.withUser(user.ID, user.Email, string(user.Role)).Actor(), audit.Entry{
		Action:       model.ActionAuthSignUp,
		ResourceType: model.ResourceUser,
		ResourceID:   user.ID.String(),
		Metadata:     map[string]interface{}{"email": user.Email},
	})
	return session, nil
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *AccountService) Login(ctx context.Context, caller Caller, in LoginInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	verified, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !verified {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	now := time.Now().UTC()
	if err := s.users.TouchSignIn(ctx, user.ID, now); err != nil {
		slog.WarnContext(ctx, "failed to record sign in", "userID", user.ID, "error", err)
	} else {
		user.LastSignInAt = &now
	}

	session, err := newSession(s.tokens, user)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, caller.withUser(user.ID, user.Email, string(user.Role)).Actor(), audit.Entry{
		Action:       model.ActionAuthSignIn,
		ResourceType: model.ResourceUser,
		ResourceID:   user.ID.String(),
	})
	return session, nil
}

// Profile is the signed-in user's view of themselves.
type Profile struct {
	User        *model.User                 `json:"user"`
	Permissions []permission.Permission     `json:"permissions"`
	Memberships []*model.OrganizationMember `json:"memberships"`
}

func (s *AccountService) Me(ctx context.Context, caller Caller) (*Profile, error) {
	user, err := s.gate.RequireActive(ctx, caller)
	if err != nil {
		return nil, err
	}

	memberships, err := s.orgs.ListMemberships(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	if memberships == nil {
		memberships = []*model.OrganizationMember{}
	}

	return &Profile{
		User:        user,
		Permissions: permission.PermissionsFor(user.Role),
		Memberships: memberships,
	}, nil
}
