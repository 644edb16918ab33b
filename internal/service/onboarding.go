package service

import (
	"context"
	"crypto/subtle"
	"fmt"
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

// Session is returned by every action that signs a user in.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

func newSession(tokens *auth.TokenManager, user *model.User) (*Session, error) {
	token, expiresAt, err := tokens.Generate(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("generating token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// OnboardingService bootstraps the first super admin of a fresh install.
type OnboardingService struct {
	users      repository.UserRepositoryIface
	hasher     *auth.PasswordHasher
	tokens     *auth.TokenManager
	audit      audit.Logger
	validate   *validator.Validate
	setupToken string
}

func NewOnboardingService(
	users repository.UserRepositoryIface,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	logger audit.Logger,
	setupToken string,
) *OnboardingService {
	return &OnboardingService{
		users:      users,
		hasher:     hasher,
		tokens:     tokens,
		audit:      logger,
		validate:   newValidator(),
		setupToken: setupToken,
	}
}

type OnboardingStatus struct {
	NeedsSetup    bool `json:"needs_setup"`
	RequiresToken bool `json:"requires_token"`
}

func (s *OnboardingService) Status(ctx context.Context) (*OnboardingStatus, error) {
	count, err := s.users.CountByRole(ctx, permission.RoleSuperAdmin)
	if err != nil {
		return nil, fmt.Errorf("counting super admins: %w", err)
	}
	return &OnboardingStatus{
		NeedsSetup:    count == 0,
		RequiresToken: s.setupToken != "",
	}, nil
}

type BootstrapInput struct {
	Email      string `json:"email" validate:"required,email,max=254"`
	Password   string `json:"password" validate:"required"`
	FirstName  string `json:"first_name" validate:"max=100"`
	LastName   string `json:"last_name" validate:"max=100"`
	SetupToken string `json:"setup_token"`
}

// Bootstrap creates the first super admin and signs them in.
func (s *OnboardingService) Bootstrap(ctx context.Context, caller Caller, in BootstrapInput) (*Session, error) {
	if s.setupToken != "" && subtle.ConstantTimeCompare([]byte(in.SetupToken), []byte(s.setupToken)) != 1 {
		return nil, domain.ErrInvalidSetupToken
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

	user := &model.User{
		ID:           uuid.New(),
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         permission.RoleSuperAdmin,
		IsActive:     true,
		PasswordHash: hash,
	}
	if err := s.users.CreateFirstSuperAdmin(ctx, user); err != nil {
		return nil, err
	}

	session, err := newSession(s.tokens, user)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, caller.withUser(user.ID, user.Email, string(user.Role)).Actor(), audit.Entry{
		Action:       model.ActionSystemBootstrap,
		ResourceType: model.ResourceSystem,
		ResourceID:   user.ID.String(),
		Metadata:     map[string]interface{}{"email": user.Email},
	})
	return session, nil
}
