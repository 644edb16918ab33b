package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/repository"
)

// AdminGate is the authorization chokepoint for platform-level actions.
// The role is always re-read from the profile, never trusted from the token.
type AdminGate struct {
	users repository.UserRepositoryIface
}

func NewAdminGate(users repository.UserRepositoryIface) *AdminGate {
	return &AdminGate{users: users}
}

func (g *AdminGate) profile(ctx context.Context, caller Caller) (*model.User, error) {
	if !caller.Authenticated() {
		return nil, domain.ErrUnauthenticated
	}
	user, err := g.users.FindByID(ctx, caller.UserID())
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	return user, nil
}

// RequireAdmin returns the caller's profile if they hold an admin role with
// every listed permission and an active account.
func (g *AdminGate) RequireAdmin(ctx context.Context, caller Caller, perms ...permission.Permission) (*model.User, error) {
	user, err := g.profile(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !permission.IsAdminRole(user.Role) {
		return nil, domain.ErrAdminRequired
	}
	if !permission.HasAllPermissions(user.Role, perms...) {
		return nil, domain.ErrInsufficientPermissions
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	return user, nil
}

// RequireActive returns the caller's profile if the account is active.
func (g *AdminGate) RequireActive(ctx context.Context, caller Caller) (*model.User, error) {
	user, err := g.profile(ctx, caller)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}
	return user, nil
}

// Profile returns the caller's profile without checking account state.
func (g *AdminGate) Profile(ctx context.Context, caller Caller) (*model.User, error) {
	return g.profile(ctx, caller)
}
