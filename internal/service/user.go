package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dangerclosesec/tenantkit/internal/audit"
	"github.com/dangerclosesec/tenantkit/internal/auth"
	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/dangerclosesec/tenantkit/internal/permission"
	"github.com/dangerclosesec/tenantkit/internal/repository"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// UserAdminService implements the platform-admin user management actions.
type UserAdminService struct {
	repo     repository.UserRepositoryIface
	gate     *AdminGate
	hasher   *auth.PasswordHasher
	audit    audit.Logger
	validate *validator.Validate
	// serviceKeyConfigured gates operations that touch credentials.
	serviceKeyConfigured bool
}

func NewUserAdminService(
	repo repository.UserRepositoryIface,
	gate *AdminGate,
	hasher *auth.PasswordHasher,
	logger audit.Logger,
	serviceRoleKey string,
) *UserAdminService {
	return &UserAdminService{
		repo:                 repo,
		gate:                 gate,
		hasher:               hasher,
		audit:                logger,
		validate:             newValidator(),
		serviceKeyConfigured: serviceRoleKey != "",
	}
}

type UserListInput struct {
	Search   string
	Role     permission.Role
	IsActive *bool
	SortBy   string
	Desc     bool
	Page     repository.Page
}

func (in UserListInput) filter() repository.UserFilter {
	return repository.UserFilter{
		Search:   strings.TrimSpace(in.Search),
		Role:     in.Role,
		IsActive: in.IsActive,
		Sort:     repository.Sort{Field: in.SortBy, Desc: in.Desc},
		Page:     in.Page.Normalize(),
	}
}

func (s *UserAdminService) List(ctx context.Context, caller Caller, in UserListInput) (Page[*model.User], error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewUsers); err != nil {
		return Page[*model.User]{}, err
	}

	f := in.filter()
	users, total, err := s.repo.List(ctx, f)
	if err != nil {
		return Page[*model.User]{}, fmt.Errorf("listing users: %w", err)
	}
	return newPage(users, total, f.Page), nil
}

func (s *UserAdminService) Get(ctx context.Context, caller Caller, id uuid.UUID) (*model.User, error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewUsers); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

type CreateUserInput struct {
	Email     string          `json:"email" validate:"required,email,max=254"`
	Password  string          `json:"password" validate:"required"`
	FirstName string          `json:"first_name" validate:"max=100"`
	LastName  string          `json:"last_name" validate:"max=100"`
	Role      permission.Role `json:"role" validate:"omitempty,oneof=user moderator admin super_admin"`
	IsActive  *bool           `json:"is_active"`
}

func (s *UserAdminService) Create(ctx context.Context, caller Caller, in CreateUserInput) (*model.User, error) {
	admin, err := s.gate.RequireAdmin(ctx, caller, permission.CreateUsers)
	if err != nil {
		return nil, err
	}
	if !s.serviceKeyConfigured {
		return nil, domain.ErrNotConfigured
	}

	in.Email = normalizeEmail(in.Email)
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = permission.RoleUser
	}
	if in.Role != permission.RoleUser && !permission.HasPermission(admin.Role, permission.ManageRoles) {
		return nil, domain.ErrInsufficientPermissions
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
		Role:         in.Role,
		IsActive:     in.IsActive == nil || *in.IsActive,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionUserCreate,
		ResourceType: model.ResourceUser,
		ResourceID:   user.ID.String(),
		Metadata: map[string]interface{}{
			"email": user.Email,
			"role":  string(user.Role),
		},
	})
	return user, nil
}

type UpdateUserInput struct {
	FirstName *string          `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string          `json:"last_name" validate:"omitempty,max=100"`
	Role      *permission.Role `json:"role" validate:"omitempty,oneof=user moderator admin super_admin"`
	IsActive  *bool            `json:"is_active"`
	Password  *string          `json:"password"`
}

func (s *UserAdminService) Update(ctx context.Context, caller Caller, id uuid.UUID, in UpdateUserInput) (*model.User, error) {
	admin, err := s.gate.RequireAdmin(ctx, caller, permission.EditUsers)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guardTarget(admin, target); err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if in.FirstName != nil {
		target.FirstName = strings.TrimSpace(*in.FirstName)
		changes["first_name"] = target.FirstName
	}
	if in.LastName != nil {
		target.LastName = strings.TrimSpace(*in.LastName)
		changes["last_name"] = target.LastName
	}
	if in.Role != nil && *in.Role != target.Role {
		if !permission.HasPermission(admin.Role, permission.ManageRoles) {
			return nil, domain.ErrInsufficientPermissions
		}
		if admin.ID == target.ID {
			return nil, domain.ErrSelfModification
		}
		if *in.Role == permission.RoleSuperAdmin && admin.Role != permission.RoleSuperAdmin {
			return nil, domain.ErrForbidden
		}
		changes["role"] = map[string]interface{}{"from": string(target.Role), "to": string(*in.Role)}
		target.Role = *in.Role
	}
	if in.IsActive != nil && *in.IsActive != target.IsActive {
		if admin.ID == target.ID && !*in.IsActive {
			return nil, domain.ErrSelfModification
		}
		target.IsActive = *in.IsActive
		changes["is_active"] = target.IsActive
	}
	if in.Password != nil {
		if !s.serviceKeyConfigured {
			return nil, domain.ErrNotConfigured
		}
		if !auth.CheckPasswordStrength(*in.Password) {
			return nil, domain.ErrPasswordTooWeak
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		target.PasswordHash = hash
		changes["credentials_reset"] = true
	}

	if len(changes) == 0 {
		return target, nil
	}
	if err := s.repo.Update(ctx, target); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionUserUpdate,
		ResourceType: model.ResourceUser,
		ResourceID:   target.ID.String(),
		Metadata:     changes,
	})
	return target, nil
}

// SetActive activates or deactivates a user.
func (s *UserAdminService) SetActive(ctx context.Context, caller Caller, id uuid.UUID, active bool) (*model.User, error) {
	admin, err := s.gate.RequireAdmin(ctx, caller, permission.EditUsers)
	if err != nil {
		return nil, err
	}
	if admin.ID == id && !active {
		return nil, domain.ErrSelfModification
	}

	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guardTarget(admin, target); err != nil {
		return nil, err
	}
	if target.IsActive == active {
		return target, nil
	}

	target.IsActive = active
	if err := s.repo.Update(ctx, target); err != nil {
		return nil, err
	}

	action := model.ActionUserDeactivate
	if active {
		action = model.ActionUserActivate
	}
	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       action,
		ResourceType: model.ResourceUser,
		ResourceID:   target.ID.String(),
		Metadata:     map[string]interface{}{"email": target.Email},
	})
	return target, nil
}

func (s *UserAdminService) Delete(ctx context.Context, caller Caller, id uuid.UUID) error {
	admin, err := s.gate.RequireAdmin(ctx, caller, permission.DeleteUsers)
	if err != nil {
		return err
	}
	if !s.serviceKeyConfigured {
		return domain.ErrNotConfigured
	}
	if admin.ID == id {
		return domain.ErrSelfModification
	}

	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := guardTarget(admin, target); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrSoleOwner) {
			return err
		}
		return fmt.Errorf("deleting user: %w", err)
	}

	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionUserDelete,
		ResourceType: model.ResourceUser,
		ResourceID:   id.String(),
		Metadata: map[string]interface{}{
			"email": target.Email,
			"role":  string(target.Role),
		},
	})
	return nil
}

// Export returns every user matching in, up to the export row cap.
func (s *UserAdminService) Export(ctx context.Context, caller Caller, in UserListInput) ([]*model.User, error) {
	if _, err := s.gate.RequireAdmin(ctx, caller, permission.ViewUsers, permission.ExportData); err != nil {
		return nil, err
	}

	f := in.filter()
	users, err := collectAll(func(p repository.Page) ([]*model.User, int64, error) {
		f.Page = p
		return s.repo.List(ctx, f)
	})
	if err != nil {
		return nil, fmt.Errorf("exporting users: %w", err)
	}

	s.audit.Log(ctx, caller.Actor(), audit.Entry{
		Action:       model.ActionUserExport,
		ResourceType: model.ResourceUser,
		Metadata:     map[string]interface{}{"count": len(users)},
	})
	return users, nil
}

// guardTarget rejects changes to a super_admin by anyone but a super_admin.
func guardTarget(admin, target *model.User) error {
	if target.Role == permission.RoleSuperAdmin && admin.Role != permission.RoleSuperAdmin {
		return domain.ErrForbidden
	}
	return nil
}
