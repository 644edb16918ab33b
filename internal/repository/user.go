// internal/repository/user.go
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

// bootstrapLockKey serializes first super-admin creation across replicas.
const bootstrapLockKey int64 = 0x74656e616e74

type UserFilter struct {
	Search   string
	Role     permission.Role
	IsActive *bool
	Sort     Sort
	Page     Page
}

type UserRepositoryIface interface {
	Create(ctx context.Context, user *model.User) error
	CreateFirstSuperAdmin(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter UserFilter) ([]*model.User, int64, error)
	CountByRole(ctx context.Context, role permission.Role) (int64, error)
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// CreateFirstSuperAdmin inserts user only while no super_admin exists. The
// check and insert run under a transaction-scoped advisory lock.
func (r *UserRepository) CreateFirstSuperAdmin(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", bootstrapLockKey).Error; err != nil {
			return fmt.Errorf("acquiring bootstrap lock: %w", err)
		}

		var count int64
		if err := tx.Model(&model.User{}).Where("role = ?", permission.RoleSuperAdmin).Count(&count).Error; err != nil {
			return fmt.Errorf("counting super admins: %w", err)
		}
		if count > 0 {
			return domain.ErrAlreadyBootstrapped
		}

		user.Role = permission.RoleSuperAdmin
		user.IsActive = true
		if err := tx.Create(user).Error; err != nil {
			if isUniqueViolation(err, "") {
				return domain.ErrEmailAlreadyExists
			}
			return fmt.Errorf("creating super admin: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyBootstrapped) || errors.Is(err, domain.ErrEmailAlreadyExists) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	result := r.db.WithContext(ctx).Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", result.Error)
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	result := r.db.WithContext(ctx).First(&user, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", result.Error)
	}
	return &user, nil
}

func (r *UserRepository) Update(ctx context.Context, user *model.User) error {
	result := r.db.WithContext(ctx).Save(user)
	if result.Error != nil {
		if isUniqueViolation(result.Error, "") {
			return domain.ErrEmailAlreadyExists
		}
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	return nil
}

func (r *UserRepository) TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).UpdateColumn("last_sign_in_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to record sign in: %w", result.Error)
	}
	return nil
}

// Delete removes the user unless they are the only owner of some
// organization. Memberships cascade; organizations they created keep
// existing with no creator.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owned []model.OrganizationMember
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("role = ? AND organization_id IN (?)", permission.OrgRoleOwner,
				tx.Model(&model.OrganizationMember{}).Select("organization_id").
					Where("user_id = ? AND role = ?", id, permission.OrgRoleOwner)).
			Find(&owned).Error; err != nil {
			return fmt.Errorf("locking owned organizations: %w", err)
		}

		owners := make(map[uuid.UUID]int)
		for _, m := range owned {
			owners[m.OrganizationID]++
		}
		for _, n := range owners {
			if n < 2 {
				return domain.ErrSoleOwner
			}
		}

		if err := tx.Model(&model.Organization{}).
			Where("created_by_id = ?", id).
			UpdateColumn("created_by_id", gorm.Expr("NULL")).Error; err != nil {
			return fmt.Errorf("clearing organization creator: %w", err)
		}

		result := tx.Delete(&model.User{}, "id = ?", id)
		if result.Error != nil {
			return fmt.Errorf("deleting user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSoleOwner) || errors.Is(err, domain.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

var userSortColumns = map[string]string{
	"created_at": "created_at",
	"email":      "email",
	"last_name":  "last_name",
}

// List returns one page of users matching filter and the total match count.
func (r *UserRepository) List(ctx context.Context, filter UserFilter) ([]*model.User, int64, error) {
	var users []*model.User
	var count int64

	query := r.db.WithContext(ctx).Model(&model.User{})
	if filter.Search != "" {
		p := likePattern(filter.Search)
		query = query.Where("email ILIKE ? OR first_name ILIKE ? OR last_name ILIKE ?", p, p, p)
	}
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	page := filter.Page.Normalize()
	result := query.
		Order(filter.Sort.clause(userSortColumns, "created_at DESC")).
		Scopes(paginate(page)).
		Find(&users)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", result.Error)
	}

	return users, count, nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role permission.Role) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.User{}).Where("role = ?", role).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}
