package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dangerclosesec/tenantkit/internal/domain"
	"github.com/dangerclosesec/tenantkit/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ActivityLogQuery holds filters for listing activity logs.
type ActivityLogQuery struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Search       string
	From         time.Time
	To           time.Time
	Page         Page
}

type ActivityLogRepositoryIface interface {
	Create(ctx context.Context, log *model.ActivityLog) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ActivityLog, error)
	Query(ctx context.Context, params ActivityLogQuery) ([]*model.ActivityLog, int64, error)
	CountByAction(ctx context.Context, since time.Time) ([]model.ActionCount, error)
}

// ActivityLogRepository handles database operations for activity logs
type ActivityLogRepository struct {
	db *gorm.DB
}

func NewActivityLogRepository(db *gorm.DB) *ActivityLogRepository {
	return &ActivityLogRepository{db: db}
}

// Create inserts a new activity log entry
func (r *ActivityLogRepository) Create(ctx context.Context, log *model.ActivityLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create activity log: %w", err)
	}
	return nil
}

func (r *ActivityLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ActivityLog, error) {
	var log model.ActivityLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrActivityLogNotFound
		}
		return nil, fmt.Errorf("failed to find activity log: %w", err)
	}
	return &log, nil
}

// Query retrieves activity logs matching params, newest first.
func (r *ActivityLogRepository) Query(ctx context.Context, params ActivityLogQuery) ([]*model.ActivityLog, int64, error) {
	var logs []*model.ActivityLog
	var count int64

	query := r.db.WithContext(ctx).Model(&model.ActivityLog{})

	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Action != "" {
		query = query.Where("action = ?", params.Action)
	}
	if params.ResourceType != "" {
		query = query.Where("resource_type = ?", params.ResourceType)
	}
	if params.ResourceID != "" {
		query = query.Where("resource_id = ?", params.ResourceID)
	}
	if params.Search != "" {
		query = query.Where("action ILIKE ?", likePattern(params.Search))
	}
	if !params.From.IsZero() {
		query = query.Where("created_at >= ?", params.From)
	}
	if !params.To.IsZero() {
		query = query.Where("created_at <= ?", params.To)
	}

	if err := query.Count(&count).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count activity logs: %w", err)
	}

	result := query.Order("created_at DESC").Scopes(paginate(params.Page.Normalize())).Find(&logs)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to query activity logs: %w", result.Error)
	}

	return logs, count, nil
}

// CountByAction groups entries since the given time by action, busiest first.
func (r *ActivityLogRepository) CountByAction(ctx context.Context, since time.Time) ([]model.ActionCount, error) {
	var counts []model.ActionCount
	if err := r.db.WithContext(ctx).
		Model(&model.ActivityLog{}).
		Select("action, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("action").
		Order("count DESC, action ASC").
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to summarize activity logs: %w", err)
	}
	return counts, nil
}
