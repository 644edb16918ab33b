package repository

import (
	"context"
	"fmt"

	"github.com/dangerclosesec/tenantkit/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepositoryIface interface {
	FindAll(ctx context.Context) ([]*model.Setting, error)
	Upsert(ctx context.Context, settings []*model.Setting) error
}

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) FindAll(ctx context.Context) ([]*model.Setting, error) {
	var settings []*model.Setting
	if err := r.db.WithContext(ctx).Order("key").Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// Upsert writes every row, replacing existing values by key.
func (r *SettingRepository) Upsert(ctx context.Context, settings []*model.Setting) error {
	if len(settings) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by_id", "updated_at"}),
	}).Create(&settings)
	if result.Error != nil {
		return fmt.Errorf("failed to save settings: %w", result.Error)
	}
	return nil
}
