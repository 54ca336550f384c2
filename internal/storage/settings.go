package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"healthdeck/internal/models"
)

// LookupSetting returns the stored value for key and whether the key exists.
func (d *DB) LookupSetting(ctx context.Context, key string) (string, bool, error) {
	var s models.Setting
	err := d.db.WithContext(ctx).Where(map[string]any{"key": key}).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return s.Value, true, nil
}

// GetSetting returns the stored value for key, or def when the key is absent.
func (d *DB) GetSetting(ctx context.Context, key, def string) (string, error) {
	value, ok, err := d.LookupSetting(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return value, nil
}

// SetSetting upserts key, keeping the existing description.
func (d *DB) SetSetting(ctx context.Context, key, value string) error {
	s := models.Setting{Key: key, Value: value}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// ListSettings returns every setting ordered by key.
func (d *DB) ListSettings(ctx context.Context) ([]models.Setting, error) {
	settings := make([]models.Setting, 0)
	if err := d.db.WithContext(ctx).Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return settings, nil
}
