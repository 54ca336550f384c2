package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"healthdeck/internal/models"
)

// ListServices returns every service ordered by category then name.
func (d *DB) ListServices(ctx context.Context) ([]models.Service, error) {
	services := make([]models.Service, 0)
	if err := d.db.WithContext(ctx).Order("category, name").Find(&services).Error; err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return services, nil
}

// GetService returns the service with id or models.ErrServiceNotFound.
func (d *DB) GetService(ctx context.Context, id int64) (models.Service, error) {
	var svc models.Service
	err := d.db.WithContext(ctx).First(&svc, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return svc, fmt.Errorf("service %d: %w", id, models.ErrServiceNotFound)
	}
	if err != nil {
		return svc, fmt.Errorf("get service %d: %w", id, err)
	}
	return svc, nil
}

// CreateService inserts svc and returns it with its assigned id.
func (d *DB) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	svc.ID = 0
	if err := d.db.WithContext(ctx).Create(&svc).Error; err != nil {
		return svc, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

// UpdateService overwrites the stored definition of svc.ID, keeping its creation time.
func (d *DB) UpdateService(ctx context.Context, svc models.Service) (models.Service, error) {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Service
		if err := tx.First(&existing, svc.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("service %d: %w", svc.ID, models.ErrServiceNotFound)
			}
			return err
		}
		svc.CreatedAt = existing.CreatedAt
		return tx.Save(&svc).Error
	})
	if err != nil {
		return svc, fmt.Errorf("update service: %w", err)
	}
	return svc, nil
}

// DeleteService removes the service and all of its history.
func (d *DB) DeleteService(ctx context.Context, id int64) error {
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", id).Delete(&models.HistoryEntry{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.Service{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("service %d: %w", id, models.ErrServiceNotFound)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	return nil
}

// CountServices returns the number of stored services.
func (d *DB) CountServices(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.WithContext(ctx).Model(&models.Service{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count services: %w", err)
	}
	return count, nil
}
