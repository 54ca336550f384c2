package monitor

import (
	"context"

	"healthdeck/internal/models"
)

// Store is the persistence the monitor depends on. storage.DB implements it.
type Store interface {
	ListServices(ctx context.Context) ([]models.Service, error)
	GetService(ctx context.Context, id int64) (models.Service, error)
	CreateService(ctx context.Context, svc models.Service) (models.Service, error)
	UpdateService(ctx context.Context, svc models.Service) (models.Service, error)
	DeleteService(ctx context.Context, id int64) error

	AppendHistory(ctx context.Context, serviceID int64, result models.ProbeResult) error
	QueryHistory(ctx context.Context, serviceID int64, sinceHours, limit int) ([]models.HistoryEntry, error)
	QueryAllHistory(ctx context.Context, hours, limit int) ([]models.ServiceHistoryEntry, error)
	QueryBucketedHistory(ctx context.Context, serviceID int64, hours, maxPoints int) ([]models.BucketPoint, error)
	DeleteHistoryOlderThan(ctx context.Context, days int) (int64, error)
	DeleteExcessHistory(ctx context.Context, serviceID int64, maxRows int) (int64, error)

	GetSetting(ctx context.Context, key, def string) (string, error)
	LookupSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) ([]models.Setting, error)
}

// Runner executes the probe matching a service kind. probe.Registry implements it.
type Runner interface {
	Run(ctx context.Context, svc models.Service) models.ProbeResult
}
