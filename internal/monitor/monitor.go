package monitor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"healthdeck/internal/config"
	"healthdeck/internal/models"
	"healthdeck/internal/status"
)

// Default query sizes used by the API when callers omit them.
const (
	DefaultHistoryHours = 24
	DefaultHistoryLimit = 100
	DefaultAllLimit     = 1000
)

// Monitor is the entry point used by the API and CLI. It owns the scheduler, the
// status store and the retention worker.
type Monitor struct {
	store     Store
	status    *status.Store
	scheduler *Scheduler
	cleaner   *Cleaner
}

// New wires a monitor over store, probing with runner.
func New(store Store, runner Runner) *Monitor {
	st := status.New()
	return &Monitor{
		store:     store,
		status:    st,
		scheduler: NewScheduler(store, st, runner),
		cleaner:   NewCleaner(store),
	}
}

// Scheduler exposes the underlying scheduler.
func (m *Monitor) Scheduler() *Scheduler {
	return m.scheduler
}

// SetNotifier registers the change callback fired after every recorded probe.
func (m *Monitor) SetNotifier(fn func()) {
	m.scheduler.SetNotifier(fn)
}

// Start begins probing and schedules history cleanup.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.scheduler.Start(ctx); err != nil {
		return err
	}
	if err := m.cleaner.Start(ctx); err != nil {
		m.scheduler.Stop()
		return err
	}
	return nil
}

// Stop halts probing and cleanup. It is idempotent.
func (m *Monitor) Stop() {
	m.scheduler.Stop()
	m.cleaner.Stop()
}

// OverallHealth aggregates the latest status of every probed service.
func (m *Monitor) OverallHealth() models.OverallHealth {
	return m.status.Overall()
}

// ServicesByCategory groups services with their live status by category.
func (m *Monitor) ServicesByCategory() map[string][]models.ServiceView {
	return m.status.ByCategory()
}

// AllStatus returns every service with its live status.
func (m *Monitor) AllStatus() []models.ServiceView {
	return m.status.Views()
}

// ServiceStatus returns the latest result of a service, if it has been probed.
func (m *Monitor) ServiceStatus(id int64) (models.ProbeResult, bool) {
	return m.status.Latest(id)
}

// ServiceHistory returns persisted results of a service, newest first.
func (m *Monitor) ServiceHistory(ctx context.Context, id int64, hours, limit int) ([]models.HistoryEntry, error) {
	if hours <= 0 {
		hours = DefaultHistoryHours
	}
	return m.store.QueryHistory(ctx, id, hours, limit)
}

// AllHistory returns recent persisted results across services, newest first.
func (m *Monitor) AllHistory(ctx context.Context, hours, limit int) ([]models.ServiceHistoryEntry, error) {
	if hours <= 0 {
		hours = DefaultHistoryHours
	}
	if limit <= 0 {
		limit = DefaultAllLimit
	}
	return m.store.QueryAllHistory(ctx, hours, limit)
}

// ServiceGraphData returns the downsampled chart series of a service.
func (m *Monitor) ServiceGraphData(ctx context.Context, id int64, hours, maxPoints int) ([]models.BucketPoint, error) {
	return m.store.QueryBucketedHistory(ctx, id, hours, maxPoints)
}

// ReloadServices rebuilds the scheduler from the stored services.
func (m *Monitor) ReloadServices(ctx context.Context) error {
	return m.scheduler.Reload(ctx)
}

// ListServices returns the stored service definitions.
func (m *Monitor) ListServices(ctx context.Context) ([]models.Service, error) {
	return m.store.ListServices(ctx)
}

// GetService returns one stored service definition.
func (m *Monitor) GetService(ctx context.Context, id int64) (models.Service, error) {
	return m.store.GetService(ctx, id)
}

// CreateService validates, stores and starts monitoring svc.
func (m *Monitor) CreateService(ctx context.Context, svc models.Service) (models.Service, error) {
	if err := m.prepare(ctx, &svc); err != nil {
		return svc, err
	}
	svc.ConfigHash = ""

	created, err := m.store.CreateService(ctx, svc)
	if err != nil {
		return created, err
	}
	log.Info().Int64("service_id", created.ID).Str("name", created.Name).Str("type", string(created.Kind)).Msg("[API] Created service")
	m.reload(ctx)
	return created, nil
}

// UpdateService validates and replaces the definition of service id.
func (m *Monitor) UpdateService(ctx context.Context, id int64, svc models.Service) (models.Service, error) {
	existing, err := m.store.GetService(ctx, id)
	if err != nil {
		return svc, err
	}
	if err := m.prepare(ctx, &svc); err != nil {
		return svc, err
	}
	svc.ID = id
	svc.ConfigHash = existing.ConfigHash

	updated, err := m.store.UpdateService(ctx, svc)
	if err != nil {
		return updated, err
	}
	log.Info().Int64("service_id", id).Str("name", updated.Name).Msg("[API] Updated service")
	m.reload(ctx)
	return updated, nil
}

// DeleteService removes a service and its history.
func (m *Monitor) DeleteService(ctx context.Context, id int64) error {
	if err := m.store.DeleteService(ctx, id); err != nil {
		return err
	}
	log.Info().Int64("service_id", id).Msg("[API] Deleted service")
	m.reload(ctx)
	return nil
}

func (m *Monitor) prepare(ctx context.Context, svc *models.Service) error {
	svc.Normalize()
	minInterval := intSetting(ctx, m.store, config.SettingMinInterval, config.DefaultMinInterval)
	return svc.Validate(minInterval)
}

// reload is best effort after a write: the write already succeeded.
func (m *Monitor) reload(ctx context.Context) {
	if err := m.scheduler.Reload(ctx); err != nil {
		log.Error().Err(err).Msg("[Scheduler] Reload failed")
	}
}

// Settings returns every runtime setting.
func (m *Monitor) Settings(ctx context.Context) ([]models.Setting, error) {
	return m.store.ListSettings(ctx)
}

// Setting returns one setting value, or ok=false when it does not exist.
func (m *Monitor) Setting(ctx context.Context, key string) (string, bool, error) {
	return m.store.LookupSetting(ctx, key)
}

// numericSettings must hold positive integers.
var numericSettings = map[string]bool{
	config.SettingRetentionDays:   true,
	config.SettingCleanupInterval: true,
	config.SettingMaxHistory:      true,
	config.SettingMinInterval:     true,
}

// SetSetting stores a setting and applies it to the running workers.
func (m *Monitor) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", models.ErrInvalidSetting)
	}
	var n int
	if numericSettings[key] {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer", models.ErrInvalidSetting, key)
		}
		n = parsed
	}
	if err := m.store.SetSetting(ctx, key, value); err != nil {
		return err
	}
	log.Info().Str("key", key).Str("value", value).Msg("[Settings] Updated setting")

	switch key {
	case config.SettingCleanupInterval:
		if err := m.cleaner.Reschedule(n); err != nil {
			log.Error().Err(err).Msg("[History] Failed to apply cleanup interval")
		}
	case config.SettingMinInterval:
		m.reload(ctx)
	}
	return nil
}

// RunCleanup runs one retention pass now.
func (m *Monitor) RunCleanup(ctx context.Context) (CleanupReport, error) {
	return m.cleaner.Run(ctx)
}
