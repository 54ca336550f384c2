package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"healthdeck/internal/config"
	"healthdeck/internal/logging"
)

const cleanupJobName = "history-cleanup"

// CleanupReport summarizes one retention pass.
type CleanupReport struct {
	RetentionDays  int       `json:"retention_days"`
	MaxEntries     int       `json:"max_entries_per_service"`
	DeletedExpired int64     `json:"deleted_expired"`
	DeletedExcess  int64     `json:"deleted_excess"`
	FailedServices int       `json:"failed_services"`
	StartedAt      time.Time `json:"started_at"`
	Duration       string    `json:"duration"`
}

// Cleaner enforces history retention: age-based deletion plus a per-service row
// cap. It runs once on start and then every cleanup_interval_hours.
type Cleaner struct {
	store Store

	mu        sync.Mutex
	runMu     sync.Mutex
	scheduler gocron.Scheduler
	job       gocron.Job
	runTask   func()
	cancel    context.CancelFunc
}

func NewCleaner(store Store) *Cleaner {
	return &Cleaner{store: store}
}

// Start schedules the recurring job and runs the first pass immediately.
func (c *Cleaner) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler != nil {
		return nil
	}

	s, err := gocron.NewScheduler(gocron.WithLogger(logging.NewSchedulerLogger("cleanup")))
	if err != nil {
		return fmt.Errorf("create cleanup scheduler: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	hours := intSetting(ctx, c.store, config.SettingCleanupInterval, config.DefaultCleanupInterval)
	task := func() { c.runScheduled(runCtx) }

	job, err := s.NewJob(
		gocron.DurationJob(time.Duration(hours)*time.Hour),
		gocron.NewTask(task),
		gocron.WithName(cleanupJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return fmt.Errorf("schedule cleanup: %w", err)
	}

	c.scheduler = s
	c.job = job
	c.runTask = task
	s.Start()
	log.Info().Int("interval_hours", hours).Msg("[History] Cleanup timer started")
	return nil
}

// Reschedule applies a new cleanup interval to the running job.
func (c *Cleaner) Reschedule(hours int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler == nil {
		return nil
	}
	job, err := c.scheduler.Update(
		c.job.ID(),
		gocron.DurationJob(time.Duration(hours)*time.Hour),
		gocron.NewTask(c.runTask),
		gocron.WithName(cleanupJobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("reschedule cleanup: %w", err)
	}
	c.job = job
	log.Info().Int("interval_hours", hours).Msg("[History] Cleanup timer rescheduled")
	return nil
}

// Stop shuts the job down. It is idempotent.
func (c *Cleaner) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.scheduler == nil {
		return
	}
	c.cancel()
	if err := c.scheduler.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("[History] Cleanup scheduler shutdown failed")
	}
	c.scheduler = nil
	log.Info().Msg("[History] Cleanup timer stopped")
}

func (c *Cleaner) runScheduled(ctx context.Context) {
	if _, err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("[History] Cleanup failed")
	}
}

// Run performs one retention pass. Failures of the age pass or of a single
// service are logged and do not stop the remaining work.
func (c *Cleaner) Run(ctx context.Context) (report CleanupReport, err error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	report = CleanupReport{
		RetentionDays: intSetting(ctx, c.store, config.SettingRetentionDays, config.DefaultRetentionDays),
		MaxEntries:    intSetting(ctx, c.store, config.SettingMaxHistory, config.DefaultMaxHistory),
		StartedAt:     time.Now().UTC(),
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt).String()
	}()

	var errs []error
	deleted, err := c.store.DeleteHistoryOlderThan(ctx, report.RetentionDays)
	if err != nil {
		log.Error().Err(err).Msg("[Cleanup] Failed to remove old history")
		errs = append(errs, err)
	} else {
		report.DeletedExpired = deleted
		log.Info().Int64("deleted", deleted).Int("retention_days", report.RetentionDays).Msg("[Cleanup] Removed old history entries")
	}

	services, err := c.store.ListServices(ctx)
	if err != nil {
		errs = append(errs, err)
		return report, errors.Join(errs...)
	}
	for _, svc := range services {
		n, err := c.store.DeleteExcessHistory(ctx, svc.ID, report.MaxEntries)
		if err != nil {
			report.FailedServices++
			log.Error().Err(err).Int64("service_id", svc.ID).Str("name", svc.Name).Msg("[Cleanup] Failed to trim history")
			continue
		}
		report.DeletedExcess += n
	}
	log.Info().Int64("deleted", report.DeletedExcess).Int("max_entries", report.MaxEntries).Msg("[Cleanup] Removed excess history entries")

	return report, errors.Join(errs...)
}
