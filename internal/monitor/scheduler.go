package monitor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"healthdeck/internal/config"
	"healthdeck/internal/models"
	"healthdeck/internal/status"
)

// MaxStartJitter bounds the random delay before a service's first probe.
const MaxStartJitter = time.Second

// Scheduler runs one worker goroutine per service. A worker probes once after a
// random jitter and then on every interval tick; ticks that arrive while a probe
// is still running are dropped, so probes of one service never overlap.
type Scheduler struct {
	store  Store
	status *status.Store
	runner Runner
	jitter func() time.Duration

	// lifecycle serializes Start, Reload and Stop.
	lifecycle  sync.Mutex
	stopped    bool
	workers    conc.WaitGroup
	baseCtx    context.Context
	baseCancel context.CancelFunc

	// mu guards the generation. Workers hold it for reading while they record a
	// result, so a cancelled generation can never write after Reload resets state.
	mu       sync.RWMutex
	genCtx   context.Context
	cancel   context.CancelFunc
	running  map[int64]models.Service
	notifier func()
}

// NewScheduler wires a scheduler. It does nothing until Start.
func NewScheduler(store Store, statusStore *status.Store, runner Runner) *Scheduler {
	return &Scheduler{
		store:  store,
		status: statusStore,
		runner: runner,
		jitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(MaxStartJitter)))
		},
		running: make(map[int64]models.Service),
	}
}

// SetNotifier registers the callback invoked after every recorded probe. It
// replaces any previous callback; nil disables notification.
func (s *Scheduler) SetNotifier(fn func()) {
	s.mu.Lock()
	s.notifier = fn
	s.mu.Unlock()
}

// Start loads the services and starts their workers. parent bounds every worker
// and every probe, including those started by later reloads.
func (s *Scheduler) Start(parent context.Context) error {
	return s.rebuild(parent, parent, false)
}

// Reload cancels every worker, clears live state and starts over from the
// current service list. Probes already in flight run to completion but their
// results are discarded.
func (s *Scheduler) Reload(ctx context.Context) error {
	return s.rebuild(ctx, context.Background(), true)
}

func (s *Scheduler) rebuild(ctx, parent context.Context, reset bool) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler stopped")
	}
	if s.baseCtx == nil {
		s.baseCtx, s.baseCancel = context.WithCancel(parent)
	}

	s.cancelGeneration()
	if reset {
		log.Info().Msg("[Scheduler] Reloading services - stopping current monitoring")
		s.status.Reset()
	}

	services, err := s.store.ListServices(ctx)
	if err != nil {
		s.status.SetServices(nil)
		return fmt.Errorf("load services: %w", err)
	}
	s.status.SetServices(services)

	minInterval := intSetting(ctx, s.store, config.SettingMinInterval, config.DefaultMinInterval)

	// Workers outlive the request that triggered a reload.
	genCtx, cancel := context.WithCancel(s.baseCtx)
	probeCtx := s.baseCtx

	s.mu.Lock()
	s.genCtx = genCtx
	s.cancel = cancel
	s.running = make(map[int64]models.Service, len(services))
	for _, svc := range services {
		s.running[svc.ID] = svc
	}
	s.mu.Unlock()

	for _, svc := range services {
		svc := svc
		interval := svc.Interval()
		if floor := time.Duration(minInterval) * time.Second; interval < floor {
			log.Warn().Int64("service_id", svc.ID).Str("name", svc.Name).
				Dur("interval", interval).Dur("minimum", floor).
				Msg("[Scheduler] Interval below minimum, clamping")
			interval = floor
		}
		delay := s.jitter()
		s.workers.Go(func() {
			s.runWorker(genCtx, probeCtx, svc, interval, delay)
		})
	}

	log.Info().Int("count", len(services)).Msg("[Scheduler] Monitoring started")
	return nil
}

// cancelGeneration must be called with lifecycle held.
func (s *Scheduler) cancelGeneration() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = make(map[int64]models.Service)
}

// Stop cancels every worker and waits for them to exit. It is idempotent.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	s.cancelGeneration()
	if s.baseCancel != nil {
		s.baseCancel()
	}
	s.workers.Wait()
	log.Info().Msg("[Scheduler] Monitoring stopped")
}

// Scheduled returns the ids of services with an active worker.
func (s *Scheduler) Scheduled() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// runWorker probes svc until ctx is cancelled. Probes run under probeCtx so a
// reload does not abort them.
func (s *Scheduler) runWorker(ctx, probeCtx context.Context, svc models.Service, interval, delay time.Duration) {
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	s.check(ctx, probeCtx, svc)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.check(ctx, probeCtx, svc)
		}
	}
}

// check runs one probe and records it. Panics in the probe become unhealthy results.
func (s *Scheduler) check(ctx, probeCtx context.Context, svc models.Service) {
	start := time.Now()
	var result models.ProbeResult
	var catcher panics.Catcher
	catcher.Try(func() {
		result = s.runner.Run(probeCtx, svc)
	})
	if r := catcher.Recovered(); r != nil {
		log.Error().Int64("service_id", svc.ID).Str("name", svc.Name).Str("panic", fmt.Sprint(r.Value)).
			Msg("[Scheduler] Probe panicked")
		result = models.ProbeResult{
			Status:         models.StatusUnhealthy,
			ResponseTimeMs: time.Since(start).Milliseconds(),
			Error:          fmt.Sprintf("probe panic: %v", r.Value),
			Timestamp:      time.Now().UTC(),
		}
	}

	if !s.record(ctx, svc, result) {
		return
	}
	s.notify()
}

// record writes result to the status store and persistence unless the worker's
// generation has been cancelled. It reports whether the result was kept.
func (s *Scheduler) record(ctx context.Context, svc models.Service, result models.ProbeResult) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ctx.Err() != nil {
		log.Debug().Int64("service_id", svc.ID).Msg("[Scheduler] Discarding result from cancelled worker")
		return false
	}

	s.status.Record(svc.ID, result)
	if err := s.store.AppendHistory(ctx, svc.ID, result); err != nil {
		log.Error().Err(err).Int64("service_id", svc.ID).Str("name", svc.Name).Msg("[History] Failed to save history")
	}

	log.Debug().Int64("service_id", svc.ID).Str("name", svc.Name).Str("status", string(result.Status)).
		Int64("response_ms", result.ResponseTimeMs).Msg("[Scheduler] Service checked")
	return true
}

func (s *Scheduler) notify() {
	s.mu.RLock()
	fn := s.notifier
	s.mu.RUnlock()
	if fn == nil {
		return
	}

	var catcher panics.Catcher
	catcher.Try(fn)
	if r := catcher.Recovered(); r != nil {
		log.Error().Str("panic", fmt.Sprint(r.Value)).Msg("[Scheduler] Change notifier panicked")
	}
}
