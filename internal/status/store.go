package status

import (
	"math"
	"sync"

	"healthdeck/internal/models"
)

// DefaultHistorySize is the number of results kept per service for the rolling uptime.
const DefaultHistorySize = 100

// DefaultCategory groups services whose category is blank.
const DefaultCategory = "other"

// Store holds the latest result and a short result history for every monitored
// service. It is safe for concurrent use.
type Store struct {
	capacity int

	mu       sync.RWMutex
	services []models.Service
	latest   map[int64]models.ProbeResult
	history  map[int64][]models.ProbeResult
}

// New returns an empty store keeping DefaultHistorySize results per service.
func New() *Store {
	return NewWithCapacity(DefaultHistorySize)
}

// NewWithCapacity returns an empty store keeping capacity results per service.
func NewWithCapacity(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &Store{
		capacity: capacity,
		latest:   make(map[int64]models.ProbeResult),
		history:  make(map[int64][]models.ProbeResult),
	}
}

// SetServices replaces the list of services used for grouping and views.
func (s *Store) SetServices(services []models.Service) {
	copied := make([]models.Service, len(services))
	copy(copied, services)

	s.mu.Lock()
	s.services = copied
	s.mu.Unlock()
}

// Services returns a copy of the current service list.
func (s *Store) Services() []models.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Service, len(s.services))
	copy(out, s.services)
	return out
}

// Reset drops every per-service result.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = make(map[int64]models.ProbeResult)
	s.history = make(map[int64][]models.ProbeResult)
}

// Record stores result as the latest for id and appends it to the history buffer,
// evicting the oldest entry once the buffer is full.
func (s *Store) Record(id int64, result models.ProbeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest[id] = result

	buf := append(s.history[id], result)
	if len(buf) > s.capacity {
		buf = append(buf[:0:0], buf[len(buf)-s.capacity:]...)
	}
	s.history[id] = buf
}

// Latest returns the most recent result for id.
func (s *Store) Latest(id int64) (models.ProbeResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, ok := s.latest[id]
	return result, ok
}

// History returns the buffered results for id, oldest first.
func (s *Store) History(id int64) []models.ProbeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.history[id]
	out := make([]models.ProbeResult, len(buf))
	copy(out, buf)
	return out
}

// Uptime is the rounded percentage of healthy results in the buffer, 0 when empty.
func (s *Store) Uptime(id int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uptimeLocked(id)
}

func (s *Store) uptimeLocked(id int64) int {
	buf := s.history[id]
	if len(buf) == 0 {
		return 0
	}
	healthy := 0
	for _, r := range buf {
		if r.Status == models.StatusHealthy {
			healthy++
		}
	}
	return percent(healthy, len(buf))
}

// Overall aggregates the latest result of every probed service.
func (s *Store) Overall() models.OverallHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.latest) == 0 {
		return models.OverallHealth{Status: models.OverallUnknown}
	}

	var h models.OverallHealth
	for _, r := range s.latest {
		switch r.Status {
		case models.StatusHealthy:
			h.Healthy++
		case models.StatusWarning:
			h.Warning++
		default:
			h.Unhealthy++
		}
	}
	h.Total = len(s.latest)
	h.Percentage = percent(h.Healthy+h.Warning, h.Total)

	switch {
	case h.Unhealthy == 0 && h.Warning == 0:
		h.Status = models.OverallHealthy
	case h.Unhealthy == 0:
		h.Status = models.OverallDegraded
	case h.Percentage >= 70:
		h.Status = models.OverallDegraded
	default:
		h.Status = models.OverallUnhealthy
	}
	return h
}

// Views returns every service enriched with its live status, in service order.
func (s *Store) Views() []models.ServiceView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ServiceView, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, s.viewLocked(svc))
	}
	return out
}

// ByCategory partitions the service views by category. Blank categories fall
// under DefaultCategory.
func (s *Store) ByCategory() map[string][]models.ServiceView {
	views := s.Views()

	out := make(map[string][]models.ServiceView)
	for _, v := range views {
		category := v.Category
		if category == "" {
			category = DefaultCategory
		}
		out[category] = append(out[category], v)
	}
	return out
}

func (s *Store) viewLocked(svc models.Service) models.ServiceView {
	view := models.ServiceView{Service: svc, Uptime: s.uptimeLocked(svc.ID)}
	if r, ok := s.latest[svc.ID]; ok {
		view.ProbeResult = &r
	}
	return view
}

func percent(n, total int) int {
	return int(math.Round(100 * float64(n) / float64(total)))
}
