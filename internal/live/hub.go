package live

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-orz/cache"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"healthdeck/internal/models"
)

const (
	// DebounceDelay coalesces bursts of probe results into one broadcast.
	DebounceDelay = 100 * time.Millisecond
	// FallbackInterval forces a broadcast when nothing changed for a while.
	FallbackInterval = 30 * time.Second
	// SeriesTTL bounds how stale a cached chart series may get.
	SeriesTTL = time.Minute

	clientBuffer = 256
)

// Source is the read side of the monitor the hub publishes from.
type Source interface {
	OverallHealth() models.OverallHealth
	ServicesByCategory() map[string][]models.ServiceView
	ServiceGraphData(ctx context.Context, id int64, hours, maxPoints int) ([]models.BucketPoint, error)
}

// Snapshot is the full dashboard state pushed to subscribers.
type Snapshot struct {
	Overview    models.OverallHealth            `json:"overview"`
	Categories  map[string][]models.ServiceView `json:"categories"`
	Series      map[int64][]models.BucketPoint  `json:"series"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// Client is one connected subscriber.
type Client struct {
	ID   string
	Send chan []byte
}

// Hub fans snapshots out to SSE and WebSocket clients. It is the change
// notifier registered on the scheduler.
type Hub struct {
	source       Source
	allowOrigins []string
	graphHours   int
	graphPoints  int

	mu      sync.RWMutex
	clients map[string]*Client

	debounceMu sync.Mutex
	debouncer  *time.Timer
	closed     bool

	publishMu sync.Mutex
	series    cache.Cache[int64, []models.BucketPoint]
}

// Options tune a hub.
type Options struct {
	// AllowOrigins lists WebSocket origins accepted besides the request host.
	// "*" accepts any origin.
	AllowOrigins []string
	GraphHours   int
	GraphPoints  int
}

// NewHub returns a hub publishing from source.
func NewHub(source Source, opts Options) *Hub {
	if opts.GraphHours <= 0 {
		opts.GraphHours = 24
	}
	if opts.GraphPoints <= 0 {
		opts.GraphPoints = 100
	}
	return &Hub{
		source:       source,
		allowOrigins: opts.AllowOrigins,
		graphHours:   opts.GraphHours,
		graphPoints:  opts.GraphPoints,
		clients:      make(map[string]*Client),
		series:       cache.New[int64, []models.BucketPoint](SeriesTTL),
	}
}

// Notify schedules a broadcast. Calls within DebounceDelay of each other
// produce a single broadcast.
func (h *Hub) Notify() {
	h.debounceMu.Lock()
	defer h.debounceMu.Unlock()

	if h.closed {
		return
	}
	if h.debouncer != nil {
		h.debouncer.Stop()
	}
	h.debouncer = time.AfterFunc(DebounceDelay, func() {
		h.publish(context.Background(), TypeStatusUpdate)
	})
}

// Run broadcasts every FallbackInterval until ctx is done, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case <-ticker.C:
			h.publish(ctx, TypeStatusUpdate)
		}
	}
}

// Close stops pending broadcasts and disconnects every client.
func (h *Hub) Close() {
	h.debounceMu.Lock()
	h.closed = true
	if h.debouncer != nil {
		h.debouncer.Stop()
	}
	h.debounceMu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
}

// InvalidateSeries drops the cached chart series of a service.
func (h *Hub) InvalidateSeries(id int64) {
	h.series.Delete(id)
}

// Snapshot builds the current dashboard state.
func (h *Hub) Snapshot(ctx context.Context) Snapshot {
	categories := h.source.ServicesByCategory()
	snap := Snapshot{
		Overview:    h.source.OverallHealth(),
		Categories:  categories,
		Series:      make(map[int64][]models.BucketPoint),
		GeneratedAt: time.Now().UTC(),
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, view := range categories[name] {
			snap.Series[view.ID] = h.seriesFor(ctx, view.ID)
		}
	}
	return snap
}

func (h *Hub) seriesFor(ctx context.Context, id int64) []models.BucketPoint {
	if points, ok := h.series.Get(id); ok {
		return points
	}
	points, err := h.source.ServiceGraphData(ctx, id, h.graphHours, h.graphPoints)
	if err != nil {
		log.Warn().Err(err).Int64("service_id", id).Msg("[Live] Failed to load chart series")
		return []models.BucketPoint{}
	}
	h.series.Set(id, points, SeriesTTL)
	return points
}

func (h *Hub) publish(ctx context.Context, msgType string) {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	if h.ClientCount() == 0 {
		log.Debug().Msg("[Live] No clients connected, skipping broadcast")
		return
	}
	message, err := encode(msgType, h.Snapshot(ctx))
	if err != nil {
		log.Error().Err(err).Str("update_type", msgType).Msg("[Live] Failed to marshal update")
		return
	}
	h.Broadcast(message)
}

// Subscribe registers a new client with a random id.
func (h *Hub) Subscribe() *Client {
	client := &Client{
		ID:   uuid.NewString(),
		Send: make(chan []byte, clientBuffer),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	log.Info().Str("client_id", client.ID).Int("total", total).Msg("[Live] Client connected")
	return client
}

// Unsubscribe removes a client and closes its channel. Unknown ids are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[id]; ok {
		close(client.Send)
		delete(h.clients, id)
		log.Info().Str("client_id", id).Int("total", len(h.clients)).Msg("[Live] Client disconnected")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues message for every client. A client whose buffer is full
// misses the message.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent, dropped := 0, 0
	for id, client := range h.clients {
		select {
		case client.Send <- message:
			sent++
		default:
			dropped++
			log.Warn().Str("client_id", id).Msg("[Live] Client channel full, dropping message")
		}
	}
	log.Debug().Int("sent", sent).Int("dropped", dropped).Int("bytes", len(message)).Msg("[Live] Broadcast completed")
}
