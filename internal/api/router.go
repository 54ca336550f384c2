package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"healthdeck/internal/models"
	"healthdeck/internal/monitor"
)

// Monitor is the core the API serves. monitor.Monitor implements it.
type Monitor interface {
	OverallHealth() models.OverallHealth
	AllStatus() []models.ServiceView
	ServicesByCategory() map[string][]models.ServiceView
	ServiceStatus(id int64) (models.ProbeResult, bool)
	ReloadServices(ctx context.Context) error

	ListServices(ctx context.Context) ([]models.Service, error)
	GetService(ctx context.Context, id int64) (models.Service, error)
	CreateService(ctx context.Context, svc models.Service) (models.Service, error)
	UpdateService(ctx context.Context, id int64, svc models.Service) (models.Service, error)
	DeleteService(ctx context.Context, id int64) error

	ServiceHistory(ctx context.Context, id int64, hours, limit int) ([]models.HistoryEntry, error)
	ServiceGraphData(ctx context.Context, id int64, hours, maxPoints int) ([]models.BucketPoint, error)
	AllHistory(ctx context.Context, hours, limit int) ([]models.ServiceHistoryEntry, error)

	Settings(ctx context.Context) ([]models.Setting, error)
	Setting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error

	RunCleanup(ctx context.Context) (monitor.CleanupReport, error)
}

// Stream is the live update channel. live.Hub implements it.
type Stream interface {
	ServeSSE(w http.ResponseWriter, r *http.Request)
	ServeWS(w http.ResponseWriter, r *http.Request)
	InvalidateSeries(id int64)
	Notify()
}

// Handler serves the JSON API.
type Handler struct {
	mon    Monitor
	stream Stream
}

// NewRouter builds the HTTP handler. allowOrigins feeds the CORS headers;
// an empty list allows any origin.
func NewRouter(mon Monitor, stream Stream, allowOrigins []string) http.Handler {
	h := &Handler{mon: mon, stream: stream}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(allowOrigins))

	r.Route("/api", func(r chi.Router) {
		r.Route("/health", func(r chi.Router) {
			r.Get("/overview", h.overview)
			r.Get("/services", h.allStatus)
			r.Get("/categories", h.servicesByCategory)
			r.Get("/service/{id}", h.serviceStatus)
			r.Post("/reload", h.reload)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.listServices)
			r.Post("/", h.createService)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getService)
				r.Put("/", h.updateService)
				r.Delete("/", h.deleteService)
				r.Get("/history", h.serviceHistory)
				r.Get("/graph", h.serviceGraph)
			})
		})

		r.Get("/history", h.allHistory)
		r.Post("/history/cleanup", h.cleanup)

		r.Get("/settings", h.listSettings)
		r.Get("/settings/{key}", h.getSetting)
		r.Put("/settings/{key}", h.putSetting)

		if stream != nil {
			r.Get("/events", stream.ServeSSE)
			r.Get("/ws", stream.ServeWS)
		}
	})

	return r
}
