package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"healthdeck/internal/models"
)

// Prober executes one health check. Implementations never return an error: every
// failure is folded into an unhealthy result.
type Prober interface {
	Probe(ctx context.Context, svc models.Service) models.ProbeResult
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(ctx context.Context, svc models.Service) models.ProbeResult

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, svc models.Service) models.ProbeResult {
	return f(ctx, svc)
}

// Registry dispatches a service to the prober registered for its kind.
type Registry struct {
	probers map[models.Kind]Prober
}

// NewRegistry returns a registry with the http, tcp and ssl probers installed.
func NewRegistry() *Registry {
	return &Registry{
		probers: map[models.Kind]Prober{
			models.KindHTTP: NewHTTPProber(),
			models.KindTCP:  NewTCPProber(),
			models.KindSSL:  NewSSLProber(),
		},
	}
}

// Register installs or replaces the prober for kind. It is not safe to call
// concurrently with Run.
func (r *Registry) Register(kind models.Kind, p Prober) {
	if r.probers == nil {
		r.probers = make(map[models.Kind]Prober)
	}
	r.probers[kind] = p
}

// Run probes svc with the prober for its kind.
func (r *Registry) Run(ctx context.Context, svc models.Service) models.ProbeResult {
	p, ok := r.probers[svc.Kind]
	if !ok {
		log.Warn().Int64("service_id", svc.ID).Str("type", string(svc.Kind)).Msg("[Probe] Unknown service type")
		return failure(0, fmt.Sprintf("Unknown service type: %s", svc.Kind))
	}

	result := p.Probe(ctx, svc)
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now().UTC()
	}
	return result
}

func failure(elapsed time.Duration, msg string) models.ProbeResult {
	return models.ProbeResult{
		Status:         models.StatusUnhealthy,
		ResponseTimeMs: elapsed.Milliseconds(),
		Error:          msg,
		Timestamp:      time.Now().UTC(),
	}
}
