package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"healthdeck/internal/models"
)

const userAgent = "healthdeck/1.0"

// HTTPProber checks that a URL answers GET with the expected status code.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber builds a prober with its own transport. Redirects are reported as-is
// so a 301 against an expected 200 is a failure.
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe performs the GET request bounded by the service timeout.
func (p *HTTPProber) Probe(ctx context.Context, svc models.Service) models.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, svc.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		return failure(0, err.Error())
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return failure(elapsed, "Timeout")
		}
		return failure(elapsed, err.Error())
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	return classifyHTTP(svc, resp.StatusCode, elapsed)
}

func classifyHTTP(svc models.Service, code int, elapsed time.Duration) models.ProbeResult {
	expected := svc.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	ms := elapsed.Milliseconds()

	result := models.ProbeResult{
		ResponseTimeMs: ms,
		StatusCode:     &code,
		Timestamp:      time.Now().UTC(),
	}
	switch {
	case code != expected:
		result.Status = models.StatusUnhealthy
		result.Error = fmt.Sprintf("HTTP %d", code)
	case ms > int64(svc.Threshold()):
		result.Status = models.StatusWarning
		result.Error = fmt.Sprintf("Slow response: %dms", ms)
	default:
		result.Status = models.StatusHealthy
	}
	return result
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
