package probe

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"healthdeck/internal/models"
)

func intPtr(v int) *int { return &v }

func httpService(url string) models.Service {
	return models.Service{ID: 1, Name: "web", Kind: models.KindHTTP, URL: url, TimeoutSeconds: 2, ExpectedStatus: 200}
}

func TestHTTPProbeHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != userAgent {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := NewHTTPProber().Probe(context.Background(), httpService(srv.URL))
	if result.Status != models.StatusHealthy {
		t.Fatalf("expected healthy, got %s (%s)", result.Status, result.Error)
	}
	if result.StatusCode == nil || *result.StatusCode != 200 {
		t.Fatalf("expected status code 200, got %v", result.StatusCode)
	}
	if result.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestHTTPProbeStatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	result := NewHTTPProber().Probe(context.Background(), httpService(srv.URL))
	if result.Status != models.StatusUnhealthy || result.Error != "HTTP 503" {
		t.Fatalf("expected unhealthy HTTP 503, got %s %q", result.Status, result.Error)
	}
}

func TestHTTPProbeDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := NewHTTPProber().Probe(context.Background(), httpService(srv.URL+"/"))
	if result.Error != "HTTP 301" {
		t.Fatalf("expected HTTP 301, got %q", result.Error)
	}
}

func TestHTTPProbeSlowIsWarningNeverUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := httpService(srv.URL)
	svc.WarningThreshold = intPtr(5)
	result := NewHTTPProber().Probe(context.Background(), svc)
	if result.Status != models.StatusWarning {
		t.Fatalf("expected warning, got %s (%s)", result.Status, result.Error)
	}
	if !strings.HasPrefix(result.Error, "Slow response: ") {
		t.Fatalf("unexpected message %q", result.Error)
	}
	if result.ResponseTimeMs < 30 {
		t.Fatalf("expected response time >= 30ms, got %d", result.ResponseTimeMs)
	}
}

func TestHTTPProbeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	svc := httpService(srv.URL)
	svc.TimeoutSeconds = 1
	result := NewHTTPProber().Probe(context.Background(), svc)
	if result.Status != models.StatusUnhealthy || result.Error != "Timeout" {
		t.Fatalf("expected unhealthy Timeout, got %s %q", result.Status, result.Error)
	}
	if result.ResponseTimeMs < 900 {
		t.Fatalf("expected elapsed time near the timeout, got %dms", result.ResponseTimeMs)
	}
}

func TestClassifyHTTPBoundary(t *testing.T) {
	svc := httpService("http://example.com")
	svc.WarningThreshold = intPtr(100)

	if r := classifyHTTP(svc, 200, 100*time.Millisecond); r.Status != models.StatusHealthy {
		t.Fatalf("response time equal to threshold should be healthy, got %s", r.Status)
	}
	if r := classifyHTTP(svc, 200, 101*time.Millisecond); r.Status != models.StatusWarning {
		t.Fatalf("response time above threshold should be warning, got %s", r.Status)
	}
	if r := classifyHTTP(svc, 500, 101*time.Millisecond); r.Status != models.StatusUnhealthy {
		t.Fatalf("status mismatch should be unhealthy, got %s", r.Status)
	}
}

func tcpService(addr string) models.Service {
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return models.Service{ID: 2, Name: "db", Kind: models.KindTCP, Host: host, Port: port, TimeoutSeconds: 2}
}

func TestTCPProbeHealthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	result := NewTCPProber().Probe(context.Background(), tcpService(ln.Addr().String()))
	if result.Status != models.StatusHealthy {
		t.Fatalf("expected healthy, got %s (%s)", result.Status, result.Error)
	}
}

func TestTCPProbeRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	svc := tcpService(addr)
	result := NewTCPProber().Probe(context.Background(), svc)
	if result.Status != models.StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", result.Status)
	}
	want := "Connection refused - service not running on " + addr
	if result.Error != want {
		t.Fatalf("expected %q, got %q", want, result.Error)
	}
}

func TestTCPErrorMessageHostNotFound(t *testing.T) {
	svc := models.Service{Host: "nope.invalid", Port: 80, TimeoutSeconds: 1}
	err := &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}
	if got := tcpErrorMessage(err, svc); got != "Host not found: nope.invalid" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSSLProbeReadsCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	svc := models.Service{ID: 3, Name: "tls", Kind: models.KindSSL, URL: srv.URL, TimeoutSeconds: 2}
	result := NewSSLProber().Probe(context.Background(), svc)
	if result.Status != models.StatusHealthy {
		t.Fatalf("expected healthy, got %s (%s)", result.Status, result.Error)
	}
	if result.SSL == nil {
		t.Fatal("expected certificate details")
	}
	if result.SSL.DaysUntilExpiry < 30 {
		t.Fatalf("expected a long-lived test certificate, got %d days", result.SSL.DaysUntilExpiry)
	}
	if result.SSL.Issuer == "" || result.SSL.Subject == "" {
		t.Fatal("expected issuer and subject fallbacks to be applied")
	}
}

func TestClassifyCertificate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cert := func(notAfter time.Time) *x509.Certificate {
		return &x509.Certificate{
			Issuer:    pkix.Name{CommonName: "Test CA"},
			NotBefore: now.AddDate(-1, 0, 0),
			NotAfter:  notAfter,
		}
	}

	tests := []struct {
		name     string
		cert     *x509.Certificate
		status   models.Status
		message  string
		wantDays int
	}{
		{"no certificate", nil, models.StatusUnhealthy, "No certificate found", 0},
		{"expired", cert(now.Add(-72 * time.Hour)), models.StatusUnhealthy, "Certificate expired 3 days ago", -3},
		{"expired hours ago", cert(now.Add(-12 * time.Hour)), models.StatusUnhealthy, "Certificate expired 1 days ago", -1},
		{"expires this instant", cert(now), models.StatusUnhealthy, "Certificate expired 1 days ago", -1},
		{"expiring soon", cert(now.Add(36 * time.Hour)), models.StatusWarning, "Certificate expires in 2 days", 2},
		{"healthy", cert(now.AddDate(0, 0, 90)), models.StatusHealthy, "", 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := classifyCertificate(tt.cert, "example.com", 30, 10*time.Millisecond, now)
			if result.Status != tt.status || result.Error != tt.message {
				t.Fatalf("expected %s %q, got %s %q", tt.status, tt.message, result.Status, result.Error)
			}
			if tt.cert == nil {
				return
			}
			if result.SSL.DaysUntilExpiry != tt.wantDays {
				t.Fatalf("expected %d days, got %d", tt.wantDays, result.SSL.DaysUntilExpiry)
			}
			if result.SSL.Issuer != "Test CA" || result.SSL.Subject != "example.com" {
				t.Fatalf("unexpected issuer/subject %q/%q", result.SSL.Issuer, result.SSL.Subject)
			}
		})
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	result := NewRegistry().Run(context.Background(), models.Service{Kind: models.Kind("icmp")})
	if result.Status != models.StatusUnhealthy || result.Error != "Unknown service type: icmp" {
		t.Fatalf("unexpected result %s %q", result.Status, result.Error)
	}
}

func TestRegistryCustomProber(t *testing.T) {
	reg := NewRegistry()
	reg.Register(models.KindHTTP, ProberFunc(func(ctx context.Context, svc models.Service) models.ProbeResult {
		return models.ProbeResult{Status: models.StatusWarning}
	}))
	result := reg.Run(context.Background(), models.Service{Kind: models.KindHTTP})
	if result.Status != models.StatusWarning {
		t.Fatalf("expected custom prober to run, got %s", result.Status)
	}
	if result.Timestamp.IsZero() {
		t.Fatal("expected registry to stamp the result")
	}
}
