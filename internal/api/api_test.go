package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"healthdeck/internal/models"
	"healthdeck/internal/monitor"
	"healthdeck/internal/storage"
)

type runnerFunc func(ctx context.Context, svc models.Service) models.ProbeResult

func (f runnerFunc) Run(ctx context.Context, svc models.Service) models.ProbeResult {
	return f(ctx, svc)
}

type recordingStream struct {
	mu          sync.Mutex
	notified    int
	invalidated []int64
}

func (s *recordingStream) ServeSSE(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (s *recordingStream) ServeWS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (s *recordingStream) InvalidateSeries(id int64) {
	s.mu.Lock()
	s.invalidated = append(s.invalidated, id)
	s.mu.Unlock()
}

func (s *recordingStream) Notify() {
	s.mu.Lock()
	s.notified++
	s.mu.Unlock()
}

type testEnv struct {
	db     *storage.DB
	mon    *monitor.Monitor
	stream *recordingStream
	srv    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	runner := runnerFunc(func(context.Context, models.Service) models.ProbeResult {
		return models.ProbeResult{Status: models.StatusHealthy, ResponseTimeMs: 3, Timestamp: time.Now()}
	})
	mon := monitor.New(db, runner)
	t.Cleanup(mon.Stop)

	stream := &recordingStream{}
	srv := httptest.NewServer(NewRouter(mon, stream, nil))
	t.Cleanup(srv.Close)
	return &testEnv{db: db, mon: mon, stream: stream, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func validService() map[string]any {
	return map[string]any{
		"name":     "API",
		"type":     "http",
		"url":      "https://api.example.com/health",
		"category": "web",
		"interval": 60,
	}
}

func TestServiceCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/services", validService())
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decode[models.Service](t, resp)
	if created.ID == 0 || created.Icon == "" || created.ExpectedStatus != 200 {
		t.Errorf("created = %+v", created)
	}

	resp = env.do(t, http.MethodGet, "/api/services", nil)
	if list := decode[[]models.Service](t, resp); len(list) != 1 {
		t.Errorf("list = %d services", len(list))
	}

	update := validService()
	update["category"] = "edge"
	resp = env.do(t, http.MethodPut, "/api/services/1", update)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	if got := decode[models.Service](t, resp); got.Category != "edge" {
		t.Errorf("category = %q", got.Category)
	}

	resp = env.do(t, http.MethodDelete, "/api/services/1", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/services/1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d", resp.StatusCode)
	}

	env.stream.mu.Lock()
	defer env.stream.mu.Unlock()
	if env.stream.notified != 3 {
		t.Errorf("notifications = %d, want 3", env.stream.notified)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"invalid service", http.MethodPost, "/api/services", map[string]any{"name": "x", "type": "tcp", "category": "db"}, http.StatusBadRequest},
		{"unknown kind", http.MethodPost, "/api/services", map[string]any{"name": "x", "type": "icmp", "host": "a", "category": "db"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/services", map[string]any{"name": "x", "bogus": 1}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/services/abc", nil, http.StatusBadRequest},
		{"missing service", http.MethodGet, "/api/services/99", nil, http.StatusNotFound},
		{"update missing", http.MethodPut, "/api/services/99", validService(), http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/api/services/99", nil, http.StatusNotFound},
		{"status missing", http.MethodGet, "/api/health/service/99", nil, http.StatusNotFound},
		{"bad hours", http.MethodGet, "/api/services/1/history?hours=-2", nil, http.StatusBadRequest},
		{"bad setting", http.MethodPut, "/api/settings/history_retention_days", map[string]string{"value": "0"}, http.StatusBadRequest},
		{"missing setting", http.MethodGet, "/api/settings/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			body := decode[map[string]string](t, resp)
			if body["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/health/overview", nil)
	if got := decode[models.OverallHealth](t, resp); got.Status != models.OverallUnknown {
		t.Errorf("empty overview = %+v", got)
	}

	// Stored directly, so the monitor has not picked it up yet.
	svc := models.Service{Name: "API", Kind: models.KindHTTP, URL: "https://api.example.com/health", Category: "web", IntervalSeconds: 60}
	svc.Normalize()
	created, err := env.db.CreateService(context.Background(), svc)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path := fmt.Sprintf("/api/health/service/%d", created.ID)

	resp = env.do(t, http.MethodGet, path, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unchecked service status = %d, want 404", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/health/reload", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp = env.do(t, http.MethodGet, path, nil)
		if resp.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("service never reported a result, last status %d", resp.StatusCode)
		}
		time.Sleep(10 * time.Millisecond)
	}
	result := decode[models.ProbeResult](t, resp)
	if result.Status != models.StatusHealthy || result.ResponseTimeMs != 3 || result.Timestamp.IsZero() {
		t.Errorf("service status = %+v", result)
	}

	resp = env.do(t, http.MethodGet, "/api/health/services", nil)
	views := decode[[]models.ServiceView](t, resp)
	if len(views) != 1 || views[0].ID != created.ID || views[0].ProbeResult == nil || views[0].Uptime != 100 {
		t.Errorf("services = %+v", views)
	}

	resp = env.do(t, http.MethodGet, "/api/health/categories", nil)
	groups := decode[map[string][]models.ServiceView](t, resp)
	if len(groups) != 1 || len(groups["web"]) != 1 || groups["web"][0].Status != models.StatusHealthy {
		t.Errorf("categories = %+v", groups)
	}
}

func TestHistoryAndGraph(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/services", validService())
	created := decode[models.Service](t, resp)

	now := time.Now()
	for i := 0; i < 5; i++ {
		err := env.db.AppendHistory(context.Background(), created.ID, models.ProbeResult{
			Status:         models.StatusHealthy,
			ResponseTimeMs: 100,
			Timestamp:      now.Add(-time.Duration(i+1) * time.Hour),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	resp = env.do(t, http.MethodGet, "/api/services/1/history?hours=24&limit=3", nil)
	if entries := decode[[]models.HistoryEntry](t, resp); len(entries) != 3 {
		t.Errorf("history entries = %d, want 3", len(entries))
	}

	resp = env.do(t, http.MethodGet, "/api/services/1/graph?hours=24&points=10", nil)
	points := decode[[]models.BucketPoint](t, resp)
	if len(points) == 0 || len(points) > 10 {
		t.Errorf("graph points = %d", len(points))
	}

	resp = env.do(t, http.MethodGet, "/api/history?hours=24", nil)
	all := decode[[]models.ServiceHistoryEntry](t, resp)
	if len(all) < 5 || all[0].ServiceName != "API" {
		t.Errorf("all history = %d entries", len(all))
	}

	resp = env.do(t, http.MethodGet, "/api/services/42/history", nil)
	if body := strings.TrimSpace(readAll(t, resp)); body != "[]" {
		t.Errorf("history of unknown service = %s, want []", body)
	}

	resp = env.do(t, http.MethodPost, "/api/history/cleanup", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cleanup status = %d", resp.StatusCode)
	}
	if report := decode[monitor.CleanupReport](t, resp); report.RetentionDays != 30 {
		t.Errorf("report = %+v", report)
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPut, "/api/settings/history_retention_days", map[string]string{"value": "7"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodGet, "/api/settings/history_retention_days", nil)
	if got := decode[map[string]string](t, resp); got["value"] != "7" {
		t.Errorf("value = %q", got["value"])
	}
	resp = env.do(t, http.MethodGet, "/api/settings", nil)
	if list := decode[[]models.Setting](t, resp); len(list) < 4 {
		t.Errorf("settings = %d", len(list))
	}
	resp = env.do(t, http.MethodPut, "/api/settings/history_retention_days", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing value status = %d", resp.StatusCode)
	}
}

func TestStreamRoutesAndCORS(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/events", "/api/ws"} {
		if resp := env.do(t, http.MethodGet, path, nil); resp.StatusCode != http.StatusTeapot {
			t.Errorf("%s status = %d", path, resp.StatusCode)
		}
	}

	resp := env.do(t, http.MethodOptions, "/api/services", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestCORSAllowList(t *testing.T) {
	handler := cors([]string{"https://dash.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Origin", "https://dash.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Errorf("listed origin = %q", got)
	}

	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin = %q", got)
	}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}
