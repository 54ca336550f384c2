package live

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"healthdeck/internal/models"
)

type fakeSource struct {
	graphCalls atomic.Int32
}

func (f *fakeSource) OverallHealth() models.OverallHealth {
	return models.OverallHealth{Status: models.OverallHealthy, Percentage: 100, Total: 1, Healthy: 1}
}

func (f *fakeSource) ServicesByCategory() map[string][]models.ServiceView {
	return map[string][]models.ServiceView{
		"web": {{
			Service:     models.Service{ID: 7, Name: "api", Kind: models.KindHTTP, Category: "web"},
			ProbeResult: &models.ProbeResult{Status: models.StatusHealthy, ResponseTimeMs: 12},
			Uptime:      100,
		}},
	}
}

func (f *fakeSource) ServiceGraphData(context.Context, int64, int, int) ([]models.BucketPoint, error) {
	f.graphCalls.Add(1)
	return []models.BucketPoint{{ResponseTimeMs: 12, Status: models.StatusHealthy, DataPointsAveraged: 1}}, nil
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func TestEnvelopeEncoding(t *testing.T) {
	b, err := encode(TypeConnected, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"connected"}` {
		t.Errorf("connected frame = %s", b)
	}

	b, err = encode(TypeStatusUpdate, map[string]int{"n": 1})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"status_update","data":{"n":1}}` {
		t.Errorf("update frame = %s", b)
	}

	b, err = json.Marshal(Envelope{Type: "x", Data: []int{1}})
	if err != nil || string(b) != `{"type":"x","data":[1]}` {
		t.Errorf("json.Marshal = %s, %v", b, err)
	}
}

func TestNotifyDebounces(t *testing.T) {
	h := NewHub(&fakeSource{}, Options{})
	client := h.Subscribe()
	defer h.Unsubscribe(client.ID)

	for i := 0; i < 10; i++ {
		h.Notify()
	}

	select {
	case msg := <-client.Send:
		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			t.Fatal(err)
		}
		if f.Type != TypeStatusUpdate {
			t.Errorf("type = %q", f.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast after Notify")
	}

	select {
	case <-client.Send:
		t.Error("burst of notifications produced more than one broadcast")
	case <-time.After(3 * DebounceDelay):
	}
}

func TestSnapshotCachesSeries(t *testing.T) {
	src := &fakeSource{}
	h := NewHub(src, Options{})

	snap := h.Snapshot(context.Background())
	h.Snapshot(context.Background())
	if got := src.graphCalls.Load(); got != 1 {
		t.Errorf("graph queries = %d, want 1", got)
	}
	if len(snap.Series[7]) != 1 {
		t.Errorf("series = %+v", snap.Series)
	}

	h.InvalidateSeries(7)
	h.Snapshot(context.Background())
	if got := src.graphCalls.Load(); got != 2 {
		t.Errorf("graph queries after invalidate = %d, want 2", got)
	}
}

func TestBroadcastDropsForFullClient(t *testing.T) {
	h := NewHub(&fakeSource{}, Options{})
	client := h.Subscribe()
	for i := 0; i < clientBuffer+5; i++ {
		h.Broadcast([]byte("x"))
	}
	if got := len(client.Send); got != clientBuffer {
		t.Errorf("buffered = %d, want %d", got, clientBuffer)
	}
	h.Unsubscribe(client.ID)
	h.Unsubscribe(client.ID)
	if h.ClientCount() != 0 {
		t.Error("client not removed")
	}
}

func TestServeSSE(t *testing.T) {
	h := NewHub(&fakeSource{}, Options{})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	var types []string
	for len(types) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f frame
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &f); err != nil {
			t.Fatal(err)
		}
		types = append(types, f.Type)
	}
	if types[0] != TypeConnected || types[1] != TypeSnapshot {
		t.Errorf("initial frames = %v", types)
	}
}

func TestServeWS(t *testing.T) {
	h := NewHub(&fakeSource{}, Options{})
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var f frame
	if err := conn.ReadJSON(&f); err != nil || f.Type != TypeConnected {
		t.Fatalf("first frame = %+v, %v", f, err)
	}
	if err := conn.ReadJSON(&f); err != nil || f.Type != TypeSnapshot {
		t.Fatalf("second frame = %+v, %v", f, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(f.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Overview.Status != models.OverallHealthy || len(snap.Categories["web"]) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	waitClients(t, h, 1)
	h.Broadcast([]byte(`{"type":"status_update"}`))
	if err := conn.ReadJSON(&f); err != nil || f.Type != TypeStatusUpdate {
		t.Fatalf("broadcast frame = %+v, %v", f, err)
	}
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin", nil, "", true},
		{"same host", nil, "http://status.local:3000", true},
		{"foreign host", nil, "http://evil.example", false},
		{"listed", []string{"http://dash.example"}, "http://dash.example", true},
		{"wildcard", []string{"*"}, "http://evil.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(&fakeSource{}, Options{AllowOrigins: tt.allowed})
			r := httptest.NewRequest(http.MethodGet, "http://status.local:3000/api/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := h.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	h := NewHub(&fakeSource{}, Options{})
	client := h.Subscribe()
	h.Close()
	if _, ok := <-client.Send; ok {
		t.Error("client channel still open after Close")
	}
	h.Notify()
	if h.ClientCount() != 0 {
		t.Error("clients remain after Close")
	}
}
