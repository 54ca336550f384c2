package live

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	keepaliveInterval = 30 * time.Second
	writeTimeout      = 5 * time.Second
)

// ServeSSE streams updates as server-sent events until the client goes away.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.Subscribe()
	defer h.Unsubscribe(client.ID)

	if err := h.sendInitial(func(msg []byte) error {
		_, err := fmt.Fprintf(w, "data: %s\n\n", msg)
		flusher.Flush()
		return err
	}, r); err != nil {
		return
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	start := time.Now()
	sent := 0
	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", message); err != nil {
				return
			}
			flusher.Flush()
			sent++
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			log.Debug().Str("client_id", client.ID).Dur("duration", time.Since(start)).Int("messages", sent).
				Msg("[SSE] Client stream closed")
			return
		}
	}
}

// ServeWS streams updates over a WebSocket until either side closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: h.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("[WS] Upgrade failed")
		return
	}
	defer conn.Close()

	client := h.Subscribe()
	defer h.Unsubscribe(client.ID)

	write := func(msg []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, msg)
	}
	if err := h.sendInitial(write, r); err != nil {
		return
	}

	// Incoming frames are ignored; reading surfaces the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.Send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
				return
			}
			if err := write(message); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// sendInitial writes the connected frame followed by a full snapshot.
func (h *Hub) sendInitial(write func([]byte) error, r *http.Request) error {
	connected, err := encode(TypeConnected, nil)
	if err != nil {
		return err
	}
	if err := write(connected); err != nil {
		return err
	}
	snapshot, err := encode(TypeSnapshot, h.Snapshot(r.Context()))
	if err != nil {
		log.Error().Err(err).Msg("[Live] Failed to marshal snapshot")
		return err
	}
	return write(snapshot)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(u.Host), strings.TrimSpace(r.Host))
}
