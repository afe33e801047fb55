package simserver

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/highway-planner/internal/db"
	"github.com/banshee-data/highway-planner/internal/monitoring"
)

// subscriberBuffer is how many cycle summaries a slow subscriber may fall
// behind before summaries are dropped for it.
const subscriberBuffer = 64

// Hub fans out a JSON summary of every planned cycle to any number of
// subscribers. Publishing never blocks on a subscriber.
//
// Messages are the JSON encoding of db.CycleRecord, which is also the data
// line of the /debug/tail event stream. In-process subscribers such as
// Record decode it back; the stream is shared, so keep it encoded.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closed      bool
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan string)}
}

// randomID returns 8 random bytes, hex encoded.
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns an ID and a channel receiving cycle summaries. The
// channel is closed by Unsubscribe or Close. Subscribing to a closed hub
// returns an already closed channel.
func (h *Hub) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe closes and forgets a subscriber.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Subscribers returns the number of current subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Publish sends rec to every subscriber with room for it.
func (h *Hub) Publish(rec db.CycleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode cycle %d: %w", rec.Cycle, err)
	}
	line := string(data)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	for id, ch := range h.subscribers {
		select {
		case ch <- line:
		default:
			monitoring.Diagf("hub: subscriber %s is behind, dropped cycle %d", id, rec.Cycle)
		}
	}
	return nil
}

// Close closes every subscriber channel. Later publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}

// AttachAdminRoutes mounts a server-sent event stream of cycle summaries at
// /debug/tail.
func (h *Hub) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("tail", "live stream of planned cycles (server-sent events)", http.HandlerFunc(h.serveTail))
}

func (h *Hub) serveTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, c := h.Subscribe()
	defer h.Unsubscribe(id)

	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case payload, ok := <-c:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
