// Package posemux fans sampled pose frames out to any number of subscribers
// (HTTP streams, the recorder, the serial sink) without letting a slow
// subscriber stall the sampling loop.
package posemux

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// subscriberBuffer is the per-subscriber channel depth. Frames published
// while a subscriber's buffer is full are dropped for that subscriber.
const subscriberBuffer = 16

// Mux is a frame multiplexer. The zero value is not usable; call New.
type Mux struct {
	subscribers  map[string]chan Frame
	subscriberMu sync.Mutex
	closed       bool
	dropped      uint64
}

// New creates an empty Mux.
func New() *Mux {
	return &Mux{
		subscribers: make(map[string]chan Frame),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel for receiving frames. The ID identifies
// the channel when unsubscribing. Subscribing to a closed Mux returns an
// already-closed channel.
func (m *Mux) Subscribe() (string, <-chan Frame) {
	id := randomID()
	ch := make(chan Frame, subscriberBuffer)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closed {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Publish delivers f to every subscriber that has room for it.
func (m *Mux) Publish(f Frame) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closed {
		return
	}
	for _, ch := range m.subscribers {
		select {
		case ch <- f:
		default:
			// if the channel is full skip so as not to block the sampler
			m.dropped++
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Mux) SubscriberCount() int {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	return len(m.subscribers)
}

// Dropped returns how many per-subscriber deliveries were skipped.
func (m *Mux) Dropped() uint64 {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	return m.dropped
}

// Close closes every subscriber channel. Later publishes are ignored.
func (m *Mux) Close() {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.closed = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}

// AttachAdminRoutes mounts a live CSV tail of published frames on the
// tsweb debug page at /debug/poses-tail.
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("poses-tail", "live tail of sampled pose frames (CSV, server-sent events)", func(w http.ResponseWriter, r *http.Request) {
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
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case f, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", EncodeCSV(f)); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
