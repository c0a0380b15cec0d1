// Package stream pushes engine change notifications to the console UI over
// Server-Sent Events.
package stream

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harborsupport/console/internal/logger"
	"github.com/harborsupport/console/internal/service/engine"
	"github.com/harborsupport/console/pkg/utils"
)

const (
	subscriberBuffer  = 64
	heartbeatInterval = 15 * time.Second
)

// Hub fans engine updates out to every connected subscriber. A subscriber
// that cannot keep up has its updates dropped, not queued without bound; the
// UI refetches state on the next update it does receive.
type Hub struct {
	mu   sync.Mutex
	subs map[chan engine.Update]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan engine.Update]struct{})}
}

// Publish delivers one update to every subscriber.
func (h *Hub) Publish(u engine.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- u:
		default:
			logger.Debug("dropping update for slow subscriber",
				zap.String("kind", string(u.Kind)))
		}
	}
}

func (h *Hub) subscribe() chan engine.Update {
	ch := make(chan engine.Update, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan engine.Update) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// ServeHTTP streams updates to one console client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	logger.Debug("update stream opened")

	utils.SendSSEEvent(w, flusher, "status", map[string]string{"message": "stream established"})

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("update stream closed")
			return
		case <-ticker.C:
			utils.SendSSEComment(w, flusher, "heartbeat")
		case u := <-ch:
			utils.SendSSEEvent(w, flusher, "update", u)
		}
	}
}
