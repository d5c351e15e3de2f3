package main

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"GarmentCaption/logger"
	"GarmentCaption/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type subscriber struct {
	id        string
	conn      *websocket.Conn
	send      chan pipeline.ProgressEvent
	closeOnce sync.Once
}

// eventHub fans per-frame progress out to websocket clients. Slow clients
// miss events rather than stall the workers.
type eventHub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func newEventHub() *eventHub {
	return &eventHub{subs: map[string]*subscriber{}}
}

func (h *eventHub) Publish(ev pipeline.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		select {
		case s.send <- ev:
		default:
		}
	}
}

func (h *eventHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *eventHub) remove(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	s.closeOnce.Do(func() {
		close(s.send)
		_ = s.conn.Close()
	})
}

func (h *eventHub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.remove(id)
	}
}

func (h *eventHub) serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the HTTP error
		return
	}
	s := &subscriber{id: uuid.NewString(), conn: conn, send: make(chan pipeline.ProgressEvent, 64)}
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	logger.Log().Debug("events subscriber joined", zap.String("id", s.id))

	go func() {
		for ev := range s.send {
			if err := conn.WriteJSON(ev); err != nil {
				h.remove(s.id)
				return
			}
		}
	}()
	for {
		// clients only listen; reads detect the close
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(s.id)
			logger.Log().Debug("events subscriber left", zap.String("id", s.id), zap.Error(err))
			return
		}
	}
}
