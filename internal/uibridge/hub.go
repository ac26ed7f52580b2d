package uibridge

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The bridge listens on a local address only
		return true
	},
}

// subscriber is one websocket connection receiving bridge events
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// hub fans events out to every connected subscriber
type hub struct {
	log logrus.FieldLogger

	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

func newHub(log logrus.FieldLogger) *hub {
	return &hub{log: log, subs: make(map[string]*subscriber)}
}

// add registers conn with initial already queued ahead of any broadcast.
// It reports false once the hub is closed.
func (h *hub) add(conn *websocket.Conn, initial []byte) (*subscriber, bool) {
	s := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if initial != nil {
		s.send <- initial
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.subs[s.id] = s
	h.log.WithField("subscriber", s.id).Debug("UI subscriber connected")
	return s, true
}

func (h *hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s.id]; ok {
		delete(h.subs, s.id)
		close(s.send)
		h.log.WithField("subscriber", s.id).Debug("UI subscriber left")
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *hub) broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, s := range h.subs {
		select {
		case s.send <- data:
		default:
			h.log.WithField("subscriber", id).Warn("Dropped UI event, buffer full")
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.send)
	}
}

// readPump only services control frames; the UI sends commands over HTTP.
func (s *subscriber) readPump(h *hub) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("UI websocket error")
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
