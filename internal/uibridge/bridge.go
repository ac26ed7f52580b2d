// Package uibridge exposes a running session to a local UI: a websocket
// stream of session events plus small JSON endpoints for reading the roster
// and sending game messages.
package uibridge

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/mossy-p/peerlobby/internal/session"
	"github.com/sirupsen/logrus"
)

const maxRequestBytes = 64 << 10

// Event names on the /events stream
const (
	EventRoster    = "roster"
	EventStatus    = "status"
	EventGameState = "game-state"
	EventMessage   = "message"
	EventError     = "error"
)

// Event is one frame on the /events stream
type Event struct {
	Event   string                    `json:"event"`
	Players []protocol.Player         `json:"players,omitempty"`
	PeerID  string                    `json:"peerId,omitempty"`
	Status  protocol.ConnectionStatus `json:"status,omitempty"`
	State   *protocol.GameState       `json:"state,omitempty"`
	From    string                    `json:"from,omitempty"`
	Message *protocol.GameMessage     `json:"message,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// SendRequest is the body of POST /messages. An empty To means the host
// when bridging a client, and every connected peer when bridging a host.
type SendRequest struct {
	To   string               `json:"to,omitempty"`
	Type protocol.MessageType `json:"type"`
	Data json.RawMessage      `json:"data,omitempty"`
}

// Session is what the bridge needs from a host or client session
type Session interface {
	Players() []protocol.Player
	Send(to string, payload protocol.Payload) int
}

type hostSession struct{ *session.Host }

func (h hostSession) Send(to string, payload protocol.Payload) int {
	if to == "" {
		return h.Broadcast(payload)
	}
	if h.SendTo(to, payload) {
		return 1
	}
	return 0
}

type clientSession struct{ *session.Client }

func (c clientSession) Send(_ string, payload protocol.Payload) int {
	if c.SendToHost(payload) {
		return 1
	}
	return 0
}

// ForHost adapts a host session
func ForHost(h *session.Host) Session { return hostSession{h} }

// ForClient adapts a client session
func ForClient(c *session.Client) Session { return clientSession{c} }

// Bridge serves the UI endpoints
type Bridge struct {
	log    logrus.FieldLogger
	hub    *hub
	router *httprouter.Router

	mu   sync.RWMutex
	sess Session
}

// New creates a bridge. Attach a session before serving commands; events
// can be published from the moment Events is handed to a session.
func New(logger logrus.FieldLogger) *Bridge {
	log := logger.WithField("component", "uibridge")
	b := &Bridge{log: log, hub: newHub(log)}

	router := httprouter.New()
	router.GET("/events", b.serveEvents)
	router.GET("/players", b.getPlayers)
	router.POST("/messages", b.postMessage)
	b.router = router
	return b
}

// Attach sets the session that /players and /messages operate on.
func (b *Bridge) Attach(s Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sess = s
}

func (b *Bridge) current() Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sess
}

// ServeHTTP implements http.Handler
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

// Close disconnects every event subscriber
func (b *Bridge) Close() {
	b.hub.closeAll()
}

// Events returns session callbacks that publish to the /events stream.
func (b *Bridge) Events() session.Events {
	return session.Events{
		RosterChanged: func(players []protocol.Player) {
			b.Publish(Event{Event: EventRoster, Players: players})
		},
		StatusChanged: func(peerID string, status protocol.ConnectionStatus) {
			b.Publish(Event{Event: EventStatus, PeerID: peerID, Status: status})
		},
		GameState: func(state protocol.GameState) {
			b.Publish(Event{Event: EventGameState, State: &state})
		},
		Message: func(from string, msg protocol.GameMessage) {
			b.Publish(Event{Event: EventMessage, From: from, Message: &msg})
		},
		Error: func(message string) {
			b.Publish(Event{Event: EventError, Error: message})
		},
	}
}

// Publish sends ev to every subscriber
func (b *Bridge) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.log.WithError(err).WithField("event", ev.Event).Error("Failed to encode UI event")
		return
	}
	b.hub.broadcast(data)
}

func (b *Bridge) serveEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithError(err).Warn("Failed to upgrade UI connection")
		return
	}
	var initial []byte
	if sess := b.current(); sess != nil {
		if data, err := json.Marshal(Event{Event: EventRoster, Players: sess.Players()}); err == nil {
			initial = data
		}
	}

	s, ok := b.hub.add(conn, initial)
	if !ok {
		conn.Close()
		return
	}
	go s.writePump()
	go s.readPump(b.hub)
}

func (b *Bridge) getPlayers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess := b.current()
	if sess == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no active session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"players": sess.Players()})
}

func (b *Bridge) postMessage(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sess := b.current()
	if sess == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no active session"})
		return
	}

	var req SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	payload, err := protocol.DecodePayload(req.Type, req.Data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	sent := sess.Send(req.To, payload)
	b.log.WithFields(logrus.Fields{"type": req.Type, "to": req.To, "sent": sent}).Debug("UI message sent")
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
