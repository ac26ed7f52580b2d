package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/peer"
	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/mossy-p/peerlobby/internal/signaling"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

const maxClaimAttempts = 5

var (
	// ErrAlreadyHosting is returned by a second StartHosting call
	ErrAlreadyHosting = errors.New("already hosting")
	// ErrDestroyed is returned after Destroy
	ErrDestroyed = errors.New("session destroyed")
	// ErrNoRoomCode is returned when every generated room code was taken
	ErrNoRoomCode = errors.New("could not claim a free room code")
)

// HostOptions configures a Host
type HostOptions struct {
	Name       string
	Relay      Relay
	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Logger     logrus.FieldLogger
	MaxPlayers int
	Events     Events

	newConn connFactory
}

// Host is the authoritative side of a room: it owns the roster and one
// peer connection per client.
type Host struct {
	opts     HostOptions
	id       string
	relay    Relay
	log      logrus.FieldLogger
	handlers *dispatcher

	mu        sync.Mutex
	roomID    string
	token     string
	roster    *Roster
	conns     map[string]conn
	state     json.RawMessage
	destroyed bool
}

// NewHost creates a host session. Nothing touches the relay until
// StartHosting.
func NewHost(opts HostOptions) (*Host, error) {
	if opts.Relay == nil {
		return nil, errors.New("session: relay is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.newConn == nil {
		opts.newConn = newPeerConn
	}
	id := models.GeneratePeerID()
	return &Host{
		opts:     opts,
		id:       id,
		relay:    opts.Relay,
		log:      opts.Logger.WithFields(logrus.Fields{"role": "host", "player_id": id}),
		handlers: newDispatcher(),
		roster:   NewRoster(opts.MaxPlayers),
		conns:    make(map[string]conn),
	}, nil
}

// StartHosting claims a fresh room code on the relay, registers the host
// player and starts polling for offers. It returns the room code.
func (h *Host) StartHosting(ctx context.Context) (string, error) {
	h.mu.Lock()
	switch {
	case h.destroyed:
		h.mu.Unlock()
		return "", ErrDestroyed
	case h.roomID != "":
		h.mu.Unlock()
		return "", ErrAlreadyHosting
	}
	h.mu.Unlock()

	var roomID, token string
	for attempt := 0; attempt < maxClaimAttempts && roomID == ""; attempt++ {
		code := models.GenerateRoomCode()
		t, err := h.relay.ClaimRoom(ctx, code, h.id)
		switch {
		case errors.Is(err, signaling.ErrRoomTaken):
			h.log.WithField("room_id", code).Debug("Room code taken, regenerating")
		case err != nil:
			return "", fmt.Errorf("claim room: %w", err)
		default:
			roomID, token = code, t
		}
	}
	if roomID == "" {
		return "", ErrNoRoomCode
	}

	h.mu.Lock()
	h.roomID = roomID
	h.token = token
	h.roster.AddHost(h.id, h.opts.Name)
	players := h.roster.Players()
	h.mu.Unlock()

	h.log = h.log.WithField("room_id", roomID)
	h.relay.StartPolling(roomID, models.HostPeerID, h.onSignal)
	h.log.Info("Hosting room")
	h.opts.Events.rosterChanged(players)
	return roomID, nil
}

// RoomID returns the claimed room code, or "" before StartHosting
func (h *Host) RoomID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roomID
}

// PlayerID returns the host's own player id
func (h *Host) PlayerID() string {
	return h.id
}

// On registers a handler for a message type. Handlers run after the built-in
// handling, in registration order.
func (h *Host) On(t protocol.MessageType, fn Handler) {
	h.handlers.on(t, fn)
}

// Players returns the roster, provisional entries included
func (h *Host) Players() []protocol.Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.roster.Players()
}

func (h *Host) onSignal(msg models.SignalingMessage) {
	log := h.log.WithFields(logrus.Fields{"peer_id": msg.SenderID, "type": msg.Type})
	if !models.ValidPeerID(msg.SenderID) {
		log.Warn("Dropped signal from invalid peer id")
		return
	}

	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	c, ok := h.conns[msg.SenderID]
	var players []protocol.Player
	if !ok {
		if msg.Type != models.SignalTypeOffer {
			h.mu.Unlock()
			log.Debug("Dropped signal for unknown peer")
			return
		}
		var err error
		c, err = h.newConnLocked(msg.SenderID)
		if err != nil {
			h.mu.Unlock()
			log.WithError(err).Error("Failed to create peer connection")
			return
		}
		players = h.roster.Players()
	}
	h.mu.Unlock()

	if players != nil {
		log.Info("New peer connecting")
		h.opts.Events.rosterChanged(players)
	}
	if err := c.HandleSignal(msg); err != nil {
		log.WithError(err).Warn("Failed to apply signal")
	}
}

func (h *Host) newConnLocked(peerID string) (conn, error) {
	var c conn
	c, err := h.opts.newConn(peer.Config{
		RoomID:     h.roomID,
		LocalID:    models.HostPeerID,
		RemoteID:   peerID,
		Role:       peer.RoleHost,
		API:        h.opts.API,
		ICEServers: h.opts.ICEServers,
		Signaler:   h.relay,
		Logger:     h.opts.Logger,
		OnState:    func(s peer.State) { h.onConnState(peerID, c, s) },
		OnMessage:  func(m protocol.GameMessage) { h.onGameMessage(peerID, c, m) },
	})
	if err != nil {
		return nil, err
	}
	h.conns[peerID] = c
	h.roster.AddProvisional(peerID)
	return c, nil
}

func (h *Host) onConnState(peerID string, c conn, s peer.State) {
	if s == peer.StateClosed {
		h.removePeer(peerID, c)
		return
	}

	h.mu.Lock()
	if h.conns[peerID] != c {
		h.mu.Unlock()
		return
	}
	changed := h.roster.SetStatus(peerID, s.ConnectionStatus())
	players := h.roster.Players()
	h.mu.Unlock()

	h.log.WithFields(logrus.Fields{"peer_id": peerID, "state": s}).Debug("Peer status changed")
	if changed {
		h.opts.Events.statusChanged(peerID, s.ConnectionStatus())
		h.opts.Events.rosterChanged(players)
	}
}

func (h *Host) removePeer(peerID string, c conn) {
	h.mu.Lock()
	if h.conns[peerID] != c {
		h.mu.Unlock()
		return
	}
	delete(h.conns, peerID)
	wasJoined := h.roster.Remove(peerID)
	destroyed := h.destroyed
	players := h.roster.Players()
	h.mu.Unlock()

	h.log.WithField("peer_id", peerID).Info("Peer left")
	if destroyed {
		return
	}
	h.opts.Events.statusChanged(peerID, protocol.StatusDisconnected)
	h.opts.Events.rosterChanged(players)
	if wasJoined {
		h.broadcastSnapshot("")
	}
}

func (h *Host) onGameMessage(peerID string, c conn, msg protocol.GameMessage) {
	h.mu.Lock()
	current := h.conns[peerID] == c
	h.mu.Unlock()
	if !current {
		return
	}

	switch p := msg.Payload.(type) {
	case protocol.JoinRequest:
		h.handleJoin(peerID, p)
	case protocol.ConnectionTest:
		if !p.Reply {
			h.SendTo(peerID, protocol.ConnectionTest{Nonce: p.Nonce, Reply: true, SentAt: p.SentAt})
		}
	case protocol.Disconnect:
		h.log.WithFields(logrus.Fields{"peer_id": peerID, "reason": p.Reason}).Info("Peer disconnected")
		go c.Close()
	case protocol.ErrorMessage:
		h.opts.Events.reportError(fmt.Sprintf("%s: %s", peerID, p.Message))
	}

	h.opts.Events.message(peerID, msg)
	h.handlers.dispatch(peerID, msg)
}

// handleJoin validates and answers a join request. Name and capacity checks
// happen here and nowhere else.
func (h *Host) handleJoin(peerID string, req protocol.JoinRequest) {
	log := h.log.WithFields(logrus.Fields{"peer_id": peerID, "name": req.PlayerName})

	h.mu.Lock()
	err := h.roster.Admit(peerID, req.PlayerName)
	resp := protocol.JoinResponse{Success: err == nil, PlayerID: peerID}
	if err != nil {
		resp.Error = err.Error()
	} else {
		snap := h.snapshotLocked()
		resp.GameState = &snap
	}
	players := h.roster.Players()
	h.mu.Unlock()

	if !h.SendTo(peerID, resp) {
		log.Warn("Failed to send join response")
	}
	if err != nil {
		log.WithError(err).Info("Rejected join request")
		return
	}

	log.Info("Player joined")
	h.opts.Events.statusChanged(peerID, protocol.StatusConnected)
	h.opts.Events.rosterChanged(players)
	h.broadcastSnapshot(peerID)
}

func (h *Host) snapshotLocked() protocol.GameState {
	return protocol.GameState{Players: h.roster.Joined(), State: h.state}
}

// BroadcastGameState stores state as the public game state and sends a
// game-state-update to every connected peer. Peers that are not connected
// are skipped. It returns the number of peers reached.
func (h *Host) BroadcastGameState(state any) (int, error) {
	raw, err := toRaw(state)
	if err != nil {
		return 0, fmt.Errorf("encode game state: %w", err)
	}
	h.mu.Lock()
	h.state = raw
	h.mu.Unlock()
	return h.broadcastSnapshot(""), nil
}

func (h *Host) broadcastSnapshot(except string) int {
	h.mu.Lock()
	snap := h.snapshotLocked()
	h.mu.Unlock()
	return h.broadcast(snap, except)
}

// Broadcast sends payload to every connected peer and returns how many
// were reached.
func (h *Host) Broadcast(payload protocol.Payload) int {
	return h.broadcast(payload, "")
}

func (h *Host) broadcast(payload protocol.Payload, except string) int {
	msg := protocol.New(h.id, payload)
	sent := 0
	for peerID, c := range h.connected() {
		if peerID == except {
			continue
		}
		if err := c.Send(msg); err != nil {
			h.log.WithError(err).WithField("peer_id", peerID).Warn("Broadcast send failed")
			continue
		}
		sent++
	}
	return sent
}

func (h *Host) connected() map[string]conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]conn, len(h.conns))
	for id, c := range h.conns {
		if c.State() == peer.StateConnected {
			out[id] = c
		}
	}
	return out
}

// SendTo unicasts payload to one peer. It returns false if the peer is
// unknown or not connected.
func (h *Host) SendTo(peerID string, payload protocol.Payload) bool {
	h.mu.Lock()
	c, ok := h.conns[peerID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if err := c.Send(protocol.New(h.id, payload)); err != nil {
		h.log.WithError(err).WithField("peer_id", peerID).Debug("Send failed")
		return false
	}
	return true
}

// Ping sends a connection test to one peer
func (h *Host) Ping(peerID string) bool {
	return h.SendTo(peerID, protocol.ConnectionTest{Nonce: uuid.NewString(), SentAt: time.Now().UnixMilli()})
}

// Kick closes the connection to peerID, removing it from the roster.
func (h *Host) Kick(peerID string) bool {
	h.mu.Lock()
	c, ok := h.conns[peerID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	h.SendTo(peerID, protocol.Disconnect{Reason: "removed by host"})
	_ = c.Close()
	h.removePeer(peerID, c)
	return true
}

// Destroy stops polling, says goodbye to every connected peer, closes all
// connections and clears the room mailbox. It is safe to call more than once.
func (h *Host) Destroy() {
	h.mu.Lock()
	if h.destroyed {
		h.mu.Unlock()
		return
	}
	h.destroyed = true
	roomID, token := h.roomID, h.token
	conns := h.conns
	h.conns = make(map[string]conn)
	h.mu.Unlock()

	if roomID == "" {
		return
	}
	h.relay.StopPolling(roomID, models.HostPeerID)

	bye := protocol.New(h.id, protocol.Disconnect{Reason: "host left"})
	for peerID, c := range conns {
		if c.State() == peer.StateConnected {
			if err := c.Send(bye); err != nil {
				h.log.WithError(err).WithField("peer_id", peerID).Debug("Failed to send disconnect")
			}
		}
		_ = c.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.relay.ClearRoom(ctx, roomID, token); err != nil {
		h.log.WithError(err).Warn("Failed to clear room mailbox")
	}
	h.log.Info("Host session destroyed")
}

func toRaw(v any) (json.RawMessage, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return s, nil
	}
	return json.Marshal(v)
}
