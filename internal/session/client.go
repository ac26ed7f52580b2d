package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/peer"
	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

const (
	defaultJoinCheckInterval = time.Second
	defaultJoinTimeout       = 30 * time.Second
)

// ErrInvalidRoomCode is returned for codes that cannot name a room
var ErrInvalidRoomCode = errors.New("invalid room code")

// ClientOptions configures a Client
type ClientOptions struct {
	Name       string
	Relay      Relay
	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Logger     logrus.FieldLogger
	Events     Events

	// JoinCheckInterval and JoinTimeout drive the join watchdog: connection
	// status is checked every interval and the join request goes out as soon
	// as the host is reachable.
	JoinCheckInterval time.Duration
	JoinTimeout       time.Duration

	newConn connFactory
}

// Client is the joining side of a room: one connection to the host plus
// the join handshake.
type Client struct {
	opts     ClientOptions
	relay    Relay
	log      logrus.FieldLogger
	handlers *dispatcher

	mu        sync.Mutex
	name      string
	roomID    string
	peerID    string
	conn      conn
	status    protocol.ConnectionStatus
	joined    bool
	snapshot  protocol.GameState
	stopWatch context.CancelFunc
	destroyed bool
}

// NewClient creates a client session
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Relay == nil {
		return nil, errors.New("session: relay is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.newConn == nil {
		opts.newConn = newPeerConn
	}
	if opts.JoinCheckInterval <= 0 {
		opts.JoinCheckInterval = defaultJoinCheckInterval
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}
	return &Client{
		opts:     opts,
		relay:    opts.Relay,
		log:      opts.Logger.WithField("role", "client"),
		handlers: newDispatcher(),
		name:     opts.Name,
		status:   protocol.StatusDisconnected,
	}, nil
}

// ConnectToHost starts a connection to the host of roomID. It returns once
// the offer is on the relay; completion is reported through Events. Any
// previous connection is torn down first.
func (c *Client) ConnectToHost(roomID string) error {
	roomID = models.NormalizeRoomCode(roomID)
	if !models.ValidRoomCode(roomID) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomCode, roomID)
	}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	old, oldRoom, oldPeer := c.detachLocked()
	c.roomID = roomID
	c.mu.Unlock()

	c.release(old, oldRoom, oldPeer)
	return c.connect()
}

// Reconnect drops the current connection and starts a fresh one under a new
// peer id.
func (c *Client) Reconnect() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.roomID == "" {
		c.mu.Unlock()
		return errors.New("session: not connected to a room")
	}
	old, oldRoom, oldPeer := c.detachLocked()
	c.mu.Unlock()

	c.release(old, oldRoom, oldPeer)
	return c.connect()
}

// release stops polling for a detached connection and closes it.
func (c *Client) release(old conn, roomID, peerID string) {
	if old == nil {
		return
	}
	c.relay.StopPolling(roomID, peerID)
	_ = old.Close()
}

// detachLocked forgets the current connection so its callbacks become stale.
func (c *Client) detachLocked() (conn, string, string) {
	old, oldRoom, oldPeer := c.conn, c.roomID, c.peerID
	c.conn = nil
	c.joined = false
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	return old, oldRoom, oldPeer
}

func (c *Client) connect() error {
	peerID := models.GeneratePeerID()

	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	log := c.log.WithFields(logrus.Fields{"room_id": roomID, "peer_id": peerID})

	var pc conn
	pc, err := c.opts.newConn(peer.Config{
		RoomID:     roomID,
		LocalID:    peerID,
		RemoteID:   models.HostPeerID,
		Role:       peer.RoleClient,
		API:        c.opts.API,
		ICEServers: c.opts.ICEServers,
		Signaler:   c.relay,
		Logger:     c.opts.Logger,
		OnState:    func(s peer.State) { c.onConnState(pc, s) },
		OnMessage:  func(m protocol.GameMessage) { c.onGameMessage(pc, m) },
	})
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.peerID = peerID
	c.conn = pc
	c.joined = false
	c.stopWatch = cancel
	c.mu.Unlock()

	c.relay.StartPolling(roomID, peerID, func(m models.SignalingMessage) { c.onSignal(pc, m) })
	log.Info("Connecting to host")
	if err := pc.Start(); err != nil {
		cancel()
		return fmt.Errorf("start connection: %w", err)
	}
	go c.watchJoin(ctx, pc)
	return nil
}

func (c *Client) current(pc conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == pc && pc != nil
}

func (c *Client) onSignal(pc conn, msg models.SignalingMessage) {
	if msg.SenderID != models.HostPeerID {
		c.log.WithField("peer_id", msg.SenderID).Debug("Dropped signal not from host")
		return
	}
	if !c.current(pc) {
		return
	}
	if err := pc.HandleSignal(msg); err != nil {
		c.log.WithError(err).WithField("type", msg.Type).Warn("Failed to apply signal")
	}
}

func (c *Client) onConnState(pc conn, s peer.State) {
	c.mu.Lock()
	if c.conn != pc {
		c.mu.Unlock()
		return
	}
	c.status = s.ConnectionStatus()
	roomID, peerID := c.roomID, c.peerID
	if s == peer.StateClosed {
		c.joined = false
	}
	c.mu.Unlock()

	c.log.WithField("state", s).Debug("Host connection state changed")
	switch s {
	case peer.StateConnected, peer.StateError, peer.StateClosed:
		// The data channel carries everything from here on.
		c.relay.StopPolling(roomID, peerID)
	}
	if s == peer.StateError {
		c.opts.Events.reportError("connection to host failed")
	}
	c.opts.Events.statusChanged(models.HostPeerID, s.ConnectionStatus())
}

// watchJoin checks the connection every JoinCheckInterval and sends the
// join request once it is up. It gives up after JoinTimeout.
func (c *Client) watchJoin(ctx context.Context, pc conn) {
	ticker := time.NewTicker(c.opts.JoinCheckInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(c.opts.JoinTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			c.log.Warn("Timed out connecting to host")
			c.opts.Events.reportError("timed out connecting to host")
			return
		case <-ticker.C:
			switch pc.State() {
			case peer.StateConnected:
				if !c.sendJoinRequest(pc) {
					c.log.Warn("Failed to send join request")
				}
				return
			case peer.StateError, peer.StateClosed:
				return
			}
		}
	}
}

func (c *Client) sendJoinRequest(pc conn) bool {
	c.mu.Lock()
	req := protocol.JoinRequest{PlayerName: c.name, PlayerID: c.peerID}
	c.mu.Unlock()
	return c.send(pc, req)
}

// RequestJoin (re)sends a join request under name over the current
// connection, for example after a "name taken" rejection.
func (c *Client) RequestJoin(name string) bool {
	c.mu.Lock()
	c.name = name
	pc := c.conn
	c.mu.Unlock()
	if pc == nil {
		return false
	}
	return c.sendJoinRequest(pc)
}

func (c *Client) onGameMessage(pc conn, msg protocol.GameMessage) {
	if !c.current(pc) {
		return
	}

	switch p := msg.Payload.(type) {
	case protocol.JoinResponse:
		if !p.Success {
			c.log.WithField("error", p.Error).Info("Join rejected")
			c.opts.Events.reportError(p.Error)
			break
		}
		c.mu.Lock()
		c.joined = true
		c.mu.Unlock()
		c.log.Info("Joined room")
		if p.GameState != nil {
			c.applySnapshot(*p.GameState)
		}
	case protocol.GameState:
		c.applySnapshot(p)
	case protocol.ConnectionTest:
		if !p.Reply {
			c.send(pc, protocol.ConnectionTest{Nonce: p.Nonce, Reply: true, SentAt: p.SentAt})
		}
	case protocol.Disconnect:
		c.log.WithField("reason", p.Reason).Info("Host disconnected")
		go pc.Close()
	case protocol.ErrorMessage:
		c.opts.Events.reportError(p.Message)
	}

	c.opts.Events.message(models.HostPeerID, msg)
	c.handlers.dispatch(models.HostPeerID, msg)
}

func (c *Client) applySnapshot(s protocol.GameState) {
	c.mu.Lock()
	c.snapshot = s
	c.mu.Unlock()
	c.opts.Events.gameState(s)
	c.opts.Events.rosterChanged(s.Players)
}

// On registers a handler for a message type. Handlers run after the built-in
// handling, in registration order.
func (c *Client) On(t protocol.MessageType, fn Handler) {
	c.handlers.on(t, fn)
}

// SendToHost sends payload to the host. It returns false when not connected.
func (c *Client) SendToHost(payload protocol.Payload) bool {
	c.mu.Lock()
	pc := c.conn
	c.mu.Unlock()
	if pc == nil {
		return false
	}
	return c.send(pc, payload)
}

// Ping sends a connection test to the host
func (c *Client) Ping() bool {
	return c.SendToHost(protocol.ConnectionTest{Nonce: uuid.NewString(), SentAt: time.Now().UnixMilli()})
}

func (c *Client) send(pc conn, payload protocol.Payload) bool {
	c.mu.Lock()
	sender := c.peerID
	c.mu.Unlock()
	if err := pc.Send(protocol.New(sender, payload)); err != nil {
		c.log.WithError(err).WithField("type", payload.MessageType()).Debug("Send to host failed")
		return false
	}
	return true
}

// Players returns the roster from the latest host snapshot
func (c *Client) Players() []protocol.Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Player(nil), c.snapshot.Players...)
}

// GameState returns the latest host snapshot
func (c *Client) GameState() protocol.GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Joined reports whether the host admitted this client
func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Status returns the badge for the host connection
func (c *Client) Status() protocol.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PeerID returns the current relay address, which changes on Reconnect
func (c *Client) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// RoomID returns the room this client targets
func (c *Client) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Destroy says goodbye to the host and releases the connection. It is safe
// to call more than once.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	sender := c.peerID
	old, roomID, oldPeer := c.detachLocked()
	c.mu.Unlock()

	if old == nil {
		return
	}
	c.relay.StopPolling(roomID, oldPeer)
	if old.State() == peer.StateConnected {
		if err := old.Send(protocol.New(sender, protocol.Disconnect{Reason: "left"})); err != nil {
			c.log.WithError(err).Debug("Failed to send disconnect")
		}
	}
	_ = old.Close()
	c.log.Info("Client session destroyed")
}
