package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// DataChannelLabel is the label of the single game channel per connection.
const DataChannelLabel = "game"

var (
	// ErrNotConnected is returned by Send before the data channel opens
	ErrNotConnected = errors.New("peer not connected")
	// ErrUnexpectedSignal is returned for signaling messages the controller
	// cannot apply in its current role or state.
	ErrUnexpectedSignal = errors.New("unexpected signaling message")

	errSignalSend = errors.New("failed to send signaling message")
)

// Role selects which side of the offer/answer exchange a controller plays.
type Role int

const (
	// RoleHost answers offers and accepts the remote data channel
	RoleHost Role = iota
	// RoleClient creates the data channel and the offer
	RoleClient
)

func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "client"
}

// Signaler carries SDP and ICE messages to the remote peer.
type Signaler interface {
	Send(ctx context.Context, roomID, senderID string, t models.SignalType, data any, recipientID string) bool
}

// Config describes one peer connection
type Config struct {
	RoomID string
	// LocalID is the relay address of this side, "host" for the host.
	LocalID string
	// RemoteID is the relay address of the other side.
	RemoteID string
	Role     Role

	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Signaler   Signaler
	Logger     logrus.FieldLogger

	// OnState is called after every state transition.
	OnState func(State)
	// OnMessage is called for every well-formed game message.
	OnMessage func(protocol.GameMessage)
}

// Controller owns one WebRTC peer connection and its game data channel.
type Controller struct {
	cfg    Config
	pc     *webrtc.PeerConnection
	log    logrus.FieldLogger
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	dc            *webrtc.DataChannel
	remoteSet     bool
	localSent     bool
	pendingRemote []webrtc.ICECandidateInit
	pendingLocal  []webrtc.ICECandidateInit
}

// New creates the peer connection. Nothing is exchanged until Start (client)
// or an incoming offer (host).
func New(cfg Config) (*Controller, error) {
	if cfg.Signaler == nil {
		return nil, errors.New("peer: signaler is required")
	}
	if cfg.API == nil {
		cfg.API = webrtc.NewAPI()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	pc, err := cfg.API.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		pc:     pc,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
		log: cfg.Logger.WithFields(logrus.Fields{
			"room_id": cfg.RoomID,
			"remote":  cfg.RemoteID,
			"role":    cfg.Role.String(),
		}),
	}

	pc.OnICECandidate(c.onLocalCandidate)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.WithField("pc_state", s.String()).Debug("Peer connection state changed")
		switch s {
		case webrtc.PeerConnectionStateFailed:
			c.fail(errors.New("peer connection failed"))
		case webrtc.PeerConnectionStateClosed:
			_ = c.Close()
		}
	})
	if cfg.Role == RoleHost {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			if err := validateDataChannel(dc); err != nil {
				c.log.WithError(err).Warn("Rejected data channel")
				_ = dc.Close()
				return
			}
			c.bindDataChannel(dc)
		})
	}

	return c, nil
}

// Start opens the connection from the client side: it creates the data
// channel, sends the offer, then releases any local candidates gathered so
// far. It is a no-op for hosts.
func (c *Controller) Start() error {
	if c.cfg.Role != RoleClient {
		return nil
	}
	if !c.transition(StateConnecting) {
		return fmt.Errorf("%w: start from %s", ErrUnexpectedSignal, c.State())
	}

	ordered := true
	dc, err := c.pc.CreateDataChannel(DataChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return c.fail(fmt.Errorf("create data channel: %w", err))
	}
	c.bindDataChannel(dc)

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return c.fail(fmt.Errorf("create offer: %w", err))
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return c.fail(fmt.Errorf("set local description: %w", err))
	}
	if !c.signal(models.SignalTypeOffer, offer) {
		return c.fail(errSignalSend)
	}
	c.flushLocalCandidates()
	return nil
}

// HandleSignal applies one relay message from the remote peer.
func (c *Controller) HandleSignal(msg models.SignalingMessage) error {
	if msg.SenderID != c.cfg.RemoteID {
		return fmt.Errorf("%w: sender %q", ErrUnexpectedSignal, msg.SenderID)
	}
	switch c.State() {
	case StateClosed, StateError:
		c.log.WithField("type", msg.Type).Debug("Ignoring signal on finished connection")
		return nil
	}

	switch msg.Type {
	case models.SignalTypeOffer:
		return c.handleOffer(msg.Data)
	case models.SignalTypeAnswer:
		return c.handleAnswer(msg.Data)
	case models.SignalTypeCandidate:
		return c.handleCandidate(msg.Data)
	}
	return fmt.Errorf("%w: type %q", ErrUnexpectedSignal, msg.Type)
}

func (c *Controller) handleOffer(data json.RawMessage) error {
	if c.cfg.Role != RoleHost {
		return fmt.Errorf("%w: offer sent to client", ErrUnexpectedSignal)
	}
	c.mu.Lock()
	dup := c.remoteSet
	c.mu.Unlock()
	if dup {
		c.log.Debug("Ignoring repeated offer")
		return nil
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(data, &offer); err != nil || offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("%w: bad offer", ErrUnexpectedSignal)
	}

	c.transition(StateConnecting)
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return c.fail(fmt.Errorf("set remote description: %w", err))
	}
	c.flushRemoteCandidates()

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return c.fail(fmt.Errorf("create answer: %w", err))
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return c.fail(fmt.Errorf("set local description: %w", err))
	}
	if !c.signal(models.SignalTypeAnswer, answer) {
		return c.fail(errSignalSend)
	}
	c.flushLocalCandidates()
	return nil
}

func (c *Controller) handleAnswer(data json.RawMessage) error {
	if c.cfg.Role != RoleClient {
		return fmt.Errorf("%w: answer sent to host", ErrUnexpectedSignal)
	}
	c.mu.Lock()
	dup := c.remoteSet
	c.mu.Unlock()
	if dup {
		c.log.Debug("Ignoring repeated answer")
		return nil
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal(data, &answer); err != nil || answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: bad answer", ErrUnexpectedSignal)
	}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return c.fail(fmt.Errorf("set remote description: %w", err))
	}
	c.flushRemoteCandidates()
	return nil
}

func (c *Controller) handleCandidate(data json.RawMessage) error {
	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal(data, &cand); err != nil || cand.Candidate == "" {
		return fmt.Errorf("%w: bad candidate", ErrUnexpectedSignal)
	}

	c.mu.Lock()
	if !c.remoteSet {
		c.pendingRemote = append(c.pendingRemote, cand)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.pc.AddICECandidate(cand); err != nil {
		c.log.WithError(err).Warn("Failed to add remote candidate")
	}
	return nil
}

func (c *Controller) flushRemoteCandidates() {
	c.mu.Lock()
	c.remoteSet = true
	pending := c.pendingRemote
	c.pendingRemote = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.log.WithError(err).Warn("Failed to add queued remote candidate")
		}
	}
}

// Local candidates wait until our SDP is on the relay, otherwise the remote
// could receive a candidate before the description it belongs to.
func (c *Controller) onLocalCandidate(cand *webrtc.ICECandidate) {
	if cand == nil {
		return
	}
	init := cand.ToJSON()

	c.mu.Lock()
	if !c.localSent {
		c.pendingLocal = append(c.pendingLocal, init)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if !c.signal(models.SignalTypeCandidate, init) {
		c.log.Warn("Failed to send local candidate")
	}
}

func (c *Controller) flushLocalCandidates() {
	c.mu.Lock()
	c.localSent = true
	pending := c.pendingLocal
	c.pendingLocal = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if !c.signal(models.SignalTypeCandidate, cand) {
			c.log.Warn("Failed to send queued local candidate")
		}
	}
}

func (c *Controller) signal(t models.SignalType, data any) bool {
	return c.cfg.Signaler.Send(c.ctx, c.cfg.RoomID, c.cfg.LocalID, t, data, c.cfg.RemoteID)
}

func (c *Controller) bindDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.log.Info("Data channel open")
		c.transition(StateConnected)
	})
	dc.OnClose(func() {
		c.log.Info("Data channel closed")
		_ = c.Close()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.handleFrame(msg.Data)
	})
}

func (c *Controller) handleFrame(raw []byte) {
	msg, err := protocol.Parse(raw)
	if err != nil {
		c.log.WithError(err).Warn("Dropped malformed frame")
		return
	}
	if c.cfg.OnMessage != nil {
		c.cfg.OnMessage(msg)
	}
}

// Send writes one game message to the data channel.
func (c *Controller) Send(msg protocol.GameMessage) error {
	c.mu.Lock()
	dc, state := c.dc, c.state
	c.mu.Unlock()
	if state != StateConnected || dc == nil {
		return ErrNotConnected
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode game message: %w", err)
	}
	return dc.SendText(string(b))
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RemoteID returns the relay address of the other side
func (c *Controller) RemoteID() string {
	return c.cfg.RemoteID
}

// Close tears down the peer connection. It is safe to call repeatedly and
// from pion callbacks.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	c.cancel()
	err := c.pc.Close()
	c.notify(StateClosed)
	return err
}

func (c *Controller) fail(err error) error {
	c.log.WithError(err).Error("Peer connection error")
	c.transition(StateError)
	return err
}

func (c *Controller) transition(to State) bool {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("Peer state changed")
	c.notify(to)
	return true
}

func (c *Controller) notify(s State) {
	if c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

// validateDataChannel accepts only the ordered, reliable game channel.
func validateDataChannel(dc *webrtc.DataChannel) error {
	if dc.Label() != DataChannelLabel {
		return fmt.Errorf("unexpected data channel label %q", dc.Label())
	}
	if !dc.Ordered() {
		return errors.New("game data channel must be ordered")
	}
	if dc.MaxRetransmits() != nil || dc.MaxPacketLifeTime() != nil {
		return errors.New("game data channel must be reliable")
	}
	return nil
}
