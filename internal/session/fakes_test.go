package session

import (
	"context"
	"sync"
	"testing"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/peer"
	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// fakeRelay records what the managers ask of the signaling client.
type fakeRelay struct {
	mu        sync.Mutex
	claimErrs []error
	claimed   []string
	claimers  []string
	polls     map[string]func(models.SignalingMessage)
	stopped   []string
	cleared   []string
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{polls: make(map[string]func(models.SignalingMessage))}
}

func (r *fakeRelay) Send(context.Context, string, string, models.SignalType, any, string) bool {
	return true
}

func (r *fakeRelay) StartPolling(roomID, peerID string, onMessage func(models.SignalingMessage)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls[roomID+":"+peerID] = onMessage
}

func (r *fakeRelay) StopPolling(roomID, peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.polls, roomID+":"+peerID)
	r.stopped = append(r.stopped, roomID+":"+peerID)
}

func (r *fakeRelay) ClaimRoom(_ context.Context, roomID, peerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.claimed = append(r.claimed, roomID)
	r.claimers = append(r.claimers, peerID)
	if len(r.claimErrs) > 0 {
		err := r.claimErrs[0]
		r.claimErrs = r.claimErrs[1:]
		return "", err
	}
	return "token-" + roomID, nil
}

func (r *fakeRelay) ClearRoom(_ context.Context, roomID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, roomID+"/"+token)
	return nil
}

func (r *fakeRelay) poller(roomID, peerID string) func(models.SignalingMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls[roomID+":"+peerID]
}

func (r *fakeRelay) polling(roomID, peerID string) bool {
	return r.poller(roomID, peerID) != nil
}

// fakeConn stands in for a peer.Controller. Tests drive its state and
// inject inbound game messages directly.
type fakeConn struct {
	cfg peer.Config

	mu      sync.Mutex
	state   peer.State
	signals []models.SignalingMessage
	sent    []protocol.GameMessage
}

func (f *fakeConn) Start() error {
	f.setState(peer.StateConnecting)
	return nil
}

func (f *fakeConn) HandleSignal(msg models.SignalingMessage) error {
	f.mu.Lock()
	f.signals = append(f.signals, msg)
	first := f.state == peer.StateDisconnected
	f.mu.Unlock()
	if first && msg.Type == models.SignalTypeOffer {
		f.setState(peer.StateConnecting)
	}
	return nil
}

func (f *fakeConn) Send(msg protocol.GameMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != peer.StateConnected {
		return peer.ErrNotConnected
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeConn) State() peer.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	if f.state == peer.StateClosed {
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()
	f.setState(peer.StateClosed)
	return nil
}

func (f *fakeConn) setState(s peer.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	if f.cfg.OnState != nil {
		f.cfg.OnState(s)
	}
}

// receive simulates a frame arriving from the remote side.
func (f *fakeConn) receive(senderID string, payload protocol.Payload) {
	f.cfg.OnMessage(protocol.New(senderID, payload))
}

func (f *fakeConn) sentMessages() []protocol.GameMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.GameMessage(nil), f.sent...)
}

func (f *fakeConn) lastSent(t *testing.T) protocol.GameMessage {
	t.Helper()
	sent := f.sentMessages()
	if len(sent) == 0 {
		t.Fatalf("nothing sent to %s", f.cfg.RemoteID)
	}
	return sent[len(sent)-1]
}

// fakeConns hands out fakeConns and remembers them by remote (host side) or
// local (client side) id.
type fakeConns struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (fc *fakeConns) factory(cfg peer.Config) (conn, error) {
	c := &fakeConn{cfg: cfg, state: peer.StateDisconnected}
	fc.mu.Lock()
	fc.conns = append(fc.conns, c)
	fc.mu.Unlock()
	return c, nil
}

func (fc *fakeConns) byRemote(id string) *fakeConn {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	for i := len(fc.conns) - 1; i >= 0; i-- {
		if fc.conns[i].cfg.RemoteID == id {
			return fc.conns[i]
		}
	}
	return nil
}

func (fc *fakeConns) last() *fakeConn {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if len(fc.conns) == 0 {
		return nil
	}
	return fc.conns[len(fc.conns)-1]
}

func (fc *fakeConns) count() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.conns)
}
