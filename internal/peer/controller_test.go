package peer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/peer"
	"github.com/mossy-p/peerlobby/internal/peer/peertest"
	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRoom   = "ABCD2345"
	testClient = "abc123xyz"
)

// pipe delivers signaling messages to one controller in send order.
type pipe struct {
	ch chan models.SignalingMessage
}

func newPipe() *pipe {
	return &pipe{ch: make(chan models.SignalingMessage, 256)}
}

func (p *pipe) Send(_ context.Context, roomID, senderID string, t models.SignalType, data any, recipientID string) bool {
	b, err := json.Marshal(data)
	if err != nil {
		return false
	}
	p.ch <- models.SignalingMessage{SenderID: senderID, RecipientID: &recipientID, Type: t, Data: b}
	return true
}

func (p *pipe) deliverTo(c *peer.Controller) {
	go func() {
		for m := range p.ch {
			_ = c.HandleSignal(m)
		}
	}()
}

type failingSignaler struct{}

func (failingSignaler) Send(context.Context, string, string, models.SignalType, any, string) bool {
	return false
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

type endpoint struct {
	ctl    *peer.Controller
	states chan peer.State
	msgs   chan protocol.GameMessage
}

func waitState(t *testing.T, e *endpoint, want peer.State) {
	t.Helper()
	timeout := time.After(15 * time.Second)
	for {
		select {
		case s := <-e.states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s (now %s)", want, e.ctl.State())
		}
	}
}

func newEndpoint(t *testing.T, cfg peer.Config) *endpoint {
	t.Helper()
	e := &endpoint{
		states: make(chan peer.State, 32),
		msgs:   make(chan protocol.GameMessage, 32),
	}
	cfg.RoomID = testRoom
	cfg.Logger = quietLogger()
	cfg.OnState = func(s peer.State) { e.states <- s }
	cfg.OnMessage = func(m protocol.GameMessage) { e.msgs <- m }
	ctl, err := peer.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctl.Close() })
	e.ctl = ctl
	return e
}

// connectPair wires a host and a client controller over a virtual network
// and waits until both data channel ends are open.
func connectPair(t *testing.T) (host, client *endpoint) {
	t.Helper()
	apis := peertest.APIs(t, 2)
	toHost, toClient := newPipe(), newPipe()

	host = newEndpoint(t, peer.Config{
		LocalID:  models.HostPeerID,
		RemoteID: testClient,
		Role:     peer.RoleHost,
		API:      apis[0],
		Signaler: toClient,
	})
	client = newEndpoint(t, peer.Config{
		LocalID:  testClient,
		RemoteID: models.HostPeerID,
		Role:     peer.RoleClient,
		API:      apis[1],
		Signaler: toHost,
	})
	toHost.deliverTo(host.ctl)
	toClient.deliverTo(client.ctl)

	require.NoError(t, client.ctl.Start())
	waitState(t, client, peer.StateConnected)
	waitState(t, host, peer.StateConnected)
	return host, client
}

func TestControllerConnectsAndExchanges(t *testing.T) {
	host, client := connectPair(t)

	join := protocol.New(testClient, protocol.JoinRequest{PlayerName: "Ann", PlayerID: testClient})
	require.NoError(t, client.ctl.Send(join))

	select {
	case got := <-host.msgs:
		assert.Equal(t, protocol.TypeJoinRequest, got.Type)
		assert.Equal(t, testClient, got.SenderID)
		assert.Equal(t, protocol.JoinRequest{PlayerName: "Ann", PlayerID: testClient}, got.Payload)
	case <-time.After(10 * time.Second):
		t.Fatal("host never received the join request")
	}

	reply := protocol.New("hostid123", protocol.JoinResponse{Success: true, PlayerID: testClient})
	require.NoError(t, host.ctl.Send(reply))
	select {
	case got := <-client.msgs:
		assert.Equal(t, protocol.TypeJoinResponse, got.Type)
	case <-time.After(10 * time.Second):
		t.Fatal("client never received the join response")
	}

	require.NoError(t, client.ctl.Close())
	assert.Equal(t, peer.StateClosed, client.ctl.State())
	assert.ErrorIs(t, client.ctl.Send(join), peer.ErrNotConnected)
	assert.NoError(t, client.ctl.Close(), "close is idempotent")
}

func TestConnectedControllerDropsMalformedFrames(t *testing.T) {
	host, client := connectPair(t)

	require.NoError(t, client.ctl.SendRawText("not json"))
	require.NoError(t, client.ctl.SendRawText(`{"senderId":"abc123xyz","timestamp":1}`))
	require.NoError(t, client.ctl.SendRawText(`{"type":"teleport","senderId":"abc123xyz","timestamp":1,"data":{}}`))
	require.NoError(t, client.ctl.Send(protocol.New(testClient, protocol.PlayerAction{Action: "roll"})))

	select {
	case got := <-host.msgs:
		assert.Equal(t, protocol.TypePlayerAction, got.Type)
		assert.Equal(t, protocol.PlayerAction{Action: "roll"}, got.Payload)
	case <-time.After(10 * time.Second):
		t.Fatal("host never received the valid frame")
	}
	assert.Equal(t, peer.StateConnected, host.ctl.State())
	assert.Empty(t, host.msgs)

	require.NoError(t, host.ctl.Send(protocol.New("hostid123", protocol.PlayerAction{Action: "ack"})))
	select {
	case got := <-client.msgs:
		assert.Equal(t, protocol.PlayerAction{Action: "ack"}, got.Payload)
	case <-time.After(10 * time.Second):
		t.Fatal("connection stopped delivering after malformed frames")
	}
}

func TestControllerSendBeforeConnected(t *testing.T) {
	e := newEndpoint(t, peer.Config{
		LocalID:  testClient,
		RemoteID: models.HostPeerID,
		Role:     peer.RoleClient,
		Signaler: newPipe(),
	})
	err := e.ctl.Send(protocol.New(testClient, protocol.Disconnect{}))
	assert.ErrorIs(t, err, peer.ErrNotConnected)
	assert.Equal(t, peer.StateDisconnected, e.ctl.State())
}

func TestControllerSignalFailure(t *testing.T) {
	e := newEndpoint(t, peer.Config{
		LocalID:  testClient,
		RemoteID: models.HostPeerID,
		Role:     peer.RoleClient,
		Signaler: failingSignaler{},
	})
	require.Error(t, e.ctl.Start())
	assert.Equal(t, peer.StateError, e.ctl.State())

	waitState(t, e, peer.StateConnecting)
	waitState(t, e, peer.StateError)
}

func TestControllerRejectsForeignSignals(t *testing.T) {
	e := newEndpoint(t, peer.Config{
		LocalID:  models.HostPeerID,
		RemoteID: testClient,
		Role:     peer.RoleHost,
		Signaler: newPipe(),
	})

	err := e.ctl.HandleSignal(models.SignalingMessage{SenderID: "zzz999zzz", Type: models.SignalTypeOffer})
	assert.True(t, errors.Is(err, peer.ErrUnexpectedSignal))

	err = e.ctl.HandleSignal(models.SignalingMessage{
		SenderID: testClient,
		Type:     models.SignalTypeAnswer,
		Data:     json.RawMessage(`{"type":"answer","sdp":""}`),
	})
	assert.ErrorIs(t, err, peer.ErrUnexpectedSignal, "hosts never take answers")

	err = e.ctl.HandleSignal(models.SignalingMessage{
		SenderID: testClient,
		Type:     models.SignalTypeCandidate,
		Data:     json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.9 5000 typ host"}`),
	})
	assert.NoError(t, err, "early candidates are queued")
	assert.Equal(t, peer.StateDisconnected, e.ctl.State())
}

func TestStateConnectionStatus(t *testing.T) {
	assert.Equal(t, protocol.StatusConnecting, peer.StateConnecting.ConnectionStatus())
	assert.Equal(t, protocol.StatusConnected, peer.StateConnected.ConnectionStatus())
	assert.Equal(t, protocol.StatusError, peer.StateError.ConnectionStatus())
	assert.Equal(t, protocol.StatusDisconnected, peer.StateClosed.ConnectionStatus())
}
