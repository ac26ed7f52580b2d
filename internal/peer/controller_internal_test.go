package peer

import (
	"context"
	"testing"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSignaler struct{}

func (nopSignaler) Send(context.Context, string, string, models.SignalType, any, string) bool {
	return true
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateConnected, false},
		{StateDisconnected, StateError, false},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateError, true},
		{StateConnected, StateError, true},
		{StateConnected, StateConnecting, false},
		{StateError, StateConnected, false},
		{StateError, StateClosed, true},
		{StateDisconnected, StateClosed, true},
		{StateClosed, StateConnecting, false},
		{StateClosed, StateClosed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, canTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	var got []protocol.GameMessage
	c, err := New(Config{
		RoomID:    "ABCD2345",
		LocalID:   models.HostPeerID,
		RemoteID:  "abc123xyz",
		Role:      RoleHost,
		Signaler:  nopSignaler{},
		Logger:    logger,
		OnMessage: func(m protocol.GameMessage) { got = append(got, m) },
	})
	require.NoError(t, err)
	defer c.Close()

	c.handleFrame([]byte("not json"))
	c.handleFrame([]byte(`{"type":"teleport","senderId":"abc123xyz","timestamp":1,"data":{}}`))
	c.handleFrame([]byte(`{"senderId":"abc123xyz","timestamp":1}`))
	assert.Empty(t, got)

	c.handleFrame([]byte(`{"type":"player-action","senderId":"abc123xyz","timestamp":5,"data":{"action":"roll"}}`))
	require.Len(t, got, 1)
	assert.Equal(t, protocol.PlayerAction{Action: "roll"}, got[0].Payload)
	assert.Equal(t, StateDisconnected, c.State())
}
