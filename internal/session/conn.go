package session

import (
	"context"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/mossy-p/peerlobby/internal/peer"
	"github.com/mossy-p/peerlobby/internal/protocol"
)

// Relay is the part of the signaling client the session managers use.
// *signaling.Client implements it.
type Relay interface {
	Send(ctx context.Context, roomID, senderID string, t models.SignalType, data any, recipientID string) bool
	StartPolling(roomID, peerID string, onMessage func(models.SignalingMessage))
	StopPolling(roomID, peerID string)
	ClaimRoom(ctx context.Context, roomID, peerID string) (string, error)
	ClearRoom(ctx context.Context, roomID, token string) error
}

// conn is the view of a peer.Controller the managers depend on.
type conn interface {
	Start() error
	HandleSignal(msg models.SignalingMessage) error
	Send(msg protocol.GameMessage) error
	State() peer.State
	Close() error
}

type connFactory func(cfg peer.Config) (conn, error)

func newPeerConn(cfg peer.Config) (conn, error) {
	c, err := peer.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}
