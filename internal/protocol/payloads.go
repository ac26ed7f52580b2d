package protocol

import (
	"encoding/json"
	"errors"
)

// ConnectionStatus is the coarse connection badge shown for a player
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
)

// Player is one roster entry
type Player struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	IsHost           bool             `json:"isHost"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
}

// JoinRequest asks the host to admit the sender under a display name
type JoinRequest struct {
	PlayerName string `json:"playerName"`
	PlayerID   string `json:"playerId"`
}

func (JoinRequest) MessageType() MessageType { return TypeJoinRequest }

// JoinResponse is the host's verdict on a JoinRequest
type JoinResponse struct {
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	PlayerID  string     `json:"playerId,omitempty"`
	GameState *GameState `json:"gameState,omitempty"`
}

func (JoinResponse) MessageType() MessageType { return TypeJoinResponse }

// GameState is the host's authoritative public view of the room: the
// admitted roster plus whatever public game state the host last published.
type GameState struct {
	Players []Player        `json:"players"`
	State   json.RawMessage `json:"state,omitempty"`
}

func (GameState) MessageType() MessageType { return TypeGameStateUpdate }

// PlayerAction carries a game-specific action from a player
type PlayerAction struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (PlayerAction) MessageType() MessageType { return TypePlayerAction }

func (a PlayerAction) validate() error {
	if a.Action == "" {
		return errors.New("missing action")
	}
	return nil
}

// ConnectionTest is a ping; the receiver echoes the nonce back with Reply set.
type ConnectionTest struct {
	Nonce  string `json:"nonce,omitempty"`
	Reply  bool   `json:"reply,omitempty"`
	SentAt int64  `json:"sentAt,omitempty"`
}

func (ConnectionTest) MessageType() MessageType { return TypeConnectionTest }

// Disconnect is a courtesy notice sent before a peer tears down its connection
type Disconnect struct {
	Reason string `json:"reason,omitempty"`
}

func (Disconnect) MessageType() MessageType { return TypeDisconnect }

// ErrorMessage reports a protocol-level problem to the remote peer
type ErrorMessage struct {
	Message string `json:"message"`
}

func (ErrorMessage) MessageType() MessageType { return TypeError }

func (e ErrorMessage) validate() error {
	if e.Message == "" {
		return errors.New("missing message")
	}
	return nil
}
