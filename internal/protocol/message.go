// Package protocol defines the game message envelope exchanged over an
// established peer connection, and the closed set of payloads it can carry.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the payload carried by a GameMessage
type MessageType string

const (
	TypeJoinRequest     MessageType = "join-request"
	TypeJoinResponse    MessageType = "join-response"
	TypeGameStateUpdate MessageType = "game-state-update"
	TypePlayerAction    MessageType = "player-action"
	TypeConnectionTest  MessageType = "connection-test"
	TypeDisconnect      MessageType = "disconnect"
	TypeError           MessageType = "error"
)

var (
	// ErrMalformed is returned for frames that are not a valid envelope
	ErrMalformed = errors.New("malformed game message")
	// ErrUnknownType is returned for envelopes with a type outside the protocol
	ErrUnknownType = errors.New("unknown game message type")
)

// Payload is implemented by every message body the protocol knows about
type Payload interface {
	MessageType() MessageType
}

// GameMessage is the envelope sent over a peer data channel
type GameMessage struct {
	Type      MessageType
	SenderID  string
	Timestamp int64 // epoch milliseconds
	Payload   Payload
}

type envelope struct {
	Type      MessageType     `json:"type"`
	SenderID  string          `json:"senderId"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New wraps payload in an envelope stamped with the current time
func New(senderID string, payload Payload) GameMessage {
	return GameMessage{
		Type:      payload.MessageType(),
		SenderID:  senderID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
}

// MarshalJSON encodes the message as {type, senderId, timestamp, data}
func (m GameMessage) MarshalJSON() ([]byte, error) {
	env := envelope{
		Type:      m.Type,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
	}
	if m.Payload != nil {
		if env.Type == "" {
			env.Type = m.Payload.MessageType()
		}
		data, err := json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", env.Type, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Parse decodes and validates a raw frame. Frames that are not JSON, lack a
// type or sender, or carry a payload that does not fit their type are rejected.
func Parse(raw []byte) (GameMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return GameMessage{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Type == "" {
		return GameMessage{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if env.SenderID == "" {
		return GameMessage{}, fmt.Errorf("%w: missing senderId", ErrMalformed)
	}

	payload, err := DecodePayload(env.Type, env.Data)
	if err != nil {
		return GameMessage{}, err
	}
	return GameMessage{
		Type:      env.Type,
		SenderID:  env.SenderID,
		Timestamp: env.Timestamp,
		Payload:   payload,
	}, nil
}

// DecodePayload decodes data into the payload type registered for t
func DecodePayload(t MessageType, data json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case TypeJoinRequest:
		p = &JoinRequest{}
	case TypeJoinResponse:
		p = &JoinResponse{}
	case TypeGameStateUpdate:
		p = &GameState{}
	case TypePlayerAction:
		p = &PlayerAction{}
	case TypeConnectionTest:
		p = &ConnectionTest{}
	case TypeDisconnect:
		p = &Disconnect{}
	case TypeError:
		p = &ErrorMessage{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if trimmed[0] != '{' {
			return nil, fmt.Errorf("%w: %s data must be an object", ErrMalformed, t)
		}
		if err := json.Unmarshal(trimmed, p); err != nil {
			return nil, fmt.Errorf("%w: %s data: %v", ErrMalformed, t, err)
		}
	}
	if v, ok := p.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, t, err)
		}
	}
	return deref(p), nil
}

// deref returns payloads by value so handlers can type-switch on value types.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *JoinRequest:
		return *v
	case *JoinResponse:
		return *v
	case *GameState:
		return *v
	case *PlayerAction:
		return *v
	case *ConnectionTest:
		return *v
	case *Disconnect:
		return *v
	case *ErrorMessage:
		return *v
	}
	return p
}
