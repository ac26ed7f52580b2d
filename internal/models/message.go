package models

import "encoding/json"

// SignalType represents the type of handshake message carried by the relay
type SignalType string

const (
	SignalTypeOffer     SignalType = "offer"
	SignalTypeAnswer    SignalType = "answer"
	SignalTypeCandidate SignalType = "candidate"
)

// Valid reports whether t is one of the handshake types the relay accepts
func (t SignalType) Valid() bool {
	switch t {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypeCandidate:
		return true
	}
	return false
}

// SignalingMessage is a write-once handshake message stored by the relay.
// A nil RecipientID means the message is broadcast to the whole room.
type SignalingMessage struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"senderId"`
	RecipientID *string         `json:"recipientId"`
	Type        SignalType      `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

// IsFor reports whether the message should be delivered to peerID.
// Broadcasts are never echoed back to their sender.
func (m SignalingMessage) IsFor(peerID string) bool {
	if m.RecipientID == nil {
		return m.SenderID != peerID
	}
	return *m.RecipientID == peerID
}

// PostMessageRequest is the request body for posting a message to a room
type PostMessageRequest struct {
	SenderID    string          `json:"senderId" binding:"required"`
	RecipientID *string         `json:"recipientId"`
	Type        SignalType      `json:"type" binding:"required"`
	Data        json.RawMessage `json:"data"`
}

// PostMessageResponse is returned once the relay has stored a message
type PostMessageResponse struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

// MessagesResponse is the response for fetching messages since a watermark
type MessagesResponse struct {
	Messages []SignalingMessage `json:"messages"`
}
