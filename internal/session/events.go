package session

import "github.com/mossy-p/peerlobby/internal/protocol"

// Events are the callbacks a UI registers with a session manager. Any field
// may be nil. Callbacks run on connection goroutines and must not block.
type Events struct {
	// RosterChanged receives the full player list after any change.
	RosterChanged func(players []protocol.Player)
	// StatusChanged reports a connection badge change for one peer.
	StatusChanged func(peerID string, status protocol.ConnectionStatus)
	// GameState receives each authoritative snapshot from the host.
	GameState func(state protocol.GameState)
	// Message receives every game message after built-in handling.
	Message func(from string, msg protocol.GameMessage)
	// Error receives short human-readable failures.
	Error func(message string)
}

func (e Events) rosterChanged(players []protocol.Player) {
	if e.RosterChanged != nil {
		e.RosterChanged(players)
	}
}

func (e Events) statusChanged(peerID string, status protocol.ConnectionStatus) {
	if e.StatusChanged != nil {
		e.StatusChanged(peerID, status)
	}
}

func (e Events) gameState(state protocol.GameState) {
	if e.GameState != nil {
		e.GameState(state)
	}
}

func (e Events) message(from string, msg protocol.GameMessage) {
	if e.Message != nil {
		e.Message(from, msg)
	}
}

func (e Events) reportError(message string) {
	if e.Error != nil {
		e.Error(message)
	}
}
