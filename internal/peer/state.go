package peer

import "github.com/mossy-p/peerlobby/internal/protocol"

// State is the lifecycle state of a Controller
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
	StateClosed       State = "closed" // terminal
)

// canTransition encodes the controller lifecycle:
//
//	disconnected -> connecting -> connected
//	connecting|connected -> error
//	any -> closed
func canTransition(from, to State) bool {
	if from == StateClosed {
		return false
	}
	switch to {
	case StateConnecting:
		return from == StateDisconnected
	case StateConnected:
		return from == StateConnecting
	case StateError:
		return from == StateConnecting || from == StateConnected
	case StateClosed:
		return true
	}
	return false
}

// ConnectionStatus maps a controller state onto the player status badge.
// A closed controller shows as disconnected.
func (s State) ConnectionStatus() protocol.ConnectionStatus {
	switch s {
	case StateConnecting:
		return protocol.StatusConnecting
	case StateConnected:
		return protocol.StatusConnected
	case StateError:
		return protocol.StatusError
	}
	return protocol.StatusDisconnected
}
