package session

import (
	"sync"

	"github.com/mossy-p/peerlobby/internal/protocol"
)

// Handler receives a game message together with the relay address of the
// peer it arrived from ("host" on the client side).
type Handler func(from string, msg protocol.GameMessage)

// dispatcher keeps an ordered list of handlers per message type. Registering
// never replaces an earlier handler.
type dispatcher struct {
	mu       sync.RWMutex
	handlers map[protocol.MessageType][]Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[protocol.MessageType][]Handler)}
}

func (d *dispatcher) on(t protocol.MessageType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

func (d *dispatcher) dispatch(from string, msg protocol.GameMessage) {
	d.mu.RLock()
	hs := d.handlers[msg.Type]
	d.mu.RUnlock()

	for _, h := range hs {
		h(from, msg)
	}
}
