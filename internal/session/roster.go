package session

import (
	"errors"
	"strings"

	"github.com/mossy-p/peerlobby/internal/protocol"
)

// DefaultMaxPlayers is the room cap, host included.
const DefaultMaxPlayers = 16

// Join rejections. Their messages are sent verbatim as join-response.error.
var (
	ErrNameTaken    = errors.New("name taken")
	ErrRoomFull     = errors.New("room full")
	ErrNameRequired = errors.New("name required")
)

const placeholderName = "Connecting..."

type rosterEntry struct {
	player protocol.Player
	joined bool
}

// Roster is the host's ordered set of players. Provisional entries for
// in-flight connections are listed but hold no seat until admitted.
// Roster is not safe for concurrent use.
type Roster struct {
	max     int
	order   []string
	entries map[string]*rosterEntry
}

// NewRoster creates an empty roster holding at most maxPlayers admitted players.
func NewRoster(maxPlayers int) *Roster {
	if maxPlayers <= 0 {
		maxPlayers = DefaultMaxPlayers
	}
	return &Roster{max: maxPlayers, entries: make(map[string]*rosterEntry)}
}

// AddHost registers the local host player as admitted and connected.
func (r *Roster) AddHost(id, name string) {
	r.put(id, &rosterEntry{
		player: protocol.Player{ID: id, Name: name, IsHost: true, ConnectionStatus: protocol.StatusConnected},
		joined: true,
	})
}

// AddProvisional lists a peer whose connection is still being negotiated.
// It is a no-op for known peers.
func (r *Roster) AddProvisional(id string) bool {
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.put(id, &rosterEntry{
		player: protocol.Player{ID: id, Name: placeholderName, ConnectionStatus: protocol.StatusConnecting},
	})
	return true
}

func (r *Roster) put(id string, e *rosterEntry) {
	if _, ok := r.entries[id]; !ok {
		r.order = append(r.order, id)
	}
	r.entries[id] = e
}

// Admit validates a join request from a listed peer and promotes it. A
// rejected peer keeps its provisional entry. Re-admitting a joined peer under
// its current name succeeds without taking another seat.
func (r *Roster) Admit(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	e, ok := r.entries[id]
	if !ok {
		e = &rosterEntry{player: protocol.Player{ID: id, ConnectionStatus: protocol.StatusConnecting}}
	}

	for _, otherID := range r.order {
		other := r.entries[otherID]
		if otherID == id || !other.joined {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(other.player.Name), name) {
			return ErrNameTaken
		}
	}
	if !e.joined && r.JoinedCount() >= r.max {
		return ErrRoomFull
	}

	e.player.Name = name
	e.player.ConnectionStatus = protocol.StatusConnected
	e.joined = true
	r.put(id, e)
	return nil
}

// SetStatus updates a player's badge. It reports whether anything changed.
func (r *Roster) SetStatus(id string, status protocol.ConnectionStatus) bool {
	e, ok := r.entries[id]
	if !ok || e.player.ConnectionStatus == status {
		return false
	}
	e.player.ConnectionStatus = status
	return true
}

// Remove drops a player and reports whether it held a seat.
func (r *Roster) Remove(id string) (wasJoined bool) {
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e.joined
}

// Has reports whether id is listed.
func (r *Roster) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

// IsJoined reports whether id has been admitted.
func (r *Roster) IsJoined(id string) bool {
	e, ok := r.entries[id]
	return ok && e.joined
}

// JoinedCount returns the number of admitted players.
func (r *Roster) JoinedCount() int {
	n := 0
	for _, e := range r.entries {
		if e.joined {
			n++
		}
	}
	return n
}

// Players lists every entry in arrival order, provisional ones included.
func (r *Roster) Players() []protocol.Player {
	out := make([]protocol.Player, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].player)
	}
	return out
}

// Joined lists admitted players in arrival order.
func (r *Roster) Joined() []protocol.Player {
	out := make([]protocol.Player, 0, len(r.order))
	for _, id := range r.order {
		if e := r.entries[id]; e.joined {
			out = append(out, e.player)
		}
	}
	return out
}
