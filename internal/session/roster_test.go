package session

import (
	"fmt"
	"testing"

	"github.com/mossy-p/peerlobby/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRosterNameTakenIsIdempotent(t *testing.T) {
	r := NewRoster(0)
	r.AddHost("hostid123", "Hana")
	r.AddProvisional("alice0001")
	require.NoError(t, r.Admit("alice0001", "Alice"))

	r.AddProvisional("p10000001")
	for i := 0; i < 2; i++ {
		err := r.Admit("p10000001", "Alice")
		assert.ErrorIs(t, err, ErrNameTaken)
		assert.Equal(t, "name taken", err.Error())
		assert.Equal(t, 2, r.JoinedCount())
	}
	assert.ErrorIs(t, r.Admit("p10000001", "  alice "), ErrNameTaken, "names compare case-insensitively")
	assert.False(t, r.IsJoined("p10000001"))
	assert.True(t, r.Has("p10000001"), "rejected peers keep their provisional entry")
}

func TestRosterCapacity(t *testing.T) {
	r := NewRoster(DefaultMaxPlayers)
	r.AddHost("hostid123", "Host")
	for i := 1; i < DefaultMaxPlayers; i++ {
		id := fmt.Sprintf("peer%05d", i)
		r.AddProvisional(id)
		require.NoError(t, r.Admit(id, fmt.Sprintf("Player %d", i)))
	}
	require.Equal(t, 16, r.JoinedCount())

	r.AddProvisional("latecomer")
	err := r.Admit("latecomer", "Late")
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 16, r.JoinedCount())
	assert.Len(t, r.Players(), 17)
	assert.Len(t, r.Joined(), 16)

	assert.NoError(t, r.Admit("peer00001", "Player 1"), "a joined player may repeat its own join")
	assert.Equal(t, 16, r.JoinedCount())

	assert.True(t, r.Remove("peer00002"))
	assert.NoError(t, r.Admit("latecomer", "Late"))
	assert.Equal(t, 16, r.JoinedCount())
}

func TestRosterNameRequired(t *testing.T) {
	r := NewRoster(4)
	r.AddProvisional("abc123xyz")
	assert.ErrorIs(t, r.Admit("abc123xyz", "   "), ErrNameRequired)
}

func TestRosterOrderAndStatus(t *testing.T) {
	r := NewRoster(4)
	r.AddHost("hostid123", "Host")
	r.AddProvisional("bbbbbbbbb")
	r.AddProvisional("aaaaaaaaa")
	assert.False(t, r.AddProvisional("aaaaaaaaa"))

	players := r.Players()
	require.Len(t, players, 3)
	assert.True(t, players[0].IsHost)
	assert.Equal(t, "bbbbbbbbb", players[1].ID)
	assert.Equal(t, protocol.StatusConnecting, players[1].ConnectionStatus)

	assert.True(t, r.SetStatus("bbbbbbbbb", protocol.StatusError))
	assert.False(t, r.SetStatus("bbbbbbbbb", protocol.StatusError))
	assert.False(t, r.SetStatus("nobody123", protocol.StatusError))

	assert.False(t, r.Remove("bbbbbbbbb"), "provisional entries hold no seat")
	assert.Equal(t, []string{"hostid123", "aaaaaaaaa"}, ids(r.Players()))
}

func ids(players []protocol.Player) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.ID
	}
	return out
}
