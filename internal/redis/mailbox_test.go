package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMailbox(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := New(rdb, time.Hour)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestAppendAndSince(t *testing.T) {
	c, _ := newTestMailbox(t)
	ctx := context.Background()

	to := "abc123xyz"
	first, err := c.Append(ctx, "ABCD2345", models.SignalingMessage{
		SenderID:    "host",
		RecipientID: &to,
		Type:        models.SignalTypeAnswer,
		Data:        json.RawMessage(`{"type":"answer","sdp":"v=0"}`),
	})
	require.NoError(t, err)
	second, err := c.Append(ctx, "ABCD2345", models.SignalingMessage{SenderID: "host", Type: models.SignalTypeCandidate})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.Greater(t, second.Timestamp, first.Timestamp)

	all, err := c.Since(ctx, "ABCD2345", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first.ID, all[0].ID)
	require.NotNil(t, all[0].RecipientID)
	assert.Equal(t, to, *all[0].RecipientID)
	assert.JSONEq(t, `{"type":"answer","sdp":"v=0"}`, string(all[0].Data))
	assert.Nil(t, all[1].RecipientID)

	later, err := c.Since(ctx, "ABCD2345", first.Timestamp)
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, second.ID, later[0].ID)
}

func TestAppend_SameMillisecondStillOrdered(t *testing.T) {
	c, _ := newTestMailbox(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 20; i++ {
		m, err := c.Append(ctx, "ABCD2345", models.SignalingMessage{SenderID: "host", Type: models.SignalTypeCandidate})
		require.NoError(t, err)
		assert.Greater(t, m.Timestamp, last)
		last = m.Timestamp
	}
}

func TestClaimAndRoom(t *testing.T) {
	c, _ := newTestMailbox(t)
	ctx := context.Background()

	_, found, err := c.Room(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.False(t, found)

	owner, ok, err := c.Claim(ctx, "ABCD2345", "hostid123")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hostid123", owner)

	owner, ok, err = c.Claim(ctx, "ABCD2345", "abc123xyz")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "hostid123", owner)

	_, _ = c.Append(ctx, "ABCD2345", models.SignalingMessage{SenderID: "host", Type: models.SignalTypeOffer})
	meta, found, err := c.Room(ctx, "ABCD2345")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hostid123", meta.HostPeerID)
	assert.Equal(t, 1, meta.MessageCount)
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestClear(t *testing.T) {
	c, mr := newTestMailbox(t)
	ctx := context.Background()

	_, _ = c.Append(ctx, "ABCD2345", models.SignalingMessage{SenderID: "host", Type: models.SignalTypeOffer})
	_, _ = c.Append(ctx, "ABCD2345", models.SignalingMessage{SenderID: "host", Type: models.SignalTypeOffer})

	n, err := c.Clear(ctx, "ABCD2345")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("room:ABCD2345:messages"))
}

func TestMessagesExpire(t *testing.T) {
	c, mr := newTestMailbox(t)
	ctx := context.Background()

	_, err := c.Append(ctx, "ABCD2345", models.SignalingMessage{SenderID: "host", Type: models.SignalTypeOffer})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	got, err := c.Since(ctx, "ABCD2345", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
