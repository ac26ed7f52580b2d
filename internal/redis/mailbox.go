package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/redis/go-redis/v9"
)

// Keys per room:
//
//	room:{id}           hash  host, createdAt
//	room:{id}:messages  zset  message JSON scored by timestamp
//	room:{id}:clock     last assigned timestamp
func roomKey(roomID string) string     { return "room:" + roomID }
func messagesKey(roomID string) string { return "room:" + roomID + ":messages" }
func clockKey(roomID string) string    { return "room:" + roomID + ":clock" }

// appendScript assigns a timestamp strictly greater than the room's last one
// and stores the message under it atomically.
var appendScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local last = tonumber(redis.call('GET', KEYS[2]) or '0')
if now <= last then now = last + 1 end
redis.call('SET', KEYS[2], now, 'PX', ARGV[3])
redis.call('ZADD', KEYS[1], now, ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return now
`)

// stored is the member written to the sorted set; the timestamp lives in the score.
type stored struct {
	ID          string            `json:"id"`
	SenderID    string            `json:"senderId"`
	RecipientID *string           `json:"recipientId"`
	Type        models.SignalType `json:"type"`
	Data        json.RawMessage   `json:"data,omitempty"`
}

// Append stores msg with a fresh id and a per-room monotonic timestamp
func (c *Client) Append(ctx context.Context, roomID string, msg models.SignalingMessage) (models.SignalingMessage, error) {
	msg.ID = uuid.New().String()
	member, err := json.Marshal(stored{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Type:        msg.Type,
		Data:        msg.Data,
	})
	if err != nil {
		return models.SignalingMessage{}, fmt.Errorf("marshal message: %w", err)
	}

	ts, err := appendScript.Run(ctx, c.rdb,
		[]string{messagesKey(roomID), clockKey(roomID)},
		time.Now().UnixMilli(), string(member), c.ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return models.SignalingMessage{}, fmt.Errorf("append message: %w", err)
	}
	c.rdb.Expire(ctx, roomKey(roomID), c.ttl)

	msg.Timestamp = ts
	return msg, nil
}

// Since returns the room's messages with a timestamp after since, oldest first
func (c *Client) Since(ctx context.Context, roomID string, since int64) ([]models.SignalingMessage, error) {
	entries, err := c.rdb.ZRangeByScoreWithScores(ctx, messagesKey(roomID), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(since, 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	out := make([]models.SignalingMessage, 0, len(entries))
	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var s stored
		if err := json.Unmarshal([]byte(member), &s); err != nil {
			continue
		}
		out = append(out, models.SignalingMessage{
			ID:          s.ID,
			SenderID:    s.SenderID,
			RecipientID: s.RecipientID,
			Type:        s.Type,
			Data:        s.Data,
			Timestamp:   int64(z.Score),
		})
	}
	return out, nil
}

// Clear deletes the room's messages and returns how many were removed
func (c *Client) Clear(ctx context.Context, roomID string) (int, error) {
	n, err := c.rdb.ZCard(ctx, messagesKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	if err := c.rdb.Del(ctx, messagesKey(roomID), clockKey(roomID)).Err(); err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	return int(n), nil
}

// Claim records peerID as the room owner if the code is free
func (c *Client) Claim(ctx context.Context, roomID, peerID string) (string, bool, error) {
	key := roomKey(roomID)
	set, err := c.rdb.HSetNX(ctx, key, "host", peerID).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim room: %w", err)
	}
	if set {
		pipe := c.rdb.TxPipeline()
		pipe.HSet(ctx, key, "createdAt", time.Now().UnixMilli())
		pipe.Expire(ctx, key, c.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return "", false, fmt.Errorf("claim room: %w", err)
		}
		return peerID, true, nil
	}

	owner, err := c.rdb.HGet(ctx, key, "host").Result()
	if err != nil {
		return "", false, fmt.Errorf("read room owner: %w", err)
	}
	return owner, owner == peerID, nil
}

// Room returns metadata for roomID
func (c *Client) Room(ctx context.Context, roomID string) (models.RoomMetadata, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return models.RoomMetadata{}, false, fmt.Errorf("read room: %w", err)
	}
	count, err := c.rdb.ZCard(ctx, messagesKey(roomID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.RoomMetadata{}, false, fmt.Errorf("count messages: %w", err)
	}
	if len(fields) == 0 && count == 0 {
		return models.RoomMetadata{}, false, nil
	}

	meta := models.RoomMetadata{
		Code:         roomID,
		HostPeerID:   fields["host"],
		MessageCount: int(count),
	}
	if ms, err := strconv.ParseInt(fields["createdAt"], 10, 64); err == nil {
		meta.CreatedAt = time.UnixMilli(ms)
	}
	return meta, true, nil
}
