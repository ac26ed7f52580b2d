package signaling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/sirupsen/logrus"
)

// pollLoop is the polling state for one (room, peer) pair. The watermark and
// the backoff belong to the loop, so concurrent rooms never interfere.
type pollLoop struct {
	roomID    string
	peerID    string
	onMessage func(models.SignalingMessage)
	cancel    context.CancelFunc

	mu       sync.Mutex
	lastSeen int64
	backoff  *Backoff
}

func pollKey(roomID, peerID string) string {
	return roomID + ":" + peerID
}

// StartPolling begins fetching messages for (roomID, peerID) on an adaptive
// interval, calling onMessage once per new message in arrival order. Calling
// it again for the same pair replaces the previous loop.
func (c *Client) StartPolling(roomID, peerID string, onMessage func(models.SignalingMessage)) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := &pollLoop{
		roomID:    roomID,
		peerID:    peerID,
		onMessage: onMessage,
		cancel:    cancel,
		backoff:   NewBackoff(c.backoff),
	}

	key := pollKey(roomID, peerID)
	c.mu.Lock()
	if old, ok := c.loops[key]; ok {
		old.cancel()
	}
	c.loops[key] = loop
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"room_id": roomID, "peer_id": peerID}).Debug("Started relay polling")
	go c.run(ctx, loop)
}

// StopPolling cancels the loop for (roomID, peerID) and drops its watermark.
// It is safe to call more than once and from inside onMessage.
func (c *Client) StopPolling(roomID, peerID string) {
	key := pollKey(roomID, peerID)
	c.mu.Lock()
	loop, ok := c.loops[key]
	delete(c.loops, key)
	c.mu.Unlock()

	if ok {
		loop.cancel()
		c.log.WithFields(logrus.Fields{"room_id": roomID, "peer_id": peerID}).Debug("Stopped relay polling")
	}
}

// StopAll cancels every polling loop owned by the client.
func (c *Client) StopAll() {
	c.mu.Lock()
	loops := c.loops
	c.loops = make(map[string]*pollLoop)
	c.mu.Unlock()

	for _, loop := range loops {
		loop.cancel()
	}
}

// Interval reports the current polling delay for (roomID, peerID), or zero if
// the pair is not being polled.
func (c *Client) Interval(roomID, peerID string) time.Duration {
	c.mu.Lock()
	loop, ok := c.loops[pollKey(roomID, peerID)]
	c.mu.Unlock()
	if !ok {
		return 0
	}
	loop.mu.Lock()
	defer loop.mu.Unlock()
	return loop.backoff.Interval()
}

func (c *Client) run(ctx context.Context, loop *pollLoop) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		delivered, err := c.pollOnce(ctx, loop)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"room_id": loop.roomID,
				"peer_id": loop.peerID,
			}).Debug("Relay poll failed")
		}

		loop.mu.Lock()
		next := loop.backoff.Next(delivered, err)
		loop.mu.Unlock()
		timer.Reset(next)
	}
}

// pollOnce fetches and delivers everything newer than the loop's watermark.
func (c *Client) pollOnce(ctx context.Context, loop *pollLoop) (int, error) {
	loop.mu.Lock()
	since := loop.lastSeen
	loop.mu.Unlock()

	msgs, err := c.Fetch(ctx, loop.roomID, loop.peerID, since)
	if err != nil {
		return 0, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp < msgs[j].Timestamp
	})

	delivered := 0
	high := since
	for _, msg := range msgs {
		if msg.Timestamp <= since || !msg.IsFor(loop.peerID) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		loop.onMessage(msg)
		delivered++
		if msg.Timestamp > high {
			high = msg.Timestamp
		}
	}

	loop.mu.Lock()
	if high > loop.lastSeen {
		loop.lastSeen = high
	}
	loop.mu.Unlock()
	return delivered, nil
}
