// Package memstore is an in-process relay mailbox, used when the relay runs
// without redis and in tests.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/peerlobby/internal/models"
)

type room struct {
	owner     string
	createdAt time.Time
	touched   time.Time
	last      int64
	messages  []models.SignalingMessage
}

// Store keeps room mailboxes in memory. Rooms idle longer than the TTL are
// dropped lazily on access.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*room
	ttl   time.Duration
	now   func() time.Time
}

func New(ttl time.Duration) *Store {
	return &Store{
		rooms: make(map[string]*room),
		ttl:   ttl,
		now:   time.Now,
	}
}

// getRoom returns the live room for roomID, creating it when create is set.
// Callers hold s.mu.
func (s *Store) getRoom(roomID string, create bool) *room {
	now := s.now()
	r, ok := s.rooms[roomID]
	if ok && s.ttl > 0 && now.Sub(r.touched) > s.ttl {
		delete(s.rooms, roomID)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		r = &room{createdAt: now}
		s.rooms[roomID] = r
	}
	r.touched = now
	return r
}

// Append stores msg, assigning its id and a timestamp strictly greater than
// any earlier message in the room.
func (s *Store) Append(ctx context.Context, roomID string, msg models.SignalingMessage) (models.SignalingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getRoom(roomID, true)
	ts := s.now().UnixMilli()
	if ts <= r.last {
		ts = r.last + 1
	}
	r.last = ts

	msg.ID = uuid.New().String()
	msg.Timestamp = ts
	r.messages = append(r.messages, msg)
	return msg, nil
}

// Since returns the room's messages with a timestamp after since, oldest first.
func (s *Store) Since(ctx context.Context, roomID string, since int64) ([]models.SignalingMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getRoom(roomID, false)
	if r == nil {
		return nil, nil
	}
	var out []models.SignalingMessage
	for _, m := range r.messages {
		if m.Timestamp > since {
			out = append(out, m)
		}
	}
	return out, nil
}

// Clear drops the room's messages and returns how many were removed.
func (s *Store) Clear(ctx context.Context, roomID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getRoom(roomID, false)
	if r == nil {
		return 0, nil
	}
	n := len(r.messages)
	r.messages = nil
	return n, nil
}

// Claim records peerID as the room owner if nobody owns it yet. It returns
// the current owner and whether peerID holds the claim.
func (s *Store) Claim(ctx context.Context, roomID, peerID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getRoom(roomID, true)
	if r.owner == "" {
		r.owner = peerID
	}
	return r.owner, r.owner == peerID, nil
}

// Room returns metadata for roomID
func (s *Store) Room(ctx context.Context, roomID string) (models.RoomMetadata, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getRoom(roomID, false)
	if r == nil {
		return models.RoomMetadata{}, false, nil
	}
	return models.RoomMetadata{
		Code:         roomID,
		HostPeerID:   r.owner,
		CreatedAt:    r.createdAt,
		MessageCount: len(r.messages),
	}, true, nil
}
