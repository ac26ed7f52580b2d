package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/sirupsen/logrus"
)

// MessageStore is the relay mailbox. Implementations assign message ids and
// per-room strictly increasing timestamps.
type MessageStore interface {
	Append(ctx context.Context, roomID string, msg models.SignalingMessage) (models.SignalingMessage, error)
	Since(ctx context.Context, roomID string, since int64) ([]models.SignalingMessage, error)
	Clear(ctx context.Context, roomID string) (int, error)
	Claim(ctx context.Context, roomID, peerID string) (owner string, claimed bool, err error)
	Room(ctx context.Context, roomID string) (models.RoomMetadata, bool, error)
}

// maxPayloadBytes bounds a single handshake payload. SDP blobs are a few KB.
const maxPayloadBytes = 64 << 10

// Relay serves the store-and-forward signaling surface
type Relay struct {
	store     MessageStore
	jwtSecret string
	roomTTL   time.Duration
	log       logrus.FieldLogger
}

func NewRelay(store MessageStore, jwtSecret string, roomTTL time.Duration, logger logrus.FieldLogger) *Relay {
	return &Relay{
		store:     store,
		jwtSecret: jwtSecret,
		roomTTL:   roomTTL,
		log:       logger,
	}
}

// roomParam returns the validated room code from the path
func roomParam(c *gin.Context) (string, bool) {
	roomID := c.Param("roomId")
	if !models.ValidRoomCode(roomID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid room code"})
		return "", false
	}
	return roomID, true
}

// PostMessage stores a handshake message for later pickup
func (r *Relay) PostMessage(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes)
	var req models.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown message type"})
		return
	}
	if !models.ValidAddress(req.SenderID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid senderId"})
		return
	}
	if req.RecipientID != nil && !models.ValidAddress(*req.RecipientID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid recipientId"})
		return
	}

	msg, err := r.store.Append(c.Request.Context(), roomID, models.SignalingMessage{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Type:        req.Type,
		Data:        req.Data,
	})
	if err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Error("Failed to store message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store message"})
		return
	}

	r.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"from":    req.SenderID,
		"type":    req.Type,
	}).Debug("Stored signaling message")

	c.JSON(http.StatusOK, models.PostMessageResponse{ID: msg.ID, Timestamp: msg.Timestamp})
}

// GetMessages returns messages for a peer newer than the since watermark
func (r *Relay) GetMessages(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}

	peerID := c.Query("peerId")
	if !models.ValidAddress(peerID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid peerId"})
		return
	}
	since := int64(0)
	if s := c.Query("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since"})
			return
		}
		since = v
	}

	all, err := r.store.Since(c.Request.Context(), roomID, since)
	if err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Error("Failed to read messages")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read messages"})
		return
	}

	out := make([]models.SignalingMessage, 0, len(all))
	for _, m := range all {
		if m.IsFor(peerID) {
			out = append(out, m)
		}
	}
	c.JSON(http.StatusOK, models.MessagesResponse{Messages: out})
}

// DeleteMessages clears a room's mailbox (requires the room token)
func (r *Relay) DeleteMessages(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}
	if c.GetString("room_id") != roomID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token does not belong to this room"})
		return
	}

	n, err := r.store.Clear(c.Request.Context(), roomID)
	if err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Error("Failed to clear room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear room"})
		return
	}

	r.log.WithFields(logrus.Fields{"room_id": roomID, "deleted": n}).Info("Room mailbox cleared")
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
