package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/peerlobby/internal/models"
	"github.com/sirupsen/logrus"
)

// ClaimRoom reserves a room code for the calling host and returns a room
// token. Claiming a code owned by another peer fails with 409 so the host
// can pick a new code.
func (r *Relay) ClaimRoom(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}

	var req models.ClaimRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Every host polls as "host", so only a generated id can own a room.
	if !models.ValidPeerID(req.PeerID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid peerId"})
		return
	}

	owner, claimed, err := r.store.Claim(c.Request.Context(), roomID, req.PeerID)
	if err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Error("Failed to claim room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim room"})
		return
	}
	if !claimed {
		c.JSON(http.StatusConflict, gin.H{"error": "Room code already in use"})
		return
	}

	token, err := issueRoomToken(r.jwtSecret, roomID, owner, r.roomTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	r.log.WithFields(logrus.Fields{"room_id": roomID, "peer_id": owner}).Info("Room claimed")
	c.JSON(http.StatusCreated, models.ClaimRoomResponse{RoomID: roomID, Token: token})
}

// GetRoom gets room information by code (public)
func (r *Relay) GetRoom(c *gin.Context) {
	roomID, ok := roomParam(c)
	if !ok {
		return
	}

	room, found, err := r.store.Room(c.Request.Context(), roomID)
	if err != nil {
		r.log.WithError(err).WithField("room_id", roomID).Error("Failed to read room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read room"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	c.JSON(http.StatusOK, room)
}
