package handlers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mossy-p/peerlobby/internal/middleware"
)

// issueRoomToken signs a token proving that peerID claimed roomID
func issueRoomToken(jwtSecret, roomID, peerID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := middleware.RoomClaims{
		RoomID: roomID,
		PeerID: peerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}
