package models

import (
	"net/url"
	"strings"
	"time"
)

// RoomMetadata stores information about a room known to the relay
type RoomMetadata struct {
	Code         string    `json:"code"`
	HostPeerID   string    `json:"hostPeerId"` // Peer that claimed the room code
	CreatedAt    time.Time `json:"createdAt"`
	MessageCount int       `json:"messageCount"`
}

// ClaimRoomRequest is the request body for claiming a room code
type ClaimRoomRequest struct {
	PeerID string `json:"peerId" binding:"required"`
}

// ClaimRoomResponse carries the room token used to clean up the mailbox
type ClaimRoomResponse struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

// ShareURL builds the link a host hands out so others can join its room,
// in the form "?join=roomId=<code>&hostName=<name>".
func ShareURL(base, roomID, hostName string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	link := base + sep + "join=roomId=" + url.QueryEscape(roomID)
	if hostName != "" {
		link += "&hostName=" + url.QueryEscape(hostName)
	}
	return link
}

// ParseShareURL extracts the room code and host name from a share link.
// Both "join=roomId=<code>" and the short "join=<code>" forms are accepted.
func ParseShareURL(link string) (roomID, hostName string, ok bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", "", false
	}
	q := u.Query()
	join := q.Get("join")
	join = strings.TrimPrefix(join, "roomId=")
	if i := strings.IndexByte(join, '&'); i >= 0 {
		join = join[:i]
	}
	join = NormalizeRoomCode(join)
	if !ValidRoomCode(join) {
		return "", "", false
	}
	return join, q.Get("hostName"), true
}
