package models

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	// RoomCodeLength is the length of a shareable room code
	RoomCodeLength = 8
	// PeerIDLength is the length of a locally generated peer identity
	PeerIDLength = 9

	// HostPeerID is the well-known identity clients address the host with.
	HostPeerID = "host"

	codeChars   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
	peerIDChars = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// GenerateRoomCode generates a random room code
func GenerateRoomCode() string {
	return randomString(RoomCodeLength, codeChars)
}

// GeneratePeerID generates a random peer identity. The result never collides
// with the reserved host identity.
func GeneratePeerID() string {
	for {
		id := randomString(PeerIDLength, peerIDChars)
		if !IsReservedPeerID(id) {
			return id
		}
	}
}

// NormalizeRoomCode trims and upper-cases user-typed room codes
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode checks the shape of a room code: 8 uppercase letters or digits
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// ValidPeerID checks the shape of a generated peer identity. The reserved
// host identity is not a valid generated identity.
func ValidPeerID(id string) bool {
	if len(id) != PeerIDLength || IsReservedPeerID(id) {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// ValidAddress reports whether id can be used to address a relay message
func ValidAddress(id string) bool {
	return id == HostPeerID || ValidPeerID(id)
}

// IsReservedPeerID reports whether id is a reserved protocol identity
func IsReservedPeerID(id string) bool {
	return strings.EqualFold(id, HostPeerID)
}

func randomString(n int, alphabet string) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		out[i] = alphabet[v.Int64()]
	}
	return string(out)
}
