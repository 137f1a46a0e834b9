// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"

	"github.com/google/uuid"
)

// RoomCapacity is fixed: rooms exist only to rendezvous one pair of peers.
const RoomCapacity = 2

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room full")
	ErrAlreadyInRoom = errors.New("already in a room")
	ErrTooManyRooms  = errors.New("too many rooms")
)

type RoomID string

// NewRoomID returns a fresh 128-bit random identifier. Room ids are never
// reused while live; collisions are cryptographically negligible.
func NewRoomID() RoomID {
	return RoomID(uuid.NewString())
}
