package signaling

import "errors"

var (
	ErrTooManyClients = errors.New("too many clients")
	ErrRoomExists     = errors.New("room id already exists")
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room is full")
	// ErrAlreadyInRoom is returned when a client that is already host or viewer
	// of a room attempts to create or join another one. A client belongs to at
	// most one room at a time.
	ErrAlreadyInRoom = errors.New("already in a room")
)
