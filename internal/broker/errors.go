package broker

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSlotOccupied    = errors.New("secondary slot occupied")
	ErrPrimaryGone     = errors.New("primary disconnected")
	// ErrSelfJoin is returned when the primary of a session tries to join it
	// as the secondary.
	ErrSelfJoin = errors.New("connection already owns session")
	// ErrCodeSpaceExhausted is returned by Create when no unused code could be
	// allocated.
	ErrCodeSpaceExhausted = errors.New("session code space exhausted")
)
