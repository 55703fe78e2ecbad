package session

import "errors"

// Session errors.
var (
	ErrClosed        = errors.New("session: closed")
	ErrNotConnected  = errors.New("session: not connected")
	ErrUnknownPeer   = errors.New("session: unknown peer")
	ErrInvalidTarget = errors.New("session: invalid target")
)
