package protocol

import "errors"

// Decoding errors. Truncated bodies surface as serializer.ErrOutOfRange.
var (
	ErrUnknownPacketType = errors.New("protocol: unknown packet type")
	ErrInvalidHeader     = errors.New("protocol: invalid header")
	ErrInvalidChunk      = errors.New("protocol: invalid chunk header")
	ErrInvalidRoute      = errors.New("protocol: invalid data route")
	ErrInvalidUpdate     = errors.New("protocol: invalid update kind")
	ErrTrailingBytes     = errors.New("protocol: trailing bytes after body")
	ErrEmptyDatagram     = errors.New("protocol: empty datagram")
)
