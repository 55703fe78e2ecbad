// Package protocol implements the peerlink wire format.
//
// Every datagram starts with a one-byte header followed by a type-specific
// body encoded with package serializer. All multi-byte integers are
// big-endian.
//
// # Header
//
//	┌──────────────┬──────────┬─────────────┬──────────────┐
//	│ conn phase   │ chunked  │ channel     │ type         │
//	│ (bit 7)      │ (bit 6)  │ (bits 5..4) │ (bits 3..0)  │
//	└──────────────┴──────────┴─────────────┴──────────────┘
//
// The type space is disjoint per phase. Connection-phase packets always use
// channel 0 and are never chunked.
//
// # Connection Phase
//
//   - ConnectionRequest (0): no body
//   - ConnectionChallenge (1): challenge u64
//   - ChallengeAnswer (2): answer [32]byte, username string, color 3 bytes
//   - ConnectionAccepted (3): peer ID u32, host name string, max peers u32
//   - ConnectionDenied (4): reason u8
//   - ConnectionClosed (5): reason u8
//
// # Data Phase
//
//   - Ack (0): sequence u16
//   - ChunkAck (1): sequence u16, slice index u16
//   - Data (2): sequence u16, data body
//   - ClientUpdate (3): sequence u16, client update body
//   - ServerUpdate (4): sequence u16, server update body
//
// A body too large for one datagram is sent as slices. A chunked datagram
// carries the inner packet type in its header, then a ChunkHeader
// {sequence u16, slice index u16, slice count u16}, then the slice bytes.
// Concatenating the slices in index order yields the body without its
// sequence.
//
// # Data Body
//
//	[route:2 bits][routing fields][typed record:1 bit][pad][data ID u32][payload...]
//
// Routing fields are a target u32 (ToOne), a uvarint count and that many
// u32 targets (ToMany, count 0 means every peer but the sender), a sender
// u32 (Forwarded) or nothing (ToHost).
package protocol
