package protocol

import (
	"fmt"

	"github.com/vango-dev/peerlink/pkg/serializer"
)

// PeerID identifies an authenticated peer within one session.
type PeerID uint32

const (
	// NilPeerID means "not assigned".
	NilPeerID PeerID = 0

	// HostPeerID is reserved for the host itself.
	HostPeerID PeerID = 1

	// FirstClientPeerID is the lowest ID handed to a client.
	FirstClientPeerID PeerID = 2
)

// Channel selects the delivery guarantees of a packet.
type Channel uint8

const (
	ReliableOrdered     Channel = 0
	ReliableUnordered   Channel = 1
	UnreliableOrdered   Channel = 2
	UnreliableUnordered Channel = 3
)

// NumChannels is the number of logical channels.
const NumChannels = 4

// String returns the string representation of the channel.
func (c Channel) String() string {
	switch c {
	case ReliableOrdered:
		return "ReliableOrdered"
	case ReliableUnordered:
		return "ReliableUnordered"
	case UnreliableOrdered:
		return "UnreliableOrdered"
	case UnreliableUnordered:
		return "UnreliableUnordered"
	default:
		return "Unknown"
	}
}

// Valid reports whether c fits the two header bits.
func (c Channel) Valid() bool { return c < NumChannels }

// Reliable reports whether packets on c are acknowledged and retransmitted.
func (c Channel) Reliable() bool { return c == ReliableOrdered || c == ReliableUnordered }

// Ordered reports whether packets on c are delivered in sequence order.
func (c Channel) Ordered() bool { return c == ReliableOrdered || c == UnreliableOrdered }

// ConnectionType identifies a connection-phase packet.
type ConnectionType uint8

const (
	ConnectionRequest   ConnectionType = 0
	ConnectionChallenge ConnectionType = 1
	ChallengeAnswer     ConnectionType = 2
	ConnectionAccepted  ConnectionType = 3
	ConnectionDenied    ConnectionType = 4
	ConnectionClosed    ConnectionType = 5
)

// String returns the string representation of the connection packet type.
func (t ConnectionType) String() string {
	switch t {
	case ConnectionRequest:
		return "ConnectionRequest"
	case ConnectionChallenge:
		return "ConnectionChallenge"
	case ChallengeAnswer:
		return "ChallengeAnswer"
	case ConnectionAccepted:
		return "ConnectionAccepted"
	case ConnectionDenied:
		return "ConnectionDenied"
	case ConnectionClosed:
		return "ConnectionClosed"
	default:
		return "Unknown"
	}
}

// MessageType identifies a data-phase packet.
type MessageType uint8

const (
	MessageAck          MessageType = 0
	MessageChunkAck     MessageType = 1
	MessageData         MessageType = 2
	MessageClientUpdate MessageType = 3
	MessageServerUpdate MessageType = 4
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageAck:
		return "Ack"
	case MessageChunkAck:
		return "ChunkAck"
	case MessageData:
		return "Data"
	case MessageClientUpdate:
		return "ClientUpdate"
	case MessageServerUpdate:
		return "ServerUpdate"
	default:
		return "Unknown"
	}
}

// Sequenced reports whether packets of type t carry a sequence number and
// go through the reliability layer.
func (t MessageType) Sequenced() bool {
	return t == MessageData || t == MessageClientUpdate || t == MessageServerUpdate
}

// Header is the one-byte packet header.
type Header struct {
	ConnectionPhase bool
	Chunked         bool
	Channel         Channel
	Type            uint8 // ConnectionType or MessageType depending on phase
}

// ConnectionHeader returns the header for a connection-phase packet.
func ConnectionHeader(t ConnectionType) Header {
	return Header{ConnectionPhase: true, Type: uint8(t)}
}

// MessageHeader returns the header for an unchunked data-phase packet.
func MessageHeader(t MessageType, c Channel) Header {
	return Header{Channel: c, Type: uint8(t)}
}

// ConnectionType returns the header type as a connection packet type.
func (h Header) ConnectionType() ConnectionType { return ConnectionType(h.Type) }

// MessageType returns the header type as a data packet type.
func (h Header) MessageType() MessageType { return MessageType(h.Type) }

// String returns a compact description for logs.
func (h Header) String() string {
	if h.ConnectionPhase {
		return h.ConnectionType().String()
	}
	if h.Chunked {
		return fmt.Sprintf("%s/%s/chunked", h.MessageType(), h.Channel)
	}
	return fmt.Sprintf("%s/%s", h.MessageType(), h.Channel)
}

// Byte packs h into its wire form. Fields wider than their bit slots are
// truncated; use Validate first when h comes from untrusted input.
func (h Header) Byte() byte {
	var b byte
	if h.ConnectionPhase {
		b |= 0x80
	}
	if h.Chunked {
		b |= 0x40
	}
	b |= byte(h.Channel&0x03) << 4
	b |= h.Type & 0x0F
	return b
}

// Validate checks the per-phase invariants of h.
func (h Header) Validate() error {
	if !h.Channel.Valid() || h.Type > 0x0F {
		return fmt.Errorf("%w: field out of range", ErrInvalidHeader)
	}
	if h.ConnectionPhase {
		if h.Channel != 0 || h.Chunked {
			return fmt.Errorf("%w: connection-phase packet on channel %d chunked=%v",
				ErrInvalidHeader, h.Channel, h.Chunked)
		}
		if h.ConnectionType() > ConnectionClosed {
			return fmt.Errorf("%w: connection type %d", ErrUnknownPacketType, h.Type)
		}
		return nil
	}
	if h.MessageType() > MessageServerUpdate {
		return fmt.Errorf("%w: message type %d", ErrUnknownPacketType, h.Type)
	}
	if h.Chunked && !h.MessageType().Sequenced() {
		return fmt.Errorf("%w: %s cannot be chunked", ErrInvalidHeader, h.MessageType())
	}
	return nil
}

// ParseHeader unpacks and validates a header byte.
func ParseHeader(b byte) (Header, error) {
	h := Header{
		ConnectionPhase: b&0x80 != 0,
		Chunked:         b&0x40 != 0,
		Channel:         Channel(b>>4) & 0x03,
		Type:            b & 0x0F,
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// EncodeHeaderTo writes h using the provided writer.
func EncodeHeaderTo(w *serializer.Writer, h Header) {
	w.WriteBool(h.ConnectionPhase)
	w.WriteBool(h.Chunked)
	w.WriteBits(uint64(h.Channel), 2)
	w.WriteBits(uint64(h.Type), 4)
}

// DecodeHeaderFrom reads and validates a header from r.
func DecodeHeaderFrom(r *serializer.Reader) (Header, error) {
	b, err := r.ReadBits(8)
	if err != nil {
		return Header{}, err
	}
	return ParseHeader(byte(b))
}
