package protocol

import (
	"fmt"

	"github.com/vango-dev/peerlink/pkg/serializer"
)

// Packet bodies never use lossy compression; application payloads carry
// their own settings.
var wireSettings = serializer.DefaultSettings()

// ChunkHeader follows the header of a chunked datagram.
type ChunkHeader struct {
	Sequence   uint16
	SliceIndex uint16
	SliceCount uint16
}

// Validate checks the slice bounds.
func (c ChunkHeader) Validate() error {
	if c.SliceCount == 0 || c.SliceCount > MaxSliceCount {
		return fmt.Errorf("%w: slice count %d", ErrInvalidChunk, c.SliceCount)
	}
	if c.SliceIndex >= c.SliceCount {
		return fmt.Errorf("%w: slice %d of %d", ErrInvalidChunk, c.SliceIndex, c.SliceCount)
	}
	return nil
}

// Packet is a decoded datagram. Which fields are set depends on the header:
//
//   - connection phase: Body holds the packet body
//   - Ack: Sequence
//   - ChunkAck: Sequence and Chunk.SliceIndex
//   - chunked: Sequence, Chunk and Body holding the slice bytes
//   - other data-phase types: Sequence and Body
type Packet struct {
	Header   Header
	Sequence uint16
	Chunk    ChunkHeader
	Body     []byte
}

// Decode parses the framing of a datagram. Body references data; do not
// modify.
func Decode(data []byte) (*Packet, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDatagram
	}
	r := serializer.NewReader(data, wireSettings)
	return DecodeFrom(r)
}

// DecodeFrom parses a datagram from r.
func DecodeFrom(r *serializer.Reader) (*Packet, error) {
	h, err := DecodeHeaderFrom(r)
	if err != nil {
		return nil, err
	}
	p := &Packet{Header: h}

	if h.ConnectionPhase {
		p.Body = r.Rest()
		return p, nil
	}

	p.Sequence, err = r.ReadUint16()
	if err != nil {
		return nil, err
	}

	switch {
	case h.MessageType() == MessageAck:
		if !r.EOF() {
			return nil, ErrTrailingBytes
		}
		return p, nil

	case h.MessageType() == MessageChunkAck:
		p.Chunk.Sequence = p.Sequence
		p.Chunk.SliceIndex, err = r.ReadUint16()
		if err != nil {
			return nil, err
		}
		if !r.EOF() {
			return nil, ErrTrailingBytes
		}
		return p, nil

	case h.Chunked:
		p.Chunk.Sequence = p.Sequence
		if p.Chunk.SliceIndex, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if p.Chunk.SliceCount, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if err := p.Chunk.Validate(); err != nil {
			return nil, err
		}
	}

	p.Body = r.Rest()
	return p, nil
}

// EncodeSequenced builds an unchunked sequenced datagram: header, sequence,
// then body.
func EncodeSequenced(t MessageType, c Channel, seq uint16, body []byte) []byte {
	w := serializer.NewWriterWithCap(wireSettings, HeaderSize+SequenceSize+len(body))
	EncodeHeaderTo(w, MessageHeader(t, c))
	w.WriteUint16(seq)
	w.WriteBytes(body)
	return w.Bytes()
}

// EncodeChunk builds one chunked datagram carrying slice.
func EncodeChunk(t MessageType, c Channel, ch ChunkHeader, slice []byte) []byte {
	w := serializer.NewWriterWithCap(wireSettings, HeaderSize+ChunkHeaderSize+len(slice))
	h := MessageHeader(t, c)
	h.Chunked = true
	EncodeHeaderTo(w, h)
	w.WriteUint16(ch.Sequence)
	w.WriteUint16(ch.SliceIndex)
	w.WriteUint16(ch.SliceCount)
	w.WriteBytes(slice)
	return w.Bytes()
}

// EncodeBody serialises a packet body without header or sequence.
func EncodeBody(m serializer.Marshaler) []byte {
	w := serializer.NewWriter(wireSettings)
	m.MarshalPacket(w)
	return w.Bytes()
}

func decodeExact(body []byte, dst serializer.Unmarshaler) error {
	r := serializer.NewReader(body, wireSettings)
	if err := dst.UnmarshalPacket(r); err != nil {
		return err
	}
	if !r.EOF() {
		return ErrTrailingBytes
	}
	return nil
}
