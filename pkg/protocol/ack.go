package protocol

import "github.com/vango-dev/peerlink/pkg/serializer"

// Ack acknowledges a reliable packet. It is sent on the channel of the
// packet it acknowledges.
type Ack struct {
	Sequence uint16
}

// ChunkAck acknowledges one slice of a chunked reliable packet.
type ChunkAck struct {
	Sequence   uint16
	SliceIndex uint16
}

// EncodeAck builds a complete Ack datagram.
func EncodeAck(c Channel, seq uint16) []byte {
	w := serializer.NewWriterWithCap(wireSettings, HeaderSize+SequenceSize)
	EncodeAckTo(w, c, &Ack{Sequence: seq})
	return w.Bytes()
}

// EncodeAckTo writes an Ack datagram using the provided writer.
func EncodeAckTo(w *serializer.Writer, c Channel, ack *Ack) {
	EncodeHeaderTo(w, MessageHeader(MessageAck, c))
	w.WriteUint16(ack.Sequence)
}

// EncodeChunkAck builds a complete ChunkAck datagram.
func EncodeChunkAck(c Channel, seq, slice uint16) []byte {
	w := serializer.NewWriterWithCap(wireSettings, HeaderSize+2*SequenceSize)
	EncodeChunkAckTo(w, c, &ChunkAck{Sequence: seq, SliceIndex: slice})
	return w.Bytes()
}

// EncodeChunkAckTo writes a ChunkAck datagram using the provided writer.
func EncodeChunkAckTo(w *serializer.Writer, c Channel, ack *ChunkAck) {
	EncodeHeaderTo(w, MessageHeader(MessageChunkAck, c))
	w.WriteUint16(ack.Sequence)
	w.WriteUint16(ack.SliceIndex)
}
