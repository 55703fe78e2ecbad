package protocol

// Size limits for a single datagram.
const (
	// DefaultMTU is the largest datagram the reliability layer emits without
	// chunking. It stays below the common 1500-byte Ethernet MTU with room
	// for IP and UDP headers.
	DefaultMTU = 1400

	// MinMTU is the smallest MTU that still leaves room for a useful slice.
	MinMTU = 64

	// HeaderSize is the size of the packet header in bytes.
	HeaderSize = 1

	// SequenceSize is the size of a sequence number in bytes.
	SequenceSize = 2

	// ChunkHeaderSize is the size of ChunkHeader in bytes.
	ChunkHeaderSize = 6

	// MaxSliceCount bounds the number of slices in one chunked message, and
	// with it the memory a single reassembly buffer may hold.
	MaxSliceCount = 1024
)

// SliceSize returns the number of body bytes that fit in one chunked
// datagram for the given MTU.
func SliceSize(mtu int) int {
	return mtu - HeaderSize - ChunkHeaderSize
}

// MaxUnchunkedBody returns the largest body that is sent without chunking.
func MaxUnchunkedBody(mtu int) int {
	return mtu - HeaderSize - SequenceSize
}
