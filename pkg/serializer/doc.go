// Package serializer implements the bit-packed binary format shared by every
// peerlink packet body and application record.
//
// A Writer appends values to a growable byte buffer through a bit cursor, and
// a Reader consumes them in the same order. Booleans and compressed numerics
// occupy only the bits they need, so consecutive sub-byte fields pack
// contiguously instead of being padded to byte boundaries.
//
// # Encoding
//
//   - Fixed-width integers and IEEE 754 floats: big-endian, MSB first
//   - Booleans: a single bit
//   - Varint: protobuf-style 7-bit groups (ZigZag for signed values)
//   - Strings and byte slices: uvarint length followed by the bytes
//   - Slices and maps: uvarint count followed by the elements; map entries
//     are written in ascending key order so encodings are deterministic
//
// When the cursor is byte-aligned, multi-byte values are appended directly;
// otherwise they are written bit by bit. Both paths produce identical bits.
//
// # Compression
//
// Settings enables two lossy encodings that both sides of a connection must
// agree on out of band:
//
//   - Floats are quantised into ceil(log2(steps+1)) bits over
//     [FloatMin, FloatMax] with steps = ceil((max-min)/resolution). The
//     decoded value is within resolution/2 of the clamped input.
//   - Unit quaternions use "smallest three": the index of the largest
//     component (2 bits) plus the three remaining components quantised to
//     BitsPerComponent bits each. The omitted component is rebuilt from the
//     unit-norm constraint on decode.
//
// # Usage
//
//	w := serializer.NewWriter(serializer.DefaultSettings())
//	w.WriteBool(true)
//	w.WriteUint16(7)
//	w.WriteString("hello")
//
//	r := serializer.NewReader(w.Bytes(), serializer.DefaultSettings())
//	ok, _ := r.ReadBool()
//	n, _ := r.ReadUint16()
//	s, _ := r.ReadString()
package serializer
