package serializer

import (
	"math"
	"unicode/utf8"
)

// Reader is a bit-addressable decoder over a byte slice.
type Reader struct {
	buf      []byte
	pos      uint // bit position
	settings Settings
	maxAlloc int
}

// NewReader creates a reader over buf. The settings must match those used by
// the writer that produced buf.
func NewReader(buf []byte, settings Settings) *Reader {
	return &Reader{buf: buf, settings: settings, maxAlloc: DefaultMaxAllocation}
}

// NewReaderWithLimit creates a reader with a custom allocation limit for
// length-prefixed strings and byte slices.
func NewReaderWithLimit(buf []byte, settings Settings, maxAlloc int) *Reader {
	if maxAlloc <= 0 {
		maxAlloc = DefaultMaxAllocation
	}
	return &Reader{buf: buf, settings: settings, maxAlloc: maxAlloc}
}

// Settings returns the compression settings used by the reader.
func (r *Reader) Settings() Settings {
	return r.settings
}

// RemainingBits returns the number of unread bits.
func (r *Reader) RemainingBits() uint {
	return uint(len(r.buf))*8 - r.pos
}

// Remaining returns the number of whole unread bytes after aligning.
func (r *Reader) Remaining() int {
	return len(r.buf) - int((r.pos+7)/8)
}

// EOF returns true if all bits up to the last byte boundary have been read.
func (r *Reader) EOF() bool {
	return r.Remaining() <= 0
}

// BitPosition returns the current read position in bits.
func (r *Reader) BitPosition() uint {
	return r.pos
}

// Aligned reports whether the cursor sits on a byte boundary.
func (r *Reader) Aligned() bool {
	return r.pos%8 == 0
}

// Align skips to the next byte boundary.
func (r *Reader) Align() {
	r.pos = (r.pos + 7) &^ 7
}

// Rest aligns and returns all remaining bytes. The returned slice references
// the reader's buffer; do not modify.
func (r *Reader) Rest() []byte {
	r.Align()
	start := int(r.pos / 8)
	if start >= len(r.buf) {
		return nil
	}
	r.pos = uint(len(r.buf)) * 8
	return r.buf[start:]
}

// ReadBits reads n bits, most significant first. n must not exceed 64.
func (r *Reader) ReadBits(n uint) (uint64, error) {
	if n > 64 {
		panic("serializer: ReadBits n > 64")
	}
	if r.RemainingBits() < n {
		return 0, ErrOutOfRange
	}
	var v uint64
	for n > 0 {
		used := r.pos % 8
		avail := 8 - used
		take := min(avail, n)
		b := uint64(r.buf[r.pos/8])
		chunk := (b >> (avail - take)) & (1<<take - 1)
		v = v<<take | chunk
		r.pos += take
		n -= take
	}
	return v, nil
}

// ReadBool reads a single-bit boolean.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.Aligned() {
		i := r.pos / 8
		if int(i) >= len(r.buf) {
			return 0, ErrOutOfRange
		}
		r.pos += 8
		return r.buf[i], nil
	}
	v, err := r.ReadBits(8)
	return byte(v), err
}

// ReadBytes reads exactly n bytes. When the cursor is aligned the returned
// slice references the reader's buffer; do not modify.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || uint(n)*8 > r.RemainingBits() {
		return nil, ErrOutOfRange
	}
	if r.Aligned() {
		i := int(r.pos / 8)
		r.pos += uint(n) * 8
		return r.buf[i : i+n], nil
	}
	out := make([]byte, n)
	for i := range out {
		v, _ := r.ReadBits(8)
		out[i] = byte(v)
	}
	return out, nil
}

// ReadUint8 reads a uint8.
func (r *Reader) ReadUint8() (uint8, error) {
	return r.ReadByte()
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadBits(16)
	return uint16(v), err
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadBits(32)
	return uint32(v), err
}

// ReadUint64 reads a big-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	return r.ReadBits(64)
}

// ReadInt8 reads an int8.
func (r *Reader) ReadInt8() (int8, error) {
	b, err := r.ReadByte()
	return int8(b), err
}

// ReadInt16 reads a big-endian int16.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadInt32 reads a big-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadInt64 reads a big-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE 754 float32.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 float64.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadFloat reads a value written by Writer.WriteFloat.
func (r *Reader) ReadFloat() (float32, error) {
	if r.settings.CompressFloats {
		v, err := r.ReadCompressedFloat()
		return float32(v), err
	}
	return r.ReadFloat32()
}

// ReadUvarint reads an unsigned varint.
func (r *Reader) ReadUvarint() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < MaxVarintLen; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, nil
		}
		shift += 7
	}
	return 0, ErrVarintOverflow
}

// ReadSvarint reads a ZigZag-encoded signed varint.
func (r *Reader) ReadSvarint() (int64, error) {
	uv, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return int64(uv>>1) ^ -int64(uv&1), nil
}

// readLen reads a length prefix and checks it against the allocation limit
// before the remaining-bytes check.
func (r *Reader) readLen() (int, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.maxAlloc) {
		return 0, ErrAllocationTooLarge
	}
	if n*8 > uint64(r.RemainingBits()) {
		return 0, ErrOutOfRange
	}
	return int(n), nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.readLen()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidString
	}
	return string(b), nil
}

// ReadIdentifier reads a string written by Writer.WriteIdentifier.
func (r *Reader) ReadIdentifier() (string, error) {
	s, err := r.ReadString()
	if err != nil {
		return "", err
	}
	if err := ValidateIdentifier(s); err != nil {
		return "", err
	}
	return s, nil
}

// ReadLenBytes reads length-prefixed bytes. The result is a copy.
func (r *Reader) ReadLenBytes() ([]byte, error) {
	n, err := r.readLen()
	if err != nil {
		return nil, err
	}
	b, err := r.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadCollectionCount reads a uvarint element count bounded by
// MaxCollectionCount.
func (r *Reader) ReadCollectionCount() (int, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if n > MaxCollectionCount {
		return 0, ErrCollectionTooLarge
	}
	return int(n), nil
}

// ReadVector2 reads a Vector2 written by Writer.WriteVector2.
func (r *Reader) ReadVector2() (Vector2, error) {
	var v Vector2
	var err error
	if v.X, err = r.ReadFloat(); err != nil {
		return v, err
	}
	v.Y, err = r.ReadFloat()
	return v, err
}

// ReadVector3 reads a Vector3 written by Writer.WriteVector3.
func (r *Reader) ReadVector3() (Vector3, error) {
	var v Vector3
	var err error
	if v.X, err = r.ReadFloat(); err != nil {
		return v, err
	}
	if v.Y, err = r.ReadFloat(); err != nil {
		return v, err
	}
	v.Z, err = r.ReadFloat()
	return v, err
}

// ReadQuaternion reads a Quaternion written by Writer.WriteQuaternion.
func (r *Reader) ReadQuaternion() (Quaternion, error) {
	if r.settings.CompressQuaternions {
		return r.ReadCompressedQuaternion()
	}
	var q Quaternion
	var err error
	if q.X, err = r.ReadFloat32(); err != nil {
		return q, err
	}
	if q.Y, err = r.ReadFloat32(); err != nil {
		return q, err
	}
	if q.Z, err = r.ReadFloat32(); err != nil {
		return q, err
	}
	q.W, err = r.ReadFloat32()
	return q, err
}

// ReadColor reads a three-byte RGB color.
func (r *Reader) ReadColor() (Color, error) {
	b, err := r.ReadBytes(3)
	if err != nil {
		return Color{}, err
	}
	return Color{R: b[0], G: b[1], B: b[2]}, nil
}

// ReadColor32 reads an RGBA float color.
func (r *Reader) ReadColor32() (Color32, error) {
	var c Color32
	var err error
	if c.R, err = r.ReadFloat32(); err != nil {
		return c, err
	}
	if c.G, err = r.ReadFloat32(); err != nil {
		return c, err
	}
	if c.B, err = r.ReadFloat32(); err != nil {
		return c, err
	}
	c.A, err = r.ReadFloat32()
	return c, err
}

// Read decodes into m.
func (r *Reader) Read(m Unmarshaler) error {
	return m.UnmarshalPacket(r)
}
