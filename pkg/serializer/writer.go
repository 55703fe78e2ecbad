package serializer

import "math"

// Writer is a bit-addressable encoder that appends to an internal buffer.
// The buffer is never size-constrained; callers that need to respect a
// transport MTU check Len after encoding.
type Writer struct {
	buf      []byte
	nbits    uint
	settings Settings
}

// NewWriter creates a writer with a default initial capacity.
func NewWriter(settings Settings) *Writer {
	return NewWriterWithCap(settings, 256)
}

// NewWriterWithCap creates a writer with the specified initial capacity.
func NewWriterWithCap(settings Settings, cap int) *Writer {
	return &Writer{
		buf:      make([]byte, 0, cap),
		settings: settings,
	}
}

// Settings returns the compression settings used by the writer.
func (w *Writer) Settings() Settings {
	return w.settings
}

// Reset empties the writer, reusing the underlying buffer.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.nbits = 0
}

// Bytes returns the encoded bytes. A trailing partial byte is zero-padded.
// The returned slice is valid until the next call to Reset or any Write method.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes currently encoded, including a trailing
// partial byte.
func (w *Writer) Len() int {
	return len(w.buf)
}

// BitLen returns the exact number of bits written.
func (w *Writer) BitLen() uint {
	return w.nbits
}

// Aligned reports whether the cursor sits on a byte boundary.
func (w *Writer) Aligned() bool {
	return w.nbits%8 == 0
}

// Align pads the current byte with zero bits.
func (w *Writer) Align() {
	w.nbits = uint(len(w.buf)) * 8
}

// WriteBits appends the low n bits of v, most significant first. n must not
// exceed 64.
func (w *Writer) WriteBits(v uint64, n uint) {
	if n > 64 {
		panic("serializer: WriteBits n > 64")
	}
	for n > 0 {
		used := w.nbits % 8
		if used == 0 {
			w.buf = append(w.buf, 0)
		}
		free := 8 - used
		take := min(free, n)
		chunk := (v >> (n - take)) & (1<<take - 1)
		w.buf[len(w.buf)-1] |= byte(chunk << (free - take))
		w.nbits += take
		n -= take
	}
}

// WriteBool appends a boolean as a single bit.
func (w *Writer) WriteBool(b bool) {
	if b {
		w.WriteBits(1, 1)
	} else {
		w.WriteBits(0, 1)
	}
}

// WriteByte appends a single byte.
// Note: This intentionally doesn't return error (unlike io.ByteWriter)
// because the buffer is unbounded and can always append.
func (w *Writer) WriteByte(b byte) {
	if w.Aligned() {
		w.buf = append(w.buf, b)
		w.nbits += 8
		return
	}
	w.WriteBits(uint64(b), 8)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	if w.Aligned() {
		w.buf = append(w.buf, b...)
		w.nbits += uint(len(b)) * 8
		return
	}
	for _, c := range b {
		w.WriteBits(uint64(c), 8)
	}
}

// WriteUint8 appends a uint8.
func (w *Writer) WriteUint8(v uint8) {
	w.WriteByte(v)
}

// WriteUint16 appends a uint16 in big-endian byte order.
func (w *Writer) WriteUint16(v uint16) {
	if w.Aligned() {
		w.buf = append(w.buf, byte(v>>8), byte(v))
		w.nbits += 16
		return
	}
	w.WriteBits(uint64(v), 16)
}

// WriteUint32 appends a uint32 in big-endian byte order.
func (w *Writer) WriteUint32(v uint32) {
	if w.Aligned() {
		w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
		w.nbits += 32
		return
	}
	w.WriteBits(uint64(v), 32)
}

// WriteUint64 appends a uint64 in big-endian byte order.
func (w *Writer) WriteUint64(v uint64) {
	if w.Aligned() {
		w.buf = append(w.buf,
			byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
		w.nbits += 64
		return
	}
	w.WriteBits(v, 64)
}

// WriteInt8 appends an int8.
func (w *Writer) WriteInt8(v int8) {
	w.WriteByte(byte(v))
}

// WriteInt16 appends an int16 in big-endian byte order.
func (w *Writer) WriteInt16(v int16) {
	w.WriteUint16(uint16(v))
}

// WriteInt32 appends an int32 in big-endian byte order.
func (w *Writer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteInt64 appends an int64 in big-endian byte order.
func (w *Writer) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

// WriteFloat32 appends a float32 in IEEE 754 format, ignoring compression.
func (w *Writer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 appends a float64 in IEEE 754 format, ignoring compression.
func (w *Writer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteFloat appends a float32, quantised when Settings.CompressFloats is set.
func (w *Writer) WriteFloat(v float32) {
	if w.settings.CompressFloats {
		w.WriteCompressedFloat(float64(v))
		return
	}
	w.WriteFloat32(v)
}

// WriteUvarint appends an unsigned varint.
func (w *Writer) WriteUvarint(v uint64) {
	for v >= 0x80 {
		w.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	w.WriteByte(byte(v))
}

// WriteSvarint appends a signed varint using ZigZag encoding.
func (w *Writer) WriteSvarint(v int64) {
	w.WriteUvarint(uint64((v << 1) ^ (v >> 63)))
}

// WriteString appends a length-prefixed UTF-8 string.
// Format: varint length + string bytes
func (w *Writer) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)))
	if w.Aligned() {
		w.buf = append(w.buf, s...)
		w.nbits += uint(len(s)) * 8
		return
	}
	for i := 0; i < len(s); i++ {
		w.WriteBits(uint64(s[i]), 8)
	}
}

// WriteIdentifier appends an ASCII identifier. It returns ErrInvalidIdentifier
// without writing anything if s contains non-printable or non-ASCII bytes.
func (w *Writer) WriteIdentifier(s string) error {
	if err := ValidateIdentifier(s); err != nil {
		return err
	}
	w.WriteString(s)
	return nil
}

// WriteLenBytes appends length-prefixed bytes.
// Format: varint length + bytes
func (w *Writer) WriteLenBytes(b []byte) {
	w.WriteUvarint(uint64(len(b)))
	w.WriteBytes(b)
}

// WriteVector2 appends both components using WriteFloat.
func (w *Writer) WriteVector2(v Vector2) {
	w.WriteFloat(v.X)
	w.WriteFloat(v.Y)
}

// WriteVector3 appends all components using WriteFloat.
func (w *Writer) WriteVector3(v Vector3) {
	w.WriteFloat(v.X)
	w.WriteFloat(v.Y)
	w.WriteFloat(v.Z)
}

// WriteQuaternion appends q, using smallest-three encoding when
// Settings.CompressQuaternions is set.
func (w *Writer) WriteQuaternion(q Quaternion) {
	if w.settings.CompressQuaternions {
		w.WriteCompressedQuaternion(q)
		return
	}
	w.WriteFloat32(q.X)
	w.WriteFloat32(q.Y)
	w.WriteFloat32(q.Z)
	w.WriteFloat32(q.W)
}

// WriteColor appends an RGB color as three bytes.
func (w *Writer) WriteColor(c Color) {
	w.WriteByte(c.R)
	w.WriteByte(c.G)
	w.WriteByte(c.B)
}

// WriteColor32 appends an RGBA color as four raw float32 values.
func (w *Writer) WriteColor32(c Color32) {
	w.WriteFloat32(c.R)
	w.WriteFloat32(c.G)
	w.WriteFloat32(c.B)
	w.WriteFloat32(c.A)
}

// Write encodes m into the writer.
func (w *Writer) Write(m Marshaler) {
	m.MarshalPacket(w)
}
