package serializer

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
)

func TestWriterReader(t *testing.T) {
	w := NewWriter(DefaultSettings())

	w.WriteByte(0x42)
	w.WriteBytes([]byte{0x01, 0x02, 0x03})
	w.WriteUvarint(12345)
	w.WriteSvarint(-9876)
	w.WriteString("hello world")
	w.WriteLenBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteUint16(0x1234)
	w.WriteUint32(0x12345678)
	w.WriteUint64(0x123456789ABCDEF0)
	w.WriteInt16(-1234)
	w.WriteInt32(-12345678)
	w.WriteInt64(-123456789012345)
	w.WriteFloat32(3.14159)
	w.WriteFloat64(2.718281828459045)

	r := NewReader(w.Bytes(), DefaultSettings())

	b, err := r.ReadByte()
	if err != nil || b != 0x42 {
		t.Errorf("ReadByte() = %x, %v; want 0x42, nil", b, err)
	}
	bs, err := r.ReadBytes(3)
	if err != nil || string(bs) != "\x01\x02\x03" {
		t.Errorf("ReadBytes(3) = %v, %v; want [1 2 3], nil", bs, err)
	}
	uv, err := r.ReadUvarint()
	if err != nil || uv != 12345 {
		t.Errorf("ReadUvarint() = %d, %v; want 12345, nil", uv, err)
	}
	sv, err := r.ReadSvarint()
	if err != nil || sv != -9876 {
		t.Errorf("ReadSvarint() = %d, %v; want -9876, nil", sv, err)
	}
	s, err := r.ReadString()
	if err != nil || s != "hello world" {
		t.Errorf("ReadString() = %q, %v; want \"hello world\", nil", s, err)
	}
	lb, err := r.ReadLenBytes()
	if err != nil || !bytes.Equal(lb, []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Errorf("ReadLenBytes() = %v, %v; want [DE AD BE EF], nil", lb, err)
	}
	bt, err := r.ReadBool()
	if err != nil || !bt {
		t.Errorf("ReadBool() = %v, %v; want true, nil", bt, err)
	}
	bf, err := r.ReadBool()
	if err != nil || bf {
		t.Errorf("ReadBool() = %v, %v; want false, nil", bf, err)
	}
	// The two bools leave the cursor unaligned; the integers below take the
	// bit-by-bit path.
	u16, err := r.ReadUint16()
	if err != nil || u16 != 0x1234 {
		t.Errorf("ReadUint16() = %x, %v; want 0x1234, nil", u16, err)
	}
	u32, err := r.ReadUint32()
	if err != nil || u32 != 0x12345678 {
		t.Errorf("ReadUint32() = %x, %v; want 0x12345678, nil", u32, err)
	}
	u64, err := r.ReadUint64()
	if err != nil || u64 != 0x123456789ABCDEF0 {
		t.Errorf("ReadUint64() = %x, %v; want 0x123456789ABCDEF0, nil", u64, err)
	}
	i16, err := r.ReadInt16()
	if err != nil || i16 != -1234 {
		t.Errorf("ReadInt16() = %d, %v; want -1234, nil", i16, err)
	}
	i32, err := r.ReadInt32()
	if err != nil || i32 != -12345678 {
		t.Errorf("ReadInt32() = %d, %v; want -12345678, nil", i32, err)
	}
	i64, err := r.ReadInt64()
	if err != nil || i64 != -123456789012345 {
		t.Errorf("ReadInt64() = %d, %v; want -123456789012345, nil", i64, err)
	}
	f32, err := r.ReadFloat32()
	if err != nil || f32 != 3.14159 {
		t.Errorf("ReadFloat32() = %v, %v; want 3.14159, nil", f32, err)
	}
	f64, err := r.ReadFloat64()
	if err != nil || f64 != 2.718281828459045 {
		t.Errorf("ReadFloat64() = %v, %v; want 2.718281828459045, nil", f64, err)
	}
	if !r.EOF() {
		t.Errorf("EOF() = false, remaining %d bits", r.RemainingBits())
	}
}

func TestWriteBitsPacking(t *testing.T) {
	w := NewWriter(DefaultSettings())
	w.WriteBool(true)
	w.WriteBits(0b01, 2)
	w.WriteBits(0b1010, 4)
	if got := w.BitLen(); got != 7 {
		t.Fatalf("BitLen() = %d, want 7", got)
	}
	if got := w.Bytes(); !bytes.Equal(got, []byte{0b10110100}) {
		t.Fatalf("Bytes() = %08b, want [10110100]", got)
	}
	w.WriteUint16(0xFFFF)
	if got := w.BitLen(); got != 23 {
		t.Errorf("BitLen() = %d, want 23", got)
	}
	if got := w.Bytes(); !bytes.Equal(got, []byte{0b10110101, 0xFF, 0b11111110}) {
		t.Errorf("Bytes() = %08b", got)
	}
}

func TestAlignedAndUnalignedPathsAgree(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
	}{
		{"uint16", func(w *Writer) { w.WriteUint16(0xBEEF) }},
		{"uint32", func(w *Writer) { w.WriteUint32(0xDEADBEEF) }},
		{"uint64", func(w *Writer) { w.WriteUint64(0x0123456789ABCDEF) }},
		{"string", func(w *Writer) { w.WriteString("peer") }},
		{"bytes", func(w *Writer) { w.WriteBytes([]byte{1, 2, 3}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fast := NewWriter(DefaultSettings())
			tt.write(fast)

			// A leading bit forces the slow path and shifts the output by one bit.
			slow := NewWriter(DefaultSettings())
			slow.WriteBool(false)
			tt.write(slow)

			if want := shiftRight1(fast.Bytes()); !bytes.Equal(slow.Bytes(), want) {
				t.Errorf("slow path = %x, want %x", slow.Bytes(), want)
			}
		})
	}
}

func shiftRight1(b []byte) []byte {
	out := make([]byte, len(b)+1)
	for i, c := range b {
		out[i] |= c >> 1
		out[i+1] = c << 7
	}
	return out
}

func TestAlign(t *testing.T) {
	w := NewWriter(DefaultSettings())
	w.WriteBool(true)
	w.Align()
	w.WriteByte(0xAB)
	if got := w.Bytes(); !bytes.Equal(got, []byte{0x80, 0xAB}) {
		t.Fatalf("Bytes() = %x, want 80ab", got)
	}

	r := NewReader(w.Bytes(), DefaultSettings())
	if _, err := r.ReadBool(); err != nil {
		t.Fatal(err)
	}
	if rest := r.Rest(); !bytes.Equal(rest, []byte{0xAB}) {
		t.Errorf("Rest() = %x, want ab", rest)
	}
	if rest := r.Rest(); rest != nil {
		t.Errorf("second Rest() = %x, want nil", rest)
	}
}

func TestReset(t *testing.T) {
	w := NewWriter(DefaultSettings())
	w.WriteBool(true)
	w.WriteUint32(7)
	w.Reset()
	if w.Len() != 0 || w.BitLen() != 0 {
		t.Fatalf("after Reset Len=%d BitLen=%d, want 0", w.Len(), w.BitLen())
	}
	w.WriteByte(0x01)
	if got := w.Bytes(); !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("Bytes() = %x, want 01", got)
	}
}

func TestReadOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(r *Reader) error
	}{
		{"uint16", []byte{0x01}, func(r *Reader) error { _, err := r.ReadUint16(); return err }},
		{"uint32", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.ReadUint32(); return err }},
		{"bits", nil, func(r *Reader) error { _, err := r.ReadBits(1); return err }},
		{"byte", nil, func(r *Reader) error { _, err := r.ReadByte(); return err }},
		{"string body", []byte{5, 'a', 'b'}, func(r *Reader) error { _, err := r.ReadString(); return err }},
		{"varint", []byte{0x80, 0x80}, func(r *Reader) error { _, err := r.ReadUvarint(); return err }},
		{"color", []byte{1, 2}, func(r *Reader) error { _, err := r.ReadColor(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read(NewReader(tt.data, DefaultSettings()))
			if !errors.Is(err, ErrOutOfRange) {
				t.Errorf("err = %v, want ErrOutOfRange", err)
			}
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("err = %v, want wrapping io.ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestReadLimits(t *testing.T) {
	t.Run("allocation", func(t *testing.T) {
		w := NewWriter(DefaultSettings())
		w.WriteUvarint(1 << 30)
		_, err := NewReader(w.Bytes(), DefaultSettings()).ReadString()
		if !errors.Is(err, ErrAllocationTooLarge) {
			t.Errorf("err = %v, want ErrAllocationTooLarge", err)
		}
	})
	t.Run("custom allocation", func(t *testing.T) {
		w := NewWriter(DefaultSettings())
		w.WriteLenBytes(make([]byte, 64))
		_, err := NewReaderWithLimit(w.Bytes(), DefaultSettings(), 16).ReadLenBytes()
		if !errors.Is(err, ErrAllocationTooLarge) {
			t.Errorf("err = %v, want ErrAllocationTooLarge", err)
		}
	})
	t.Run("collection", func(t *testing.T) {
		w := NewWriter(DefaultSettings())
		w.WriteUvarint(MaxCollectionCount + 1)
		_, err := NewReader(w.Bytes(), DefaultSettings()).ReadCollectionCount()
		if !errors.Is(err, ErrCollectionTooLarge) {
			t.Errorf("err = %v, want ErrCollectionTooLarge", err)
		}
	})
	t.Run("varint overflow", func(t *testing.T) {
		data := bytes.Repeat([]byte{0xFF}, 11)
		_, err := NewReader(data, DefaultSettings()).ReadUvarint()
		if !errors.Is(err, ErrVarintOverflow) {
			t.Errorf("err = %v, want ErrVarintOverflow", err)
		}
	})
}

func TestStringValidation(t *testing.T) {
	w := NewWriter(DefaultSettings())
	w.WriteLenBytes([]byte{0xff, 0xfe})
	if _, err := NewReader(w.Bytes(), DefaultSettings()).ReadString(); !errors.Is(err, ErrInvalidString) {
		t.Errorf("ReadString() err = %v, want ErrInvalidString", err)
	}

	tests := []struct {
		in      string
		wantErr bool
	}{
		{"Player.Move", false},
		{"chat:message", false},
		{"", true},
		{"café", true},
		{"tab\there", true},
	}
	for _, tt := range tests {
		w := NewWriter(DefaultSettings())
		err := w.WriteIdentifier(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("WriteIdentifier(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && w.Len() != 0 {
			t.Errorf("WriteIdentifier(%q) wrote %d bytes on error", tt.in, w.Len())
		}
	}

	// A non-ASCII string written as a plain string is rejected by ReadIdentifier.
	w = NewWriter(DefaultSettings())
	w.WriteString("café")
	if _, err := NewReader(w.Bytes(), DefaultSettings()).ReadIdentifier(); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("ReadIdentifier() err = %v, want ErrInvalidIdentifier", err)
	}
}

func TestConvenienceTypes(t *testing.T) {
	w := NewWriter(DefaultSettings())
	w.WriteBool(true) // unalign everything after
	w.WriteVector2(Vector2{X: 1.5, Y: -2})
	w.WriteVector3(Vector3{X: 0, Y: 100, Z: -0.25})
	w.WriteQuaternion(Quaternion{X: 0, Y: 0.6, Z: 0, W: 0.8})
	w.WriteColor(Color{R: 255, G: 128, B: 1})
	w.WriteColor32(Color32{R: 0.1, G: 0.2, B: 0.3, A: 1})

	r := NewReader(w.Bytes(), DefaultSettings())
	if _, err := r.ReadBool(); err != nil {
		t.Fatal(err)
	}
	if v, err := r.ReadVector2(); err != nil || v != (Vector2{X: 1.5, Y: -2}) {
		t.Errorf("ReadVector2() = %v, %v", v, err)
	}
	if v, err := r.ReadVector3(); err != nil || v != (Vector3{X: 0, Y: 100, Z: -0.25}) {
		t.Errorf("ReadVector3() = %v, %v", v, err)
	}
	if q, err := r.ReadQuaternion(); err != nil || q != (Quaternion{X: 0, Y: 0.6, Z: 0, W: 0.8}) {
		t.Errorf("ReadQuaternion() = %v, %v", q, err)
	}
	if c, err := r.ReadColor(); err != nil || c != (Color{R: 255, G: 128, B: 1}) {
		t.Errorf("ReadColor() = %v, %v", c, err)
	}
	if c, err := r.ReadColor32(); err != nil || c != (Color32{R: 0.1, G: 0.2, B: 0.3, A: 1}) {
		t.Errorf("ReadColor32() = %v, %v", c, err)
	}
}

func TestSvarintEdges(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 63, -64, math.MaxInt64, math.MinInt64} {
		w := NewWriter(DefaultSettings())
		w.WriteSvarint(v)
		got, err := NewReader(w.Bytes(), DefaultSettings()).ReadSvarint()
		if err != nil || got != v {
			t.Errorf("Svarint(%d) = %d, %v", v, got, err)
		}
	}
}

type position struct {
	ID  uint32
	Pos Vector3
	Tag string
}

func (p position) MarshalPacket(w *Writer) {
	w.WriteUint32(p.ID)
	w.WriteVector3(p.Pos)
	w.WriteString(p.Tag)
}

func (p *position) UnmarshalPacket(r *Reader) error {
	var err error
	if p.ID, err = r.ReadUint32(); err != nil {
		return err
	}
	if p.Pos, err = r.ReadVector3(); err != nil {
		return err
	}
	p.Tag, err = r.ReadString()
	return err
}

func TestMarshalRecord(t *testing.T) {
	in := position{ID: 9, Pos: Vector3{X: 1, Y: 2, Z: 3}, Tag: "spawn"}
	data := Marshal(in, DefaultSettings())

	var out position
	if err := Unmarshal(data, &out, DefaultSettings()); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("Unmarshal = %+v, want %+v", out, in)
	}

	if err := Unmarshal(data[:3], &out, DefaultSettings()); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("truncated Unmarshal err = %v, want ErrOutOfRange", err)
	}
}
