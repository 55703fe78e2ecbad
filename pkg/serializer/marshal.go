package serializer

// Marshaler is implemented by records that encode themselves.
type Marshaler interface {
	MarshalPacket(w *Writer)
}

// Unmarshaler is implemented by records that decode themselves.
type Unmarshaler interface {
	UnmarshalPacket(r *Reader) error
}

// Marshal encodes m into a fresh buffer.
func Marshal(m Marshaler, settings Settings) []byte {
	w := NewWriter(settings)
	m.MarshalPacket(w)
	return w.Bytes()
}

// Unmarshal decodes data into m.
func Unmarshal(data []byte, m Unmarshaler, settings Settings) error {
	return m.UnmarshalPacket(NewReader(data, settings))
}
