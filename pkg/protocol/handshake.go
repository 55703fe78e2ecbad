package protocol

import "github.com/vango-dev/peerlink/pkg/serializer"

// AnswerSize is the fixed length of a challenge answer.
const AnswerSize = 32

// Challenge is sent by the host in response to a ConnectionRequest.
type Challenge struct {
	Value uint64
}

// MarshalPacket implements serializer.Marshaler.
func (c *Challenge) MarshalPacket(w *serializer.Writer) {
	w.WriteUint64(c.Value)
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (c *Challenge) UnmarshalPacket(r *serializer.Reader) error {
	v, err := r.ReadUint64()
	if err != nil {
		return err
	}
	c.Value = v
	return nil
}

// Answer is the peer's response to a Challenge. Username and Color describe
// the peer to the rest of the session.
type Answer struct {
	Answer   [AnswerSize]byte
	Username string
	Color    serializer.Color
}

// MarshalPacket implements serializer.Marshaler.
func (a *Answer) MarshalPacket(w *serializer.Writer) {
	w.WriteBytes(a.Answer[:])
	w.WriteString(a.Username)
	w.WriteColor(a.Color)
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (a *Answer) UnmarshalPacket(r *serializer.Reader) error {
	b, err := r.ReadBytes(AnswerSize)
	if err != nil {
		return err
	}
	copy(a.Answer[:], b)

	a.Username, err = r.ReadString()
	if err != nil {
		return err
	}

	a.Color, err = r.ReadColor()
	return err
}

// Accepted completes the handshake and assigns the peer its ID.
type Accepted struct {
	PeerID   PeerID
	HostName string
	MaxPeers uint32
}

// MarshalPacket implements serializer.Marshaler.
func (a *Accepted) MarshalPacket(w *serializer.Writer) {
	w.WriteUint32(uint32(a.PeerID))
	w.WriteString(a.HostName)
	w.WriteUint32(a.MaxPeers)
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (a *Accepted) UnmarshalPacket(r *serializer.Reader) error {
	id, err := r.ReadUint32()
	if err != nil {
		return err
	}
	a.PeerID = PeerID(id)

	a.HostName, err = r.ReadString()
	if err != nil {
		return err
	}

	a.MaxPeers, err = r.ReadUint32()
	return err
}

// Denied ends a connection attempt.
type Denied struct {
	Reason DenyReason
}

// MarshalPacket implements serializer.Marshaler.
func (d *Denied) MarshalPacket(w *serializer.Writer) {
	w.WriteUint8(uint8(d.Reason))
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (d *Denied) UnmarshalPacket(r *serializer.Reader) error {
	b, err := r.ReadUint8()
	if err != nil {
		return err
	}
	d.Reason = DenyReason(b)
	return nil
}

// Closed tells the other side an authenticated connection is over.
type Closed struct {
	Reason DisconnectReason
}

// MarshalPacket implements serializer.Marshaler.
func (c *Closed) MarshalPacket(w *serializer.Writer) {
	w.WriteUint8(uint8(c.Reason))
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (c *Closed) UnmarshalPacket(r *serializer.Reader) error {
	b, err := r.ReadUint8()
	if err != nil {
		return err
	}
	c.Reason = DisconnectReason(b)
	return nil
}

// EncodeConnection builds a complete connection-phase datagram. body is nil
// for ConnectionRequest.
func EncodeConnection(t ConnectionType, body serializer.Marshaler) []byte {
	w := serializer.NewWriterWithCap(wireSettings, 64)
	EncodeHeaderTo(w, ConnectionHeader(t))
	if body != nil {
		body.MarshalPacket(w)
	}
	return w.Bytes()
}

// DecodeConnectionBody decodes the body of a connection-phase packet into
// dst and rejects trailing bytes.
func DecodeConnectionBody(body []byte, dst serializer.Unmarshaler) error {
	return decodeExact(body, dst)
}
