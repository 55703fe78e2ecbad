package protocol

import (
	"fmt"

	"github.com/vango-dev/peerlink/pkg/serializer"
)

// UpdateKind describes a ClientUpdate.
type UpdateKind uint8

const (
	UpdateConnected    UpdateKind = 0
	UpdateDisconnected UpdateKind = 1
	UpdateUpdated      UpdateKind = 2
)

// String returns the string representation of the update kind.
func (k UpdateKind) String() string {
	switch k {
	case UpdateConnected:
		return "Connected"
	case UpdateDisconnected:
		return "Disconnected"
	case UpdateUpdated:
		return "Updated"
	default:
		return "Unknown"
	}
}

// ClientUpdate announces a change in the session roster. Username and Color
// are only present when their Has flag is set.
type ClientUpdate struct {
	PeerID      PeerID
	Kind        UpdateKind
	HasUsername bool
	HasColor    bool
	Username    string
	Color       serializer.Color
}

// MarshalPacket implements serializer.Marshaler.
func (u *ClientUpdate) MarshalPacket(w *serializer.Writer) {
	w.WriteUint32(uint32(u.PeerID))
	w.WriteUint8(uint8(u.Kind))
	w.WriteBool(u.HasUsername)
	w.WriteBool(u.HasColor)
	if u.HasUsername {
		w.WriteString(u.Username)
	}
	if u.HasColor {
		w.WriteColor(u.Color)
	}
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (u *ClientUpdate) UnmarshalPacket(r *serializer.Reader) error {
	id, err := r.ReadUint32()
	if err != nil {
		return err
	}
	u.PeerID = PeerID(id)

	kind, err := r.ReadUint8()
	if err != nil {
		return err
	}
	u.Kind = UpdateKind(kind)
	if u.Kind > UpdateUpdated {
		return fmt.Errorf("%w: %d", ErrInvalidUpdate, kind)
	}

	if u.HasUsername, err = r.ReadBool(); err != nil {
		return err
	}
	if u.HasColor, err = r.ReadBool(); err != nil {
		return err
	}
	if u.HasUsername {
		if u.Username, err = r.ReadString(); err != nil {
			return err
		}
	}
	if u.HasColor {
		if u.Color, err = r.ReadColor(); err != nil {
			return err
		}
	}
	return nil
}

// DecodeClientUpdate decodes a ClientUpdate body.
func DecodeClientUpdate(body []byte) (*ClientUpdate, error) {
	u := &ClientUpdate{}
	if err := decodeExact(body, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ServerUpdate announces a change to the host's public description.
type ServerUpdate struct {
	HostName     string
	MaxPeers     uint32
	CurrentPeers uint32
}

// MarshalPacket implements serializer.Marshaler.
func (u *ServerUpdate) MarshalPacket(w *serializer.Writer) {
	w.WriteString(u.HostName)
	w.WriteUint32(u.MaxPeers)
	w.WriteUint32(u.CurrentPeers)
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (u *ServerUpdate) UnmarshalPacket(r *serializer.Reader) error {
	var err error
	if u.HostName, err = r.ReadString(); err != nil {
		return err
	}
	if u.MaxPeers, err = r.ReadUint32(); err != nil {
		return err
	}
	u.CurrentPeers, err = r.ReadUint32()
	return err
}

// DecodeServerUpdate decodes a ServerUpdate body.
func DecodeServerUpdate(body []byte) (*ServerUpdate, error) {
	u := &ServerUpdate{}
	if err := decodeExact(body, u); err != nil {
		return nil, err
	}
	return u, nil
}
