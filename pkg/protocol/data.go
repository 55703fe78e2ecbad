package protocol

import (
	"fmt"

	"github.com/vango-dev/peerlink/pkg/serializer"
)

// Route tells the host what to do with a Data packet.
type Route uint8

const (
	RouteToOne     Route = 0 // Deliver to Target
	RouteToMany    Route = 1 // Deliver to Targets, or everyone but the sender when empty
	RouteForwarded Route = 2 // Relayed by the host on behalf of Sender
	RouteToHost    Route = 3 // Consumed by the host only
)

// String returns the string representation of the route.
func (r Route) String() string {
	switch r {
	case RouteToOne:
		return "ToOne"
	case RouteToMany:
		return "ToMany"
	case RouteForwarded:
		return "Forwarded"
	case RouteToHost:
		return "ToHost"
	default:
		return "Unknown"
	}
}

// Data carries an application payload identified by DataID, the FNV-1 hash
// of its identifier.
type Data struct {
	Route       Route
	Target      PeerID   // RouteToOne
	Targets     []PeerID // RouteToMany
	Sender      PeerID   // RouteForwarded
	TypedRecord bool
	DataID      uint32
	Payload     []byte
}

// MarshalPacket implements serializer.Marshaler.
func (d *Data) MarshalPacket(w *serializer.Writer) {
	w.WriteBits(uint64(d.Route), 2)
	switch d.Route {
	case RouteToOne:
		w.WriteUint32(uint32(d.Target))
	case RouteToMany:
		w.WriteUvarint(uint64(len(d.Targets)))
		for _, id := range d.Targets {
			w.WriteUint32(uint32(id))
		}
	case RouteForwarded:
		w.WriteUint32(uint32(d.Sender))
	}
	w.WriteBool(d.TypedRecord)
	w.Align()
	w.WriteUint32(d.DataID)
	w.WriteBytes(d.Payload)
}

// UnmarshalPacket implements serializer.Unmarshaler. Payload references the
// reader's buffer.
func (d *Data) UnmarshalPacket(r *serializer.Reader) error {
	route, err := r.ReadBits(2)
	if err != nil {
		return err
	}
	d.Route = Route(route)

	switch d.Route {
	case RouteToOne:
		id, err := r.ReadUint32()
		if err != nil {
			return err
		}
		d.Target = PeerID(id)
	case RouteToMany:
		n, err := r.ReadCollectionCount()
		if err != nil {
			return err
		}
		if uint(n)*32 > r.RemainingBits() {
			return serializer.ErrOutOfRange
		}
		d.Targets = make([]PeerID, n)
		for i := range d.Targets {
			id, err := r.ReadUint32()
			if err != nil {
				return err
			}
			d.Targets[i] = PeerID(id)
		}
	case RouteForwarded:
		id, err := r.ReadUint32()
		if err != nil {
			return err
		}
		d.Sender = PeerID(id)
	case RouteToHost:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidRoute, route)
	}

	if d.TypedRecord, err = r.ReadBool(); err != nil {
		return err
	}
	r.Align()
	if d.DataID, err = r.ReadUint32(); err != nil {
		return err
	}
	d.Payload = r.Rest()
	return nil
}

// DecodeData decodes a Data body.
func DecodeData(body []byte) (*Data, error) {
	d := &Data{}
	if err := decodeExact(body, d); err != nil {
		return nil, err
	}
	return d, nil
}
