package discovery

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/vango-dev/peerlink/pkg/serializer"
)

// Announcement errors.
var (
	ErrChecksum  = errors.New("discovery: checksum mismatch")
	ErrMalformed = errors.New("discovery: malformed announcement")
)

// checksumSize is the length of the CRC32 prefix.
const checksumSize = 4

// maxAnnouncement bounds announcement datagrams.
const maxAnnouncement = 1024

// Announcement is what a host multicasts about itself.
type Announcement struct {
	// Endpoint is the address clients connect to. A missing host part
	// means "the address this announcement came from".
	Endpoint     string
	Name         string
	MaxPeers     uint32
	CurrentPeers uint32
}

// MarshalPacket implements serializer.Marshaler.
func (a *Announcement) MarshalPacket(w *serializer.Writer) {
	w.WriteString(a.Endpoint)
	w.WriteString(a.Name)
	w.WriteUint32(a.MaxPeers)
	w.WriteUint32(a.CurrentPeers)
}

// UnmarshalPacket implements serializer.Unmarshaler.
func (a *Announcement) UnmarshalPacket(r *serializer.Reader) error {
	var err error
	if a.Endpoint, err = r.ReadString(); err != nil {
		return err
	}
	if a.Name, err = r.ReadString(); err != nil {
		return err
	}
	if a.MaxPeers, err = r.ReadUint32(); err != nil {
		return err
	}
	a.CurrentPeers, err = r.ReadUint32()
	return err
}

// checksum is CRC32 (IEEE) over the big-endian protocol ID followed by
// body. Hosts with a different protocol ID produce different checksums.
func checksum(protocolID uint32, body []byte) uint32 {
	var id [4]byte
	binary.BigEndian.PutUint32(id[:], protocolID)
	crc := crc32.Update(0, crc32.IEEETable, id[:])
	return crc32.Update(crc, crc32.IEEETable, body)
}

// EncodeAnnouncement builds an announcement datagram for protocolID.
func EncodeAnnouncement(protocolID uint32, a Announcement) []byte {
	body := serializer.Marshal(&a, serializer.DefaultSettings())
	out := make([]byte, checksumSize, checksumSize+len(body))
	binary.BigEndian.PutUint32(out, checksum(protocolID, body))
	return append(out, body...)
}

// DecodeAnnouncement verifies and parses an announcement datagram.
func DecodeAnnouncement(protocolID uint32, data []byte) (Announcement, error) {
	var a Announcement
	if len(data) < checksumSize {
		return a, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}
	body := data[checksumSize:]
	if binary.BigEndian.Uint32(data) != checksum(protocolID, body) {
		return a, ErrChecksum
	}
	r := serializer.NewReaderWithLimit(body, serializer.DefaultSettings(), maxAnnouncement)
	if err := a.UnmarshalPacket(r); err != nil {
		return Announcement{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if !r.EOF() {
		return Announcement{}, fmt.Errorf("%w: trailing bytes", ErrMalformed)
	}
	return a, nil
}
