package session

import (
	"time"

	"github.com/vango-dev/peerlink/pkg/reliability"
)

// PeerStatus is one connection in a Status snapshot.
type PeerStatus struct {
	PeerInfo
	State   string            `json:"state"`
	Remote  string            `json:"remote"`
	Since   time.Time         `json:"since"`
	Pending int               `json:"pending"`
	Stats   reliability.Stats `json:"stats"`
}

// Status is an immutable snapshot of a Host, published at the end of every
// pump for readers on other goroutines.
type Status struct {
	SessionID    string       `json:"session_id"`
	Name         string       `json:"name"`
	MaxPeers     int          `json:"max_peers"`
	CurrentPeers int          `json:"current_peers"`
	Handshaking  int          `json:"handshaking"`
	Peers        []PeerStatus `json:"peers"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
