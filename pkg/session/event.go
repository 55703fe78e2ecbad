package session

import (
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/serializer"
)

// State is the handshake state of one connection.
type State uint8

const (
	StateConnecting State = iota
	StateChallenged
	StateAuthenticated
	StateDisconnecting
	StateDisconnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateChallenged:
		return "Challenged"
	case StateAuthenticated:
		return "Authenticated"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// EventKind is the type of a lifecycle event.
type EventKind uint8

const (
	// EventPeerConnected: a peer joined the session.
	EventPeerConnected EventKind = iota
	// EventPeerUpdated: a peer changed its name or color.
	EventPeerUpdated
	// EventPeerDisconnected: a peer left; Reason says why.
	EventPeerDisconnected
	// EventAuthenticated: the client completed its handshake.
	EventAuthenticated
	// EventDenied: the host refused the client; DenyReason says why.
	EventDenied
	// EventDisconnected: the client's connection ended; Reason says why.
	EventDisconnected
	// EventHostUpdated: the host's public description changed.
	EventHostUpdated
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventPeerConnected:
		return "PeerConnected"
	case EventPeerUpdated:
		return "PeerUpdated"
	case EventPeerDisconnected:
		return "PeerDisconnected"
	case EventAuthenticated:
		return "Authenticated"
	case EventDenied:
		return "Denied"
	case EventDisconnected:
		return "Disconnected"
	case EventHostUpdated:
		return "HostUpdated"
	default:
		return "Unknown"
	}
}

// PeerInfo describes one member of the session.
type PeerInfo struct {
	ID    protocol.PeerID  `json:"id"`
	Name  string           `json:"name"`
	Color serializer.Color `json:"color"`
}

// HostInfo is the host's public description.
type HostInfo struct {
	Name         string
	MaxPeers     int
	CurrentPeers int
}

// Event is a lifecycle notification.
type Event struct {
	Kind       EventKind
	Peer       PeerInfo
	Host       HostInfo
	Reason     protocol.DisconnectReason
	DenyReason protocol.DenyReason
}
