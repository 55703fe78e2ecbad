package session

import (
	"slices"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// Target selects the recipients of a data send.
type Target struct {
	route protocol.Route
	peer  protocol.PeerID
	peers []protocol.PeerID
}

// ToHost addresses the host only.
func ToHost() Target {
	return Target{route: protocol.RouteToHost}
}

// ToPeer addresses one peer. On a Client the host relays it.
func ToPeer(id protocol.PeerID) Target {
	return Target{route: protocol.RouteToOne, peer: id}
}

// ToPeers addresses an explicit set of peers. Repeated IDs receive one copy.
// An empty set sends nothing.
func ToPeers(ids ...protocol.PeerID) Target {
	if len(ids) == 0 {
		return Target{route: protocol.RouteToMany, peers: []protocol.PeerID{}}
	}
	return Target{route: protocol.RouteToMany, peers: slices.Clone(ids)}
}

// ToAll addresses every peer except the sender, the host included.
func ToAll() Target {
	return Target{route: protocol.RouteToMany}
}

// all reports whether t is the all-but-sender broadcast.
func (t Target) all() bool {
	return t.route == protocol.RouteToMany && t.peers == nil
}

// empty reports whether t is an explicit peer set with no members.
func (t Target) empty() bool {
	return t.route == protocol.RouteToMany && t.peers != nil && len(t.peers) == 0
}

// uniquePeers returns ids sorted with duplicates removed.
func uniquePeers(ids []protocol.PeerID) []protocol.PeerID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
