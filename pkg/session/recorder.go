package session

import (
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/reliability"
)

// Drop reasons passed to Recorder.DatagramDropped.
const (
	DropMalformed       = "malformed"
	DropUnauthenticated = "unauthenticated"
	DropUnexpected      = "unexpected"
)

// Handshake outcomes passed to Recorder.Handshake.
const (
	HandshakeAccepted = "accepted"
	HandshakeDenied   = "denied"
)

// Recorder receives session measurements. Calls happen on the pumping
// goroutine.
type Recorder interface {
	DatagramSent(bytes int)
	DatagramReceived(bytes int)
	DatagramDropped(reason string)
	Handshake(outcome string)
	PeerDisconnected(reason protocol.DisconnectReason)
	Reliability(delta reliability.Stats)
	Peers(n int)
}

type nopRecorder struct{}

func (nopRecorder) DatagramSent(int)                           {}
func (nopRecorder) DatagramReceived(int)                       {}
func (nopRecorder) DatagramDropped(string)                     {}
func (nopRecorder) Handshake(string)                           {}
func (nopRecorder) PeerDisconnected(protocol.DisconnectReason) {}
func (nopRecorder) Reliability(reliability.Stats)              {}
func (nopRecorder) Peers(int)                                  {}
