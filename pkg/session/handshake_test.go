package session

import (
	"context"
	"testing"
	"time"

	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/serializer"
	"github.com/vango-dev/peerlink/pkg/transport"
)

func TestHandshake(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Color = serializer.Color{R: 255} })
	a := h.dial("alice", func(c *Config) { c.Color = serializer.Color{G: 200} })

	if a.State() != StateDisconnected {
		t.Errorf("state before connect = %v", a.State())
	}
	h.pump(4)

	if !a.Connected() || a.ID() != protocol.FirstClientPeerID {
		t.Fatalf("client state = %v id = %d, want Authenticated 2", a.State(), a.ID())
	}
	if got := a.eventsOf(EventAuthenticated); len(got) != 1 || got[0].Host.Name != "arena" {
		t.Errorf("Authenticated events = %+v", got)
	}
	if a.Host().Name != "arena" || a.Host().MaxPeers != 8 || a.Host().CurrentPeers != 1 {
		t.Errorf("Host() = %+v", a.Host())
	}

	roster := a.Roster()
	want := []PeerInfo{
		{ID: protocol.HostPeerID, Name: "arena", Color: serializer.Color{R: 255}},
		{ID: 2, Name: "alice", Color: serializer.Color{G: 200}},
	}
	if len(roster) != len(want) || roster[0] != want[0] || roster[1] != want[1] {
		t.Errorf("Roster() = %+v, want %+v", roster, want)
	}

	if p, ok := h.host.Peer(2); !ok || p.Name != "alice" {
		t.Errorf("host.Peer(2) = %+v, %v", p, ok)
	}
	if got := h.hostEventsOf(EventPeerConnected); len(got) != 1 || got[0].Peer.ID != 2 {
		t.Errorf("host PeerConnected events = %+v", got)
	}
	if h.rec.handshakes[HandshakeAccepted] != 1 || h.rec.peers != 1 {
		t.Errorf("recorder = %+v", h.rec)
	}
}

func TestHandshakeRosterExchange(t *testing.T) {
	h := newHarness(t, nil)
	a := h.join("alice")
	b := h.join("bob")
	h.pump(2)

	if got := a.eventsOf(EventPeerConnected); len(got) != 2 || got[1].Peer.Name != "bob" {
		t.Errorf("alice PeerConnected = %+v, want host then bob", got)
	}
	names := map[string]bool{}
	for _, p := range b.Roster() {
		names[p.Name] = true
	}
	if !names["arena"] || !names["alice"] || !names["bob"] || len(names) != 3 {
		t.Errorf("bob roster = %+v", b.Roster())
	}
	if a.Host().CurrentPeers != 2 {
		t.Errorf("alice sees %d peers, want 2", a.Host().CurrentPeers)
	}
}

func TestHandshakeInvalidAnswer(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Authenticator = NewHMACAuthenticator([]byte("right")) })
	c := h.dial("mallory", func(c *Config) { c.Authenticator = NewHMACAuthenticator([]byte("wrong")) })
	h.pump(4)

	denied := c.eventsOf(EventDenied)
	if len(denied) != 1 || denied[0].DenyReason != protocol.DenyInvalidChallengeAnswer {
		t.Fatalf("Denied events = %+v, want InvalidChallengeAnswer", denied)
	}
	if c.State() != StateDisconnected || c.ID() != protocol.NilPeerID {
		t.Errorf("client state = %v id = %d", c.State(), c.ID())
	}
	if len(h.host.Peers()) != 0 || h.rec.handshakes[HandshakeDenied] != 1 {
		t.Errorf("host peers = %v, denied = %d", h.host.Peers(), h.rec.handshakes[HandshakeDenied])
	}
}

func TestHandshakeNoSpace(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.MaxPeers = 1 })
	h.join("alice")
	late := h.dial("bob", nil)
	h.pump(4)

	denied := late.eventsOf(EventDenied)
	if len(denied) != 1 || denied[0].DenyReason != protocol.DenyNoSpace {
		t.Fatalf("Denied events = %+v, want NoSpace", denied)
	}
	if len(h.host.Peers()) != 1 {
		t.Errorf("host has %d peers, want 1", len(h.host.Peers()))
	}

	// Raising the limit lets the next attempt in.
	if err := h.host.SetMaxPeers(2); err != nil {
		t.Fatal(err)
	}
	h.join("carol")
}

// rawClient drives the host with hand-built datagrams.
type rawClient struct {
	t  *testing.T
	tr *transport.Memory
}

func (r *rawClient) send(data []byte) {
	r.t.Helper()
	if err := r.tr.Send(transport.HostConn, protocol.ReliableOrdered, data); err != nil {
		r.t.Fatal(err)
	}
}

// packets drains every data event and decodes it.
func (r *rawClient) packets() (out []*protocol.Packet, disconnected bool) {
	r.t.Helper()
	for {
		e, ok := r.tr.Poll()
		if !ok {
			return out, disconnected
		}
		switch e.Kind {
		case transport.EventDisconnect:
			disconnected = true
		case transport.EventData:
			p, err := protocol.Decode(e.Data)
			if err != nil {
				r.t.Fatalf("host sent undecodable datagram: %v", err)
			}
			out = append(out, p)
		}
	}
}

func TestHandshakeTimeoutDeniesSilentClient(t *testing.T) {
	h := newHarness(t, nil)
	tr, _ := h.hub.Dial()
	raw := &rawClient{t: t, tr: tr}

	h.host.Tick(context.Background())
	raw.send(protocol.EncodeConnection(protocol.ConnectionRequest, nil))
	h.host.Tick(context.Background())

	pkts, _ := raw.packets()
	if len(pkts) != 1 || pkts[0].Header.ConnectionType() != protocol.ConnectionChallenge {
		t.Fatalf("after request got %v, want one challenge", pkts)
	}
	if h.host.Status().Handshaking != 1 {
		t.Errorf("Handshaking = %d, want 1", h.host.Status().Handshaking)
	}

	h.clock.Advance(9 * time.Second)
	h.host.Tick(context.Background())
	if pkts, _ := raw.packets(); len(pkts) != 0 {
		t.Fatalf("host acted before timeout: %v", pkts)
	}

	h.clock.Advance(time.Second)
	h.host.Tick(context.Background())
	pkts, disconnected := raw.packets()
	if len(pkts) != 1 || pkts[0].Header.ConnectionType() != protocol.ConnectionDenied {
		t.Fatalf("after timeout got %v, want Denied", pkts)
	}
	var d protocol.Denied
	if err := protocol.DecodeConnectionBody(pkts[0].Body, &d); err != nil || d.Reason != protocol.DenyTimeout {
		t.Errorf("deny reason = %v (%v), want Timeout", d.Reason, err)
	}
	if !disconnected {
		t.Error("transport connection not closed after deny")
	}
	if h.host.Status().Handshaking != 0 {
		t.Errorf("Handshaking = %d after deny", h.host.Status().Handshaking)
	}
}

func TestHandshakeRepeatsLostChallenge(t *testing.T) {
	h := newHarness(t, nil)
	tr, _ := h.hub.Dial()
	raw := &rawClient{t: t, tr: tr}
	h.host.Tick(context.Background())

	req := protocol.EncodeConnection(protocol.ConnectionRequest, nil)
	raw.send(req)
	raw.send(req)
	h.host.Tick(context.Background())

	pkts, _ := raw.packets()
	if len(pkts) != 2 {
		t.Fatalf("got %d packets, want a challenge per request", len(pkts))
	}
	var c1, c2 protocol.Challenge
	protocol.DecodeConnectionBody(pkts[0].Body, &c1)
	protocol.DecodeConnectionBody(pkts[1].Body, &c2)
	if c1 != c2 {
		t.Errorf("repeated challenge changed: %d vs %d", c1.Value, c2.Value)
	}

	// Answering the repeated challenge still authenticates.
	auth := NewHMACAuthenticator([]byte(DefaultKey))
	raw.send(protocol.EncodeConnection(protocol.ChallengeAnswer, &protocol.Answer{Answer: auth.Answer(c1.Value), Username: "raw"}))
	h.host.Tick(context.Background())
	pkts, _ = raw.packets()
	if len(pkts) == 0 || pkts[0].Header.ConnectionType() != protocol.ConnectionAccepted {
		t.Fatalf("got %v, want Accepted first", pkts)
	}
}

func TestHostDropsDataBeforeAuthentication(t *testing.T) {
	h := newHarness(t, nil)
	tr, _ := h.hub.Dial()
	raw := &rawClient{t: t, tr: tr}
	h.host.Tick(context.Background())

	d := &protocol.Data{Route: protocol.RouteToHost, DataID: 1, Payload: []byte("sneaky")}
	raw.send(protocol.EncodeSequenced(protocol.MessageData, protocol.ReliableOrdered, 0, protocol.EncodeBody(d)))
	raw.send([]byte{0x0f})
	h.host.Tick(context.Background())

	if h.rec.drops[DropUnauthenticated] != 1 || h.rec.drops[DropMalformed] != 1 {
		t.Errorf("drops = %v", h.rec.drops)
	}
	if pkts, _ := raw.packets(); len(pkts) != 0 {
		t.Errorf("host answered unauthenticated data: %v", pkts)
	}
}

func TestClientHandshakeTimeout(t *testing.T) {
	h := newHarness(t, nil)
	c := h.dial("alice", func(cfg *Config) { cfg.ConnectionTimeout = 2 * time.Second })
	// The host never hears the client.
	h.hub.SetDrop(func(transport.ConnID, bool, protocol.Channel, []byte) bool { return true })

	h.pump(2)
	if c.State() != StateConnecting {
		t.Fatalf("state = %v, want Connecting", c.State())
	}
	for i := 0; i < 10; i++ {
		h.clock.Advance(300 * time.Millisecond)
		h.pump(1)
	}

	got := c.eventsOf(EventDisconnected)
	if len(got) != 1 || got[0].Reason != protocol.DisconnectTimeout {
		t.Fatalf("Disconnected events = %+v, want Timeout", got)
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %v", c.State())
	}
}

func TestPeerIDReuse(t *testing.T) {
	h := newHarness(t, nil)
	a := h.join("alice")
	b := h.join("bob")
	if a.ID() != 2 || b.ID() != 3 {
		t.Fatalf("ids = %d, %d", a.ID(), b.ID())
	}

	if err := a.Disconnect(); err != nil {
		t.Fatal(err)
	}
	h.pump(2)
	if _, ok := h.host.Peer(2); ok {
		t.Fatal("peer 2 still present")
	}
	gone := h.hostEventsOf(EventPeerDisconnected)
	if len(gone) != 1 || gone[0].Reason != protocol.DisconnectRequested {
		t.Errorf("host PeerDisconnected = %+v, want Requested", gone)
	}
	if got := b.eventsOf(EventPeerDisconnected); len(got) != 1 || got[0].Peer.ID != 2 {
		t.Errorf("bob PeerDisconnected = %+v", got)
	}

	c := h.join("carol")
	if c.ID() != 2 {
		t.Errorf("carol id = %d, want reused 2", c.ID())
	}
}

func TestKickAndClose(t *testing.T) {
	h := newHarness(t, nil)
	a := h.join("alice")
	b := h.join("bob")

	if err := h.host.Kick(a.ID()); err != nil {
		t.Fatal(err)
	}
	h.pump(2)
	if got := a.eventsOf(EventDisconnected); len(got) != 1 || got[0].Reason != protocol.DisconnectKicked {
		t.Errorf("alice Disconnected = %+v, want Kicked", got)
	}
	if err := h.host.Kick(a.ID()); err == nil {
		t.Error("second Kick succeeded")
	}

	h.host.Close()
	h.pump(1)
	if got := b.eventsOf(EventDisconnected); len(got) != 1 || got[0].Reason != protocol.DisconnectHostShutdown {
		t.Errorf("bob Disconnected = %+v, want HostShutdown", got)
	}
	if err := h.host.Send(ToAll(), protocol.ReliableOrdered, "x", nil); err != ErrClosed {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if h.rec.disconnects[protocol.DisconnectKicked] != 1 || h.rec.disconnects[protocol.DisconnectHostShutdown] != 1 {
		t.Errorf("disconnects = %v", h.rec.disconnects)
	}
}

func TestHMACAuthenticator(t *testing.T) {
	a := NewHMACAuthenticator([]byte("k"))
	b := NewHMACAuthenticator([]byte("other"))

	ans := a.Answer(42)
	if ans != a.Answer(42) {
		t.Error("Answer not deterministic")
	}
	if !a.Verify(42, ans) {
		t.Error("Verify rejected own answer")
	}
	if a.Verify(43, ans) {
		t.Error("Verify accepted answer for another challenge")
	}
	if b.Verify(42, ans) {
		t.Error("Verify accepted answer under another key")
	}
}
