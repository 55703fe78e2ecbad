package session

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/vango-dev/peerlink/pkg/dispatch"
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/reliability"
	"github.com/vango-dev/peerlink/pkg/serializer"
	"github.com/vango-dev/peerlink/pkg/transport"
)

// Host accepts clients, authenticates them and relays data between them.
// It participates in the session itself as protocol.HostPeerID.
//
// All methods except Status must be called from one goroutine, the one
// driving PumpIncoming and PumpOutgoing.
type Host struct {
	core
	id       uuid.UUID
	name     string
	maxPeers int
	links    map[transport.ConnID]*link
	peers    map[protocol.PeerID]*link
	status   atomic.Pointer[Status]
}

// NewHost creates a host serving clients on tr. The host does not own tr;
// Close leaves it open.
func NewHost(tr transport.Transport, cfg *Config) (*Host, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	h := &Host{
		id:       uuid.New(),
		name:     cfg.Name,
		maxPeers: cfg.MaxPeers,
		links:    make(map[transport.ConnID]*link),
		peers:    make(map[protocol.PeerID]*link),
	}
	cfg.Logger = cfg.Logger.With("component", "host", "session_id", h.id.String())
	h.core = core{cfg: cfg, tr: tr, registry: cfg.Registry, rec: cfg.Recorder}
	h.publish()
	return h, nil
}

// Registry returns the registry incoming data is dispatched to.
func (h *Host) Registry() *dispatch.Registry {
	return h.registry
}

// SessionID returns the identifier generated for this host.
func (h *Host) SessionID() uuid.UUID {
	return h.id
}

// Info returns the host's public description.
func (h *Host) Info() HostInfo {
	return HostInfo{Name: h.name, MaxPeers: h.maxPeers, CurrentPeers: len(h.peers)}
}

// Self describes the host as a member of the session.
func (h *Host) Self() PeerInfo {
	return PeerInfo{ID: protocol.HostPeerID, Name: h.name, Color: h.cfg.Color}
}

// Peers returns the authenticated clients ordered by ID.
func (h *Host) Peers() []PeerInfo {
	out := make([]PeerInfo, 0, len(h.peers))
	for _, id := range slices.Sorted(maps.Keys(h.peers)) {
		out = append(out, h.peers[id].info)
	}
	return out
}

// Peer returns the authenticated client with the given ID.
func (h *Host) Peer(id protocol.PeerID) (PeerInfo, bool) {
	l, ok := h.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return l.info, true
}

// Status returns the latest published snapshot. It is safe to call from
// any goroutine.
func (h *Host) Status() *Status {
	return h.status.Load()
}

// Tick pumps incoming then outgoing traffic.
func (h *Host) Tick(ctx context.Context) {
	h.PumpIncoming(ctx)
	h.PumpOutgoing()
}

// PumpIncoming drains the transport, running handshakes and dispatching
// received data to the registry.
func (h *Host) PumpIncoming(ctx context.Context) {
	if h.closed {
		return
	}
	for {
		e, ok := h.tr.Poll()
		if !ok {
			break
		}
		switch e.Kind {
		case transport.EventConnect:
			h.links[e.Conn] = &link{conn: e.Conn, remote: e.Remote, state: StateConnecting, started: h.now()}
			h.cfg.Logger.Debug("connection opened", "conn", e.Conn, "remote", e.Remote)
		case transport.EventDisconnect:
			if l := h.links[e.Conn]; l != nil {
				h.remove(l, protocol.DisconnectTransport, false)
			}
		case transport.EventData:
			h.receive(ctx, e)
		}
	}
	h.publish()
}

// PumpOutgoing retransmits unacknowledged data, drops peers whose resend
// limit is exhausted and expires stalled handshakes.
func (h *Host) PumpOutgoing() {
	if h.closed {
		return
	}
	now := h.now()
	for _, conn := range slices.Sorted(maps.Keys(h.links)) {
		l := h.links[conn]
		if l == nil {
			continue
		}
		switch l.state {
		case StateAuthenticated:
			if !h.service(l, now) {
				h.cfg.Logger.Warn("resend limit exceeded", "peer", l.info.ID)
				h.remove(l, protocol.DisconnectFailedAck, true)
			}
		case StateConnecting, StateChallenged:
			if now.Sub(l.started) >= h.cfg.ConnectionTimeout {
				h.deny(l, protocol.DenyTimeout)
			}
		}
	}
	h.publish()
}

func (h *Host) receive(ctx context.Context, e transport.Event) {
	l := h.links[e.Conn]
	if l == nil {
		h.drop(DropUnexpected, "datagram from unknown connection", "conn", e.Conn)
		return
	}
	p, ok := h.decode(e.Data)
	if !ok {
		return
	}
	if p.Header.ConnectionPhase {
		h.handleConnection(l, p)
		return
	}
	if l.state != StateAuthenticated {
		h.drop(DropUnauthenticated, "data before authentication", "conn", l.conn, "type", p.Header)
		return
	}
	for _, d := range h.receiveMessages(l, p) {
		h.handleMessage(ctx, l, d)
	}
}

func (h *Host) handleConnection(l *link, p *protocol.Packet) {
	switch t := p.Header.ConnectionType(); t {
	case protocol.ConnectionRequest:
		switch l.state {
		case StateConnecting:
			if len(h.peers) >= h.maxPeers {
				h.deny(l, protocol.DenyNoSpace)
				return
			}
			v, err := newChallenge()
			if err != nil {
				h.cfg.Logger.Error("challenge generation failed", "error", err)
				return
			}
			l.challenge = v
			l.state = StateChallenged
			h.sendConnection(l, protocol.ConnectionChallenge, &protocol.Challenge{Value: v})
		case StateChallenged:
			// The challenge was lost; repeat it.
			h.sendConnection(l, protocol.ConnectionChallenge, &protocol.Challenge{Value: l.challenge})
		}

	case protocol.ChallengeAnswer:
		var a protocol.Answer
		if err := protocol.DecodeConnectionBody(p.Body, &a); err != nil {
			h.drop(DropMalformed, "malformed challenge answer", "conn", l.conn, "error", err)
			return
		}
		switch l.state {
		case StateChallenged:
			h.authenticate(l, &a)
		case StateAuthenticated:
			// Accepted was lost; the client is still answering.
			if h.cfg.Authenticator.Verify(l.challenge, a.Answer) {
				h.sendAccepted(l)
			}
		default:
			h.drop(DropUnexpected, "answer without challenge", "conn", l.conn)
		}

	case protocol.ConnectionClosed:
		var c protocol.Closed
		if err := protocol.DecodeConnectionBody(p.Body, &c); err != nil {
			c.Reason = protocol.DisconnectRequested
		}
		h.remove(l, c.Reason, false)
		h.tr.Disconnect(l.conn)

	default:
		h.drop(DropUnexpected, "unexpected connection packet", "conn", l.conn, "type", t)
	}
}

func (h *Host) authenticate(l *link, a *protocol.Answer) {
	if !h.cfg.Authenticator.Verify(l.challenge, a.Answer) {
		h.deny(l, protocol.DenyInvalidChallengeAnswer)
		return
	}
	if len(h.peers) >= h.maxPeers {
		h.deny(l, protocol.DenyNoSpace)
		return
	}

	l.info = PeerInfo{ID: h.nextPeerID(), Name: a.Username, Color: a.Color}
	l.state = StateAuthenticated
	l.started = h.now()
	l.endpoint = reliability.NewEndpoint(h.cfg.Reliability)
	h.peers[l.info.ID] = l
	h.sendAccepted(l)
	h.rec.Handshake(HandshakeAccepted)
	h.rec.Peers(len(h.peers))
	h.cfg.Logger.Info("peer connected", "peer", l.info.ID, "name", l.info.Name, "remote", l.remote)

	// The newcomer learns the roster, the roster learns the newcomer.
	self := h.Self()
	h.sendUpdate(l, connectedUpdate(self))
	for _, id := range slices.Sorted(maps.Keys(h.peers)) {
		other := h.peers[id]
		if other == l {
			continue
		}
		h.sendUpdate(l, connectedUpdate(other.info))
		h.sendUpdate(other, connectedUpdate(l.info))
	}
	h.broadcastServerUpdate()
	h.emit(Event{Kind: EventPeerConnected, Peer: l.info})
}

func (h *Host) sendAccepted(l *link) {
	h.sendConnection(l, protocol.ConnectionAccepted, &protocol.Accepted{
		PeerID:   l.info.ID,
		HostName: h.name,
		MaxPeers: uint32(h.maxPeers),
	})
}

func connectedUpdate(p PeerInfo) *protocol.ClientUpdate {
	return &protocol.ClientUpdate{
		PeerID:      p.ID,
		Kind:        protocol.UpdateConnected,
		HasUsername: true,
		HasColor:    true,
		Username:    p.Name,
		Color:       p.Color,
	}
}

// nextPeerID returns the lowest free client ID.
func (h *Host) nextPeerID() protocol.PeerID {
	id := protocol.FirstClientPeerID
	for h.peers[id] != nil {
		id++
	}
	return id
}

func (h *Host) deny(l *link, reason protocol.DenyReason) {
	h.sendConnection(l, protocol.ConnectionDenied, &protocol.Denied{Reason: reason})
	h.rec.Handshake(HandshakeDenied)
	h.cfg.Logger.Info("connection denied", "conn", l.conn, "remote", l.remote, "reason", reason)
	delete(h.links, l.conn)
	l.state = StateDisconnected
	h.tr.Disconnect(l.conn)
}

// remove tears down l. When notify is set the client is told why and the
// transport connection is closed.
func (h *Host) remove(l *link, reason protocol.DisconnectReason, notify bool) {
	delete(h.links, l.conn)
	if l.state != StateAuthenticated {
		l.state = StateDisconnected
		if notify {
			h.tr.Disconnect(l.conn)
		}
		return
	}

	l.state = StateDisconnecting
	if notify {
		h.sendConnection(l, protocol.ConnectionClosed, &protocol.Closed{Reason: reason})
		h.tr.Disconnect(l.conn)
	}
	l.endpoint.Release()
	delete(h.peers, l.info.ID)
	l.state = StateDisconnected

	h.rec.PeerDisconnected(reason)
	h.rec.Peers(len(h.peers))
	h.cfg.Logger.Info("peer disconnected", "peer", l.info.ID, "reason", reason)

	gone := &protocol.ClientUpdate{PeerID: l.info.ID, Kind: protocol.UpdateDisconnected}
	for _, id := range slices.Sorted(maps.Keys(h.peers)) {
		h.sendUpdate(h.peers[id], gone)
	}
	if !h.closed {
		h.broadcastServerUpdate()
	}
	h.emit(Event{Kind: EventPeerDisconnected, Peer: l.info, Reason: reason})
}

func (h *Host) handleMessage(ctx context.Context, l *link, d reliability.Delivery) {
	switch d.Type {
	case protocol.MessageData:
		data, err := protocol.DecodeData(d.Body)
		if err != nil {
			h.drop(DropMalformed, "malformed data", "peer", l.info.ID, "error", err)
			return
		}
		h.route(ctx, l, d.Channel, data)

	case protocol.MessageClientUpdate:
		u, err := protocol.DecodeClientUpdate(d.Body)
		if err != nil {
			h.drop(DropMalformed, "malformed client update", "peer", l.info.ID, "error", err)
			return
		}
		if u.Kind != protocol.UpdateUpdated || u.PeerID != l.info.ID {
			h.drop(DropUnexpected, "client update for another peer", "peer", l.info.ID, "target", u.PeerID)
			return
		}
		if u.HasUsername {
			l.info.Name = u.Username
		}
		if u.HasColor {
			l.info.Color = u.Color
		}
		for _, id := range slices.Sorted(maps.Keys(h.peers)) {
			if other := h.peers[id]; other != l {
				h.sendUpdate(other, u)
			}
		}
		h.emit(Event{Kind: EventPeerUpdated, Peer: l.info})

	default:
		h.drop(DropUnexpected, "unexpected message from client", "peer", l.info.ID, "type", d.Type)
	}
}

// route delivers data from a client to the host and relays it to the
// addressed peers.
func (h *Host) route(ctx context.Context, from *link, ch protocol.Channel, d *protocol.Data) {
	sender := from.info.ID
	relay := func(id protocol.PeerID) {
		if id == protocol.HostPeerID {
			h.deliverData(ctx, d, sender)
			return
		}
		to := h.peers[id]
		if to == nil || to == from {
			return
		}
		h.forward(to, ch, d, sender)
	}

	switch d.Route {
	case protocol.RouteToHost:
		h.deliverData(ctx, d, sender)
	case protocol.RouteToOne:
		relay(d.Target)
	case protocol.RouteToMany:
		if len(d.Targets) == 0 {
			h.deliverData(ctx, d, sender)
			for _, id := range slices.Sorted(maps.Keys(h.peers)) {
				relay(id)
			}
			return
		}
		for _, id := range uniquePeers(d.Targets) {
			relay(id)
		}
	default:
		h.drop(DropUnexpected, "client sent forwarded data", "peer", sender)
	}
}

func (h *Host) forward(to *link, ch protocol.Channel, d *protocol.Data, sender protocol.PeerID) {
	out := &protocol.Data{
		Route:       protocol.RouteForwarded,
		Sender:      sender,
		TypedRecord: d.TypedRecord,
		DataID:      d.DataID,
		Payload:     d.Payload,
	}
	if err := h.sendMessage(to, ch, protocol.MessageData, protocol.EncodeBody(out)); err != nil {
		h.cfg.Logger.Warn("relay failed", "from", sender, "to", to.info.ID, "error", err)
	}
}

// Send sends payload under the identifier name. ToPeer, ToPeers and ToAll
// are valid targets on a host.
func (h *Host) Send(t Target, ch protocol.Channel, name string, payload []byte) error {
	if err := serializer.ValidateIdentifier(name); err != nil {
		return err
	}
	return h.send(t, ch, &protocol.Data{DataID: dispatch.Hash(name), Payload: payload})
}

// SendRecord sends a typed record encoded with the configured settings.
func (h *Host) SendRecord(t Target, ch protocol.Channel, rec dispatch.Record) error {
	hash, payload := dispatch.EncodeRecord(rec, h.cfg.Settings)
	return h.send(t, ch, &protocol.Data{TypedRecord: true, DataID: hash, Payload: payload})
}

func (h *Host) send(t Target, ch protocol.Channel, d *protocol.Data) error {
	if h.closed {
		return ErrClosed
	}
	if !ch.Valid() {
		return fmt.Errorf("%w: channel %d", reliability.ErrInvalidChannel, ch)
	}
	var to []*link
	switch {
	case t.route == protocol.RouteToOne:
		l := h.peers[t.peer]
		if l == nil {
			return fmt.Errorf("%w: %d", ErrUnknownPeer, t.peer)
		}
		to = append(to, l)
	case t.all():
		for _, id := range slices.Sorted(maps.Keys(h.peers)) {
			to = append(to, h.peers[id])
		}
	case t.route == protocol.RouteToMany:
		for _, id := range uniquePeers(t.peers) {
			l := h.peers[id]
			if l == nil {
				return fmt.Errorf("%w: %d", ErrUnknownPeer, id)
			}
			to = append(to, l)
		}
	default:
		return fmt.Errorf("%w: %s from host", ErrInvalidTarget, t.route)
	}

	d.Route = protocol.RouteForwarded
	d.Sender = protocol.HostPeerID
	body := protocol.EncodeBody(d)
	for _, l := range to {
		if err := h.sendMessage(l, ch, protocol.MessageData, body); err != nil {
			return fmt.Errorf("send to peer %d: %w", l.info.ID, err)
		}
	}
	return nil
}

// SetName renames the host and tells every peer.
func (h *Host) SetName(name string) {
	h.name = name
	h.broadcastServerUpdate()
	h.emit(Event{Kind: EventHostUpdated, Host: h.Info()})
	h.publish()
}

// SetMaxPeers changes the capacity. Connected peers above the new limit
// stay; new connections are denied until there is room.
func (h *Host) SetMaxPeers(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: MaxPeers %d < 1", ErrInvalidConfig, n)
	}
	h.maxPeers = n
	h.broadcastServerUpdate()
	h.emit(Event{Kind: EventHostUpdated, Host: h.Info()})
	h.publish()
	return nil
}

func (h *Host) broadcastServerUpdate() {
	u := protocol.EncodeBody(&protocol.ServerUpdate{
		HostName:     h.name,
		MaxPeers:     uint32(h.maxPeers),
		CurrentPeers: uint32(len(h.peers)),
	})
	for _, id := range slices.Sorted(maps.Keys(h.peers)) {
		l := h.peers[id]
		if err := h.sendMessage(l, protocol.ReliableOrdered, protocol.MessageServerUpdate, u); err != nil {
			h.cfg.Logger.Warn("server update not sent", "peer", id, "error", err)
		}
	}
}

// Kick disconnects a peer with DisconnectKicked.
func (h *Host) Kick(id protocol.PeerID) error {
	l := h.peers[id]
	if l == nil {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, id)
	}
	h.remove(l, protocol.DisconnectKicked, true)
	h.publish()
	return nil
}

// Close disconnects every client with DisconnectHostShutdown. The transport
// stays open.
func (h *Host) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	for _, conn := range slices.Sorted(maps.Keys(h.links)) {
		if l := h.links[conn]; l != nil {
			h.remove(l, protocol.DisconnectHostShutdown, true)
		}
	}
	h.publish()
	return nil
}

func (h *Host) publish() {
	s := &Status{
		SessionID:    h.id.String(),
		Name:         h.name,
		MaxPeers:     h.maxPeers,
		CurrentPeers: len(h.peers),
		Peers:        make([]PeerStatus, 0, len(h.peers)),
		UpdatedAt:    h.now(),
	}
	for _, conn := range slices.Sorted(maps.Keys(h.links)) {
		l := h.links[conn]
		if l.state != StateAuthenticated {
			s.Handshaking++
			continue
		}
		s.Peers = append(s.Peers, PeerStatus{
			PeerInfo: l.info,
			State:    l.state.String(),
			Remote:   l.remote,
			Since:    l.started,
			Pending:  l.endpoint.Pending(),
			Stats:    l.endpoint.Stats(),
		})
	}
	slices.SortFunc(s.Peers, func(a, b PeerStatus) int { return cmp.Compare(a.ID, b.ID) })
	h.status.Store(s)
}
