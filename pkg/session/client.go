package session

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/vango-dev/peerlink/pkg/dispatch"
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/reliability"
	"github.com/vango-dev/peerlink/pkg/serializer"
	"github.com/vango-dev/peerlink/pkg/transport"
)

// Client joins a host over a transport. The handshake starts when the
// transport reports the connection to the host.
//
// Methods must be called from the goroutine driving PumpIncoming and
// PumpOutgoing.
type Client struct {
	core
	link   *link
	state  State
	self   PeerInfo
	host   HostInfo
	roster map[protocol.PeerID]PeerInfo
}

// NewClient creates a client using tr.
func NewClient(tr transport.Transport, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	cfg.Logger = cfg.Logger.With("component", "client")
	return &Client{
		core:   core{cfg: cfg, tr: tr, registry: cfg.Registry, rec: cfg.Recorder},
		state:  StateDisconnected,
		self:   PeerInfo{Name: cfg.Name, Color: cfg.Color},
		roster: make(map[protocol.PeerID]PeerInfo),
	}, nil
}

// Registry returns the registry incoming data is dispatched to.
func (c *Client) Registry() *dispatch.Registry {
	return c.registry
}

// State returns the handshake state.
func (c *Client) State() State {
	return c.state
}

// Connected reports whether the handshake completed.
func (c *Client) Connected() bool {
	return c.state == StateAuthenticated
}

// ID returns the peer ID assigned by the host, or protocol.NilPeerID.
func (c *Client) ID() protocol.PeerID {
	return c.self.ID
}

// Host returns the host's description as of the last update.
func (c *Client) Host() HostInfo {
	return c.host
}

// Roster returns every known member of the session, this client and the
// host included, ordered by ID.
func (c *Client) Roster() []PeerInfo {
	return slices.SortedFunc(maps.Values(c.roster), func(a, b PeerInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// Tick pumps incoming then outgoing traffic.
func (c *Client) Tick(ctx context.Context) {
	c.PumpIncoming(ctx)
	c.PumpOutgoing()
}

// PumpIncoming drains the transport.
func (c *Client) PumpIncoming(ctx context.Context) {
	if c.closed {
		return
	}
	for {
		e, ok := c.tr.Poll()
		if !ok {
			return
		}
		switch e.Kind {
		case transport.EventConnect:
			c.start(e)
		case transport.EventDisconnect:
			if c.link != nil && c.link.conn == e.Conn {
				c.end(protocol.DisconnectTransport, false)
			}
		case transport.EventData:
			if c.link == nil || c.link.conn != e.Conn {
				c.drop(DropUnexpected, "datagram from unknown connection", "conn", e.Conn)
				continue
			}
			c.receive(ctx, e.Data)
		}
	}
}

// PumpOutgoing repeats unanswered handshake packets, retransmits
// unacknowledged data and enforces the handshake timeout.
func (c *Client) PumpOutgoing() {
	if c.closed || c.link == nil {
		return
	}
	now := c.now()
	l := c.link
	switch c.state {
	case StateConnecting, StateChallenged:
		if now.Sub(l.started) >= c.cfg.ConnectionTimeout {
			c.cfg.Logger.Info("handshake timed out", "state", c.state)
			c.end(protocol.DisconnectTimeout, true)
			return
		}
		if now.Sub(l.lastAttempt) >= c.cfg.Reliability.RetryInterval() {
			c.transmit(l, protocol.ReliableOrdered, l.handshake)
			l.lastAttempt = now
		}
	case StateAuthenticated:
		if !c.service(l, now) {
			c.cfg.Logger.Warn("resend limit exceeded")
			c.end(protocol.DisconnectFailedAck, true)
		}
	}
}

func (c *Client) start(e transport.Event) {
	if c.state != StateDisconnected {
		c.drop(DropUnexpected, "second connection from transport", "conn", e.Conn)
		return
	}
	now := c.now()
	l := &link{conn: e.Conn, remote: e.Remote, started: now, lastAttempt: now}
	c.link = l
	c.state = StateConnecting
	l.handshake = c.sendConnection(l, protocol.ConnectionRequest, nil)
	c.cfg.Logger.Debug("connecting", "remote", e.Remote)
}

func (c *Client) receive(ctx context.Context, data []byte) {
	p, ok := c.decode(data)
	if !ok {
		return
	}
	if p.Header.ConnectionPhase {
		c.handleConnection(p)
		return
	}
	if c.state != StateAuthenticated {
		c.drop(DropUnauthenticated, "data before authentication", "type", p.Header)
		return
	}
	for _, d := range c.receiveMessages(c.link, p) {
		c.handleMessage(ctx, d)
	}
}

func (c *Client) handleConnection(p *protocol.Packet) {
	l := c.link
	switch t := p.Header.ConnectionType(); t {
	case protocol.ConnectionChallenge:
		if c.state != StateConnecting && c.state != StateChallenged {
			c.drop(DropUnexpected, "challenge after handshake", "state", c.state)
			return
		}
		var ch protocol.Challenge
		if err := protocol.DecodeConnectionBody(p.Body, &ch); err != nil {
			c.drop(DropMalformed, "malformed challenge", "error", err)
			return
		}
		l.challenge = ch.Value
		c.state = StateChallenged
		l.handshake = c.sendConnection(l, protocol.ChallengeAnswer, &protocol.Answer{
			Answer:   c.cfg.Authenticator.Answer(ch.Value),
			Username: c.self.Name,
			Color:    c.self.Color,
		})
		l.lastAttempt = c.now()

	case protocol.ConnectionAccepted:
		if c.state != StateChallenged {
			return
		}
		var a protocol.Accepted
		if err := protocol.DecodeConnectionBody(p.Body, &a); err != nil {
			c.drop(DropMalformed, "malformed accept", "error", err)
			return
		}
		c.state = StateAuthenticated
		c.self.ID = a.PeerID
		c.host = HostInfo{Name: a.HostName, MaxPeers: int(a.MaxPeers)}
		c.roster[a.PeerID] = c.self
		l.endpoint = reliability.NewEndpoint(c.cfg.Reliability)
		l.handshake = nil
		l.started = c.now()
		c.rec.Handshake(HandshakeAccepted)
		c.cfg.Logger.Info("authenticated", "peer", a.PeerID, "host", a.HostName)
		c.emit(Event{Kind: EventAuthenticated, Peer: c.self, Host: c.host})

	case protocol.ConnectionDenied:
		if c.state != StateConnecting && c.state != StateChallenged {
			return
		}
		var d protocol.Denied
		if err := protocol.DecodeConnectionBody(p.Body, &d); err != nil {
			c.drop(DropMalformed, "malformed deny", "error", err)
			return
		}
		c.rec.Handshake(HandshakeDenied)
		c.cfg.Logger.Info("connection denied", "reason", d.Reason)
		c.reset()
		c.tr.Disconnect(l.conn)
		c.emit(Event{Kind: EventDenied, DenyReason: d.Reason})

	case protocol.ConnectionClosed:
		var cl protocol.Closed
		if err := protocol.DecodeConnectionBody(p.Body, &cl); err != nil {
			cl.Reason = protocol.DisconnectUnknown
		}
		c.end(cl.Reason, false)
		c.tr.Disconnect(l.conn)

	default:
		c.drop(DropUnexpected, "unexpected connection packet", "type", t)
	}
}

func (c *Client) handleMessage(ctx context.Context, d reliability.Delivery) {
	switch d.Type {
	case protocol.MessageData:
		data, err := protocol.DecodeData(d.Body)
		if err != nil {
			c.drop(DropMalformed, "malformed data", "error", err)
			return
		}
		sender := protocol.HostPeerID
		if data.Route == protocol.RouteForwarded {
			sender = data.Sender
		}
		c.deliverData(ctx, data, sender)

	case protocol.MessageClientUpdate:
		u, err := protocol.DecodeClientUpdate(d.Body)
		if err != nil {
			c.drop(DropMalformed, "malformed client update", "error", err)
			return
		}
		c.applyUpdate(u)

	case protocol.MessageServerUpdate:
		u, err := protocol.DecodeServerUpdate(d.Body)
		if err != nil {
			c.drop(DropMalformed, "malformed server update", "error", err)
			return
		}
		c.host = HostInfo{Name: u.HostName, MaxPeers: int(u.MaxPeers), CurrentPeers: int(u.CurrentPeers)}
		c.emit(Event{Kind: EventHostUpdated, Host: c.host})

	default:
		c.drop(DropUnexpected, "unexpected message from host", "type", d.Type)
	}
}

func (c *Client) applyUpdate(u *protocol.ClientUpdate) {
	p, known := c.roster[u.PeerID]
	p.ID = u.PeerID
	if u.HasUsername {
		p.Name = u.Username
	}
	if u.HasColor {
		p.Color = u.Color
	}

	switch u.Kind {
	case protocol.UpdateConnected:
		c.roster[p.ID] = p
		c.emit(Event{Kind: EventPeerConnected, Peer: p})
	case protocol.UpdateUpdated:
		if !known {
			return
		}
		c.roster[p.ID] = p
		c.emit(Event{Kind: EventPeerUpdated, Peer: p})
	case protocol.UpdateDisconnected:
		if !known {
			return
		}
		delete(c.roster, p.ID)
		c.emit(Event{Kind: EventPeerDisconnected, Peer: p, Reason: protocol.DisconnectUnknown})
	}
}

// Send sends payload under the identifier name.
func (c *Client) Send(t Target, ch protocol.Channel, name string, payload []byte) error {
	if err := serializer.ValidateIdentifier(name); err != nil {
		return err
	}
	return c.send(t, ch, &protocol.Data{DataID: dispatch.Hash(name), Payload: payload})
}

// SendRecord sends a typed record encoded with the configured settings.
func (c *Client) SendRecord(t Target, ch protocol.Channel, rec dispatch.Record) error {
	hash, payload := dispatch.EncodeRecord(rec, c.cfg.Settings)
	return c.send(t, ch, &protocol.Data{TypedRecord: true, DataID: hash, Payload: payload})
}

func (c *Client) send(t Target, ch protocol.Channel, d *protocol.Data) error {
	if c.closed {
		return ErrClosed
	}
	if c.state != StateAuthenticated {
		return ErrNotConnected
	}
	if t.empty() {
		return nil
	}
	d.Route = t.route
	switch t.route {
	case protocol.RouteToOne:
		d.Target = t.peer
	case protocol.RouteToMany:
		d.Targets = uniquePeers(t.peers)
	case protocol.RouteToHost:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidTarget, t.route)
	}
	return c.sendMessage(c.link, ch, protocol.MessageData, protocol.EncodeBody(d))
}

// UpdateProfile changes this client's name and color and tells the
// session.
func (c *Client) UpdateProfile(name string, color serializer.Color) error {
	if c.state != StateAuthenticated {
		return ErrNotConnected
	}
	c.self.Name, c.self.Color = name, color
	c.roster[c.self.ID] = c.self
	u := &protocol.ClientUpdate{
		PeerID:      c.self.ID,
		Kind:        protocol.UpdateUpdated,
		HasUsername: true,
		HasColor:    true,
		Username:    name,
		Color:       color,
	}
	return c.sendMessage(c.link, protocol.ReliableOrdered, protocol.MessageClientUpdate, protocol.EncodeBody(u))
}

// Disconnect leaves the session with DisconnectRequested.
func (c *Client) Disconnect() error {
	if c.link == nil || c.state == StateDisconnected {
		return ErrNotConnected
	}
	conn := c.link.conn
	c.end(protocol.DisconnectRequested, true)
	return c.tr.Disconnect(conn)
}

// Close disconnects if connected and stops pumping.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	if c.link != nil && c.state != StateDisconnected {
		c.Disconnect()
	}
	c.closed = true
	return nil
}

// end finishes the connection. notify tells the host why.
func (c *Client) end(reason protocol.DisconnectReason, notify bool) {
	if c.link == nil || c.state == StateDisconnected {
		return
	}
	c.state = StateDisconnecting
	if notify {
		c.sendConnection(c.link, protocol.ConnectionClosed, &protocol.Closed{Reason: reason})
	}
	c.rec.PeerDisconnected(reason)
	c.cfg.Logger.Info("disconnected", "reason", reason)
	c.reset()
	c.emit(Event{Kind: EventDisconnected, Reason: reason})
}

// reset releases all per-connection state.
func (c *Client) reset() {
	if c.link != nil && c.link.endpoint != nil {
		c.link.endpoint.Release()
	}
	c.link = nil
	c.state = StateDisconnected
	c.self.ID = protocol.NilPeerID
	clear(c.roster)
}
