package session

import (
	"context"
	"time"

	"github.com/vango-dev/peerlink/pkg/dispatch"
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/reliability"
	"github.com/vango-dev/peerlink/pkg/serializer"
	"github.com/vango-dev/peerlink/pkg/transport"
)

// link is the state of one transport connection.
type link struct {
	conn      transport.ConnID
	remote    string
	state     State
	info      PeerInfo
	endpoint  *reliability.Endpoint
	challenge uint64
	started   time.Time
	// handshake is the last connection-phase datagram sent by a client,
	// repeated until the host answers.
	handshake   []byte
	lastAttempt time.Time
	reported    reliability.Stats
}

// core holds what Host and Client share. It is used only from the pumping
// goroutine.
type core struct {
	cfg      *Config
	tr       transport.Transport
	registry *dispatch.Registry
	rec      Recorder
	closed   bool
}

func (c *core) now() time.Time {
	return c.cfg.Now()
}

func (c *core) emit(e Event) {
	if c.cfg.OnEvent != nil {
		c.cfg.OnEvent(e)
	}
}

// transmit hands one datagram to the transport. Failures are logged; the
// reliability layer or the handshake retry recovers from lost datagrams.
func (c *core) transmit(l *link, ch protocol.Channel, datagram []byte) {
	if err := c.tr.Send(l.conn, ch, datagram); err != nil {
		c.cfg.Logger.Debug("transport send failed", "conn", l.conn, "error", err)
		return
	}
	c.rec.DatagramSent(len(datagram))
}

func (c *core) sendConnection(l *link, t protocol.ConnectionType, body serializer.Marshaler) []byte {
	d := protocol.EncodeConnection(t, body)
	c.transmit(l, protocol.ReliableOrdered, d)
	return d
}

// sendMessage sequences body on l's endpoint and transmits the resulting
// datagrams.
func (c *core) sendMessage(l *link, ch protocol.Channel, t protocol.MessageType, body []byte) error {
	datagrams, err := l.endpoint.Send(ch, t, body, c.now())
	if err != nil {
		return err
	}
	for _, d := range datagrams {
		c.transmit(l, ch, d)
	}
	return nil
}

func (c *core) sendUpdate(l *link, u *protocol.ClientUpdate) {
	if err := c.sendMessage(l, protocol.ReliableOrdered, protocol.MessageClientUpdate, protocol.EncodeBody(u)); err != nil {
		c.cfg.Logger.Warn("client update not sent", "peer", l.info.ID, "error", err)
	}
}

// receiveMessages runs p through l's endpoint, transmits the acks and
// returns the bodies ready for delivery.
func (c *core) receiveMessages(l *link, p *protocol.Packet) []reliability.Delivery {
	deliveries, acks := l.endpoint.Receive(p, c.now())
	for _, a := range acks {
		c.transmit(l, p.Header.Channel, a)
	}
	return deliveries
}

// service retransmits and expires on l's endpoint. It reports false when
// the resend limit was exceeded.
func (c *core) service(l *link, now time.Time) bool {
	datagrams, exhausted := l.endpoint.Retransmit(now)
	for _, d := range datagrams {
		// The header byte carries the channel.
		h, _ := protocol.ParseHeader(d[0])
		c.transmit(l, h.Channel, d)
	}
	l.endpoint.Expire(now)
	stats := l.endpoint.Stats()
	c.rec.Reliability(stats.Sub(l.reported))
	l.reported = stats
	return !exhausted
}

func (c *core) deliverData(ctx context.Context, d *protocol.Data, sender protocol.PeerID) {
	c.registry.Dispatch(ctx, d.DataID, sender, d.Payload)
}

// decode parses a datagram, counting failures as drops.
func (c *core) decode(data []byte) (*protocol.Packet, bool) {
	c.rec.DatagramReceived(len(data))
	p, err := protocol.Decode(data)
	if err != nil {
		c.cfg.Logger.Debug("dropping malformed datagram", "bytes", len(data), "error", err)
		c.rec.DatagramDropped(DropMalformed)
		return nil, false
	}
	return p, true
}

func (c *core) drop(reason string, msg string, args ...any) {
	c.cfg.Logger.Debug(msg, args...)
	c.rec.DatagramDropped(reason)
}
