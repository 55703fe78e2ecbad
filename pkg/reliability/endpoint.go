package reliability

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// maxPending bounds unacknowledged messages per channel so a sequence
// number is never reused while its previous holder is still in flight.
const maxPending = 32768

// Endpoint errors.
var (
	ErrInvalidChannel  = errors.New("reliability: invalid channel")
	ErrNotSequenced    = errors.New("reliability: message type carries no sequence")
	ErrMessageTooLarge = errors.New("reliability: message needs too many slices")
	ErrWindowFull      = errors.New("reliability: too many unacknowledged messages")
)

// Delivery is a complete packet body ready for decoding.
type Delivery struct {
	Channel  protocol.Channel
	Type     protocol.MessageType
	Sequence uint16
	Body     []byte
}

// Stats counts endpoint activity. All counters are monotonic.
type Stats struct {
	Sent        uint64 // datagrams produced by Send
	Resent      uint64 // datagrams produced by Retransmit
	Acked       uint64 // datagrams acknowledged by the remote side
	Delivered   uint64 // bodies handed to the application
	Duplicates  uint64 // arrivals already delivered or buffered
	Dropped     uint64 // arrivals discarded by ordering or capacity limits
	Reassembled uint64 // chunked messages completed
	Expired     uint64 // incomplete chunked messages discarded
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Sent += o.Sent
	s.Resent += o.Resent
	s.Acked += o.Acked
	s.Delivered += o.Delivered
	s.Duplicates += o.Duplicates
	s.Dropped += o.Dropped
	s.Reassembled += o.Reassembled
	s.Expired += o.Expired
}

// Sub returns the counters accumulated since prev.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Sent:        s.Sent - prev.Sent,
		Resent:      s.Resent - prev.Resent,
		Acked:       s.Acked - prev.Acked,
		Delivered:   s.Delivered - prev.Delivered,
		Duplicates:  s.Duplicates - prev.Duplicates,
		Dropped:     s.Dropped - prev.Dropped,
		Reassembled: s.Reassembled - prev.Reassembled,
		Expired:     s.Expired - prev.Expired,
	}
}

type slot struct {
	datagram []byte
	sentAt   time.Time
	retries  int
	acked    bool
}

type pendingMessage struct {
	slots   []slot
	unacked int
}

type channelState struct {
	local    uint16 // next outgoing sequence
	next     uint16 // next expected sequence (ReliableOrdered)
	last     uint16 // newest accepted sequence (UnreliableOrdered)
	hasLast  bool
	pending  map[uint16]*pendingMessage
	buffered map[uint16]Delivery
	seen     seqWindow
}

type reassemblyKey struct {
	channel protocol.Channel
	seq     uint16
}

type reassembly struct {
	typ      protocol.MessageType
	slices   [][]byte
	have     []bool
	received int
	started  time.Time
}

// Endpoint holds the sequencing, acknowledgment and reassembly state for one
// remote peer. It is not safe for concurrent use; the session drives it from
// the tick goroutine.
type Endpoint struct {
	cfg        Config
	channels   [protocol.NumChannels]channelState
	reassembly map[reassemblyKey]*reassembly
	stats      Stats
}

// NewEndpoint creates an endpoint. cfg is expected to be validated.
func NewEndpoint(cfg Config) *Endpoint {
	return &Endpoint{
		cfg:        cfg,
		reassembly: make(map[reassemblyKey]*reassembly),
	}
}

// Stats returns a copy of the endpoint counters.
func (e *Endpoint) Stats() Stats {
	return e.stats
}

// Pending returns the number of unacknowledged reliable messages.
func (e *Endpoint) Pending() int {
	n := 0
	for i := range e.channels {
		n += len(e.channels[i].pending)
	}
	return n
}

// Reassembling returns the number of incomplete chunked messages.
func (e *Endpoint) Reassembling() int {
	return len(e.reassembly)
}

// Send assigns the next sequence on channel c and returns the datagrams that
// carry body, chunked when it does not fit the MTU. Reliable datagrams are
// retained until acknowledged.
func (e *Endpoint) Send(c protocol.Channel, t protocol.MessageType, body []byte, now time.Time) ([][]byte, error) {
	if !c.Valid() {
		return nil, ErrInvalidChannel
	}
	if !t.Sequenced() {
		return nil, fmt.Errorf("%w: %s", ErrNotSequenced, t)
	}
	ch := &e.channels[c]
	if c.Reliable() && len(ch.pending) >= maxPending {
		return nil, ErrWindowFull
	}

	seq := ch.local
	var datagrams [][]byte
	if len(body) <= protocol.MaxUnchunkedBody(e.cfg.MTU) {
		datagrams = [][]byte{protocol.EncodeSequenced(t, c, seq, body)}
	} else {
		size := protocol.SliceSize(e.cfg.MTU)
		count := (len(body) + size - 1) / size
		if count > protocol.MaxSliceCount {
			return nil, fmt.Errorf("%w: %d bytes in %d slices", ErrMessageTooLarge, len(body), count)
		}
		datagrams = make([][]byte, 0, count)
		for i := 0; i < count; i++ {
			ck := protocol.ChunkHeader{Sequence: seq, SliceIndex: uint16(i), SliceCount: uint16(count)}
			end := min((i+1)*size, len(body))
			datagrams = append(datagrams, protocol.EncodeChunk(t, c, ck, body[i*size:end]))
		}
	}
	ch.local++

	if c.Reliable() {
		if ch.pending == nil {
			ch.pending = make(map[uint16]*pendingMessage)
		}
		m := &pendingMessage{slots: make([]slot, len(datagrams)), unacked: len(datagrams)}
		for i, d := range datagrams {
			m.slots[i] = slot{datagram: d, sentAt: now}
		}
		ch.pending[seq] = m
	}
	e.stats.Sent += uint64(len(datagrams))
	return datagrams, nil
}

// Receive processes a decoded data-phase packet. It returns the bodies ready
// for the application, in delivery order, and the acknowledgment datagrams
// to send back.
func (e *Endpoint) Receive(p *protocol.Packet, now time.Time) (deliveries []Delivery, acks [][]byte) {
	h := p.Header
	c := h.Channel
	switch h.MessageType() {
	case protocol.MessageAck:
		e.ack(c, p.Sequence, -1)
		return nil, nil
	case protocol.MessageChunkAck:
		e.ack(c, p.Sequence, int(p.Chunk.SliceIndex))
		return nil, nil
	}

	if h.Chunked {
		return e.receiveChunk(p, now)
	}

	deliveries, ack := e.accept(c, h.MessageType(), p.Sequence, p.Body, nil)
	if ack {
		acks = append(acks, protocol.EncodeAck(c, p.Sequence))
	}
	return deliveries, acks
}

// accept applies the channel's ordering rules to a complete body. ack is
// true when the sender should stop retransmitting seq.
func (e *Endpoint) accept(c protocol.Channel, t protocol.MessageType, seq uint16, body []byte, out []Delivery) ([]Delivery, bool) {
	ch := &e.channels[c]
	d := Delivery{Channel: c, Type: t, Sequence: seq, Body: body}

	switch c {
	case protocol.UnreliableUnordered:
		return e.deliver(out, d), false

	case protocol.UnreliableOrdered:
		if ch.hasLast && !newer(seq, ch.last) {
			e.stats.Dropped++
			return out, false
		}
		ch.hasLast, ch.last = true, seq
		return e.deliver(out, d), false

	case protocol.ReliableUnordered:
		if ch.seen.Seen(seq) {
			e.stats.Duplicates++
			return out, true
		}
		ch.seen.Mark(seq)
		return e.deliver(out, d), true
	}

	// ReliableOrdered
	if seq == ch.next {
		out = e.deliver(out, d)
		ch.next++
		for {
			b, ok := ch.buffered[ch.next]
			if !ok {
				break
			}
			delete(ch.buffered, ch.next)
			out = e.deliver(out, b)
			ch.next++
		}
		return out, true
	}
	if !newer(seq, ch.next) {
		e.stats.Duplicates++
		return out, true
	}
	if int(seq-ch.next) > e.cfg.OrderedWindow {
		e.stats.Dropped++
		return out, false
	}
	if _, dup := ch.buffered[seq]; dup {
		e.stats.Duplicates++
		return out, true
	}
	if ch.buffered == nil {
		ch.buffered = make(map[uint16]Delivery)
	}
	d.Body = bytes.Clone(body)
	ch.buffered[seq] = d
	return out, true
}

func (e *Endpoint) deliver(out []Delivery, d Delivery) []Delivery {
	e.stats.Delivered++
	return append(out, d)
}

// completed reports whether the chunked message seq on c was already
// reassembled.
func (e *Endpoint) completed(c protocol.Channel, seq uint16) bool {
	ch := &e.channels[c]
	if c == protocol.ReliableOrdered {
		if _, ok := ch.buffered[seq]; ok {
			return true
		}
		return seq != ch.next && !newer(seq, ch.next)
	}
	return ch.seen.Seen(seq)
}

func (e *Endpoint) receiveChunk(p *protocol.Packet, now time.Time) ([]Delivery, [][]byte) {
	c := p.Header.Channel
	t := p.Header.MessageType()
	ck := p.Chunk

	var acks [][]byte
	chunkAck := func() {
		if c.Reliable() {
			acks = append(acks, protocol.EncodeChunkAck(c, ck.Sequence, ck.SliceIndex))
		}
	}

	if e.completed(c, ck.Sequence) {
		e.stats.Duplicates++
		chunkAck()
		return nil, acks
	}
	if c == protocol.ReliableOrdered && int(ck.Sequence-e.channels[c].next) > e.cfg.OrderedWindow {
		e.stats.Dropped++
		return nil, nil
	}

	key := reassemblyKey{channel: c, seq: ck.Sequence}
	r := e.reassembly[key]
	if r == nil {
		if len(e.reassembly) >= e.cfg.MaxReassemblies {
			e.stats.Dropped++
			return nil, nil
		}
		r = &reassembly{
			typ:     t,
			slices:  make([][]byte, ck.SliceCount),
			have:    make([]bool, ck.SliceCount),
			started: now,
		}
		e.reassembly[key] = r
	}
	if len(r.slices) != int(ck.SliceCount) || r.typ != t {
		e.stats.Dropped++
		return nil, nil
	}
	if r.have[ck.SliceIndex] {
		e.stats.Duplicates++
		chunkAck()
		return nil, acks
	}
	r.slices[ck.SliceIndex] = bytes.Clone(p.Body)
	r.have[ck.SliceIndex] = true
	r.received++
	chunkAck()
	if r.received < len(r.slices) {
		return nil, acks
	}

	delete(e.reassembly, key)
	e.stats.Reassembled++
	if !c.Reliable() {
		e.channels[c].seen.Mark(ck.Sequence)
	}
	out, _ := e.accept(c, t, ck.Sequence, bytes.Join(r.slices, nil), nil)
	return out, acks
}

// ack removes an acknowledged message, or one slice of it when slice >= 0.
func (e *Endpoint) ack(c protocol.Channel, seq uint16, slice int) {
	if !c.Reliable() {
		return
	}
	ch := &e.channels[c]
	m := ch.pending[seq]
	if m == nil {
		return
	}
	if slice < 0 {
		e.stats.Acked += uint64(m.unacked)
		delete(ch.pending, seq)
		return
	}
	if slice >= len(m.slots) || m.slots[slice].acked {
		return
	}
	m.slots[slice].acked = true
	m.slots[slice].datagram = nil
	m.unacked--
	e.stats.Acked++
	if m.unacked == 0 {
		delete(ch.pending, seq)
	}
}

// Retransmit returns every unacknowledged datagram whose retry interval has
// elapsed, oldest first. exhausted is true when a datagram would need more
// than MaxResendAttempts resends; the caller must then drop the peer.
func (e *Endpoint) Retransmit(now time.Time) (datagrams [][]byte, exhausted bool) {
	interval := e.cfg.RetryInterval()
	for _, c := range []protocol.Channel{protocol.ReliableOrdered, protocol.ReliableUnordered} {
		ch := &e.channels[c]
		if len(ch.pending) == 0 {
			continue
		}
		// Distance from the next outgoing sequence orders messages by age
		// across wrap-around.
		keys := slices.SortedFunc(maps.Keys(ch.pending), func(a, b uint16) int {
			return cmp.Compare(a-ch.local, b-ch.local)
		})
		for _, seq := range keys {
			m := ch.pending[seq]
			for i := range m.slots {
				s := &m.slots[i]
				if s.acked || now.Sub(s.sentAt) < interval {
					continue
				}
				if s.retries >= e.cfg.MaxResendAttempts {
					return datagrams, true
				}
				s.retries++
				s.sentAt = now
				datagrams = append(datagrams, s.datagram)
				e.stats.Resent++
			}
		}
	}
	return datagrams, false
}

// Expire discards chunked messages that stayed incomplete for longer than
// ReassemblyTimeout and returns how many were dropped.
func (e *Endpoint) Expire(now time.Time) int {
	n := 0
	for key, r := range e.reassembly {
		if now.Sub(r.started) >= e.cfg.ReassemblyTimeout {
			delete(e.reassembly, key)
			n++
		}
	}
	e.stats.Expired += uint64(n)
	return n
}

// Release drops all sequencing, retransmission and reassembly state. The
// counters are kept.
func (e *Endpoint) Release() {
	e.channels = [protocol.NumChannels]channelState{}
	clear(e.reassembly)
}
