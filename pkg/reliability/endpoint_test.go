package reliability

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func decode(t *testing.T, datagram []byte) *protocol.Packet {
	t.Helper()
	p, err := protocol.Decode(datagram)
	if err != nil {
		t.Fatalf("Decode(%x) error = %v", datagram, err)
	}
	return p
}

// deliverAll feeds datagrams to rx and returns the delivered bodies and the
// acknowledgments it produced.
func deliverAll(t *testing.T, rx *Endpoint, datagrams [][]byte, now time.Time) ([]Delivery, [][]byte) {
	t.Helper()
	var out []Delivery
	var acks [][]byte
	for _, d := range datagrams {
		got, a := rx.Receive(decode(t, d), now)
		out = append(out, got...)
		acks = append(acks, a...)
	}
	return out, acks
}

func bodies(ds []Delivery) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d.Body)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewer(t *testing.T) {
	tests := []struct {
		a, b uint16
		want bool
	}{
		{1, 0, true},
		{0, 1, false},
		{5, 5, false},
		{0, 65535, true},
		{65535, 0, false},
		{32768, 0, true},
		{32769, 0, false},
		{100, 65500, true},
	}
	for _, tt := range tests {
		if got := newer(tt.a, tt.b); got != tt.want {
			t.Errorf("newer(%d, %d) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestReliableOrderedDroppedPacket(t *testing.T) {
	const n, k = 8, 3 // packet k (0-based) is lost on first transmission

	tx := NewEndpoint(DefaultConfig())
	rx := NewEndpoint(DefaultConfig())

	var sent [][]byte
	for i := 0; i < n; i++ {
		ds, err := tx.Send(protocol.ReliableOrdered, protocol.MessageData, []byte{byte('a' + i)}, epoch)
		if err != nil {
			t.Fatal(err)
		}
		sent = append(sent, ds...)
	}

	var first [][]byte
	first = append(first, sent[:k]...)
	first = append(first, sent[k+1:]...)
	got, acks := deliverAll(t, rx, first, epoch)

	if want := []string{"a", "b", "c"}; !equalStrings(bodies(got), want) {
		t.Fatalf("delivered before retransmit = %v, want %v", bodies(got), want)
	}
	if len(acks) != n-1 {
		t.Fatalf("acks = %d, want %d", len(acks), n-1)
	}
	deliverAll(t, tx, acks, epoch)
	if tx.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", tx.Pending())
	}

	// Nothing is due before the retry interval.
	if ds, exhausted := tx.Retransmit(epoch.Add(tx.cfg.RetryInterval() / 2)); len(ds) != 0 || exhausted {
		t.Fatalf("early Retransmit = %d datagrams, exhausted %v", len(ds), exhausted)
	}

	resend, exhausted := tx.Retransmit(epoch.Add(tx.cfg.RetryInterval()))
	if exhausted || len(resend) != 1 || !bytes.Equal(resend[0], sent[k]) {
		t.Fatalf("Retransmit = %x, exhausted %v; want packet %d", resend, exhausted, k)
	}

	got, acks = deliverAll(t, rx, resend, epoch)
	if want := []string{"d", "e", "f", "g", "h"}; !equalStrings(bodies(got), want) {
		t.Fatalf("delivered after retransmit = %v, want %v", bodies(got), want)
	}
	deliverAll(t, tx, acks, epoch)
	if tx.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", tx.Pending())
	}

	// Replaying everything delivers nothing new but still acknowledges.
	got, acks = deliverAll(t, rx, sent, epoch)
	if len(got) != 0 {
		t.Errorf("replay delivered %v", bodies(got))
	}
	if len(acks) != n {
		t.Errorf("replay acks = %d, want %d", len(acks), n)
	}
	if s := rx.Stats(); s.Delivered != n || s.Duplicates != n {
		t.Errorf("Stats = %+v, want Delivered=%d Duplicates=%d", s, n, n)
	}
}

func TestReliableUnorderedDeliversOnce(t *testing.T) {
	tx := NewEndpoint(DefaultConfig())
	rx := NewEndpoint(DefaultConfig())

	var sent [][]byte
	for _, s := range []string{"x", "y", "z"} {
		ds, _ := tx.Send(protocol.ReliableUnordered, protocol.MessageData, []byte(s), epoch)
		sent = append(sent, ds...)
	}
	order := [][]byte{sent[2], sent[0], sent[2], sent[1], sent[0]}
	got, acks := deliverAll(t, rx, order, epoch)
	if want := []string{"z", "x", "y"}; !equalStrings(bodies(got), want) {
		t.Errorf("delivered = %v, want %v", bodies(got), want)
	}
	if len(acks) != len(order) {
		t.Errorf("acks = %d, want %d", len(acks), len(order))
	}
}

func TestUnreliableOrderedFiltersStale(t *testing.T) {
	tx := NewEndpoint(DefaultConfig())
	rx := NewEndpoint(DefaultConfig())

	var sent [][]byte
	for i := 0; i < 4; i++ {
		ds, _ := tx.Send(protocol.UnreliableOrdered, protocol.MessageData, []byte{byte('0' + i)}, epoch)
		sent = append(sent, ds...)
	}
	got, acks := deliverAll(t, rx, [][]byte{sent[1], sent[0], sent[3], sent[2], sent[3]}, epoch)
	if want := []string{"1", "3"}; !equalStrings(bodies(got), want) {
		t.Errorf("delivered = %v, want %v", bodies(got), want)
	}
	if len(acks) != 0 {
		t.Errorf("unreliable channel produced %d acks", len(acks))
	}
	if tx.Pending() != 0 {
		t.Errorf("unreliable send retained %d messages", tx.Pending())
	}
}

func TestUnreliableOrderedAcrossWrap(t *testing.T) {
	rx := NewEndpoint(DefaultConfig())
	seqs := []uint16{65534, 65535, 0, 65535, 1}
	var got []uint16
	for _, s := range seqs {
		p := decode(t, protocol.EncodeSequenced(protocol.MessageData, protocol.UnreliableOrdered, s, nil))
		ds, _ := rx.Receive(p, epoch)
		for _, d := range ds {
			got = append(got, d.Sequence)
		}
	}
	want := []uint16{65534, 65535, 0, 1}
	if len(got) != len(want) {
		t.Fatalf("delivered %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivered %v, want %v", got, want)
			break
		}
	}
}

func TestReliableOrderedWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OrderedWindow = 4
	rx := NewEndpoint(cfg)

	far := decode(t, protocol.EncodeSequenced(protocol.MessageData, protocol.ReliableOrdered, 10, []byte("far")))
	got, acks := rx.Receive(far, epoch)
	if len(got) != 0 || len(acks) != 0 {
		t.Errorf("packet beyond window: delivered %d, acks %d; want 0, 0", len(got), len(acks))
	}

	near := decode(t, protocol.EncodeSequenced(protocol.MessageData, protocol.ReliableOrdered, 3, []byte("near")))
	if _, acks := rx.Receive(near, epoch); len(acks) != 1 {
		t.Errorf("packet inside window: acks %d, want 1", len(acks))
	}
}

func TestResendExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxResendAttempts = 3
	tx := NewEndpoint(cfg)
	if _, err := tx.Send(protocol.ReliableOrdered, protocol.MessageData, []byte("lost"), epoch); err != nil {
		t.Fatal(err)
	}

	now := epoch
	for i := 0; i < cfg.MaxResendAttempts; i++ {
		now = now.Add(cfg.RetryInterval())
		ds, exhausted := tx.Retransmit(now)
		if exhausted || len(ds) != 1 {
			t.Fatalf("attempt %d: %d datagrams, exhausted %v", i+1, len(ds), exhausted)
		}
	}
	now = now.Add(cfg.RetryInterval())
	if _, exhausted := tx.Retransmit(now); !exhausted {
		t.Fatal("Retransmit did not report exhaustion after MaxResendAttempts")
	}
	if s := tx.Stats(); s.Resent != uint64(cfg.MaxResendAttempts) {
		t.Errorf("Resent = %d, want %d", s.Resent, cfg.MaxResendAttempts)
	}
}

func TestRetransmitOldestFirst(t *testing.T) {
	tx := NewEndpoint(DefaultConfig())
	// Start near the wrap point so the order cannot come from plain sorting.
	tx.channels[protocol.ReliableOrdered].local = 65534
	for i := 0; i < 4; i++ {
		if _, err := tx.Send(protocol.ReliableOrdered, protocol.MessageData, []byte{byte(i)}, epoch); err != nil {
			t.Fatal(err)
		}
	}
	ds, _ := tx.Retransmit(epoch.Add(time.Hour))
	var seqs []uint16
	for _, d := range ds {
		seqs = append(seqs, decode(t, d).Sequence)
	}
	want := []uint16{65534, 65535, 0, 1}
	for i := range want {
		if i >= len(seqs) || seqs[i] != want[i] {
			t.Fatalf("retransmit order = %v, want %v", seqs, want)
		}
	}
}

func TestChunkReassemblyPermutations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = 64
	payload := make([]byte, 5*protocol.SliceSize(cfg.MTU)-7)
	rand.New(rand.NewSource(3)).Read(payload)

	for _, c := range []protocol.Channel{
		protocol.ReliableOrdered, protocol.ReliableUnordered,
		protocol.UnreliableOrdered, protocol.UnreliableUnordered,
	} {
		t.Run(c.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(c) + 11))
			for trial := 0; trial < 25; trial++ {
				tx := NewEndpoint(cfg)
				rx := NewEndpoint(cfg)
				slices, err := tx.Send(c, protocol.MessageData, payload, epoch)
				if err != nil {
					t.Fatal(err)
				}
				if len(slices) != 5 {
					t.Fatalf("Send produced %d slices, want 5", len(slices))
				}

				// Random permutation with random duplicates mixed in.
				order := append([][]byte(nil), slices...)
				for i := 0; i < 4; i++ {
					order = append(order, slices[rng.Intn(len(slices))])
				}
				rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

				got, acks := deliverAll(t, rx, order, epoch)
				if len(got) != 1 {
					t.Fatalf("trial %d: delivered %d messages, want 1", trial, len(got))
				}
				if !bytes.Equal(got[0].Body, payload) {
					t.Fatalf("trial %d: reassembled payload differs", trial)
				}
				if got[0].Type != protocol.MessageData {
					t.Errorf("trial %d: Type = %v", trial, got[0].Type)
				}
				if rx.Reassembling() != 0 {
					t.Errorf("trial %d: %d buffers left", trial, rx.Reassembling())
				}

				if c.Reliable() {
					if len(acks) != len(order) {
						t.Errorf("trial %d: chunk acks = %d, want %d", trial, len(acks), len(order))
					}
					deliverAll(t, tx, acks, epoch)
					if tx.Pending() != 0 {
						t.Errorf("trial %d: Pending() = %d after all chunk acks", trial, tx.Pending())
					}
				} else if len(acks) != 0 {
					t.Errorf("trial %d: unreliable chunks produced %d acks", trial, len(acks))
				}
			}
		})
	}
}

func TestChunkRetransmitOnlyMissingSlices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = 64
	tx := NewEndpoint(cfg)
	rx := NewEndpoint(cfg)

	payload := bytes.Repeat([]byte("0123456789"), 20)
	slices, err := tx.Send(protocol.ReliableUnordered, protocol.MessageData, payload, epoch)
	if err != nil {
		t.Fatal(err)
	}
	lost := 2
	var first [][]byte
	for i, s := range slices {
		if i != lost {
			first = append(first, s)
		}
	}
	got, acks := deliverAll(t, rx, first, epoch)
	if len(got) != 0 {
		t.Fatal("incomplete message delivered")
	}
	deliverAll(t, tx, acks, epoch)

	resend, _ := tx.Retransmit(epoch.Add(time.Hour))
	if len(resend) != 1 || !bytes.Equal(resend[0], slices[lost]) {
		t.Fatalf("Retransmit resent %d datagrams, want only slice %d", len(resend), lost)
	}
	got, _ = deliverAll(t, rx, resend, epoch)
	if len(got) != 1 || !bytes.Equal(got[0].Body, payload) {
		t.Fatalf("delivered %d messages after resend", len(got))
	}
}

func TestChunkedKeepsOrderWithPlainPackets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = 64
	tx := NewEndpoint(cfg)
	rx := NewEndpoint(cfg)

	big := bytes.Repeat([]byte{'B'}, 150)
	a, _ := tx.Send(protocol.ReliableOrdered, protocol.MessageData, []byte("A"), epoch)
	b, _ := tx.Send(protocol.ReliableOrdered, protocol.MessageData, big, epoch)
	c, _ := tx.Send(protocol.ReliableOrdered, protocol.MessageData, []byte("C"), epoch)

	var order [][]byte
	order = append(order, c...)
	order = append(order, b...)
	order = append(order, a...)
	got, _ := deliverAll(t, rx, order, epoch)
	if want := []string{"A", string(big), "C"}; !equalStrings(bodies(got), want) {
		t.Errorf("delivery order wrong: got %d messages", len(got))
	}
}

func TestReassemblyExpire(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = 64
	tx := NewEndpoint(cfg)
	rx := NewEndpoint(cfg)

	slices, _ := tx.Send(protocol.UnreliableUnordered, protocol.MessageData, make([]byte, 200), epoch)
	deliverAll(t, rx, slices[:1], epoch)
	if rx.Reassembling() != 1 {
		t.Fatalf("Reassembling() = %d, want 1", rx.Reassembling())
	}
	if n := rx.Expire(epoch.Add(cfg.ReassemblyTimeout - time.Millisecond)); n != 0 {
		t.Errorf("Expire before timeout dropped %d", n)
	}
	if n := rx.Expire(epoch.Add(cfg.ReassemblyTimeout)); n != 1 {
		t.Errorf("Expire at timeout dropped %d, want 1", n)
	}
	if rx.Reassembling() != 0 {
		t.Errorf("Reassembling() = %d after Expire", rx.Reassembling())
	}
}

func TestReassemblyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = 64
	cfg.MaxReassemblies = 2
	tx := NewEndpoint(cfg)
	rx := NewEndpoint(cfg)

	for i := 0; i < 3; i++ {
		slices, _ := tx.Send(protocol.UnreliableUnordered, protocol.MessageData, make([]byte, 200), epoch)
		deliverAll(t, rx, slices[:1], epoch)
	}
	if rx.Reassembling() != 2 {
		t.Errorf("Reassembling() = %d, want 2", rx.Reassembling())
	}
	if s := rx.Stats(); s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
}

func TestSendErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = protocol.MinMTU
	tx := NewEndpoint(cfg)

	if _, err := tx.Send(protocol.Channel(7), protocol.MessageData, nil, epoch); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("invalid channel error = %v", err)
	}
	if _, err := tx.Send(protocol.ReliableOrdered, protocol.MessageAck, nil, epoch); !errors.Is(err, ErrNotSequenced) {
		t.Errorf("ack send error = %v", err)
	}
	huge := make([]byte, protocol.SliceSize(cfg.MTU)*(protocol.MaxSliceCount+1))
	if _, err := tx.Send(protocol.ReliableOrdered, protocol.MessageData, huge, epoch); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("huge send error = %v", err)
	}
	// A failed send must not consume a sequence number.
	ds, err := tx.Send(protocol.ReliableOrdered, protocol.MessageData, []byte("ok"), epoch)
	if err != nil {
		t.Fatal(err)
	}
	if seq := decode(t, ds[0]).Sequence; seq != 0 {
		t.Errorf("first successful sequence = %d, want 0", seq)
	}
}

func TestRelease(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MTU = 64
	tx := NewEndpoint(cfg)
	rx := NewEndpoint(cfg)
	slices, _ := tx.Send(protocol.ReliableOrdered, protocol.MessageData, make([]byte, 200), epoch)
	deliverAll(t, rx, slices[:1], epoch)

	tx.Release()
	rx.Release()
	if tx.Pending() != 0 || rx.Reassembling() != 0 {
		t.Errorf("after Release: Pending=%d Reassembling=%d", tx.Pending(), rx.Reassembling())
	}
	if ds, exhausted := tx.Retransmit(epoch.Add(time.Hour)); len(ds) != 0 || exhausted {
		t.Errorf("Retransmit after Release = %d, %v", len(ds), exhausted)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"small mtu", func(c *Config) { c.MTU = 10 }},
		{"zero rtt", func(c *Config) { c.RTT = 0 }},
		{"negative resend", func(c *Config) { c.MaxResendAttempts = -1 }},
		{"huge window", func(c *Config) { c.OrderedWindow = windowSize + 1 }},
		{"no reassembly", func(c *Config) { c.MaxReassemblies = 0 }},
		{"zero reassembly timeout", func(c *Config) { c.ReassemblyTimeout = 0 }},
	}
	for _, tt := range tests {
		c := DefaultConfig()
		tt.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", tt.name)
		}
	}
	if got := DefaultConfig().RetryInterval(); got != 300*time.Millisecond {
		t.Errorf("RetryInterval() = %v, want 300ms", got)
	}
}
