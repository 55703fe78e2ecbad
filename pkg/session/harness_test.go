package session

import (
	"context"
	"testing"
	"time"

	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/reliability"
	"github.com/vango-dev/peerlink/pkg/transport"
)

type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type countingRecorder struct {
	nopRecorder
	handshakes  map[string]int
	drops       map[string]int
	disconnects map[protocol.DisconnectReason]int
	stats       reliability.Stats
	peers       int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		handshakes:  make(map[string]int),
		drops:       make(map[string]int),
		disconnects: make(map[protocol.DisconnectReason]int),
	}
}

func (r *countingRecorder) Handshake(outcome string)      { r.handshakes[outcome]++ }
func (r *countingRecorder) DatagramDropped(reason string) { r.drops[reason]++ }
func (r *countingRecorder) PeerDisconnected(reason protocol.DisconnectReason) {
	r.disconnects[reason]++
}
func (r *countingRecorder) Reliability(d reliability.Stats) { r.stats.Add(d) }
func (r *countingRecorder) Peers(n int)                     { r.peers = n }

type testClient struct {
	*Client
	tr     *transport.Memory
	events []Event
}

func (c *testClient) eventsOf(kind EventKind) []Event {
	var out []Event
	for _, e := range c.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	clock   *fakeClock
	hub     *transport.MemoryHub
	host    *Host
	rec     *countingRecorder
	events  []Event
	clients []*testClient
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{t: t, clock: newFakeClock(), hub: transport.NewMemoryHub(), rec: newCountingRecorder()}
	cfg := DefaultConfig()
	cfg.Name = "arena"
	cfg.Now = h.clock.Now
	cfg.Recorder = h.rec
	cfg.OnEvent = func(e Event) { h.events = append(h.events, e) }
	if mutate != nil {
		mutate(cfg)
	}
	host, err := NewHost(h.hub.Host(), cfg)
	if err != nil {
		t.Fatalf("NewHost() error = %v", err)
	}
	h.host = host
	return h
}

// dial creates a client without pumping.
func (h *harness) dial(name string, mutate func(*Config)) *testClient {
	h.t.Helper()
	tr, err := h.hub.Dial()
	if err != nil {
		h.t.Fatalf("Dial() error = %v", err)
	}
	tc := &testClient{tr: tr}
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Now = h.clock.Now
	cfg.OnEvent = func(e Event) { tc.events = append(tc.events, e) }
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewClient(tr, cfg)
	if err != nil {
		h.t.Fatalf("NewClient() error = %v", err)
	}
	tc.Client = c
	h.clients = append(h.clients, tc)
	return tc
}

// join dials and pumps until the handshake settles.
func (h *harness) join(name string) *testClient {
	h.t.Helper()
	c := h.dial(name, nil)
	h.pump(4)
	if !c.Connected() {
		h.t.Fatalf("%s not connected after handshake, state %v", name, c.State())
	}
	return c
}

// pump ticks the host and then every client, rounds times.
func (h *harness) pump(rounds int) {
	for i := 0; i < rounds; i++ {
		h.host.Tick(context.Background())
		for _, c := range h.clients {
			c.Tick(context.Background())
		}
	}
}

func (h *harness) hostEventsOf(kind EventKind) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
