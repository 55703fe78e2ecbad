package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
)

// InfoFunc returns the announcement to send next.
type InfoFunc func() Announcement

// Announcer multicasts a host's announcement every heartbeat.
type Announcer struct {
	cfg    Config
	info   InfoFunc
	group  *net.UDPAddr
	logger *slog.Logger

	mu      sync.Mutex
	conn    net.PacketConn
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewAnnouncer validates cfg and returns a stopped announcer.
func NewAnnouncer(cfg Config, info InfoFunc) (*Announcer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%w: nil info func", ErrInvalidConfig)
	}
	group, _ := cfg.groupAddr()
	return &Announcer{
		cfg:    cfg,
		info:   info,
		group:  group,
		logger: cfg.logger("announcer"),
	}, nil
}

// Start opens the multicast socket and begins announcing. The first
// announcement goes out immediately.
func (a *Announcer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("discovery: announcer socket: %w", err)
	}
	p := ipv4.NewPacketConn(conn)
	if err := p.SetMulticastTTL(a.cfg.TTL); err != nil {
		conn.Close()
		return fmt.Errorf("discovery: set multicast ttl: %w", err)
	}
	if err := p.SetMulticastLoopback(a.cfg.Loopback); err != nil {
		a.logger.Warn("multicast loopback not supported", "error", err)
	}
	ifi, err := a.cfg.iface()
	if err != nil {
		conn.Close()
		return err
	}
	if ifi != nil {
		if err := p.SetMulticastInterface(ifi); err != nil {
			conn.Close()
			return fmt.Errorf("discovery: set multicast interface: %w", err)
		}
	}

	a.conn = conn
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	a.running = true
	go a.loop(conn, a.stop, a.done)
	a.logger.Info("announcing", "group", a.group.String(), "heartbeat", a.cfg.Heartbeat)
	return nil
}

func (a *Announcer) loop(conn net.PacketConn, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(a.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		if err := a.send(conn); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.logger.Warn("announce failed", "error", err)
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (a *Announcer) send(conn net.PacketConn) error {
	b := EncodeAnnouncement(a.cfg.ProtocolID, a.info())
	_, err := conn.WriteTo(b, a.group)
	return err
}

// Announce sends one announcement now. It fails when the announcer is
// not running.
func (a *Announcer) Announce() error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return ErrStopped
	}
	return a.send(conn)
}

// Running reports whether the announcer is active.
func (a *Announcer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Stop ends announcing and waits for the send loop to exit. It is safe
// to call more than once.
func (a *Announcer) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	conn, done := a.conn, a.done
	a.conn = nil
	close(a.stop)
	a.mu.Unlock()

	err := conn.Close()
	<-done
	return err
}
