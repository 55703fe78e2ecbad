package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/net/ipv4"
)

// ErrStopped is returned by operations on a stopped announcer or listener.
var ErrStopped = errors.New("discovery: stopped")

// Listener joins the multicast group and feeds verified announcements
// into a Registry.
type Listener struct {
	cfg      Config
	group    *net.UDPAddr
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	conn    net.PacketConn
	stopped atomic.Bool
	active  atomic.Bool
	done    chan struct{}
}

// NewListener validates cfg and returns a stopped listener.
func NewListener(cfg Config) (*Listener, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	group, _ := cfg.groupAddr()
	return &Listener{
		cfg:      cfg,
		group:    group,
		registry: NewRegistry(cfg.Timeout),
		logger:   cfg.logger("discovery"),
	}, nil
}

// Registry returns the registry the listener fills.
func (l *Listener) Registry() *Registry { return l.registry }

// Hosts returns the currently known hosts.
func (l *Listener) Hosts() []Host { return l.registry.Hosts() }

// Poll returns the next registry change.
func (l *Listener) Poll() (Change, bool) { return l.registry.Poll() }

// Active reports whether the receive loop is running. It turns false
// after Stop or an unrecoverable socket error.
func (l *Listener) Active() bool { return l.active.Load() }

// Start binds the group port, joins the group and starts receiving.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped.Load() {
		return ErrStopped
	}
	if l.conn != nil {
		return nil
	}

	conn, err := net.ListenPacket("udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(l.group.Port)))
	if err != nil {
		return fmt.Errorf("discovery: listen %d: %w", l.group.Port, err)
	}
	ifi, err := l.cfg.iface()
	if err != nil {
		conn.Close()
		return err
	}
	p := ipv4.NewPacketConn(conn)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: l.group.IP}); err != nil {
		conn.Close()
		return fmt.Errorf("discovery: join %s: %w", l.group.IP, err)
	}
	filter := true
	if err := p.SetControlMessage(ipv4.FlagDst, true); err != nil {
		l.logger.Warn("destination filtering unavailable", "error", err)
		filter = false
	}

	l.conn = conn
	l.done = make(chan struct{})
	l.active.Store(true)
	go l.readLoop(p, filter)
	l.logger.Info("listening for hosts", "group", l.group.String())
	return nil
}

func (l *Listener) readLoop(p *ipv4.PacketConn, filter bool) {
	defer close(l.done)
	defer l.active.Store(false)

	buf := make([]byte, maxAnnouncement+checksumSize)
	for {
		n, cm, src, err := p.ReadFrom(buf)
		if l.stopped.Load() {
			return
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			l.logger.Error("discovery inactive", "error", err)
			return
		}
		// The port is shared with unicast traffic; keep only group datagrams.
		if filter && cm != nil && !cm.Dst.Equal(l.group.IP) {
			continue
		}
		a, err := DecodeAnnouncement(l.cfg.ProtocolID, buf[:n])
		if err != nil {
			l.logger.Debug("dropped announcement", "source", src, "error", err)
			continue
		}
		l.registry.Observe(src.String(), a)
	}
}

// Stop leaves the group, waits for the receive loop and clears the
// registry. A stopped listener cannot be restarted.
func (l *Listener) Stop() error {
	if l.stopped.Swap(true) {
		return nil
	}
	l.mu.Lock()
	conn, done := l.conn, l.done
	l.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
		<-done
	}
	l.registry.Close()
	return err
}
