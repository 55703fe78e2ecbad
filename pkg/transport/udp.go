package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// UDPConfig configures a UDP transport.
type UDPConfig struct {
	// MaxDatagram is the largest datagram sent or accepted.
	// Default: protocol.DefaultMTU.
	MaxDatagram int

	// ReadBuffer sets the socket receive buffer when positive.
	ReadBuffer int

	// IdleTimeout disconnects remotes that have been silent this long.
	// Zero disables idle eviction.
	IdleTimeout time.Duration

	// PollInterval bounds how long a blocked read waits before the idle
	// sweep runs. Default: 250ms.
	PollInterval time.Duration

	Logger *slog.Logger
}

// DefaultUDPConfig returns a UDPConfig with sensible defaults.
func DefaultUDPConfig() UDPConfig {
	return UDPConfig{
		MaxDatagram:  protocol.DefaultMTU,
		PollInterval: 250 * time.Millisecond,
	}
}

func (c *UDPConfig) applyDefaults() {
	if c.MaxDatagram <= 0 {
		c.MaxDatagram = protocol.DefaultMTU
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type udpRemote struct {
	id       ConnID
	addr     *net.UDPAddr
	lastSeen time.Time
}

// UDP is a datagram transport over one UDP socket. A listening transport
// treats every new source address as a connection; a dialed transport has
// exactly one connection, HostConn.
type UDP struct {
	conn   *net.UDPConn
	dialed bool
	cfg    UDPConfig
	logger *slog.Logger

	mu      sync.Mutex
	byAddr  map[string]*udpRemote
	byID    map[ConnID]*udpRemote
	nextID  ConnID
	q       queue
	stopped atomic.Bool
	done    chan struct{}
}

// ListenUDP opens a host-side transport bound to addr.
func ListenUDP(addr string, cfg UDPConfig) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return newUDP(conn, false, cfg), nil
}

// DialUDP opens a client-side transport to the host at addr. The Connect
// event for HostConn is queued immediately.
func DialUDP(addr string, cfg UDPConfig) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	u := newUDP(conn, true, cfg)
	u.mu.Lock()
	u.track(raddr, time.Now())
	u.mu.Unlock()
	return u, nil
}

func newUDP(conn *net.UDPConn, dialed bool, cfg UDPConfig) *UDP {
	cfg.applyDefaults()
	u := &UDP{
		conn:   conn,
		dialed: dialed,
		cfg:    cfg,
		byAddr: make(map[string]*udpRemote),
		byID:   make(map[ConnID]*udpRemote),
		done:   make(chan struct{}),
	}
	u.logger = cfg.Logger.With("component", "transport", "driver", "udp", "local", conn.LocalAddr().String())
	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			u.logger.Warn("failed to set read buffer", "bytes", cfg.ReadBuffer, "error", err)
		}
	}
	go u.readLoop()
	return u
}

// LocalAddr returns the bound socket address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// track registers addr as a connection and queues its Connect event. The
// first tracked address gets HostConn. Callers hold u.mu.
func (u *UDP) track(addr *net.UDPAddr, now time.Time) *udpRemote {
	u.nextID++
	r := &udpRemote{id: u.nextID, addr: addr, lastSeen: now}
	u.byAddr[addr.String()] = r
	u.byID[r.id] = r
	u.q.push(Event{Kind: EventConnect, Conn: r.id, Remote: addr.String()})
	return r
}

func (u *UDP) readLoop() {
	defer close(u.done)
	buf := make([]byte, u.cfg.MaxDatagram+1)

	for {
		if u.cfg.IdleTimeout > 0 {
			u.conn.SetReadDeadline(time.Now().Add(u.cfg.PollInterval))
		}
		var (
			n    int
			addr *net.UDPAddr
			err  error
		)
		if u.dialed {
			n, err = u.conn.Read(buf)
		} else {
			n, addr, err = u.conn.ReadFromUDP(buf)
		}
		if u.stopped.Load() {
			return
		}
		now := time.Now()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				u.sweep(now)
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Connected sockets surface ICMP port-unreachable as read
			// errors; the remote may come back.
			u.logger.Debug("udp read error", "error", err)
			continue
		}
		if n > u.cfg.MaxDatagram {
			u.logger.Debug("dropping oversized datagram", "bytes", n)
			continue
		}
		u.receive(addr, slices.Clone(buf[:n]), now)
		u.sweep(now)
	}
}

func (u *UDP) receive(addr *net.UDPAddr, data []byte, now time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var r *udpRemote
	if u.dialed {
		r = u.byID[HostConn]
		if r == nil {
			return
		}
	} else {
		r = u.byAddr[addr.String()]
		if r == nil {
			r = u.track(addr, now)
		}
	}
	r.lastSeen = now
	u.q.push(Event{Kind: EventData, Conn: r.id, Remote: r.addr.String(), Data: data})
}

func (u *UDP) sweep(now time.Time) {
	if u.cfg.IdleTimeout <= 0 {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	for id, r := range u.byID {
		if now.Sub(r.lastSeen) < u.cfg.IdleTimeout {
			continue
		}
		u.forget(r)
		u.logger.Debug("remote idle", "conn", id, "remote", r.addr.String())
		u.q.push(Event{Kind: EventDisconnect, Conn: id, Remote: r.addr.String()})
	}
}

// forget drops r. Callers hold u.mu.
func (u *UDP) forget(r *udpRemote) {
	delete(u.byID, r.id)
	delete(u.byAddr, r.addr.String())
}

// Send implements Transport.
func (u *UDP) Send(conn ConnID, _ protocol.Channel, data []byte) error {
	if u.stopped.Load() {
		return ErrClosed
	}
	if len(data) > u.cfg.MaxDatagram {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	u.mu.Lock()
	r := u.byID[conn]
	u.mu.Unlock()
	if r == nil {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}

	var err error
	if u.dialed {
		_, err = u.conn.Write(data)
	} else {
		_, err = u.conn.WriteToUDP(data, r.addr)
	}
	if err != nil {
		return fmt.Errorf("send to %s: %w", r.addr, err)
	}
	return nil
}

// Poll implements Transport.
func (u *UDP) Poll() (Event, bool) {
	return u.q.pop()
}

// Disconnect implements Transport. UDP has no teardown on the wire; the
// address is forgotten and a later datagram from it is a new connection.
func (u *UDP) Disconnect(conn ConnID) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	r := u.byID[conn]
	if r == nil {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	u.forget(r)
	return nil
}

// Close stops the read loop and closes the socket.
func (u *UDP) Close() error {
	if u.stopped.Swap(true) {
		return nil
	}
	err := u.conn.Close()
	<-u.done
	return err
}
