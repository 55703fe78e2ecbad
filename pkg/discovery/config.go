package discovery

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// ErrInvalidConfig is returned for unusable discovery settings.
var ErrInvalidConfig = errors.New("discovery: invalid config")

// DefaultGroup is the multicast group and port announcements use.
const DefaultGroup = "239.255.77.77:47777"

// DefaultProtocolID separates this protocol's announcements from others
// sharing the group.
const DefaultProtocolID uint32 = 0x504c4e4b

// Config configures an Announcer or Listener.
type Config struct {
	// ProtocolID is mixed into every checksum. Listeners ignore
	// announcements carrying a different ID.
	ProtocolID uint32

	// Group is the IPv4 multicast group and port.
	Group string

	// Interface names the network interface to use. Empty means the
	// system default.
	Interface string

	// Heartbeat is the interval between announcements.
	Heartbeat time.Duration

	// Timeout evicts hosts that have not announced for this long.
	Timeout time.Duration

	// TTL is the multicast hop limit for announcements.
	TTL int

	// Loopback delivers announcements to listeners on the same machine.
	Loopback bool

	Logger *slog.Logger
}

// DefaultConfig returns LAN-friendly defaults.
func DefaultConfig() Config {
	return Config{
		ProtocolID: DefaultProtocolID,
		Group:      DefaultGroup,
		Heartbeat:  time.Second,
		Timeout:    5 * time.Second,
		TTL:        1,
		Loopback:   true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := c.groupAddr(); err != nil {
		return err
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("%w: heartbeat must be positive", ErrInvalidConfig)
	}
	if c.Timeout <= c.Heartbeat {
		return fmt.Errorf("%w: timeout %s must exceed heartbeat %s", ErrInvalidConfig, c.Timeout, c.Heartbeat)
	}
	if c.TTL < 1 || c.TTL > 255 {
		return fmt.Errorf("%w: ttl %d out of range", ErrInvalidConfig, c.TTL)
	}
	return nil
}

func (c Config) groupAddr() (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp4", c.Group)
	if err != nil {
		return nil, fmt.Errorf("%w: group %q: %w", ErrInvalidConfig, c.Group, err)
	}
	if !addr.IP.IsMulticast() || addr.Port == 0 {
		return nil, fmt.Errorf("%w: %q is not a multicast group with a port", ErrInvalidConfig, c.Group)
	}
	return addr, nil
}

func (c Config) iface() (*net.Interface, error) {
	if c.Interface == "" {
		return nil, nil
	}
	ifi, err := net.InterfaceByName(c.Interface)
	if err != nil {
		return nil, fmt.Errorf("discovery: interface %q: %w", c.Interface, err)
	}
	return ifi, nil
}

func (c Config) logger(component string) *slog.Logger {
	l := c.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", component)
}
