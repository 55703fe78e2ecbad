package reliability

import (
	"fmt"
	"time"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// Config holds the tuning knobs of an Endpoint.
type Config struct {
	// MTU is the largest datagram emitted without chunking.
	// Default: protocol.DefaultMTU.
	MTU int

	// RTT is the round-trip-time estimate. Unacknowledged reliable packets
	// are resent every 1.5 * RTT.
	// Default: 200ms.
	RTT time.Duration

	// MaxResendAttempts bounds how often one packet is resent before the
	// endpoint reports exhaustion.
	// Default: 10.
	MaxResendAttempts int

	// OrderedWindow is how far ahead of the next expected sequence a
	// ReliableOrdered packet may arrive and still be buffered.
	// Default: 256.
	OrderedWindow int

	// MaxReassemblies bounds the number of chunked messages being
	// reassembled at once.
	// Default: 32.
	MaxReassemblies int

	// ReassemblyTimeout discards incomplete chunked messages.
	// Default: 10s.
	ReassemblyTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MTU:               protocol.DefaultMTU,
		RTT:               200 * time.Millisecond,
		MaxResendAttempts: 10,
		OrderedWindow:     256,
		MaxReassemblies:   32,
		ReassemblyTimeout: 10 * time.Second,
	}
}

// RetryInterval returns the delay before an unacknowledged packet is resent.
func (c Config) RetryInterval() time.Duration {
	return c.RTT * 3 / 2
}

// Validate reports configurations the endpoint cannot run with.
func (c Config) Validate() error {
	if c.MTU < protocol.MinMTU {
		return fmt.Errorf("reliability: MTU %d below minimum %d", c.MTU, protocol.MinMTU)
	}
	if c.RTT <= 0 {
		return fmt.Errorf("reliability: RTT must be positive")
	}
	if c.MaxResendAttempts < 0 {
		return fmt.Errorf("reliability: MaxResendAttempts must not be negative")
	}
	if c.OrderedWindow <= 0 || c.OrderedWindow > windowSize {
		return fmt.Errorf("reliability: OrderedWindow must be in [1, %d]", windowSize)
	}
	if c.MaxReassemblies <= 0 {
		return fmt.Errorf("reliability: MaxReassemblies must be positive")
	}
	if c.ReassemblyTimeout <= 0 {
		return fmt.Errorf("reliability: ReassemblyTimeout must be positive")
	}
	return nil
}
