package session

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vango-dev/peerlink/pkg/dispatch"
	"github.com/vango-dev/peerlink/pkg/reliability"
	"github.com/vango-dev/peerlink/pkg/serializer"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("session: invalid config")

// Config holds configuration shared by Host and Client.
type Config struct {
	// Identity

	// Name is the host name on a Host and the username on a Client.
	Name string

	// Color is shown to other peers next to Name.
	Color serializer.Color

	// Limits

	// MaxPeers is the number of clients a Host accepts. Ignored by Client.
	// Default: 8.
	MaxPeers int

	// ConnectionTimeout bounds the handshake on both sides.
	// Default: 10 seconds.
	ConnectionTimeout time.Duration

	// Reliability configures every peer's reliability endpoint.
	Reliability reliability.Config

	// Settings are the serializer settings for typed records. Both sides
	// must agree on them.
	Settings serializer.Settings

	// Collaborators

	// Authenticator answers and verifies handshake challenges.
	// Default: HMACAuthenticator keyed with DefaultKey.
	Authenticator Authenticator

	// Registry receives incoming data. Default: a new registry using
	// Settings and Logger.
	Registry *dispatch.Registry

	// Recorder receives measurements. A Recorder that is also a
	// dispatch.Observer observes the default registry. Default: none.
	Recorder Recorder

	// OnEvent is called on the pumping goroutine for every lifecycle
	// event.
	OnEvent func(Event)

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxPeers:          8,
		ConnectionTimeout: 10 * time.Second,
		Reliability:       reliability.DefaultConfig(),
		Settings:          serializer.DefaultSettings(),
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if c.MaxPeers < 1 {
		return fmt.Errorf("%w: MaxPeers %d < 1", ErrInvalidConfig, c.MaxPeers)
	}
	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("%w: ConnectionTimeout must be positive", ErrInvalidConfig)
	}
	if err := c.Reliability.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Settings.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// withDefaults fills unset collaborators.
func (c *Config) withDefaults() *Config {
	c = c.Clone()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Authenticator == nil {
		c.Authenticator = NewHMACAuthenticator([]byte(DefaultKey))
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Registry == nil {
		opts := []dispatch.Option{
			dispatch.WithLogger(c.Logger),
			dispatch.WithSettings(c.Settings),
		}
		if o, ok := c.Recorder.(dispatch.Observer); ok {
			opts = append(opts, dispatch.WithObserver(o))
		}
		c.Registry = dispatch.NewRegistry(opts...)
	}
	return c
}
