package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vango-dev/peerlink/internal/errors"
	"github.com/vango-dev/peerlink/pkg/discovery"
	"github.com/vango-dev/peerlink/pkg/reliability"
	"github.com/vango-dev/peerlink/pkg/serializer"
	"github.com/vango-dev/peerlink/pkg/session"
	"github.com/vango-dev/peerlink/pkg/transport"
)

const (
	// JSONFileName and YAMLFileName are the config files Load looks for,
	// in that order.
	JSONFileName = "peerlink.json"
	YAMLFileName = "peerlink.yaml"

	// DefaultPort is the default host port.
	DefaultPort = 7777

	// DefaultAdminAddress is the default admin HTTP address.
	DefaultAdminAddress = "127.0.0.1:7780"
)

// Transport kinds.
const (
	TransportUDP       = "udp"
	TransportWebSocket = "websocket"
)

// Config is the complete peerlink configuration file.
type Config struct {
	// Name is the host name or the client display name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Transport   TransportConfig   `json:"transport" yaml:"transport"`
	Session     SessionConfig     `json:"session" yaml:"session"`
	Reliability ReliabilityConfig `json:"reliability" yaml:"reliability"`
	Serializer  SerializerConfig  `json:"serializer" yaml:"serializer"`
	Discovery   DiscoveryConfig   `json:"discovery" yaml:"discovery"`
	Admin       AdminConfig       `json:"admin" yaml:"admin"`
	Log         LogConfig         `json:"log" yaml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// TransportConfig selects and tunes the datagram transport.
type TransportConfig struct {
	// Kind is "udp" or "websocket".
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`

	// Listen is the host's bind address.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`

	// Connect is the address (udp) or URL (websocket) clients dial.
	Connect string `json:"connect,omitempty" yaml:"connect,omitempty"`

	// MaxDatagram bounds datagram size. Defaults to the MTU.
	MaxDatagram int `json:"maxDatagram,omitempty" yaml:"maxDatagram,omitempty"`

	// IdleTimeout disconnects silent UDP remotes (e.g., "30s"). Empty
	// disables it.
	IdleTimeout string `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
}

// SessionConfig contains handshake and capacity settings.
type SessionConfig struct {
	MaxPeers int `json:"maxPeers,omitempty" yaml:"maxPeers,omitempty"`

	// ConnectionTimeout bounds the handshake (e.g., "10s").
	ConnectionTimeout string `json:"connectionTimeout,omitempty" yaml:"connectionTimeout,omitempty"`

	// Key is the shared challenge secret.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`

	// Color is the client's display color as #rrggbb.
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// ReliabilityConfig tunes the reliability layer.
type ReliabilityConfig struct {
	MTU               int    `json:"mtu,omitempty" yaml:"mtu,omitempty"`
	RTT               string `json:"rtt,omitempty" yaml:"rtt,omitempty"`
	MaxResendAttempts int    `json:"maxResendAttempts,omitempty" yaml:"maxResendAttempts,omitempty"`
	OrderedWindow     int    `json:"orderedWindow,omitempty" yaml:"orderedWindow,omitempty"`
	MaxReassemblies   int    `json:"maxReassemblies,omitempty" yaml:"maxReassemblies,omitempty"`
	ReassemblyTimeout string `json:"reassemblyTimeout,omitempty" yaml:"reassemblyTimeout,omitempty"`
}

// SerializerConfig mirrors serializer.Settings. Both sides of a session
// must use the same values.
type SerializerConfig struct {
	CompressFloats      bool    `json:"compressFloats,omitempty" yaml:"compressFloats,omitempty"`
	FloatMin            float64 `json:"floatMin,omitempty" yaml:"floatMin,omitempty"`
	FloatMax            float64 `json:"floatMax,omitempty" yaml:"floatMax,omitempty"`
	FloatResolution     float64 `json:"floatResolution,omitempty" yaml:"floatResolution,omitempty"`
	CompressQuaternions bool    `json:"compressQuaternions,omitempty" yaml:"compressQuaternions,omitempty"`
	BitsPerComponent    int     `json:"bitsPerComponent,omitempty" yaml:"bitsPerComponent,omitempty"`
}

// DiscoveryConfig contains LAN discovery settings.
type DiscoveryConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Group      string `json:"group,omitempty" yaml:"group,omitempty"`
	Interface  string `json:"interface,omitempty" yaml:"interface,omitempty"`
	ProtocolID uint32 `json:"protocolId,omitempty" yaml:"protocolId,omitempty"`
	Heartbeat  string `json:"heartbeat,omitempty" yaml:"heartbeat,omitempty"`
	Timeout    string `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// AdminConfig contains the admin HTTP server settings.
type AdminConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address,omitempty" yaml:"address,omitempty"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	// Format is "text" or "json".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Level is "debug", "info", "warn" or "error".
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// New creates a Config with default values.
func New() *Config {
	rel := reliability.DefaultConfig()
	ser := serializer.DefaultSettings()
	disc := discovery.DefaultConfig()
	sess := session.DefaultConfig()
	return &Config{
		Name: "peerlink",
		Transport: TransportConfig{
			Kind:    TransportUDP,
			Listen:  fmt.Sprintf(":%d", DefaultPort),
			Connect: fmt.Sprintf("127.0.0.1:%d", DefaultPort),
		},
		Session: SessionConfig{
			MaxPeers:          sess.MaxPeers,
			ConnectionTimeout: sess.ConnectionTimeout.String(),
			Key:               session.DefaultKey,
			Color:             "#ffffff",
		},
		Reliability: ReliabilityConfig{
			MTU:               rel.MTU,
			RTT:               rel.RTT.String(),
			MaxResendAttempts: rel.MaxResendAttempts,
			OrderedWindow:     rel.OrderedWindow,
			MaxReassemblies:   rel.MaxReassemblies,
			ReassemblyTimeout: rel.ReassemblyTimeout.String(),
		},
		Serializer: SerializerConfig{
			FloatMin:         ser.FloatMin,
			FloatMax:         ser.FloatMax,
			FloatResolution:  ser.FloatResolution,
			BitsPerComponent: ser.BitsPerComponent,
		},
		Discovery: DiscoveryConfig{
			Enabled:    true,
			Group:      disc.Group,
			ProtocolID: disc.ProtocolID,
			Heartbeat:  disc.Heartbeat.String(),
			Timeout:    disc.Timeout.String(),
		},
		Admin: AdminConfig{
			Address: DefaultAdminAddress,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads peerlink.json, or failing that peerlink.yaml, from dir.
func Load(dir string) (*Config, error) {
	for _, name := range []string{JSONFileName, YAMLFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("P100").
		WithDetail("No " + JSONFileName + " or " + YAMLFileName + " found in " + dir)
}

// LoadFile reads configuration from path. The format follows the file
// extension; anything but .yaml and .yml is read as JSON. Fields missing
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("P100").WithDetail("No config at " + path)
		}
		return nil, errors.New("P101").Wrap(err)
	}

	cfg := New()
	if isYAML(path) {
		err = yaml.UnmarshalStrict(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("P101").
			WithDetail("Failed to parse " + filepath.Base(path)).
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// SaveTo writes the configuration to path in the format its extension
// selects.
func (c *Config) SaveTo(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New("P103").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New("P103").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Write encodes the configuration as YAML to w.
func (c *Config) Write(w io.Writer) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills fields a file zeroed out.
func (c *Config) applyDefaults() {
	def := New()
	if c.Transport.Kind == "" {
		c.Transport.Kind = def.Transport.Kind
	}
	if c.Transport.Listen == "" {
		c.Transport.Listen = def.Transport.Listen
	}
	if c.Transport.Connect == "" {
		c.Transport.Connect = def.Transport.Connect
	}
	if c.Session.Key == "" {
		c.Session.Key = def.Session.Key
	}
	if c.Admin.Address == "" {
		c.Admin.Address = def.Admin.Address
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

func invalid(format string, args ...any) error {
	return errors.New("P102").WithDetail(fmt.Sprintf(format, args...))
}

// parseDuration parses an optional duration field.
func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, invalid("%s: %v", field, err)
	}
	if d < 0 {
		return 0, invalid("%s must not be negative", field)
	}
	return d, nil
}

// Validate checks the configuration by building every package config it
// feeds.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportUDP, TransportWebSocket:
	default:
		return errors.New("P201").WithDetail(fmt.Sprintf("transport.kind %q", c.Transport.Kind))
	}
	if _, err := c.UDPConfig(); err != nil {
		return err
	}
	sc, err := c.SessionConfig()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return errors.New("P102").Wrap(err)
	}
	if c.Discovery.Enabled {
		dc, err := c.DiscoveryConfig()
		if err != nil {
			return err
		}
		if err := dc.Validate(); err != nil {
			return errors.New("P102").Wrap(err)
		}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format %q, want text or json", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// SerializerSettings converts the serializer section.
func (c *Config) SerializerSettings() serializer.Settings {
	return serializer.Settings{
		CompressFloats:      c.Serializer.CompressFloats,
		FloatMin:            c.Serializer.FloatMin,
		FloatMax:            c.Serializer.FloatMax,
		FloatResolution:     c.Serializer.FloatResolution,
		CompressQuaternions: c.Serializer.CompressQuaternions,
		BitsPerComponent:    c.Serializer.BitsPerComponent,
	}
}

// ReliabilityConfig converts the reliability section. Zero fields keep
// the package defaults.
func (c *Config) ReliabilityConfig() (reliability.Config, error) {
	rc := reliability.DefaultConfig()
	r := c.Reliability
	if r.MTU != 0 {
		rc.MTU = r.MTU
	}
	if r.MaxResendAttempts != 0 {
		rc.MaxResendAttempts = r.MaxResendAttempts
	}
	if r.OrderedWindow != 0 {
		rc.OrderedWindow = r.OrderedWindow
	}
	if r.MaxReassemblies != 0 {
		rc.MaxReassemblies = r.MaxReassemblies
	}
	rtt, err := parseDuration("reliability.rtt", r.RTT)
	if err != nil {
		return rc, err
	}
	if rtt != 0 {
		rc.RTT = rtt
	}
	timeout, err := parseDuration("reliability.reassemblyTimeout", r.ReassemblyTimeout)
	if err != nil {
		return rc, err
	}
	if timeout != 0 {
		rc.ReassemblyTimeout = timeout
	}
	return rc, nil
}

// SessionConfig converts the session, reliability and serializer
// sections. Logger, Recorder and OnEvent are left for the caller.
func (c *Config) SessionConfig() (*session.Config, error) {
	sc := session.DefaultConfig()
	sc.Name = c.Name
	if c.Session.MaxPeers != 0 {
		sc.MaxPeers = c.Session.MaxPeers
	}
	timeout, err := parseDuration("session.connectionTimeout", c.Session.ConnectionTimeout)
	if err != nil {
		return nil, err
	}
	if timeout != 0 {
		sc.ConnectionTimeout = timeout
	}
	color, err := ParseColor(c.Session.Color)
	if err != nil {
		return nil, err
	}
	sc.Color = color
	if sc.Reliability, err = c.ReliabilityConfig(); err != nil {
		return nil, err
	}
	sc.Settings = c.SerializerSettings()
	sc.Authenticator = session.NewHMACAuthenticator([]byte(c.Session.Key))
	return sc, nil
}

// DiscoveryConfig converts the discovery section.
func (c *Config) DiscoveryConfig() (discovery.Config, error) {
	dc := discovery.DefaultConfig()
	d := c.Discovery
	if d.Group != "" {
		dc.Group = d.Group
	}
	if d.ProtocolID != 0 {
		dc.ProtocolID = d.ProtocolID
	}
	dc.Interface = d.Interface
	hb, err := parseDuration("discovery.heartbeat", d.Heartbeat)
	if err != nil {
		return dc, err
	}
	if hb != 0 {
		dc.Heartbeat = hb
	}
	to, err := parseDuration("discovery.timeout", d.Timeout)
	if err != nil {
		return dc, err
	}
	if to != 0 {
		dc.Timeout = to
	}
	return dc, nil
}

// UDPConfig converts the transport section for the UDP driver.
func (c *Config) UDPConfig() (transport.UDPConfig, error) {
	uc := transport.DefaultUDPConfig()
	if c.Transport.MaxDatagram != 0 {
		uc.MaxDatagram = c.Transport.MaxDatagram
	}
	idle, err := parseDuration("transport.idleTimeout", c.Transport.IdleTimeout)
	if err != nil {
		return uc, err
	}
	uc.IdleTimeout = idle
	return uc, nil
}

// WebSocketConfig converts the transport section for the WebSocket driver.
func (c *Config) WebSocketConfig() transport.WebSocketConfig {
	wc := transport.DefaultWebSocketConfig()
	if c.Transport.MaxDatagram != 0 {
		wc.MaxDatagram = c.Transport.MaxDatagram
	}
	return wc
}
