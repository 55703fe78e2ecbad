package config

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vango-dev/peerlink/internal/errors"
	"github.com/vango-dev/peerlink/pkg/serializer"
)

func codeOf(err error) string {
	var pe *errors.PeerlinkError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

func TestNewIsValid(t *testing.T) {
	cfg := New()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Transport.Kind != TransportUDP || cfg.Admin.Address != DefaultAdminAddress {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir); codeOf(err) != "P100" {
		t.Errorf("missing config error = %v, want P100", err)
	}

	data := `{
  "name": "arena",
  "transport": {"kind": "websocket", "listen": ":9000"},
  "session": {"maxPeers": 16, "connectionTimeout": "3s", "key": "secret"},
  "reliability": {"rtt": "50ms"}
}`
	if err := os.WriteFile(filepath.Join(dir, JSONFileName), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "arena" || cfg.Transport.Kind != TransportWebSocket || cfg.Transport.Listen != ":9000" {
		t.Errorf("loaded = %+v", cfg)
	}
	// Untouched sections keep defaults.
	if cfg.Transport.Connect != New().Transport.Connect || !cfg.Discovery.Enabled {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.Path() != filepath.Join(dir, JSONFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}

	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.MaxPeers != 16 || sc.ConnectionTimeout != 3*time.Second || sc.Reliability.RTT != 50*time.Millisecond {
		t.Errorf("session config = %+v", sc)
	}
	if sc.Reliability.MTU != New().Reliability.MTU {
		t.Errorf("MTU = %d", sc.Reliability.MTU)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	data := `name: lan
transport:
  kind: udp
  idleTimeout: 30s
serializer:
  compressFloats: true
  floatMin: -100
  floatMax: 100
  floatResolution: 0.05
  bitsPerComponent: 12
discovery:
  enabled: true
  heartbeat: 500ms
  timeout: 2s
`
	if err := os.WriteFile(filepath.Join(dir, YAMLFileName), []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	want := serializer.Settings{
		CompressFloats:   true,
		FloatMin:         -100,
		FloatMax:         100,
		FloatResolution:  0.05,
		BitsPerComponent: 12,
	}
	if diff := cmp.Diff(want, cfg.SerializerSettings()); diff != "" {
		t.Errorf("serializer settings (-want +got):\n%s", diff)
	}

	dc, err := cfg.DiscoveryConfig()
	if err != nil {
		t.Fatal(err)
	}
	if dc.Heartbeat != 500*time.Millisecond || dc.Timeout != 2*time.Second {
		t.Errorf("discovery = %+v", dc)
	}
	uc, err := cfg.UDPConfig()
	if err != nil {
		t.Fatal(err)
	}
	if uc.IdleTimeout != 30*time.Second {
		t.Errorf("idle timeout = %v", uc.IdleTimeout)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name, file, data, code string
	}{
		{"bad json", "c.json", "not json", "P101"},
		{"bad yaml", "c.yaml", "name: [unterminated", "P101"},
		{"unknown yaml field", "c.yml", "nmae: typo\n", "P101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFile(path); codeOf(err) != tt.code {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
	if _, err := LoadFile(filepath.Join(dir, "none.json")); codeOf(err) != "P100" {
		t.Errorf("missing file error = %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := New()
			cfg.Name = "saved"
			cfg.Session.MaxPeers = 3
			path := filepath.Join(dir, name)
			if err := cfg.SaveTo(path); err != nil {
				t.Fatal(err)
			}
			got, err := LoadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(cfg, got, cmp.AllowUnexported(Config{})); diff != "" {
				t.Errorf("round trip (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		code   string
	}{
		{"transport kind", func(c *Config) { c.Transport.Kind = "tcp" }, "P201"},
		{"bad duration", func(c *Config) { c.Session.ConnectionTimeout = "soon" }, "P102"},
		{"negative duration", func(c *Config) { c.Reliability.RTT = "-1s" }, "P102"},
		{"max peers", func(c *Config) { c.Session.MaxPeers = -1 }, "P102"},
		{"color", func(c *Config) { c.Session.Color = "#12" }, "P102"},
		{"serializer", func(c *Config) { c.Serializer.CompressFloats = true; c.Serializer.FloatResolution = 0 }, "P102"},
		{"discovery group", func(c *Config) { c.Discovery.Group = "10.1.1.1:1" }, "P102"},
		{"discovery disabled skips group", func(c *Config) { c.Discovery.Enabled = false; c.Discovery.Group = "x" }, ""},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "P102"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "P102"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.modify(cfg)
			err := cfg.Validate()
			if got := codeOf(err); got != tt.code {
				t.Errorf("Validate() = %v, want code %q", err, tt.code)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want serializer.Color
		ok   bool
	}{
		{"", serializer.Color{R: 255, G: 255, B: 255}, true},
		{"#ff8000", serializer.Color{R: 255, G: 128}, true},
		{"0a0b0c", serializer.Color{R: 10, G: 11, B: 12}, true},
		{"#fff", serializer.Color{}, false},
		{"#gg0000", serializer.Color{}, false},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseColor(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn, "error": slog.LevelError} {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := New().Write(&buf); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"transport:", "kind: udp", "maxPeers: 8"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}
