package config

import (
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/vango-dev/peerlink/pkg/serializer"
)

// ParseColor parses "#rrggbb" (the # is optional). Empty is white.
func ParseColor(s string) (serializer.Color, error) {
	if s == "" {
		return serializer.Color{R: 0xff, G: 0xff, B: 0xff}, nil
	}
	raw := strings.TrimPrefix(s, "#")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 3 {
		return serializer.Color{}, invalid("color %q, want #rrggbb", s)
	}
	return serializer.Color{R: b[0], G: b[1], B: b[2]}, nil
}

// ParseLevel parses a log level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, invalid("log.level %q", s)
	}
	return l, nil
}
