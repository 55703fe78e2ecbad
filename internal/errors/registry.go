package errors

import (
	"maps"
	"slices"
)

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Configuration (P100-P199)
	"P100": {
		Category:   CategoryConfig,
		Message:    "Config file not found",
		Suggestion: "Run 'peerlink config init' to write a default peerlink.yaml",
	},
	"P101": {
		Category:   CategoryConfig,
		Message:    "Config file could not be parsed",
		Suggestion: "Check the file is valid JSON (.json) or YAML (.yaml, .yml)",
	},
	"P102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
	},
	"P103": {
		Category: CategoryConfig,
		Message:  "Config file could not be written",
	},

	// Transport (P200-P299)
	"P200": {
		Category:   CategoryTransport,
		Message:    "Could not open transport",
		Detail:     "The listen address may already be in use or the remote host may be unreachable.",
		Suggestion: "Pick another port with --listen or check --connect",
	},
	"P201": {
		Category:   CategoryTransport,
		Message:    "Unknown transport kind",
		Suggestion: "Use \"udp\" or \"websocket\"",
	},

	// Session (P300-P399)
	"P300": {
		Category:   CategorySession,
		Message:    "Connection denied by host",
		Suggestion: "Check the shared key and that the host has room for another peer",
	},
	"P301": {
		Category: CategorySession,
		Message:  "Connection timed out",
		Detail:   "The host did not complete the handshake within the connection timeout.",
	},
	"P302": {
		Category: CategorySession,
		Message:  "Disconnected from host",
	},

	// Discovery (P400-P499)
	"P400": {
		Category:   CategoryDiscovery,
		Message:    "Discovery unavailable",
		Detail:     "Joining the multicast group failed. Multicast may be disabled on this network or interface.",
		Suggestion: "Set discovery.interface or connect by address with --connect",
	},
}

// Codes returns every registered code in order.
func Codes() []string {
	return slices.Sorted(maps.Keys(registry))
}

// Lookup returns the template registered under code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
