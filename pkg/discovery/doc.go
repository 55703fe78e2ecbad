// Package discovery finds hosts on the local network.
//
// A host runs an Announcer that multicasts a small checksummed datagram
// every heartbeat. Clients run a Listener that joins the same group,
// verifies each datagram against the shared protocol ID and keeps a
// Registry of hosts keyed by source address. Hosts that miss heartbeats
// for longer than the configured timeout are evicted.
package discovery
