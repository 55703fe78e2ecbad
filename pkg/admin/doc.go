// Package admin exposes a small HTTP surface for operating a peerlink
// process: liveness, Prometheus metrics, the host status snapshot and the
// hosts found by discovery.
package admin
