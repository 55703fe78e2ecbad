// Package config loads the peerlink configuration file.
//
// Configuration lives in peerlink.json or peerlink.yaml. Durations are
// strings such as "250ms" or "10s". Missing fields keep their defaults.
//
//	name: arena
//	transport:
//	  kind: udp
//	  listen: :7777
//	session:
//	  maxPeers: 16
//	  key: change-me
//	discovery:
//	  enabled: true
//	  heartbeat: 1s
//	  timeout: 5s
//	admin:
//	  enabled: true
//	  address: 127.0.0.1:7780
//
// Usage:
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	sc, err := cfg.SessionConfig()
package config
