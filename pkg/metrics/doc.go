// Package metrics exports peerlink measurements to Prometheus.
//
// A Collector plugs into session.Config.Recorder and, through the default
// dispatch registry, observes every data dispatch:
//
//	reg := prometheus.NewRegistry()
//	cfg := session.DefaultConfig()
//	cfg.Recorder = metrics.New(metrics.WithRegistry(reg))
package metrics
