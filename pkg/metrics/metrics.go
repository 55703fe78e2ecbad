package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/reliability"
)

// Config configures a Collector.
type Config struct {
	// Namespace is the metrics namespace (default: "peerlink").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for dispatch duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures a Collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the dispatch duration buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "peerlink",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector records session, reliability, dispatch and discovery metrics.
// It implements session.Recorder and dispatch.Observer. All methods are
// no-ops on a nil *Collector.
type Collector struct {
	datagramsSent     prometheus.Counter
	bytesSent         prometheus.Counter
	datagramsReceived prometheus.Counter
	bytesReceived     prometheus.Counter
	datagramsDropped  *prometheus.CounterVec
	handshakes        *prometheus.CounterVec
	disconnects       *prometheus.CounterVec
	reliability       *prometheus.CounterVec
	peers             prometheus.Gauge
	dispatches        *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	discoveredHosts   prometheus.Gauge
}

// New registers the collector's metrics. Registering twice against the
// same registry panics, as with promauto.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Collector{
		datagramsSent:     counter("datagrams_sent_total", "Datagrams handed to the transport"),
		bytesSent:         counter("sent_bytes_total", "Bytes handed to the transport"),
		datagramsReceived: counter("datagrams_received_total", "Datagrams read from the transport"),
		bytesReceived:     counter("received_bytes_total", "Bytes read from the transport"),
		datagramsDropped:  counterVec("datagrams_dropped_total", "Datagrams discarded by reason", "reason"),
		handshakes:        counterVec("handshakes_total", "Completed handshakes by outcome", "outcome"),
		disconnects:       counterVec("disconnects_total", "Peer disconnects by reason", "reason"),
		reliability:       counterVec("reliability_events_total", "Reliability layer events by kind", "kind"),
		peers:             gauge("peers", "Authenticated peers"),
		dispatches:        counterVec("dispatches_total", "Data dispatches by identifier and status", "name", "status"),
		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Time spent running data handlers",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"name"}),
		discoveredHosts: gauge("discovered_hosts", "Hosts currently known to discovery"),
	}
}

// DatagramSent implements session.Recorder.
func (c *Collector) DatagramSent(bytes int) {
	if c == nil {
		return
	}
	c.datagramsSent.Inc()
	c.bytesSent.Add(float64(bytes))
}

// DatagramReceived implements session.Recorder.
func (c *Collector) DatagramReceived(bytes int) {
	if c == nil {
		return
	}
	c.datagramsReceived.Inc()
	c.bytesReceived.Add(float64(bytes))
}

// DatagramDropped implements session.Recorder.
func (c *Collector) DatagramDropped(reason string) {
	if c == nil {
		return
	}
	c.datagramsDropped.WithLabelValues(reason).Inc()
}

// Handshake implements session.Recorder.
func (c *Collector) Handshake(outcome string) {
	if c == nil {
		return
	}
	c.handshakes.WithLabelValues(outcome).Inc()
}

// PeerDisconnected implements session.Recorder.
func (c *Collector) PeerDisconnected(reason protocol.DisconnectReason) {
	if c == nil {
		return
	}
	c.disconnects.WithLabelValues(reason.String()).Inc()
}

// Reliability implements session.Recorder.
func (c *Collector) Reliability(delta reliability.Stats) {
	if c == nil {
		return
	}
	for kind, n := range map[string]uint64{
		"sent":        delta.Sent,
		"resent":      delta.Resent,
		"acked":       delta.Acked,
		"delivered":   delta.Delivered,
		"duplicate":   delta.Duplicates,
		"dropped":     delta.Dropped,
		"reassembled": delta.Reassembled,
		"expired":     delta.Expired,
	} {
		if n > 0 {
			c.reliability.WithLabelValues(kind).Add(float64(n))
		}
	}
}

// Peers implements session.Recorder.
func (c *Collector) Peers(n int) {
	if c == nil {
		return
	}
	c.peers.Set(float64(n))
}

// ObserveDispatch implements dispatch.Observer.
func (c *Collector) ObserveDispatch(name string, _ int, duration time.Duration, failed bool) {
	if c == nil {
		return
	}
	status := "success"
	if failed {
		status = "error"
	}
	c.dispatches.WithLabelValues(name, status).Inc()
	c.dispatchDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// DiscoveredHosts sets the number of hosts discovery currently knows.
func (c *Collector) DiscoveredHosts(n int) {
	if c == nil {
		return
	}
	c.discoveredHosts.Set(float64(n))
}
