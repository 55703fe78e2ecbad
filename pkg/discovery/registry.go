package discovery

import (
	"cmp"
	"maps"
	"net"
	"slices"
	"sync"
	"time"
)

// ChangeKind describes a registry change.
type ChangeKind int

const (
	HostAdded ChangeKind = iota
	HostUpdated
	HostRemoved
)

// String returns a readable change kind.
func (k ChangeKind) String() string {
	switch k {
	case HostAdded:
		return "Added"
	case HostUpdated:
		return "Updated"
	case HostRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// Host is a discovered host.
type Host struct {
	Source        string    `json:"source"`
	Endpoint      string    `json:"endpoint"`
	Name          string    `json:"name"`
	MaxPeers      int       `json:"max_peers"`
	CurrentPeers  int       `json:"current_peers"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// Change is one entry of the registry inbox.
type Change struct {
	Kind ChangeKind
	Host Host
}

// stopper is the part of *time.Timer the registry uses.
type stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) stopper

func timeAfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

type entry struct {
	host  Host
	timer stopper
	gen   uint64
}

// Registry tracks hosts by source address. Each heartbeat rearms the
// entry's eviction timer; an entry whose timer fires is removed. Changes
// are queued and drained with Poll, normally from the tick goroutine.
type Registry struct {
	timeout   time.Duration
	afterFunc AfterFunc
	now       func() time.Time

	mu      sync.Mutex
	hosts   map[string]*entry
	gen     uint64
	changes []Change
	closed  bool
}

// NewRegistry creates a registry evicting hosts after timeout.
func NewRegistry(timeout time.Duration) *Registry {
	return newRegistry(timeout, timeAfterFunc, time.Now)
}

func newRegistry(timeout time.Duration, af AfterFunc, now func() time.Time) *Registry {
	return &Registry{
		timeout:   timeout,
		afterFunc: af,
		now:       now,
		hosts:     make(map[string]*entry),
	}
}

// Observe records a heartbeat from source.
func (r *Registry) Observe(source string, a Announcement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	h := Host{
		Source:        source,
		Endpoint:      resolveEndpoint(a.Endpoint, source),
		Name:          a.Name,
		MaxPeers:      int(a.MaxPeers),
		CurrentPeers:  int(a.CurrentPeers),
		LastHeartbeat: r.now(),
	}

	kind := HostUpdated
	e := r.hosts[source]
	if e == nil {
		kind = HostAdded
		e = &entry{}
		r.hosts[source] = e
	} else {
		e.timer.Stop()
	}
	r.gen++
	gen := r.gen
	e.host = h
	e.gen = gen
	e.timer = r.afterFunc(r.timeout, func() { r.evict(source, gen) })
	r.changes = append(r.changes, Change{Kind: kind, Host: h})
}

// evict removes source if no heartbeat arrived since generation gen.
func (r *Registry) evict(source string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.hosts[source]
	if e == nil || e.gen != gen {
		return
	}
	delete(r.hosts, source)
	r.changes = append(r.changes, Change{Kind: HostRemoved, Host: e.host})
}

// Poll returns the oldest pending change.
func (r *Registry) Poll() (Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return Change{}, false
	}
	c := r.changes[0]
	r.changes[0] = Change{}
	r.changes = r.changes[1:]
	if len(r.changes) == 0 {
		r.changes = r.changes[:0:0]
	}
	return c, true
}

// Hosts returns the current hosts ordered by source.
func (r *Registry) Hosts() []Host {
	r.mu.Lock()
	out := make([]Host, 0, len(r.hosts))
	for e := range maps.Values(r.hosts) {
		out = append(out, e.host)
	}
	r.mu.Unlock()
	slices.SortFunc(out, func(a, b Host) int { return cmp.Compare(a.Source, b.Source) })
	return out
}

// Len returns the number of known hosts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hosts)
}

// Close stops every eviction timer and drops all hosts without queuing
// removals. Later heartbeats are ignored.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.hosts {
		e.timer.Stop()
	}
	clear(r.hosts)
	r.changes = nil
	r.closed = true
}

// resolveEndpoint fills a missing or unspecified host in endpoint with
// the IP of source.
func resolveEndpoint(endpoint, source string) string {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint
	}
	if ip := net.ParseIP(host); host != "" && (ip == nil || !ip.IsUnspecified()) {
		return endpoint
	}
	srcHost, _, err := net.SplitHostPort(source)
	if err != nil {
		return endpoint
	}
	return net.JoinHostPort(srcHost, port)
}
