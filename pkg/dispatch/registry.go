package dispatch

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/serializer"
)

// Default tracer name for dispatch spans.
const defaultTracerName = "peerlink"

// SpanName is the name of the span wrapping every dispatch.
const SpanName = "peerlink.dispatch"

// Registry errors.
var (
	ErrHashCollision = errors.New("dispatch: identifier hash collision")
	ErrNilHandler    = errors.New("dispatch: nil handler")
	ErrHandlerPanic  = errors.New("dispatch: handler panicked")
)

// Hash returns the 32-bit FNV-1 hash of an identifier.
func Hash(name string) uint32 {
	h := fnv.New32()
	h.Write([]byte(name))
	return h.Sum32()
}

// Handler receives payloads sent under one identifier.
type Handler interface {
	HandleData(ctx context.Context, sender protocol.PeerID, payload []byte) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, sender protocol.PeerID, payload []byte) error

// HandleData calls f.
func (f HandlerFunc) HandleData(ctx context.Context, sender protocol.PeerID, payload []byte) error {
	return f(ctx, sender, payload)
}

// Observer is notified after every dispatch that reached at least one
// handler.
type Observer interface {
	ObserveDispatch(name string, handlers int, duration time.Duration, failed bool)
}

// Subscription identifies one registered handler.
type Subscription struct {
	hash uint32
	id   uint64
}

// Hash returns the identifier hash the subscription is registered under.
func (s Subscription) Hash() uint32 { return s.hash }

// Valid reports whether s was returned by a successful Register.
func (s Subscription) Valid() bool { return s.id != 0 }

type subscriber struct {
	id      uint64
	handler Handler
}

type registration struct {
	name     string
	handlers []subscriber
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer used for dispatch spans. Default: the global
// provider's "peerlink" tracer.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithSettings sets the serializer settings used to decode typed records.
func WithSettings(s serializer.Settings) Option {
	return func(r *Registry) {
		r.settings = s
	}
}

// WithObserver sets an observer for dispatch outcomes.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		r.observer = o
	}
}

// Registry maps identifier hashes to handlers. It is safe for concurrent use;
// handlers run on the goroutine calling Dispatch.
type Registry struct {
	mu       sync.RWMutex
	entries  map[uint32]*registration
	nextID   uint64
	settings serializer.Settings
	tracer   trace.Tracer
	logger   *slog.Logger
	observer Observer
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[uint32]*registration),
		settings: serializer.DefaultSettings(),
		tracer:   otel.Tracer(defaultTracerName),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "dispatch")
	return r
}

// Settings returns the serializer settings used for typed records.
func (r *Registry) Settings() serializer.Settings {
	return r.settings
}

// Register adds h under name. Registering a comparable handler (such as a
// pointer) that is already registered under name returns its existing
// subscription. A different name with the same hash fails with
// ErrHashCollision.
func (r *Registry) Register(name string, h Handler) (Subscription, error) {
	if h == nil {
		return Subscription{}, ErrNilHandler
	}
	if err := serializer.ValidateIdentifier(name); err != nil {
		return Subscription{}, err
	}
	hash := Hash(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	reg := r.entries[hash]
	if reg == nil {
		reg = &registration{name: name}
		r.entries[hash] = reg
	} else if reg.name != name {
		return Subscription{}, fmt.Errorf("%w: %q and %q both hash to %#08x", ErrHashCollision, reg.name, name, hash)
	}

	if reflect.TypeOf(h).Comparable() {
		for _, s := range reg.handlers {
			if reflect.TypeOf(s.handler) == reflect.TypeOf(h) && s.handler == h {
				return Subscription{hash: hash, id: s.id}, nil
			}
		}
	}

	r.nextID++
	reg.handlers = append(reg.handlers, subscriber{id: r.nextID, handler: h})
	return Subscription{hash: hash, id: r.nextID}, nil
}

// RegisterFunc is Register for a plain function.
func (r *Registry) RegisterFunc(name string, fn func(ctx context.Context, sender protocol.PeerID, payload []byte) error) (Subscription, error) {
	if fn == nil {
		return Subscription{}, ErrNilHandler
	}
	return r.Register(name, HandlerFunc(fn))
}

// Unregister removes the handler behind sub and prunes the registration
// once it has no handlers left. It reports whether anything was removed.
func (r *Registry) Unregister(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := r.entries[sub.hash]
	if reg == nil {
		return false
	}
	i := slices.IndexFunc(reg.handlers, func(s subscriber) bool { return s.id == sub.id })
	if i < 0 {
		return false
	}
	reg.handlers = slices.Delete(reg.handlers, i, i+1)
	if len(reg.handlers) == 0 {
		delete(r.entries, sub.hash)
	}
	return true
}

// Lookup returns the name registered under hash.
func (r *Registry) Lookup(hash uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[hash]
	if !ok {
		return "", false
	}
	return reg.name, true
}

// Names returns the registered identifiers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for _, reg := range r.entries {
		names = append(names, reg.name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Len returns the number of registered identifiers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dispatch invokes every handler registered under hash and returns how many
// ran. Unknown hashes are ignored. Handler errors and panics are recorded
// on the span and logged; they never stop the remaining handlers.
func (r *Registry) Dispatch(ctx context.Context, hash uint32, sender protocol.PeerID, payload []byte) int {
	r.mu.RLock()
	reg := r.entries[hash]
	var name string
	var handlers []subscriber
	if reg != nil {
		name = reg.name
		handlers = slices.Clone(reg.handlers)
	}
	r.mu.RUnlock()

	if len(handlers) == 0 {
		r.logger.Debug("no handler for data", "hash", hash, "sender", sender)
		return 0
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("peerlink.data.name", name),
			attribute.Int64("peerlink.data.hash", int64(hash)),
			attribute.Int64("peerlink.sender", int64(sender)),
			attribute.Int("peerlink.payload.bytes", len(payload)),
			attribute.Int("peerlink.handlers", len(handlers)),
		),
	)
	defer span.End()

	failed := false
	for _, s := range handlers {
		if err := r.invoke(ctx, s.handler, sender, payload); err != nil {
			failed = true
			span.RecordError(err)
			r.logger.Warn("data handler failed", "name", name, "sender", sender, "error", err)
		}
	}
	if failed {
		span.SetStatus(codes.Error, "handler failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if r.observer != nil {
		r.observer.ObserveDispatch(name, len(handlers), time.Since(start), failed)
	}
	return len(handlers)
}

func (r *Registry) invoke(ctx context.Context, h Handler, sender protocol.PeerID, payload []byte) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return h.HandleData(ctx, sender, payload)
}
