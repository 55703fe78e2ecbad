package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/peerlink/pkg/discovery"
	"github.com/vango-dev/peerlink/pkg/session"
)

// StatusSource provides host snapshots. *session.Host implements it.
type StatusSource interface {
	Status() *session.Status
}

// HostSource lists discovered hosts. *discovery.Listener and
// *discovery.Registry implement it.
type HostSource interface {
	Hosts() []discovery.Host
}

// Config configures the admin server.
type Config struct {
	// Address is the listen address (default: "127.0.0.1:7780").
	Address string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// Gatherer serves /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Status serves /status. Nil answers 404.
	Status StatusSource

	// Hosts serves /hosts. Nil answers 404.
	Hosts HostSource

	// WebSocket, when set, is mounted at /ws so a WebSocket transport
	// host shares the admin listener.
	WebSocket http.Handler

	Logger *slog.Logger
}

// DefaultConfig returns a Config listening on localhost.
func DefaultConfig() *Config {
	return &Config{
		Address:           "127.0.0.1:7780",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// NewRouter builds the admin routes.
func NewRouter(cfg *Config) http.Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		if cfg.Status == nil {
			writeError(w, http.StatusNotFound, "not hosting")
			return
		}
		s := cfg.Status.Status()
		if s == nil {
			writeError(w, http.StatusServiceUnavailable, "no status yet")
			return
		}
		writeJSON(w, http.StatusOK, s)
	})
	r.Get("/hosts", func(w http.ResponseWriter, _ *http.Request) {
		if cfg.Hosts == nil {
			writeError(w, http.StatusNotFound, "discovery disabled")
			return
		}
		writeJSON(w, http.StatusOK, cfg.Hosts.Hosts())
	})
	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Server serves the admin routes over HTTP.
type Server struct {
	config     *Config
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a server for cfg.
func New(cfg *Config) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.Clone()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		logger: logger.With("component", "admin"),
	}
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on ln until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("admin server starting", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Run listens on the configured address and serves until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}
	s.logger.Info("admin server stopped")
	return nil
}
