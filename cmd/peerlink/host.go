package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/vango-dev/peerlink/internal/config"
	"github.com/vango-dev/peerlink/internal/errors"
	"github.com/vango-dev/peerlink/pkg/admin"
	"github.com/vango-dev/peerlink/pkg/discovery"
	"github.com/vango-dev/peerlink/pkg/metrics"
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/session"
	"github.com/vango-dev/peerlink/pkg/transport"
)

type hostFlags struct {
	listen      string
	kind        string
	name        string
	maxPeers    int
	admin       string
	noDiscovery bool
	tick        time.Duration
}

func hostCmd(a *app) *cobra.Command {
	var f hostFlags

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run a session host",
		Long: `Run a session host until interrupted.

The host accepts peers on the transport's listen address, announces
itself on the LAN unless discovery is disabled, and serves /healthz,
/metrics, /status and /hosts when the admin server is enabled. A
WebSocket host serves those routes and /ws on the listen address.

Examples:
  peerlink host
  peerlink host --listen :9000 --max-peers 16
  peerlink host --transport websocket --listen :8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyHostFlags(a.cfg, cmd, f)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, a, f.tick)
		},
	}

	cmd.Flags().StringVarP(&f.listen, "listen", "l", "", "Listen address (default from config)")
	cmd.Flags().StringVarP(&f.kind, "transport", "t", "", "Transport: udp or websocket")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Host name shown to peers")
	cmd.Flags().IntVar(&f.maxPeers, "max-peers", 0, "Maximum number of peers")
	cmd.Flags().StringVar(&f.admin, "admin", "", "Serve the admin API on this address")
	cmd.Flags().BoolVar(&f.noDiscovery, "no-discovery", false, "Do not announce on the LAN")
	cmd.Flags().DurationVar(&f.tick, "tick", 20*time.Millisecond, "Pump interval")

	return cmd
}

func applyHostFlags(cfg *config.Config, cmd *cobra.Command, f hostFlags) {
	if f.listen != "" {
		cfg.Transport.Listen = f.listen
	}
	if f.kind != "" {
		cfg.Transport.Kind = f.kind
	}
	if f.name != "" {
		cfg.Name = f.name
	}
	if f.maxPeers != 0 {
		cfg.Session.MaxPeers = f.maxPeers
	}
	if f.admin != "" {
		cfg.Admin.Enabled = true
		cfg.Admin.Address = f.admin
	}
	if cmd.Flags().Changed("no-discovery") {
		cfg.Discovery.Enabled = !f.noDiscovery
	}
}

func runHost(ctx context.Context, a *app, tick time.Duration) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := a.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(metrics.WithRegistry(reg))

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	sc.Logger = logger
	sc.Recorder = collector
	sc.OnEvent = func(e session.Event) { logEvent(logger, e) }

	var (
		tr transport.Transport
		ws *transport.WebSocket
	)
	switch cfg.Transport.Kind {
	case config.TransportUDP:
		ucfg, _ := cfg.UDPConfig()
		ucfg.Logger = logger
		udp, err := transport.ListenUDP(cfg.Transport.Listen, ucfg)
		if err != nil {
			return errors.New("P200").Wrap(err)
		}
		tr = udp
	case config.TransportWebSocket:
		wcfg := cfg.WebSocketConfig()
		wcfg.Logger = logger
		wcfg.CheckOrigin = func(*http.Request) bool { return true }
		ws = transport.NewWebSocketHost(wcfg)
		tr = ws
	}
	defer tr.Close()

	host, err := session.NewHost(tr, sc)
	if err != nil {
		return errors.FromError(err, "P102")
	}
	names := func(id protocol.PeerID) string {
		if id == protocol.HostPeerID {
			return host.Self().Name
		}
		p, _ := host.Peer(id)
		return p.Name
	}
	if err := registerChat(host.Registry(), logger, names); err != nil {
		return err
	}

	// Admin routes share the listener with /ws on WebSocket hosts.
	adminErr := make(chan error, 1)
	adminRunning := false
	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()
	if ws != nil || cfg.Admin.Enabled {
		acfg := admin.DefaultConfig()
		acfg.Address = cfg.Admin.Address
		acfg.Gatherer = reg
		acfg.Status = host
		acfg.Logger = logger
		if ws != nil {
			acfg.Address = cfg.Transport.Listen
			acfg.WebSocket = ws
		}
		ln, err := net.Listen("tcp", acfg.Address)
		if err != nil {
			return errors.New("P200").Wrap(err)
		}
		srv := admin.New(acfg)
		adminRunning = true
		go func() { adminErr <- srv.Serve(serveCtx, ln) }()
	}

	var announcer *discovery.Announcer
	if cfg.Discovery.Enabled {
		dc, _ := cfg.DiscoveryConfig()
		dc.Logger = logger
		endpoint := cfg.Transport.Listen
		announcer, err = discovery.NewAnnouncer(dc, func() discovery.Announcement {
			s := host.Status()
			return discovery.Announcement{
				Endpoint:     endpoint,
				Name:         s.Name,
				MaxPeers:     uint32(s.MaxPeers),
				CurrentPeers: uint32(s.CurrentPeers),
			}
		})
		if err == nil {
			err = announcer.Start()
		}
		if err != nil {
			logger.Warn("discovery inactive", "error", err)
			announcer = nil
		}
	}

	a.success("Hosting %q on %s (%s)", cfg.Name, cfg.Transport.Listen, cfg.Transport.Kind)
	if cfg.Admin.Enabled && ws == nil {
		a.info("Admin: http://%s/status", cfg.Admin.Address)
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-adminErr:
			adminRunning = false
			if err != nil {
				runErr = errors.New("P200").Wrap(err)
			}
			break loop
		case <-ticker.C:
			host.Tick(ctx)
		}
	}

	logger.Info("shutting down")
	if announcer != nil {
		announcer.Stop()
	}
	host.Close()
	cancelServe()
	if adminRunning {
		if err := <-adminErr; err != nil {
			logger.Warn("admin server", "error", err)
		}
	}
	return runErr
}

func logEvent(logger *slog.Logger, e session.Event) {
	switch e.Kind {
	case session.EventPeerConnected, session.EventPeerUpdated:
		logger.Info(e.Kind.String(), "peer_id", e.Peer.ID, "name", e.Peer.Name)
	case session.EventPeerDisconnected, session.EventDisconnected:
		logger.Info(e.Kind.String(), "peer_id", e.Peer.ID, "name", e.Peer.Name, "reason", e.Reason.String())
	case session.EventDenied:
		logger.Info(e.Kind.String(), "reason", e.DenyReason.String())
	case session.EventHostUpdated:
		logger.Info(e.Kind.String(), "name", e.Host.Name, "peers", e.Host.CurrentPeers, "max_peers", e.Host.MaxPeers)
	default:
		logger.Info(e.Kind.String())
	}
}
