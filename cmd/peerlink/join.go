package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/peerlink/internal/config"
	"github.com/vango-dev/peerlink/internal/errors"
	"github.com/vango-dev/peerlink/pkg/protocol"
	"github.com/vango-dev/peerlink/pkg/session"
	"github.com/vango-dev/peerlink/pkg/transport"
)

type joinFlags struct {
	connect string
	kind    string
	name    string
	color   string
	tick    time.Duration
}

func joinCmd(a *app) *cobra.Command {
	var f joinFlags

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a host and chat",
		Long: `Join a host, print session events, and send each line read from
standard input to every other peer.

Examples:
  peerlink join --connect 192.168.1.20:7777 --name alice
  peerlink join --transport websocket --connect ws://example.com:8080/ws`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applyJoinFlags(a.cfg, f)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, a, cmd.InOrStdin(), f.tick)
		},
	}

	cmd.Flags().StringVar(&f.connect, "connect", "", "Host address, or ws:// URL for websocket")
	cmd.Flags().StringVarP(&f.kind, "transport", "t", "", "Transport: udp or websocket")
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Display name")
	cmd.Flags().StringVar(&f.color, "color", "", "Display color as #rrggbb")
	cmd.Flags().DurationVar(&f.tick, "tick", 20*time.Millisecond, "Pump interval")

	return cmd
}

func applyJoinFlags(cfg *config.Config, f joinFlags) {
	if f.connect != "" {
		cfg.Transport.Connect = f.connect
	}
	if f.kind != "" {
		cfg.Transport.Kind = f.kind
	}
	if f.name != "" {
		cfg.Name = f.name
	}
	if f.color != "" {
		cfg.Session.Color = f.color
	}
	// Clients never announce.
	cfg.Discovery.Enabled = false
}

// webSocketURL turns a bare host:port into the /ws URL a WebSocket host
// serves.
func webSocketURL(connect string) string {
	if strings.Contains(connect, "://") {
		return connect
	}
	return "ws://" + connect + "/ws"
}

func dialTransport(ctx context.Context, cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		wcfg := cfg.WebSocketConfig()
		wcfg.Logger = slog.Default()
		ws, err := transport.DialWebSocket(ctx, webSocketURL(cfg.Transport.Connect), wcfg)
		if err != nil {
			return nil, errors.New("P200").Wrap(err)
		}
		return ws, nil
	default:
		ucfg, err := cfg.UDPConfig()
		if err != nil {
			return nil, err
		}
		ucfg.Logger = slog.Default()
		udp, err := transport.DialUDP(cfg.Transport.Connect, ucfg)
		if err != nil {
			return nil, errors.New("P200").Wrap(err)
		}
		return udp, nil
	}
}

func runJoin(ctx context.Context, a *app, in io.Reader, tick time.Duration) error {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := a.logger

	sc, err := cfg.SessionConfig()
	if err != nil {
		return err
	}
	sc.Logger = logger

	// Events arrive on the tick goroutine; outcome is read there too.
	var outcome error
	done := false
	sc.OnEvent = func(e session.Event) {
		logEvent(logger, e)
		switch e.Kind {
		case session.EventAuthenticated:
			a.success("Connected as peer %d", e.Peer.ID)
		case session.EventDenied:
			outcome = errors.New("P300").WithDetail("Reason: " + e.DenyReason.String())
			done = true
		case session.EventDisconnected:
			switch e.Reason {
			case protocol.DisconnectRequested:
			case protocol.DisconnectTimeout:
				if outcome == nil {
					outcome = errors.New("P301")
				}
			default:
				if outcome == nil {
					outcome = errors.New("P302").WithDetail("Reason: " + e.Reason.String())
				}
			}
			done = true
		}
	}

	tr, err := dialTransport(ctx, cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	client, err := session.NewClient(tr, sc)
	if err != nil {
		return errors.FromError(err, "P102")
	}
	names := func(id protocol.PeerID) string {
		for _, p := range client.Roster() {
			if p.ID == id {
				return p.Name
			}
		}
		return ""
	}
	if err := registerChat(client.Registry(), logger, names); err != nil {
		return err
	}

	lines := readLines(in)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for !done {
		select {
		case <-ctx.Done():
			client.Disconnect()
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if !client.Connected() {
				a.info("not connected yet, dropped %q", line)
				continue
			}
			if err := client.SendRecord(session.ToAll(), protocol.ReliableOrdered, chatMessage{Text: line}); err != nil {
				logger.Warn("send chat", "error", err)
			}
		case <-ticker.C:
			client.Tick(ctx)
		}
	}
	return outcome
}
