package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/peerlink/internal/errors"
	"github.com/vango-dev/peerlink/pkg/discovery"
)

func discoverCmd(a *app) *cobra.Command {
	var (
		wait   time.Duration
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List hosts announcing on the LAN",
		Long: `Listen for host announcements and print hosts as they appear,
change and disappear.

Examples:
  peerlink discover
  peerlink discover --wait 10s --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDiscover(ctx, a, wait, asJSON)
		},
	}

	cmd.Flags().DurationVarP(&wait, "wait", "w", 5*time.Second, "How long to listen")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the final host list as JSON")

	return cmd
}

func runDiscover(ctx context.Context, a *app, wait time.Duration, asJSON bool) error {
	dc, err := a.cfg.DiscoveryConfig()
	if err != nil {
		return err
	}
	dc.Logger = a.logger

	l, err := discovery.NewListener(dc)
	if err != nil {
		return errors.New("P102").Wrap(err)
	}
	if err := l.Start(); err != nil {
		return errors.New("P400").Wrap(err)
	}
	defer l.Stop()

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			hosts := l.Hosts()
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(hosts)
			}
			a.info("%d host(s) found", len(hosts))
			return nil
		case <-ticker.C:
			if !l.Active() {
				return errors.New("P400")
			}
			if asJSON {
				continue
			}
			for {
				c, ok := l.Poll()
				if !ok {
					break
				}
				h := c.Host
				a.info("%-7s %-20s %-22s %d/%d", c.Kind, h.Name, h.Endpoint, h.CurrentPeers, h.MaxPeers)
			}
		}
	}
}
