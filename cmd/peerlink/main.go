package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/peerlink/internal/config"
	"github.com/vango-dev/peerlink/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// app carries the loaded configuration and logger to subcommands.
type app struct {
	configPath string
	logFormat  string
	logLevel   string
	noColor    bool

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	rootCmd := &cobra.Command{
		Use:   "peerlink",
		Short: "Peer-to-host networking over UDP or WebSocket",
		Long: `peerlink runs a session host, joins one, or finds hosts on the LAN.

A host accepts peers after a challenge handshake, relays data between
them, and announces itself by multicast. Configuration is read from
peerlink.json or peerlink.yaml in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: ./peerlink.json or ./peerlink.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		hostCmd(a),
		joinCmd(a),
		discoverCmd(a),
		configCmd(a),
		versionCmd(a),
	)
	return rootCmd
}

// setup loads the config and installs the logger. A missing default
// config file is not an error.
func (a *app) setup() error {
	if a.noColor {
		errors.DisableColors()
	}

	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load(".")
		var pe *errors.PeerlinkError
		if stderrors.As(err, &pe) && pe.Code == "P100" {
			a.cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return err
	}

	if a.logFormat != "" {
		a.cfg.Log.Format = a.logFormat
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	a.logger, err = newLogger(os.Stderr, a.cfg.Log.Format, a.cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(a.logger)
	return nil
}

// newLogger builds a text or JSON slog logger at level.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, errors.New("P102").WithDetail(fmt.Sprintf("log format %q, want text or json", format))
	}
}

// success prints a success message.
func (a *app) success(format string, args ...any) {
	fmt.Fprintf(a.out, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func (a *app) info(format string, args ...any) {
	fmt.Fprintf(a.out, "  %s\n", fmt.Sprintf(format, args...))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
