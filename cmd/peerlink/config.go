package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/peerlink/internal/config"
	"github.com/vango-dev/peerlink/internal/errors"
)

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(configInitCmd(a), configShowCmd(a))
	return cmd
}

func configInitCmd(a *app) *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write a configuration file with every default spelled out.

The format follows the file extension (.json, .yaml or .yml).

Examples:
  peerlink config init
  peerlink config init --output peerlink.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return errors.New("P103").
					WithDetail(output + " already exists").
					WithSuggestion("Pass --force to overwrite it")
			}
			if err := config.New().SaveTo(output); err != nil {
				return err
			}
			a.success("Wrote %s", absPath(output))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", config.YAMLFileName, "File to write")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

func configShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.cfg.Write(a.out)
		},
	}
}
