// Package cmd defines the CLI commands for the feedwatch executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedwatch",
		Short: "A scheduled multi-source feed crawler.",
		Long: `feedwatch watches RSS and Atom feeds on per-account schedules,
ingests new entries with dedup and per-source caps, and fans out push
notifications for what it finds. It exposes an HTTP API for managing
sources, articles, shares and subscriptions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
