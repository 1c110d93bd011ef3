// Package cliapp wires the cobra command tree that drives the build-SSDT
// pipeline: extract-model, capture-profile, build-ssdt, full-export, and
// uat-users, the way the daemon's internal/cli package wires init/watch/
// execute/rollback around a single rootCmd.
package cliapp

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/danielbdyer/outsystems-ddl-exporter/internal/config"
	"github.com/danielbdyer/outsystems-ddl-exporter/internal/logging"
)

var (
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:           "ssdtbuild",
	Short:         "Build a deployable SQL Server Data Tools artifact set from an OutSystems model",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitializeWithOverride(flagConfig); err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		cmd.SetContext(ctx)
		rootCancel = cancel
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
	},
}

var rootCancel context.CancelFunc

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to a config.toml (overrides project/user discovery)")
}

// Execute runs the command tree; cmd/ssdtbuild/main.go calls this directly.
func Execute() error {
	return rootCmd.Execute()
}

func newLogger() *log.Logger {
	return logging.NewStderr(flagVerbose)
}
