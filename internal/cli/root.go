// Package cli implements the command-line interface for the SpaceTraders cache.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/session"
)

// Global flags
var (
	configPath string
	verbose    bool
	raw        bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "stcache",
	Short:   "stcache – cached SpaceTraders client",
	Long:    `A command-line client for SpaceTraders that keeps a local cache of game data, a price chart and ship cooldowns.`,
	Version: core.Version,

	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", fmt.Sprintf("Config file (default: ./%s if present)", core.DefaultConfigFile))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&raw, "raw", false, "Emit compact JSON instead of formatted output")
}

// newSession loads the configuration and builds a session for one command.
func newSession() (*session.Session, *core.Config, zerolog.Logger, error) {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := core.NewLogger(cfg.LogLevel, cfg.LogPretty)

	s, err := session.New(cfg, log, session.Options{})
	if err != nil {
		return nil, nil, log, err
	}
	return s, cfg, log, nil
}
