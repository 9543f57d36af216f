package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskmirror/taskmirror/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep tasks continuously in sync (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Syncs every configured account on startup
  2. Watches the task database and re-syncs shortly after any other
     process writes to it
  3. Runs a full sync on a fixed interval regardless

Logs go to the rotated file configured under daemon.log_path; pass
--verbose to also log to stderr.

Example:
  tm daemon
  tm daemon --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		accounts := a.accounts.Names()
		if len(accounts) == 0 {
			return fmt.Errorf("no accounts configured; run 'tm accounts add'")
		}

		cfg := daemon.DefaultConfig()
		if a.cfg.Daemon.SyncInterval > 0 {
			cfg.SyncInterval = a.cfg.Daemon.SyncInterval
		}
		if a.cfg.Daemon.DebounceInterval > 0 {
			cfg.DebounceInterval = a.cfg.Daemon.DebounceInterval
		}
		if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose && a.cfg.Daemon.LogPath != "" {
			cfg.Logger = daemon.NewLogger(a.cfg.Daemon.LogPath)
		}

		d, err := daemon.New(a.engine, a.cfg.DBPath, accounts, cfg)
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		fmt.Printf("Syncing %d account(s) every %s\n", len(accounts), cfg.SyncInterval)
		fmt.Println("Press Ctrl+C to stop")

		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return d.Start(ctx)
	},
}

func init() {
	daemonCmd.Flags().BoolP("verbose", "v", false, "Log to stderr instead of the log file")
	rootCmd.AddCommand(daemonCmd)
}
