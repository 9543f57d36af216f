package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskmirror/taskmirror/internal/daemon"
	"github.com/taskmirror/taskmirror/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time sync dashboard",
	Long: `Start a WebSocket dashboard server and the sync daemon behind it.

The server broadcasts sync activity to connected clients:
- task_update: a task was pushed, pulled, or deleted
- sync_complete: a batch sync finished for an account
- stats: task counts by status, account, and pending-sync state

Example usage:
  tm dashboard                   # default port 8484
  tm dashboard --port 9000

Connect with a WebSocket client:
  ws://localhost:8484/ws`,
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

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = a.cfg.Dashboard.Port
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		// Stream engine events to connected clients.
		handler := dashboard.NewHandler(server, a.store,
			log.New(os.Stderr, "[dashboard] ", log.LstdFlags))
		a.engine.SetObserver(handler)

		d, err := daemon.New(a.engine, a.cfg.DBPath, accounts, daemon.DefaultConfig())
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		err = d.Start(ctx)

		fmt.Println("\nShutting down dashboard server...")
		if stopErr := server.Stop(); stopErr != nil {
			return fmt.Errorf("error during shutdown: %w", stopErr)
		}
		return err
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on")
	rootCmd.AddCommand(dashboardCmd)
}
