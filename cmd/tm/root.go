package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmirror/taskmirror/internal/config"
	"github.com/taskmirror/taskmirror/internal/remote"
	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/sync"
	"github.com/taskmirror/taskmirror/internal/task"
	"github.com/taskmirror/taskmirror/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "tm",
	Short: "Personal task manager with Google Tasks sync",
	Long: `tm keeps your tasks in a local SQLite database and mirrors them
against Google Tasks.

Changes you make locally are pushed right away (auto-save); changes made
elsewhere arrive on the next sync. Run 'tm sync' for a full two-way
reconciliation, or 'tm daemon' to keep everything in sync continuously.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
	rootCmd.PersistentFlags().StringP("account", "a", "", "Account to operate on (default from config)")
}

// app bundles everything a command needs: settings, the open store,
// and a sync engine wired to one remote client per account.
type app struct {
	cfg      *config.Config
	accounts *config.Accounts
	store    *store.Store
	engine   *sync.Engine
	styles   *ui.Styles
}

// openApp loads configuration and opens the store. Remote clients are
// built lazily per account name, so commands that never touch the
// network work without credentials.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	accts, err := config.LoadAccounts()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open task database: %w", err)
	}
	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to initialize task database: %w", err)
	}

	clients := make(map[string]remote.Client, len(accts.Accounts))
	for name, acct := range accts.Accounts {
		if err := acct.Credentials.Validate(); err != nil {
			continue // unconfigured entries stay local-only
		}
		httpClient, err := acct.Credentials.HTTPClient(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to build client for account %s: %w", name, err)
		}
		client := remote.NewGoogleClient(httpClient, nil,
			log.New(os.Stderr, "[remote] ", log.LstdFlags))
		// Each account may bind a different remote list; fix it here so
		// the engine can stay list-agnostic.
		clients[name] = boundListClient{Client: client, tasklist: tasklistFor(accts, name)}
	}

	engine := sync.NewEngine(st, clients, sync.Config{
		Tasklist:           "@default",
		PerTaskTimeout:     cfg.Sync.PerTaskTimeout,
		PropagationTimeout: cfg.Sync.PropagationTimeout,
	}, log.New(os.Stderr, "[sync] ", log.LstdFlags))

	return &app{
		cfg:      cfg,
		accounts: accts,
		store:    st,
		engine:   engine,
		styles:   ui.NewStyles(),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// account resolves the account to operate on: the --account flag, then
// the configured default, then the only configured account.
func (a *app) account(cmd *cobra.Command) (string, error) {
	if name, _ := cmd.Flags().GetString("account"); name != "" {
		return name, nil
	}
	if a.cfg.DefaultAccount != "" {
		return a.cfg.DefaultAccount, nil
	}
	names := a.accounts.Names()
	if len(names) == 1 {
		return names[0], nil
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no accounts configured; run 'tm accounts add'")
	}
	return "", fmt.Errorf("multiple accounts configured; pick one with --account")
}

// tasklistFor returns the remote task list bound to an account.
func tasklistFor(accts *config.Accounts, account string) string {
	if acct, ok := accts.Accounts[account]; ok && acct.Tasklist != "" {
		return acct.Tasklist
	}
	return "@default"
}

// boundListClient pins a remote client to one task list, ignoring the
// list the caller names.
type boundListClient struct {
	remote.Client
	tasklist string
}

func (b boundListClient) Create(ctx context.Context, _ string, t *task.Task) (string, error) {
	return b.Client.Create(ctx, b.tasklist, t)
}

func (b boundListClient) Get(ctx context.Context, _ string, remoteID string) (*task.Task, error) {
	return b.Client.Get(ctx, b.tasklist, remoteID)
}

func (b boundListClient) Update(ctx context.Context, _ string, remoteID string, t *task.Task) error {
	return b.Client.Update(ctx, b.tasklist, remoteID, t)
}

func (b boundListClient) Delete(ctx context.Context, _ string, remoteID string) error {
	return b.Client.Delete(ctx, b.tasklist, remoteID)
}

func (b boundListClient) List(ctx context.Context, _ string) ([]*task.Task, error) {
	return b.Client.List(ctx, b.tasklist)
}
