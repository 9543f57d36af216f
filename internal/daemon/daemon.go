// Package daemon provides the background sync daemon.
//
// The daemon:
// 1. Runs a batch sync for every configured account on an interval
// 2. Watches the task database for writes from other processes and
//    triggers an extra sync pass, debounced so bursts coalesce
// 3. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/natefinch/lumberjack.v2"

	enginesync "github.com/taskmirror/taskmirror/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run a full batch sync.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a database write
	// before triggering an extra sync. Batches rapid updates together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 2 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// NewLogger builds a daemon logger backed by a size-rotated log file.
func NewLogger(path string) *log.Logger {
	return log.New(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "[daemon] ", log.LstdFlags)
}

// Daemon runs batch syncs on a schedule and in response to local
// database writes.
type Daemon struct {
	engine   *enginesync.Engine
	dbPath   string
	accounts []string
	config   *Config

	watcher *fsnotify.Watcher

	dirty   bool
	dirtyAt time.Time
	dirtyMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon that syncs the given accounts against the task
// database at dbPath.
func New(engine *enginesync.Engine, dbPath string, accounts []string, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("at least one account is required")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:   engine,
		dbPath:   dbPath,
		accounts: accounts,
		config:   config,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Run an initial batch sync for every account
// 2. Watch the database directory for external writes
// 3. Run batch syncs on the configured interval
//
// This blocks until ctx is cancelled or startup fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.syncAll(); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	// Watch the directory, not the file: SQLite renames the WAL and
	// journal around, and fsnotify drops watches on renamed files.
	if err := d.watcher.Add(filepath.Dir(d.dbPath)); err != nil {
		return fmt.Errorf("failed to watch database directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", filepath.Dir(d.dbPath))

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processDirty()
	go d.periodicSync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// syncAll runs one batch sync across all accounts.
func (d *Daemon) syncAll() error {
	summaries, err := d.engine.RunBatchSyncAll(d.ctx, d.accounts)
	for account, sum := range summaries {
		if len(sum.Errors) > 0 {
			d.config.Logger.Printf("Warning: %d tasks failed to sync for %s", len(sum.Errors), account)
		}
	}
	return err
}

// watchFileEvents monitors filesystem events and flags the database
// dirty.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	base := filepath.Base(d.dbPath)

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// Only the database and its WAL matter.
			name := filepath.Base(event.Name)
			if name != base && name != base+"-wal" {
				continue
			}

			d.markDirty()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) markDirty() {
	d.dirtyMu.Lock()
	defer d.dirtyMu.Unlock()
	d.dirty = true
	d.dirtyAt = time.Now()
}

// processDirty triggers a sync once the database has been quiet for a
// debounce interval. The engine's own writes re-flag the database, so
// a just-finished sync clears the flag before checking it.
func (d *Daemon) processDirty() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.dirtyMu.Lock()
			ready := d.dirty && time.Since(d.dirtyAt) >= d.config.DebounceInterval
			if ready {
				d.dirty = false
			}
			d.dirtyMu.Unlock()

			if !ready {
				continue
			}

			d.config.Logger.Println("Database changed, syncing")
			if err := d.syncAll(); err != nil {
				d.config.Logger.Printf("Error syncing after change: %v", err)
			}

			// Drop the dirt our own sync kicked up.
			d.dirtyMu.Lock()
			d.dirty = false
			d.dirtyMu.Unlock()
		}
	}
}

// periodicSync runs batch syncs on the configured interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.config.Logger.Println("Periodic sync")
			if err := d.syncAll(); err != nil {
				d.config.Logger.Printf("Error in periodic sync: %v", err)
			}
		}
	}
}
