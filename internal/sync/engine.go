package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskmirror/taskmirror/internal/remote"
	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/task"
)

// Config tunes the engine. Zero values get sensible defaults.
type Config struct {
	// Tasklist is the remote task list identifier to reconcile against.
	Tasklist string

	// PerTaskTimeout bounds the remote calls for one task during a batch
	// run, so one stuck request cannot stall the whole pass.
	PerTaskTimeout time.Duration

	// PropagationTimeout bounds a single-task propagation end to end.
	PropagationTimeout time.Duration
}

const (
	defaultPerTaskTimeout     = 30 * time.Second
	defaultPropagationTimeout = 15 * time.Second
)

// TaskError records a per-task failure during a batch run. The run
// continues past it.
type TaskError struct {
	TaskID string
	Err    error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("task %s: %v", e.TaskID, e.Err)
}

// Summary is the outcome of one batch run for one account.
type Summary struct {
	Account           string
	Pushed            int
	Pulled            int
	Deleted           int
	Unchanged         int
	ConflictsResolved int
	Errors            []TaskError
	Duration          time.Duration
}

// Observer receives engine events. The dashboard bridges these onto its
// websocket broadcast; implementations must not block.
type Observer interface {
	TaskSynced(account string, t *task.Task, outcome Outcome)
	SyncCompleted(summary *Summary)
}

// Engine reconciles the local store with remote task services. All
// operations for one account serialize on a per-account lock; different
// accounts may sync concurrently.
type Engine struct {
	store    *store.Store
	clients  map[string]remote.Client
	cfg      Config
	logger   *log.Logger
	locks    *lockRegistry
	observer Observer
	now      func() time.Time
}

// NewEngine builds an engine over a store and one remote client per
// account name.
func NewEngine(st *store.Store, clients map[string]remote.Client, cfg Config, logger *log.Logger) *Engine {
	if cfg.PerTaskTimeout <= 0 {
		cfg.PerTaskTimeout = defaultPerTaskTimeout
	}
	if cfg.PropagationTimeout <= 0 {
		cfg.PropagationTimeout = defaultPropagationTimeout
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[sync] ", log.LstdFlags)
	}
	return &Engine{
		store:   st,
		clients: clients,
		cfg:     cfg,
		logger:  logger,
		locks:   newLockRegistry(),
		now:     time.Now,
	}
}

// SetObserver installs an event observer. Not safe to call concurrently
// with running syncs.
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// SetClock overrides the engine's time source for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// RunBatchSync reconciles every task for one account against the remote
// service. Individual task failures are recorded in the summary and do
// not abort the run; the run itself fails only when the remote set
// cannot be fetched at all.
func (e *Engine) RunBatchSync(ctx context.Context, account string) (*Summary, error) {
	client, ok := e.clients[account]
	if !ok {
		return nil, fmt.Errorf("no remote client configured for account %q", account)
	}

	lock := e.locks.forAccount(account)
	lock.Lock()
	defer lock.Unlock()

	start := e.now()
	summary := &Summary{Account: account}

	locals, err := e.store.ListTasks(ctx, store.Filter{Account: account, IncludeDeleted: true})
	if err != nil {
		return nil, fmt.Errorf("failed to load local tasks: %w", err)
	}
	remotes, err := client.List(ctx, e.cfg.Tasklist)
	if err != nil {
		return nil, fmt.Errorf("failed to list remote tasks: %w", err)
	}
	metas, err := e.store.AllMeta(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to load sync metadata: %w", err)
	}

	localByID := make(map[string]*task.Task, len(locals))
	for _, t := range locals {
		localByID[t.ID.Value] = t
	}
	remoteByID := make(map[string]*task.Task, len(remotes))
	for _, t := range remotes {
		remoteByID[t.ID.Value] = t
	}

	// Walk every identifier any side knows about: local rows, remote
	// rows, and orphaned metadata (a purged task whose remote tombstone
	// is still pending).
	seen := make(map[string]bool)
	var order []string
	for _, t := range locals {
		if !seen[t.ID.Value] {
			seen[t.ID.Value] = true
			order = append(order, t.ID.Value)
		}
	}
	for _, t := range remotes {
		if !seen[t.ID.Value] {
			seen[t.ID.Value] = true
			order = append(order, t.ID.Value)
		}
	}
	for id := range metas {
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
	}

	for _, id := range order {
		local := localByID[id]
		rem := remoteByID[id]
		meta := metas[id]

		d := Resolve(local, rem, meta)
		if err := e.apply(ctx, client, account, id, d, local, rem, summary); err != nil {
			e.logger.Printf("WARNING: sync of task %s failed: %v", id, err)
			summary.Errors = append(summary.Errors, TaskError{TaskID: id, Err: err})
			e.markPending(ctx, id, account, d)
		}
	}

	summary.Duration = e.now().Sub(start)
	e.logger.Printf("batch sync for %s: pushed=%d pulled=%d deleted=%d unchanged=%d conflicts=%d errors=%d in %s",
		account, summary.Pushed, summary.Pulled, summary.Deleted,
		summary.Unchanged, summary.ConflictsResolved, len(summary.Errors), summary.Duration)

	if e.observer != nil {
		e.observer.SyncCompleted(summary)
	}
	return summary, nil
}

// RunBatchSyncAll syncs every account concurrently and returns the
// per-account summaries. The error is the first account-level failure,
// if any; per-task failures live in the summaries.
func (e *Engine) RunBatchSyncAll(ctx context.Context, accounts []string) (map[string]*Summary, error) {
	summaries := make(map[string]*Summary, len(accounts))
	results := make([]*Summary, len(accounts))

	g, ctx := errgroup.WithContext(ctx)
	for i, account := range accounts {
		g.Go(func() error {
			s, err := e.RunBatchSync(ctx, account)
			if err != nil {
				return fmt.Errorf("account %s: %w", account, err)
			}
			results[i] = s
			return nil
		})
	}
	err := g.Wait()
	for i, account := range accounts {
		if results[i] != nil {
			summaries[account] = results[i]
		}
	}
	return summaries, err
}

// PropagateSingle pushes one task's current state to the remote service
// right after a local mutation. On failure the task is marked
// pending_push; the next batch run retries it.
func (e *Engine) PropagateSingle(ctx context.Context, account string, id task.ID) error {
	client, ok := e.clients[account]
	if !ok {
		return fmt.Errorf("no remote client configured for account %q", account)
	}

	lock := e.locks.forAccount(account)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.PropagationTimeout)
	defer cancel()

	local, err := e.store.GetTask(ctx, id.Value)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load task %s: %w", id, err)
	}
	meta, err := e.store.GetMeta(ctx, id.Value)
	if err != nil {
		return fmt.Errorf("failed to load sync metadata for %s: %w", id, err)
	}

	// Only remote-namespaced ids can have a live remote counterpart; a
	// local id is by definition unknown to the service.
	var rem *task.Task
	if id.IsRemote() {
		rem, err = client.Get(ctx, e.cfg.Tasklist, id.Value)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			e.markPending(ctx, id.Value, account, Decision{Outcome: OutcomePush})
			return fmt.Errorf("failed to fetch remote task %s: %w", id, err)
		}
	}

	summary := &Summary{Account: account}
	d := Resolve(local, rem, meta)
	if err := e.apply(ctx, client, account, id.Value, d, local, rem, summary); err != nil {
		e.markPending(ctx, id.Value, account, d)
		return fmt.Errorf("failed to propagate task %s: %w", id, err)
	}
	return nil
}

// apply executes one decision. Remote calls run under the per-task
// timeout; local writes run under the caller's context.
func (e *Engine) apply(parent context.Context, client remote.Client, account, taskID string, d Decision, local, rem *task.Task, summary *Summary) error {
	ctx, cancel := context.WithTimeout(parent, e.cfg.PerTaskTimeout)
	defer cancel()

	var synced *task.Task
	var err error

	switch d.Outcome {
	case OutcomeNone:
		return nil
	case OutcomeUnchanged:
		summary.Unchanged++
		return nil
	case OutcomePush:
		synced, err = e.push(ctx, client, account, local)
		if err == nil {
			summary.Pushed++
		}
	case OutcomePull:
		synced, err = e.pull(ctx, account, local, rem)
		if err == nil {
			summary.Pulled++
		}
	case OutcomeDeleteRemote:
		err = e.deleteRemote(ctx, client, taskID, local)
		if err == nil {
			summary.Deleted++
		}
	case OutcomeDeleteLocal:
		err = e.deleteLocal(ctx, taskID)
		if err == nil {
			summary.Deleted++
		}
	default:
		err = fmt.Errorf("unexpected outcome %v", d.Outcome)
	}
	if err != nil {
		return err
	}

	if d.Conflict {
		summary.ConflictsResolved++
		e.logger.Printf("resolved conflict on task %s via %s", taskID, d.Outcome)
	}
	if e.observer != nil && synced != nil {
		e.observer.TaskSynced(account, synced, d.Outcome)
	}
	return nil
}

// push writes the local snapshot to the remote service and records the
// server-stamped result. A task still carrying a locally-issued
// identifier is created remotely and then adopts the id the service
// assigned; everything else is an update in place.
func (e *Engine) push(ctx context.Context, client remote.Client, account string, local *task.Task) (*task.Task, error) {
	if local.ID.IsLocal() {
		remoteID, err := client.Create(ctx, e.cfg.Tasklist, local)
		if err != nil {
			return nil, fmt.Errorf("remote create: %w", err)
		}
		fetched, err := client.Get(ctx, e.cfg.Tasklist, remoteID)
		if err != nil {
			// The task exists remotely but we could not observe its
			// stamps. Leave the local id in place; the next batch run
			// sees the remote copy with no metadata and pulls it, and
			// the stale local-id row resolves as a fresh push that the
			// dedup below refuses to duplicate. Safer to report and
			// retry than to guess fingerprints.
			return nil, fmt.Errorf("readback after create: %w", err)
		}

		merged := local.Clone()
		merged.ModifiedAt = fetched.ModifiedAt
		merged.CompletedAt = fetched.CompletedAt
		if err := e.store.PutTask(ctx, merged); err != nil {
			return nil, fmt.Errorf("failed to store pushed snapshot: %w", err)
		}

		merged.ID = task.RemoteID(remoteID)
		if err := adoptRemoteID(ctx, e.store, local.ID, merged, fetched.Fingerprint(), e.now()); err != nil {
			return nil, err
		}
		return merged, nil
	}

	if err := client.Update(ctx, e.cfg.Tasklist, local.ID.Value, local); err != nil {
		return nil, fmt.Errorf("remote update: %w", err)
	}
	fetched, err := client.Get(ctx, e.cfg.Tasklist, local.ID.Value)
	if err != nil {
		return nil, fmt.Errorf("readback after update: %w", err)
	}

	merged := local.Clone()
	merged.ModifiedAt = fetched.ModifiedAt
	merged.CompletedAt = fetched.CompletedAt
	if err := e.store.PutTask(ctx, merged); err != nil {
		return nil, fmt.Errorf("failed to store pushed snapshot: %w", err)
	}

	err = e.store.PutMeta(ctx, &store.SyncMetadata{
		TaskID:            merged.ID.Value,
		Account:           account,
		LocalFingerprint:  merged.Fingerprint(),
		RemoteFingerprint: fetched.Fingerprint(),
		LastSyncedAt:      e.now(),
		State:             store.SyncStateSynced,
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// pull applies the remote snapshot locally. Fields with no remote
// representation (account, task list binding, priority) survive from
// the existing local row.
func (e *Engine) pull(ctx context.Context, account string, local, rem *task.Task) (*task.Task, error) {
	pulled := rem.Clone()
	pulled.Account = account
	pulled.TasklistID = e.cfg.Tasklist
	if local != nil {
		pulled.Priority = local.Priority
		pulled.CreatedAt = local.CreatedAt
	}

	if local == nil {
		if err := e.store.CreateTask(ctx, pulled); err != nil {
			return nil, fmt.Errorf("failed to store pulled task: %w", err)
		}
	} else {
		if err := e.store.PutTask(ctx, pulled); err != nil {
			return nil, fmt.Errorf("failed to store pulled task: %w", err)
		}
	}

	err := e.store.PutMeta(ctx, &store.SyncMetadata{
		TaskID:            pulled.ID.Value,
		Account:           account,
		LocalFingerprint:  pulled.Fingerprint(),
		RemoteFingerprint: rem.Fingerprint(),
		LastSyncedAt:      e.now(),
		State:             store.SyncStateSynced,
	})
	if err != nil {
		return nil, err
	}
	return pulled, nil
}

// deleteRemote propagates a local deletion: remove the remote copy,
// then purge the local record and its metadata. A remote copy already
// gone is fine. local is nil when only a metadata row survived a
// purge; the union id is the remote id in that case.
func (e *Engine) deleteRemote(ctx context.Context, client remote.Client, taskID string, local *task.Task) error {
	if local == nil || local.ID.IsRemote() {
		if err := client.Delete(ctx, e.cfg.Tasklist, taskID); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("remote delete: %w", err)
		}
	}
	if err := e.store.PurgeTask(ctx, taskID); err != nil {
		return err
	}
	return e.store.DeleteMeta(ctx, taskID)
}

// deleteLocal applies a remote deletion, or cleans up a tombstone
// settled on both sides and any metadata left orphaned by a crash.
func (e *Engine) deleteLocal(ctx context.Context, taskID string) error {
	if err := e.store.PurgeTask(ctx, taskID); err != nil {
		return err
	}
	return e.store.DeleteMeta(ctx, taskID)
}

// markPending records that a task still owes the remote side a write,
// so the next batch run picks it up. Best effort; a failure here only
// logs.
func (e *Engine) markPending(ctx context.Context, taskID, account string, d Decision) {
	state := store.SyncStatePendingPush
	if d.Outcome == OutcomePull {
		state = store.SyncStatePendingPull
	}
	if d.Conflict {
		state = store.SyncStateConflict
	}
	if err := e.store.MarkSyncState(ctx, taskID, account, state); err != nil {
		e.logger.Printf("WARNING: failed to mark task %s %s: %v", taskID, state, err)
	}
}
