package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/sync"
	"github.com/taskmirror/taskmirror/internal/task"
)

// Handler bridges sync engine events onto the WebSocket server. It
// implements the engine's observer interface, so installing it on an
// engine streams every sync action to connected clients.
type Handler struct {
	server *Server
	store  *store.Store
	logger *log.Logger
}

// NewHandler creates an event handler connected to a dashboard server.
// The store is consulted to rebuild statistics after each batch run.
func NewHandler(server *Server, st *store.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		store:  st,
		logger: logger,
	}
}

// TaskSynced handles a single task reaching the remote or local side.
func (h *Handler) TaskSynced(account string, t *task.Task, outcome sync.Outcome) {
	action := "pushed"
	switch outcome {
	case sync.OutcomePull:
		action = "pulled"
	case sync.OutcomeDeleteLocal, sync.OutcomeDeleteRemote:
		action = "deleted"
	}

	data := TaskUpdateData{
		TaskID:   t.ID.Value,
		Account:  account,
		Action:   action,
		Status:   string(t.Status),
		Title:    t.Title,
		Priority: t.Priority,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal task data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeTaskUpdate,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// SyncCompleted handles a batch run finishing for one account.
func (h *Handler) SyncCompleted(summary *sync.Summary) {
	h.logger.Printf("Sync complete for %s: pushed=%d pulled=%d deleted=%d in %v",
		summary.Account, summary.Pushed, summary.Pulled, summary.Deleted, summary.Duration)

	data := SyncCompleteData{
		Account:           summary.Account,
		Pushed:            summary.Pushed,
		Pulled:            summary.Pulled,
		Deleted:           summary.Deleted,
		Unchanged:         summary.Unchanged,
		ConflictsResolved: summary.ConflictsResolved,
		Errors:            len(summary.Errors),
		Duration:          summary.Duration,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal sync data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeSyncComplete,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	h.BroadcastStats(context.Background())
}

// BroadcastStats recomputes task statistics from the store and sends
// them to all clients.
func (h *Handler) BroadcastStats(ctx context.Context) {
	stats, err := h.computeStats(ctx)
	if err != nil {
		h.logger.Printf("Failed to compute stats: %v", err)
		return
	}

	dataJSON, err := json.Marshal(stats)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

func (h *Handler) computeStats(ctx context.Context) (*StatsData, error) {
	tasks, err := h.store.ListTasks(ctx, store.Filter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}

	stats := &StatsData{
		ByStatus:  make(map[string]int),
		ByAccount: make(map[string]int),
	}
	for _, t := range tasks {
		stats.Total++
		stats.ByStatus[string(t.Status)]++
		stats.ByAccount[t.Account]++

		m, err := h.store.GetMeta(ctx, t.ID.Value)
		if err != nil {
			return nil, err
		}
		if m == nil || m.State != store.SyncStateSynced {
			stats.Pending++
		}
	}
	return stats, nil
}
