package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/sync"
	"github.com/taskmirror/taskmirror/internal/task"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: testLogger()})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}

	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: testLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Registration races the broadcast; wait for the server to see us.
	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if server.ClientCount() != 1 {
		t.Fatalf("Expected 1 client, got %d", server.ClientCount())
	}

	data, _ := json.Marshal(TaskUpdateData{TaskID: "gt-1", Account: "work", Action: "pushed"})
	server.Broadcast(Message{Type: MessageTypeTaskUpdate, Data: data})

	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeTaskUpdate {
		t.Errorf("Expected type %s, got %s", MessageTypeTaskUpdate, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Expected server to stamp the message")
	}

	var update TaskUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal task data: %v", err)
	}
	if update.TaskID != "gt-1" || update.Action != "pushed" {
		t.Errorf("Unexpected payload: %+v", update)
	}
}

func TestHandlerFormatsEngineEvents(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()
	if err := s.InitSchema(ctx); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	server := NewServer(&Config{Port: 0, Logger: testLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer server.Stop()

	wsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(wsCtx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	handler := NewHandler(server, s, testLogger())

	tk := &task.Task{
		ID:      task.RemoteID("gt-7"),
		Title:   "water plants",
		Status:  task.StatusPending,
		Account: "home",
	}
	if err := s.CreateTask(ctx, tk); err != nil {
		t.Fatalf("create task: %v", err)
	}

	handler.TaskSynced("home", tk, sync.OutcomePull)
	handler.SyncCompleted(&sync.Summary{Account: "home", Pulled: 1})

	// Expect task_update, sync_complete, then stats.
	wantTypes := []MessageType{MessageTypeTaskUpdate, MessageTypeSyncComplete, MessageTypeStats}
	for _, want := range wantTypes {
		_, raw, err := conn.Read(wsCtx)
		if err != nil {
			t.Fatalf("Failed to read %s message: %v", want, err)
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if msg.Type != want {
			t.Fatalf("Expected %s, got %s", want, msg.Type)
		}

		switch msg.Type {
		case MessageTypeTaskUpdate:
			var update TaskUpdateData
			if err := json.Unmarshal(msg.Data, &update); err != nil {
				t.Fatalf("Failed to unmarshal task data: %v", err)
			}
			if update.Action != "pulled" || update.Account != "home" {
				t.Errorf("Unexpected task update: %+v", update)
			}
		case MessageTypeStats:
			var stats StatsData
			if err := json.Unmarshal(msg.Data, &stats); err != nil {
				t.Fatalf("Failed to unmarshal stats: %v", err)
			}
			if stats.Total != 1 || stats.ByAccount["home"] != 1 {
				t.Errorf("Unexpected stats: %+v", stats)
			}
			// The task has no metadata row yet, so it counts as pending.
			if stats.Pending != 1 {
				t.Errorf("Expected 1 pending, got %d", stats.Pending)
			}
		}
	}
}
