package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskmirror/taskmirror/internal/task"
)

func testClient(t *testing.T, handler http.Handler) *GoogleClient {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts := &Options{
		BaseURL:      srv.URL,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
	return NewGoogleClient(srv.Client(), opts, log.New(io.Discard, "", 0))
}

func TestCreate(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/lists/@default/tasks" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var gt googleTask
		if err := json.NewDecoder(r.Body).Decode(&gt); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if gt.Title != "Buy milk" || gt.Status != "needsAction" {
			t.Errorf("unexpected payload: %+v", gt)
		}
		gt.ID = "gt-99"
		json.NewEncoder(w).Encode(gt)
	}))

	tk := &task.Task{Title: "Buy milk", Status: task.StatusPending}
	id, err := c.Create(context.Background(), "@default", tk)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "gt-99" {
		t.Errorf("id = %q, want gt-99", id)
	}
}

func TestListDrainsPagination(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("pageToken") {
		case "":
			json.NewEncoder(w).Encode(googleTaskList{
				Items: []googleTask{
					{ID: "gt-1", Title: "One", Status: "needsAction", Updated: "2026-05-01T10:00:00Z"},
					{ID: "gt-2", Title: "Two", Status: "completed", Updated: "2026-05-01T11:00:00Z"},
				},
				NextPageToken: "page2",
			})
		case "page2":
			json.NewEncoder(w).Encode(googleTaskList{
				Items: []googleTask{
					{ID: "gt-3", Title: "Three", Deleted: true, Updated: "2026-05-01T12:00:00Z"},
					{Title: "no id, must be skipped"},
				},
			})
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))

	tasks, err := c.List(context.Background(), "@default")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks across pages, got %d", len(tasks))
	}
	if tasks[1].Status != task.StatusCompleted {
		t.Errorf("status mapping: got %s, want completed", tasks[1].Status)
	}
	if tasks[2].Status != task.StatusDeleted {
		t.Errorf("deleted flag mapping: got %s, want deleted", tasks[2].Status)
	}
	if tasks[0].ModifiedAt.IsZero() {
		t.Error("updated stamp must map to ModifiedAt")
	}
	if !tasks[0].ID.IsRemote() {
		t.Error("listed tasks must carry remote identifiers")
	}
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(googleTask{ID: "gt-1", Title: "One", Updated: "2026-05-01T10:00:00Z"})
	}))

	got, err := c.Get(context.Background(), "@default", "gt-1")
	if err != nil {
		t.Fatalf("Get failed after retries: %v", err)
	}
	if got.Title != "One" {
		t.Errorf("unexpected task: %+v", got)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetriesExhausted(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := c.Get(context.Background(), "@default", "gt-1")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestNotFoundIsTerminal(t *testing.T) {
	attempts := 0
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.NotFound(w, r)
	}))

	_, err := c.Get(context.Background(), "@default", "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("404 must not be retried, got %d attempts", attempts)
	}
}

func TestUnauthorized(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))

	_, err := c.List(context.Background(), "@default")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestDeleteAndUpdatePaths(t *testing.T) {
	var seen []string
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, fmt.Sprintf("%s %s", r.Method, r.URL.Path))
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx := context.Background()
	if err := c.Delete(ctx, "@default", "gt-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	tk := &task.Task{Title: "Edited", Status: task.StatusPending}
	if err := c.Update(ctx, "@default", "gt-1", tk); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	want := []string{
		"DELETE /lists/@default/tasks/gt-1",
		"PATCH /lists/@default/tasks/gt-1",
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, seen[i], want[i])
		}
	}
}
