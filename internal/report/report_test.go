package report

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/task"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.InitSchema(context.Background()); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func addTask(t *testing.T, s *store.Store, account, title string, status task.Status, due *time.Time) {
	t.Helper()
	tk := &task.Task{
		ID:      task.NewLocalID(),
		Title:   title,
		Status:  status,
		Account: account,
		Due:     due,
	}
	if err := s.CreateTask(context.Background(), tk); err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func TestGenerate(t *testing.T) {
	s := setupStore(t)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	past := now.Add(-48 * time.Hour)
	soon := now.Add(48 * time.Hour)
	far := now.Add(30 * 24 * time.Hour)

	addTask(t, s, "work", "overdue report", task.StatusPending, &past)
	addTask(t, s, "work", "upcoming review", task.StatusPending, &soon)
	addTask(t, s, "work", "someday cleanup", task.StatusPending, &far)
	addTask(t, s, "work", "shipped feature", task.StatusCompleted, nil)
	addTask(t, s, "home", "water plants", task.StatusPending, nil)

	gen := NewGenerator(s)
	gen.SetClock(func() time.Time { return now })

	rep, err := gen.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(rep.Accounts) != 2 {
		t.Fatalf("got %d sections, want 2", len(rep.Accounts))
	}

	// Sections come sorted by account name.
	home, work := rep.Accounts[0], rep.Accounts[1]
	if home.Name != "home" || work.Name != "work" {
		t.Fatalf("section order: %s, %s", home.Name, work.Name)
	}
	if work.Pending != 3 || work.Completed != 1 || work.Overdue != 1 {
		t.Errorf("work section: %+v", work)
	}
	if len(work.DueSoon) != 1 || work.DueSoon[0].Title != "upcoming review" {
		t.Errorf("due soon: %+v", work.DueSoon)
	}
	if home.Pending != 1 || home.Overdue != 0 {
		t.Errorf("home section: %+v", home)
	}

	text, err := rep.Text()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(text, "2025-06-15") {
		t.Error("report missing date")
	}
	if !strings.Contains(text, "overdue report") || !strings.Contains(text, "OVERDUE") {
		t.Errorf("report missing overdue task:\n%s", text)
	}
}

func TestGenerateFiltersAccounts(t *testing.T) {
	s := setupStore(t)
	addTask(t, s, "work", "a", task.StatusPending, nil)
	addTask(t, s, "home", "b", task.StatusPending, nil)

	gen := NewGenerator(s)
	rep, err := gen.Generate(context.Background(), []string{"home"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(rep.Accounts) != 1 || rep.Accounts[0].Name != "home" {
		t.Fatalf("sections: %+v", rep.Accounts)
	}
}

func TestExportYAML(t *testing.T) {
	s := setupStore(t)
	due := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	addTask(t, s, "work", "pack bags [travel]", task.StatusPending, &due)

	gen := NewGenerator(s)
	data, err := gen.ExportYAML(context.Background(), "work")
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	var out []map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		t.Fatalf("exported YAML does not parse: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d tasks, want 1", len(out))
	}
	if out[0]["title"] != "pack bags [travel]" {
		t.Errorf("title = %v", out[0]["title"])
	}
	tags, ok := out[0]["tags"].([]any)
	if !ok || len(tags) != 1 || tags[0] != "travel" {
		t.Errorf("tags = %v", out[0]["tags"])
	}
	if out[0]["namespace"] != "local" {
		t.Errorf("namespace = %v", out[0]["namespace"])
	}
}
