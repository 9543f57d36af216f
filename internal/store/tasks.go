package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskmirror/taskmirror/internal/task"
)

// Filter configures ListTasks. Zero values mean "no constraint".
type Filter struct {
	Account        string
	Status         task.Status
	Tag            string
	DueBefore      *time.Time
	IncludeDeleted bool
	Limit          int
}

// CreateTask inserts a new task. created_at and modified_at are stamped
// by the store unless already set (remote pulls carry their own stamps).
func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.ModifiedAt.IsZero() {
		t.ModifiedAt = s.now()
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	INSERT INTO tasks (
		id, id_namespace, account, tasklist_id, title, notes, status,
		priority, due, created_at, modified_at, completed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		t.ID.Value,
		string(t.ID.Namespace),
		t.Account,
		t.TasklistID,
		t.Title,
		t.Notes,
		string(t.Status),
		t.Priority,
		timeToNullString(t.Due),
		t.CreatedAt.UTC().Format(time.RFC3339Nano),
		t.ModifiedAt.UTC().Format(time.RFC3339Nano),
		timeToNullString(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
	}

	return s.replaceTags(ctx, t)
}

// GetTask retrieves a task by its current identifier.
// Returns ErrNotFound if absent.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, id_namespace, account, tasklist_id, title, notes, status,
	       priority, due, created_at, modified_at, completed_at
	FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// UpdateTask persists the mutable fields of an existing task and stamps
// modified_at. The identifier and created_at never change here; identity
// rewrites go through RewriteTaskID.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	t.ModifiedAt = s.now()
	if err := s.writeTask(ctx, t); err != nil {
		return err
	}
	return s.markDirty(ctx, t.ID.Value)
}

// PutTask persists a task snapshot exactly as given, without touching
// modified_at. The sync engine uses this when applying remote snapshots,
// whose stamps must survive the write or every pull would look like a
// fresh local edit.
func (s *Store) PutTask(ctx context.Context, t *task.Task) error {
	return s.writeTask(ctx, t)
}

func (s *Store) writeTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	res, err := s.conn.ExecContext(ctx, `
	UPDATE tasks SET
		tasklist_id = ?, title = ?, notes = ?, status = ?, priority = ?,
		due = ?, modified_at = ?, completed_at = ?
	WHERE id = ?
	`,
		t.TasklistID,
		t.Title,
		t.Notes,
		string(t.Status),
		t.Priority,
		timeToNullString(t.Due),
		t.ModifiedAt.UTC().Format(time.RFC3339Nano),
		timeToNullString(t.CompletedAt),
		t.ID.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return s.replaceTags(ctx, t)
}

// MarkDeleted soft-deletes a task: the record stays until remote
// deletion is confirmed, so a later batch run can propagate it.
func (s *Store) MarkDeleted(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE tasks SET status = ?, modified_at = ? WHERE id = ?`,
		string(task.StatusDeleted),
		s.now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task %s deleted: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return s.markDirty(ctx, id)
}

// PurgeTask removes a task record and its tags for good. Idempotent.
func (s *Store) PurgeTask(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to purge task %s: %w", id, err)
	}
	return nil
}

// ListTasks retrieves tasks matching the filter, ordered by priority
// then modification time (most recent first).
func (s *Store) ListTasks(ctx context.Context, f Filter) ([]*task.Task, error) {
	var conditions []string
	var args []any

	if f.Account != "" {
		conditions = append(conditions, "t.account = ?")
		args = append(args, f.Account)
	}
	if f.Status != "" {
		conditions = append(conditions, "t.status = ?")
		args = append(args, string(f.Status))
	} else if !f.IncludeDeleted {
		conditions = append(conditions, "t.status != ?")
		args = append(args, string(task.StatusDeleted))
	}
	if f.DueBefore != nil {
		conditions = append(conditions, "t.due IS NOT NULL AND t.due <= ?")
		args = append(args, f.DueBefore.UTC().Format(time.RFC3339Nano))
	}

	query := `
	SELECT ` + selectDistinct(f) + ` t.id, t.id_namespace, t.account, t.tasklist_id,
	       t.title, t.notes, t.status, t.priority, t.due,
	       t.created_at, t.modified_at, t.completed_at
	FROM tasks t
	`
	if f.Tag != "" {
		query += ` JOIN task_tags tt ON tt.task_id = t.id`
		conditions = append(conditions, "tt.tag = ?")
		args = append(args, f.Tag)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY t.priority ASC, t.modified_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// replaceTags re-derives the bracket tag index from the task's notes.
func (s *Store) replaceTags(ctx context.Context, t *task.Task) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, t.ID.Value); err != nil {
		return fmt.Errorf("failed to clear tags for %s: %w", t.ID, err)
	}
	for _, tag := range t.Tags() {
		if _, err := s.conn.ExecContext(ctx,
			`INSERT OR IGNORE INTO task_tags (task_id, tag) VALUES (?, ?)`,
			t.ID.Value, tag,
		); err != nil {
			return fmt.Errorf("failed to index tag %q for %s: %w", tag, t.ID, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var idValue, idNamespace string
	var status string
	var due, completedAt sql.NullString
	var createdAt, modifiedAt string

	err := row.Scan(
		&idValue,
		&idNamespace,
		&t.Account,
		&t.TasklistID,
		&t.Title,
		&t.Notes,
		&status,
		&t.Priority,
		&due,
		&createdAt,
		&modifiedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	id, err := task.ParseID(idValue, idNamespace)
	if err != nil {
		return nil, fmt.Errorf("corrupt task row: %w", err)
	}
	t.ID = id
	t.Status = task.Status(status)

	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, modifiedAt); err == nil {
		t.ModifiedAt = ts
	}
	t.Due = nullStringToTime(due)
	t.CompletedAt = nullStringToTime(completedAt)

	return &t, nil
}

func selectDistinct(f Filter) string {
	if f.Tag != "" {
		return "DISTINCT"
	}
	return ""
}
