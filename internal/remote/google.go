package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/taskmirror/taskmirror/internal/task"
)

const (
	defaultBaseURL = "https://tasks.googleapis.com/tasks/v1"
	pageSize       = 100

	defaultMaxRetries   = 3
	defaultRetryBackoff = 500 * time.Millisecond
)

// Options tunes the Google Tasks client. The zero value uses defaults.
type Options struct {
	// BaseURL overrides the API endpoint (tests point it at a fake).
	BaseURL string

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int

	// RetryBackoff is the initial delay between retries; it doubles
	// per attempt.
	RetryBackoff time.Duration
}

// GoogleClient talks to the Google Tasks REST API. The HTTP client is
// expected to carry OAuth credentials (see Credentials.HTTPClient).
type GoogleClient struct {
	http    *http.Client
	baseURL string
	retries int
	backoff time.Duration
	logger  *log.Logger
}

// NewGoogleClient creates a Google Tasks client.
// If logger is nil, a default logger writing to stderr is used.
func NewGoogleClient(httpClient *http.Client, opts *Options, logger *log.Logger) *GoogleClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts == nil {
		opts = &Options{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}

	c := &GoogleClient{
		http:    httpClient,
		baseURL: defaultBaseURL,
		retries: defaultMaxRetries,
		backoff: defaultRetryBackoff,
		logger:  logger,
	}
	if opts.BaseURL != "" {
		c.baseURL = opts.BaseURL
	}
	if opts.MaxRetries > 0 {
		c.retries = opts.MaxRetries
	}
	if opts.RetryBackoff > 0 {
		c.backoff = opts.RetryBackoff
	}
	return c
}

// googleTask is the wire representation of a Google Tasks task resource.
type googleTask struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status,omitempty"` // needsAction | completed
	Due       string `json:"due,omitempty"`
	Updated   string `json:"updated,omitempty"`
	Completed string `json:"completed,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

type googleTaskList struct {
	Items         []googleTask `json:"items"`
	NextPageToken string       `json:"nextPageToken"`
}

// Create pushes a new task and returns the remote-issued identifier.
func (c *GoogleClient) Create(ctx context.Context, tasklist string, t *task.Task) (string, error) {
	var created googleTask
	path := fmt.Sprintf("/lists/%s/tasks", url.PathEscape(tasklist))
	if err := c.do(ctx, http.MethodPost, path, toGoogleTask(t), &created); err != nil {
		return "", fmt.Errorf("creating remote task: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("remote create returned no id")
	}
	return created.ID, nil
}

// Get fetches a single task. Returns ErrNotFound if it doesn't exist.
func (c *GoogleClient) Get(ctx context.Context, tasklist, remoteID string) (*task.Task, error) {
	var gt googleTask
	path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(tasklist), url.PathEscape(remoteID))
	if err := c.do(ctx, http.MethodGet, path, nil, &gt); err != nil {
		return nil, fmt.Errorf("fetching remote task %s: %w", remoteID, err)
	}
	t, err := fromGoogleTask(gt, tasklist)
	if err != nil {
		return nil, fmt.Errorf("decoding remote task %s: %w", remoteID, err)
	}
	return t, nil
}

// Update pushes the task's mutable fields to the given remote id.
func (c *GoogleClient) Update(ctx context.Context, tasklist, remoteID string, t *task.Task) error {
	path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(tasklist), url.PathEscape(remoteID))
	if err := c.do(ctx, http.MethodPatch, path, toGoogleTask(t), nil); err != nil {
		return fmt.Errorf("updating remote task %s: %w", remoteID, err)
	}
	return nil
}

// Delete removes the remote task. Deleting an already-deleted task
// returns ErrNotFound, which callers may treat as success.
func (c *GoogleClient) Delete(ctx context.Context, tasklist, remoteID string) error {
	path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(tasklist), url.PathEscape(remoteID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("deleting remote task %s: %w", remoteID, err)
	}
	return nil
}

// List returns every task in the remote list, draining pagination
// before returning. Items without a usable identifier are skipped with
// a warning; they cannot be keyed and the next page may re-deliver them.
func (c *GoogleClient) List(ctx context.Context, tasklist string) ([]*task.Task, error) {
	var tasks []*task.Task
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("maxResults", fmt.Sprintf("%d", pageSize))
		q.Set("showCompleted", "true")
		q.Set("showHidden", "true")
		q.Set("showDeleted", "true")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page googleTaskList
		path := fmt.Sprintf("/lists/%s/tasks?%s", url.PathEscape(tasklist), q.Encode())
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, fmt.Errorf("listing remote tasks: %w", err)
		}

		for _, gt := range page.Items {
			t, err := fromGoogleTask(gt, tasklist)
			if err != nil {
				c.logger.Printf("WARNING: skipping malformed remote item: %v", err)
				continue
			}
			tasks = append(tasks, t)
		}

		if page.NextPageToken == "" {
			return tasks, nil
		}
		pageToken = page.NextPageToken
	}
}

// do performs one API call with bounded retries on transient failures:
// network errors, 429, and 5xx. 4xx responses are terminal.
func (c *GoogleClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	backoff := c.backoff
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Printf("WARNING: %s %s attempt %d: %v", method, path, attempt+1, err)
			continue
		}

		retry, err := c.handleResponse(resp, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
		c.logger.Printf("WARNING: %s %s attempt %d: %v", method, path, attempt+1, err)
	}

	return fmt.Errorf("retries exhausted: %w", lastErr)
}

// handleResponse decodes the body on success and classifies failures.
// The boolean reports whether the failure is retryable.
func (c *GoogleClient) handleResponse(resp *http.Response, out any) (bool, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decoding response: %w", err)
		}
		return false, nil

	case resp.StatusCode == http.StatusNotFound:
		return false, ErrNotFound

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return true, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))

	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
}

// toGoogleTask maps the local model onto the wire format. Priority and
// account have no remote representation and stay local-only.
func toGoogleTask(t *task.Task) googleTask {
	gt := googleTask{
		Title: t.Title,
		Notes: t.Notes,
	}
	switch t.Status {
	case task.StatusCompleted:
		gt.Status = "completed"
		if t.CompletedAt != nil {
			gt.Completed = t.CompletedAt.UTC().Format(time.RFC3339)
		}
	case task.StatusDeleted:
		gt.Status = "needsAction"
		gt.Deleted = true
	default:
		gt.Status = "needsAction"
	}
	if t.Due != nil {
		gt.Due = t.Due.UTC().Format(time.RFC3339)
	}
	return gt
}

// fromGoogleTask maps a wire task into the local model. A missing id is
// an error; a missing or malformed updated stamp yields a zero
// ModifiedAt, which the conflict resolver treats as never-synced.
func fromGoogleTask(gt googleTask, tasklist string) (*task.Task, error) {
	if gt.ID == "" {
		return nil, fmt.Errorf("remote item has no id (title %q)", gt.Title)
	}

	t := &task.Task{
		ID:         task.RemoteID(gt.ID),
		Title:      gt.Title,
		Notes:      gt.Notes,
		Status:     task.StatusPending,
		Priority:   2,
		TasklistID: tasklist,
	}

	switch {
	case gt.Deleted:
		t.Status = task.StatusDeleted
	case gt.Status == "completed":
		t.Status = task.StatusCompleted
	}

	if gt.Updated != "" {
		if ts, err := time.Parse(time.RFC3339, gt.Updated); err == nil {
			t.ModifiedAt = ts
		}
	}
	if gt.Due != "" {
		if ts, err := time.Parse(time.RFC3339, gt.Due); err == nil {
			t.Due = &ts
		}
	}
	if gt.Completed != "" {
		if ts, err := time.Parse(time.RFC3339, gt.Completed); err == nil {
			t.CompletedAt = &ts
		}
	}
	return t, nil
}
