// Package report generates task status reports: a plain-text summary
// suitable for email, and a YAML export of the full task set.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/task"
)

const textTemplate = `Task report for {{.GeneratedAt.Format "2006-01-02"}}

{{range .Accounts}}{{.Name}}: {{.Pending}} pending, {{.Completed}} completed{{if .Overdue}}, {{.Overdue}} OVERDUE{{end}}
{{range .OverdueTasks}}  ! {{.Title}} (due {{.Due.Format "Jan 2"}})
{{end}}{{range .DueSoon}}  - {{.Title}} (due {{.Due.Format "Jan 2"}})
{{end}}
{{end}}`

var reportTmpl = template.Must(template.New("report").Parse(textTemplate))

// AccountSection is one account's slice of the report.
type AccountSection struct {
	Name         string
	Pending      int
	Completed    int
	Overdue      int
	OverdueTasks []*task.Task
	DueSoon      []*task.Task
}

// Report is a generated status report.
type Report struct {
	GeneratedAt time.Time
	Accounts    []*AccountSection
}

// Generator builds reports from the task store.
type Generator struct {
	store *store.Store
	now   func() time.Time
}

func NewGenerator(st *store.Store) *Generator {
	return &Generator{store: st, now: time.Now}
}

// SetClock overrides the time source for tests.
func (g *Generator) SetClock(now func() time.Time) { g.now = now }

// Generate builds a report covering the given accounts. An empty list
// covers every account found in the store.
func (g *Generator) Generate(ctx context.Context, accounts []string) (*Report, error) {
	tasks, err := g.store.ListTasks(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	wanted := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		wanted[a] = true
	}

	now := g.now()
	soon := now.Add(7 * 24 * time.Hour)

	sections := make(map[string]*AccountSection)
	for _, t := range tasks {
		if len(wanted) > 0 && !wanted[t.Account] {
			continue
		}
		sec := sections[t.Account]
		if sec == nil {
			sec = &AccountSection{Name: t.Account}
			sections[t.Account] = sec
		}

		switch t.Status {
		case task.StatusCompleted:
			sec.Completed++
		case task.StatusPending:
			sec.Pending++
			if t.Due != nil {
				if t.Due.Before(now) {
					sec.Overdue++
					sec.OverdueTasks = append(sec.OverdueTasks, t)
				} else if t.Due.Before(soon) {
					sec.DueSoon = append(sec.DueSoon, t)
				}
			}
		}
	}

	rep := &Report{GeneratedAt: now}
	for _, name := range sortedKeys(sections) {
		sec := sections[name]
		sortByDue(sec.OverdueTasks)
		sortByDue(sec.DueSoon)
		rep.Accounts = append(rep.Accounts, sec)
	}
	return rep, nil
}

// Text renders the report as plain text.
func (r *Report) Text() (string, error) {
	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// exportTask is the serialized shape of one exported task.
type exportTask struct {
	ID        string     `yaml:"id" json:"id"`
	Namespace string     `yaml:"namespace" json:"namespace"`
	Account   string     `yaml:"account" json:"account"`
	Title     string     `yaml:"title" json:"title"`
	Notes     string     `yaml:"notes,omitempty" json:"notes,omitempty"`
	Status    string     `yaml:"status" json:"status"`
	Priority  int        `yaml:"priority,omitempty" json:"priority,omitempty"`
	Due       *time.Time `yaml:"due,omitempty" json:"due,omitempty"`
	Tags      []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Modified  time.Time  `yaml:"modified" json:"modified"`
}

func (g *Generator) exportTasks(ctx context.Context, account string) ([]exportTask, error) {
	tasks, err := g.store.ListTasks(ctx, store.Filter{Account: account})
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	out := make([]exportTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, exportTask{
			ID:        t.ID.Value,
			Namespace: string(t.ID.Namespace),
			Account:   t.Account,
			Title:     t.Title,
			Notes:     t.Notes,
			Status:    string(t.Status),
			Priority:  t.Priority,
			Due:       t.Due,
			Tags:      t.Tags(),
			Modified:  t.ModifiedAt,
		})
	}
	return out, nil
}

// ExportYAML serializes every non-deleted task as YAML.
func (g *Generator) ExportYAML(ctx context.Context, account string) ([]byte, error) {
	out, err := g.exportTasks(ctx, account)
	if err != nil {
		return nil, err
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tasks: %w", err)
	}
	return data, nil
}

// ExportJSON serializes every non-deleted task as indented JSON.
func (g *Generator) ExportJSON(ctx context.Context, account string) ([]byte, error) {
	out, err := g.exportTasks(ctx, account)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tasks: %w", err)
	}
	return append(data, '\n'), nil
}

// Mailer delivers reports over SMTP.
type Mailer struct {
	// Addr is the relay in host:port form.
	Addr string
	From string
	To   string
}

// Send emails the rendered report.
func (m *Mailer) Send(r *Report) error {
	body, err := r.Text()
	if err != nil {
		return err
	}

	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + m.To,
		"Subject: Task report " + r.GeneratedAt.Format("2006-01-02"),
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(m.Addr, nil, m.From, []string{m.To}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send report: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]*AccountSection) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortByDue(tasks []*task.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Due.Before(*tasks[j].Due)
	})
}
