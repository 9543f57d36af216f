// Package ui renders CLI output: styled task lists, task detail views,
// and sync summaries.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/taskmirror/taskmirror/internal/sync"
	"github.com/taskmirror/taskmirror/internal/task"
)

// Theme is the color scheme for CLI output.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

// Default is the active theme.
var Default = Theme{
	Primary: lipgloss.Color("#7aa2f7"),
	Dim:     lipgloss.Color("#565f89"),
	Success: lipgloss.Color("#9ece6a"),
	Warning: lipgloss.Color("#e0af68"),
	Error:   lipgloss.Color("#f7768e"),
}

// Styles holds the pre-computed styles for CLI output.
type Styles struct {
	Title    lipgloss.Style
	Dim      lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Priority lipgloss.Style
	Tag      lipgloss.Style
	Done     lipgloss.Style
}

// NewStyles creates styles from the default theme. When the terminal
// doesn't do color, every style renders as plain text.
func NewStyles() *Styles {
	plain := termenv.DefaultOutput().Profile == termenv.Ascii

	style := func(c lipgloss.Color, bold bool) lipgloss.Style {
		if plain {
			return lipgloss.NewStyle()
		}
		s := lipgloss.NewStyle().Foreground(c)
		if bold {
			s = s.Bold(true)
		}
		return s
	}

	t := Default
	return &Styles{
		Title:    style(t.Primary, true),
		Dim:      style(t.Dim, false),
		Success:  style(t.Success, false),
		Warning:  style(t.Warning, false),
		Error:    style(t.Error, true),
		Priority: style(t.Warning, true),
		Tag:      style(t.Primary, false),
		Done:     style(t.Dim, false).Strikethrough(!plain),
	}
}

// RenderTaskLine formats one task for list output.
func (s *Styles) RenderTaskLine(t *task.Task) string {
	var b strings.Builder

	marker := "[ ]"
	switch t.Status {
	case task.StatusCompleted:
		marker = "[x]"
	case task.StatusDeleted:
		marker = "[-]"
	}
	b.WriteString(s.Dim.Render(marker))
	b.WriteString(" ")

	if t.Priority > 0 {
		b.WriteString(s.Priority.Render(fmt.Sprintf("P%d", t.Priority)))
		b.WriteString(" ")
	}

	title := t.Title
	if t.Status == task.StatusCompleted {
		b.WriteString(s.Done.Render(title))
	} else {
		b.WriteString(title)
	}

	if t.Due != nil {
		due := t.Due.Format("Jan 2")
		if t.Due.Before(time.Now()) && t.Status == task.StatusPending {
			b.WriteString(" " + s.Error.Render("due "+due))
		} else {
			b.WriteString(" " + s.Dim.Render("due "+due))
		}
	}

	for _, tag := range t.Tags() {
		b.WriteString(" " + s.Tag.Render("#"+tag))
	}

	b.WriteString(" " + s.Dim.Render(shortID(t.ID)))
	return b.String()
}

// RenderTaskDetail formats the full view of one task.
func (s *Styles) RenderTaskDetail(t *task.Task, state string) string {
	var b strings.Builder

	b.WriteString(s.Title.Render(t.Title))
	b.WriteString("\n")
	b.WriteString(s.Dim.Render(fmt.Sprintf("id: %s (%s)", t.ID.Value, t.ID.Namespace)))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("status:   %s\n", t.Status))
	if t.Priority > 0 {
		b.WriteString(fmt.Sprintf("priority: %d\n", t.Priority))
	}
	if t.Account != "" {
		b.WriteString(fmt.Sprintf("account:  %s\n", t.Account))
	}
	if t.Due != nil {
		b.WriteString(fmt.Sprintf("due:      %s\n", t.Due.Format("2006-01-02 15:04")))
	}
	if state != "" {
		b.WriteString(fmt.Sprintf("sync:     %s\n", state))
	}
	b.WriteString(s.Dim.Render(fmt.Sprintf("modified: %s", t.ModifiedAt.Format(time.RFC3339))))

	if t.Notes != "" {
		b.WriteString("\n\n")
		b.WriteString(t.Notes)
	}
	return b.String()
}

// RenderSummary formats a batch sync summary.
func (s *Styles) RenderSummary(sum *sync.Summary) string {
	var b strings.Builder

	b.WriteString(s.Title.Render(fmt.Sprintf("Synced %s", sum.Account)))
	b.WriteString(fmt.Sprintf(": %s pushed, %s pulled, %s deleted, %d unchanged",
		s.Success.Render(fmt.Sprintf("%d", sum.Pushed)),
		s.Success.Render(fmt.Sprintf("%d", sum.Pulled)),
		s.Warning.Render(fmt.Sprintf("%d", sum.Deleted)),
		sum.Unchanged))

	if sum.ConflictsResolved > 0 {
		b.WriteString(fmt.Sprintf(", %s", s.Warning.Render(fmt.Sprintf("%d conflicts resolved", sum.ConflictsResolved))))
	}
	if len(sum.Errors) > 0 {
		b.WriteString(fmt.Sprintf(", %s", s.Error.Render(fmt.Sprintf("%d errors", len(sum.Errors)))))
		for _, e := range sum.Errors {
			b.WriteString("\n  " + s.Error.Render(e.Error()))
		}
	}
	return b.String()
}

// shortID abbreviates an identifier for list output.
func shortID(id task.ID) string {
	v := id.Value
	if len(v) > 8 {
		v = v[:8]
	}
	if id.IsLocal() {
		return v + " (local)"
	}
	return v
}
