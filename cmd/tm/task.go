package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/taskmirror/taskmirror/internal/store"
	"github.com/taskmirror/taskmirror/internal/task"
)

var addCmd = &cobra.Command{
	Use:     "add <title>",
	GroupID: "tasks",
	Short:   "Add a task",
	Long: `Add a task to the local store and push it to the remote account.

The title may carry bracket tags ([errands], [work:planning]) which
become searchable with 'tm list --tag'. Due dates accept natural
language:

  tm add "buy milk [errands]" --due tomorrow
  tm add "quarterly review" --due "next friday at 3pm" --priority 1
  tm add "renew passport" --due 2026-09-15

If the remote push fails the task is kept locally and retried on the
next sync.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.account(cmd)
		if err != nil {
			return err
		}

		t := &task.Task{
			ID:         task.NewLocalID(),
			Title:      strings.Join(args, " "),
			Status:     task.StatusPending,
			Account:    account,
			TasklistID: tasklistFor(a.accounts, account),
		}
		t.Notes, _ = cmd.Flags().GetString("notes")
		t.Priority, _ = cmd.Flags().GetInt("priority")

		if dueText, _ := cmd.Flags().GetString("due"); dueText != "" {
			due, err := parseDue(dueText)
			if err != nil {
				return err
			}
			t.Due = &due
		}

		if err := a.store.CreateTask(ctx, t); err != nil {
			return err
		}
		fmt.Printf("Added %s\n", a.styles.Title.Render(t.Title))

		a.autoSave(ctx, account, t.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "tasks",
	Short:   "List tasks",
	Long: `List tasks, most urgent first.

  tm list                   # pending tasks for the default account
  tm list --all             # include completed tasks
  tm list --tag errands     # only tasks tagged [errands]
  tm list --due-before "next monday"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		f := store.Filter{}
		f.Account, _ = cmd.Flags().GetString("account")
		f.Tag, _ = cmd.Flags().GetString("tag")

		if all, _ := cmd.Flags().GetBool("all"); !all {
			f.Status = task.StatusPending
		}
		if dueText, _ := cmd.Flags().GetString("due-before"); dueText != "" {
			due, err := parseDue(dueText)
			if err != nil {
				return err
			}
			f.DueBefore = &due
		}

		tasks, err := a.store.ListTasks(ctx, f)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println(a.styles.Dim.Render("No tasks."))
			return nil
		}
		for _, t := range tasks {
			fmt.Println(a.styles.RenderTaskLine(t))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "tasks",
	Short:   "Show a task in full",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := resolveTask(ctx, a, args[0])
		if err != nil {
			return err
		}

		state := "never synced"
		if m, err := a.store.GetMeta(ctx, t.ID.Value); err == nil && m != nil {
			state = string(m.State)
		}

		fmt.Println(a.styles.RenderTaskDetail(t, state))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "tasks",
	Short:   "Update a task's fields",
	Long: `Update a task and propagate the change.

  tm update 3f2a --title "buy oat milk"
  tm update 3f2a --due "next tuesday" --priority 2
  tm update 3f2a --clear-due`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := resolveTask(ctx, a, args[0])
		if err != nil {
			return err
		}

		if v, _ := cmd.Flags().GetString("title"); v != "" {
			t.Title = v
		}
		if cmd.Flags().Changed("notes") {
			t.Notes, _ = cmd.Flags().GetString("notes")
		}
		if cmd.Flags().Changed("priority") {
			t.Priority, _ = cmd.Flags().GetInt("priority")
		}
		if v, _ := cmd.Flags().GetString("due"); v != "" {
			due, err := parseDue(v)
			if err != nil {
				return err
			}
			t.Due = &due
		}
		if clear, _ := cmd.Flags().GetBool("clear-due"); clear {
			t.Due = nil
		}

		if err := a.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		fmt.Printf("Updated %s\n", a.styles.Title.Render(t.Title))

		a.autoSave(ctx, t.Account, t.ID)
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	GroupID: "tasks",
	Short:   "Mark a task completed",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := resolveTask(ctx, a, args[0])
		if err != nil {
			return err
		}

		now := time.Now()
		t.Status = task.StatusCompleted
		t.CompletedAt = &now
		if err := a.store.UpdateTask(ctx, t); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", a.styles.Success.Render("✓"), a.styles.Done.Render(t.Title))

		a.autoSave(ctx, t.Account, t.ID)
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm <id>",
	GroupID: "tasks",
	Short:   "Delete a task",
	Long: `Delete a task locally and propagate the deletion to the remote
account. The record is kept as a tombstone until the remote copy is
confirmed gone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := resolveTask(ctx, a, args[0])
		if err != nil {
			return err
		}

		if err := a.store.MarkDeleted(ctx, t.ID.Value); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", t.Title)

		a.autoSave(ctx, t.Account, t.ID)
		return nil
	},
}

var purgeCmd = &cobra.Command{
	Use:     "purge <id>",
	GroupID: "advanced",
	Short:   "Remove a task record without telling the remote",
	Long: `Remove a task and its sync metadata from the local store only.

Unlike 'tm rm' this never contacts the remote service: if the task still
exists remotely it will come back on the next sync. Useful for clearing
records that belong to an account you no longer sync.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		t, err := resolveTask(ctx, a, args[0])
		if err != nil {
			return err
		}

		if err := a.store.PurgeTask(ctx, t.ID.Value); err != nil {
			return err
		}
		if err := a.store.DeleteMeta(ctx, t.ID.Value); err != nil {
			return err
		}
		fmt.Printf("Purged %s\n", t.Title)
		return nil
	},
}

// autoSave propagates one task right after a local mutation. A remote
// failure is a warning, never an error: the change is already safe
// locally and the next sync retries it.
func (a *app) autoSave(ctx context.Context, account string, id task.ID) {
	if !a.cfg.Sync.AutoSave {
		return
	}
	if err := a.engine.PropagateSingle(ctx, account, id); err != nil {
		fmt.Fprintf(os.Stderr, "%s saved locally; remote sync failed, will retry on next sync (%v)\n",
			a.styles.Warning.Render("⚠"), err)
	}
}

// resolveTask finds a task by full identifier or unique prefix.
func resolveTask(ctx context.Context, a *app, ref string) (*task.Task, error) {
	if t, err := a.store.GetTask(ctx, ref); err == nil {
		return t, nil
	}

	tasks, err := a.store.ListTasks(ctx, store.Filter{IncludeDeleted: true})
	if err != nil {
		return nil, err
	}
	var match *task.Task
	for _, t := range tasks {
		if strings.HasPrefix(t.ID.Value, ref) {
			if match != nil {
				return nil, fmt.Errorf("identifier %q is ambiguous", ref)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no task matches %q", ref)
	}
	return match, nil
}

// parseDue turns natural language or a literal date into a timestamp.
func parseDue(text string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04", time.RFC3339} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand due date %q", text)
	}
	return r.Time, nil
}

func init() {
	addCmd.Flags().StringP("notes", "n", "", "Task notes")
	addCmd.Flags().StringP("due", "d", "", "Due date (natural language or YYYY-MM-DD)")
	addCmd.Flags().IntP("priority", "p", 2, "Priority 0-4 (0 = urgent, 4 = someday)")

	listCmd.Flags().Bool("all", false, "Include completed tasks")
	listCmd.Flags().StringP("tag", "t", "", "Only tasks with this bracket tag")
	listCmd.Flags().String("due-before", "", "Only tasks due before this date")

	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("notes", "n", "", "New notes")
	updateCmd.Flags().StringP("due", "d", "", "New due date")
	updateCmd.Flags().Bool("clear-due", false, "Remove the due date")
	updateCmd.Flags().IntP("priority", "p", 2, "New priority 0-4 (0 = urgent, 4 = someday)")

	rootCmd.AddCommand(addCmd, listCmd, showCmd, updateCmd, doneCmd, rmCmd, purgeCmd)
}
