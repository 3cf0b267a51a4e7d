package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/bobstanton/vaultquery/internal/ui"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Task shortcuts over the relational index",
}

var (
	taskFile     string
	taskDue      string
	taskPriority string
	taskLineNo   int
)

var taskAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task to a document",
	Long: `Insert a new task row and append the matching checkbox line to the
document. Due dates accept natural language ("friday", "in 2 weeks") as well
as YYYY-MM-DD.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		due := ""
		if taskDue != "" {
			d, err := parseNaturalDate(taskDue)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			due = d
		}

		e := mustEnv()
		defer e.close()
		ctx := context.Background()

		p, err := e.previews.Preview(ctx,
			`INSERT INTO tasks (path, text, due_date, priority, created_date) VALUES (?, ?, ?, ?, ?)`,
			taskFile, args[0], due, taskPriority, time.Now().Format("2006-01-02"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		res, err := e.syncer.Apply(ctx, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		finishTaskCommand(e, ctx, res.AffectedPaths, res.Warnings, fmt.Sprintf("Added task to %s", taskFile))
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done",
	Short: "Mark a task as completed",
	Run: func(cmd *cobra.Command, args []string) {
		if taskLineNo <= 0 {
			fmt.Fprintf(os.Stderr, "Error: --line is required\n")
			os.Exit(1)
		}

		e := mustEnv()
		defer e.close()
		ctx := context.Background()

		p, err := e.previews.Preview(ctx,
			`UPDATE tasks SET checked = 1, status = 'x', done_date = ? WHERE path = ? AND line_number = ?`,
			time.Now().Format("2006-01-02"), taskFile, taskLineNo)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if affectedCount(p) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no task at %s:%d\n", taskFile, taskLineNo)
			os.Exit(1)
		}

		res, err := e.syncer.Apply(ctx, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		finishTaskCommand(e, ctx, res.AffectedPaths, res.Warnings, fmt.Sprintf("Completed task at %s:%d", taskFile, taskLineNo))
	},
}

func finishTaskCommand(e *env, ctx context.Context, paths, warnings []string, message string) {
	for _, path := range paths {
		if err := e.idx.SyncPath(ctx, path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to re-index %s: %v\n", path, err)
		}
	}
	fmt.Printf("%s %s\n", ui.RenderPass("✓"), message)
	for _, w := range warnings {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), w)
	}
}

// parseNaturalDate accepts either an explicit YYYY-MM-DD date or natural
// language resolved against the current time.
func parseNaturalDate(s string) (string, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Format("2006-01-02"), nil
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("cannot interpret %q as a date", s)
	}
	return r.Time.Format("2006-01-02"), nil
}

func init() {
	taskAddCmd.Flags().StringVarP(&taskFile, "file", "f", "", "document to add the task to (required)")
	taskAddCmd.Flags().StringVar(&taskDue, "due", "", "due date (natural language or YYYY-MM-DD)")
	taskAddCmd.Flags().StringVar(&taskPriority, "priority", "normal", "priority: lowest, low, normal, medium, high, highest")
	_ = taskAddCmd.MarkFlagRequired("file")

	taskDoneCmd.Flags().StringVarP(&taskFile, "file", "f", "", "document containing the task (required)")
	taskDoneCmd.Flags().IntVar(&taskLineNo, "line", 0, "line number of the task (required)")
	_ = taskDoneCmd.MarkFlagRequired("file")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskDoneCmd)
}
