package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/notify"
	"github.com/roach88/noticeboard/internal/store"
)

// todoView is the printable form of a TODO task.
type todoView struct {
	ID          string    `json:"id"`
	Category    string    `json:"category,omitempty"`
	Description string    `json:"description"`
	ParentID    string    `json:"parent_id,omitempty"`
	Source      string    `json:"source_notification_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toTodoView(t model.TodoTask) todoView {
	v := todoView{
		ID:          t.ID,
		Category:    t.Category,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
	if t.ParentID != nil {
		v.ParentID = *t.ParentID
	}
	if t.SourceNotificationID != nil {
		v.Source = *t.SourceNotificationID
	}
	return v
}

// NewTodoCommand creates the todo command group. Every subcommand acts as
// the user named by --user.
func NewTodoCommand(rootOpts *RootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "todo",
		Short: "Manage a user's TODO tasks",
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", "", "owning user (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	principal := func() notify.Principal { return notify.Principal{UserID: user} }

	cmd.AddCommand(newTodoListCommand(rootOpts, principal))
	cmd.AddCommand(newTodoCreateCommand(rootOpts, principal))
	cmd.AddCommand(newTodoDeleteCommand(rootOpts, principal))

	return cmd
}

func newTodoListCommand(rootOpts *RootOptions, principal func() notify.Principal) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List the user's tasks as a tree",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			c, err := rootOpts.newComponents(st, nil)
			if err != nil {
				return err
			}

			f := rootOpts.formatter(cmd)
			tasks, err := c.service.AllTodos(cmd.Context(), principal())
			if err != nil {
				return operationError(f, "list tasks", err)
			}

			views := make([]todoView, 0, len(tasks))
			for _, t := range tasks {
				views = append(views, toTodoView(t))
			}
			return f.Render(views, func(w io.Writer) { printTodoTree(w, views) })
		},
	}
	return cmd
}

// printTodoTree prints roots first, children indented beneath their parent.
func printTodoTree(w io.Writer, views []todoView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}

	children := make(map[string][]todoView)
	for _, v := range views {
		children[v.ParentID] = append(children[v.ParentID], v)
	}
	for _, list := range children {
		sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	}

	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, v := range children[parent] {
			line := strings.Repeat("  ", depth) + "- " + v.Description
			if v.Category != "" {
				line += " [" + v.Category + "]"
			}
			if v.Source != "" {
				line += " (from " + v.Source + ")"
			}
			fmt.Fprintf(w, "%s  %s\n", line, v.ID)
			walk(v.ID, depth+1)
		}
	}
	walk("", 0)
}

func newTodoCreateCommand(rootOpts *RootOptions, principal func() notify.Principal) *cobra.Command {
	var draft notify.TodoDraft
	var parent string

	cmd := &cobra.Command{
		Use:   "create <description>",
		Short: "Create a manual task",
		Example: `  noticeboard todo create --user alice "Buy groceries" --category home
  noticeboard todo create --user alice "Milk" --parent <task-id>`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft.Description = args[0]
			if parent != "" {
				draft.ParentID = &parent
			}

			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			c, err := rootOpts.newComponents(st, nil)
			if err != nil {
				return err
			}

			f := rootOpts.formatter(cmd)
			task, err := c.service.CreateTodo(cmd.Context(), principal(), draft)
			if err != nil {
				return operationError(f, "create task", err)
			}
			return f.Render(toTodoView(task), func(w io.Writer) {
				fmt.Fprintf(w, "Created task %s\n", task.ID)
			})
		},
	}

	cmd.Flags().StringVar(&draft.Category, "category", "", "task category")
	cmd.Flags().StringVar(&parent, "parent", "", "parent task id")
	return cmd
}

func newTodoDeleteCommand(rootOpts *RootOptions, principal func() notify.Principal) *cobra.Command {
	var policyName string

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Long: `Delete one of the user's tasks. A task with children is only deleted
under --policy cascade (remove the subtree) or --policy reparent (move the
children up one level). The default policy, reject, refuses.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := store.ParseDeletePolicy(policyName)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --policy", err)
			}

			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			c, err := rootOpts.newComponents(st, nil)
			if err != nil {
				return err
			}

			f := rootOpts.formatter(cmd)
			removed, err := c.service.DeleteTodo(cmd.Context(), principal(), args[0], policy)
			if err != nil {
				return operationError(f, "delete task", err)
			}
			return f.Render(map[string]any{"id": args[0], "removed": removed, "policy": policy.String()}, func(w io.Writer) {
				fmt.Fprintf(w, "Removed %d task(s)\n", removed)
			})
		},
	}

	cmd.Flags().StringVar(&policyName, "policy", "reject", "children policy: reject, cascade or reparent")
	return cmd
}
