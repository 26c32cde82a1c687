package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/noticeboard/internal/model"
	"github.com/roach88/noticeboard/internal/notify"
)

// notificationView is the printable form of a notification.
type notificationView struct {
	ID             string                    `json:"id"`
	Title          string                    `json:"title"`
	Message        string                    `json:"message"`
	Global         bool                      `json:"global"`
	Targets        []string                  `json:"targets,omitempty"`
	Deleted        bool                      `json:"deleted"`
	ExpiresAt      *time.Time                `json:"expires_at,omitempty"`
	RecurrenceRule string                    `json:"recurrence_rule,omitempty"`
	ActionItem     *model.ActionItemTransfer `json:"action_item,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
}

func toNotificationView(n model.Notification) notificationView {
	v := notificationView{
		ID:         n.ID,
		Title:      n.Title,
		Message:    n.Message,
		Global:     n.IsGlobal,
		Targets:    n.TargetUserIDs,
		Deleted:    n.Deleted,
		ExpiresAt:  n.ExpiresAt,
		ActionItem: model.ToTransfer(n.ActionItem),
		CreatedAt:  n.CreatedAt,
	}
	if n.RecurrenceRule != nil {
		v.RecurrenceRule = *n.RecurrenceRule
	}
	return v
}

// NewNotificationCommand creates the notification command group.
func NewNotificationCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notification",
		Aliases: []string{"n"},
		Short:   "Create, list, delete and restore notifications",
	}

	cmd.AddCommand(newNotificationCreateCommand(rootOpts))
	cmd.AddCommand(newNotificationListCommand(rootOpts))
	cmd.AddCommand(newNotificationStateCommand(rootOpts, "delete", "Soft-delete a notification"))
	cmd.AddCommand(newNotificationStateCommand(rootOpts, "restore", "Restore a soft-deleted notification"))

	return cmd
}

type notificationCreateOptions struct {
	*RootOptions
	As                string
	ID                string
	Title             string
	Message           string
	Global            bool
	Targets           []string
	ExpiresAt         string
	Recurrence        string
	ActionDescription string
	ActionCategory    string
}

func newNotificationCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &notificationCreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a notification",
		Long: `Create a notification addressed to everyone (--global) or to the users
named with --target. A non-global notification without targets is stored
but visible to no one.

Recurrence rules are JSON objects:
  {"kind":"weekly","weekdays":["mon","thu"]}
  {"kind":"monthly","days":[1,15,-1]}
  {"kind":"interval","every":14,"anchor":"2024-06-03"}
  {"kind":"cron","expr":"0 9 * * 1-5"}

or one of the shorthands "daily", "weekdays" and "every <weekday>".

A recurring notification with an action item produces one TODO task per
target user on every occurrence date.

Examples:
  noticeboard notification create --title "Rent" --global \
    --recurrence '{"kind":"monthly","days":[1]}' --action "Pay rent" --category bills
  noticeboard notification create --title "Standup" --target alice --target bob`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotificationCreate(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.As, "as", "admin", "acting admin user")
	cmd.Flags().StringVar(&opts.ID, "id", "", "notification id (default: generated)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Message, "message", "", "message body")
	cmd.Flags().BoolVar(&opts.Global, "global", false, "address every user")
	cmd.Flags().StringArrayVar(&opts.Targets, "target", nil, "target user id (repeatable)")
	cmd.Flags().StringVar(&opts.ExpiresAt, "expires-at", "", "RFC3339 expiry instant")
	cmd.Flags().StringVar(&opts.Recurrence, "recurrence", "", "recurrence rule (JSON)")
	cmd.Flags().StringVar(&opts.ActionDescription, "action", "", "action item description")
	cmd.Flags().StringVar(&opts.ActionCategory, "category", "", "action item category")
	_ = cmd.MarkFlagRequired("title")

	return cmd
}

func runNotificationCreate(cmd *cobra.Command, opts *notificationCreateOptions) error {
	draft := notify.Draft{
		ID:             opts.ID,
		Title:          opts.Title,
		Message:        opts.Message,
		IsGlobal:       opts.Global,
		TargetUserIDs:  opts.Targets,
		RecurrenceRule: opts.Recurrence,
	}
	if opts.ExpiresAt != "" {
		exp, err := time.Parse(time.RFC3339, opts.ExpiresAt)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --expires-at", err)
		}
		draft.ExpiresAt = &exp
	}
	if opts.ActionDescription != "" || opts.ActionCategory != "" {
		draft.ActionItem = &model.ActionItemTransfer{
			Description: opts.ActionDescription,
			Category:    opts.ActionCategory,
		}
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	c, err := opts.newComponents(st, nil)
	if err != nil {
		return err
	}

	n, err := c.service.Create(cmd.Context(), notify.Principal{UserID: opts.As, Admin: true}, draft)
	if err != nil {
		return operationError(opts.formatter(cmd), "create notification", err)
	}

	view := toNotificationView(n)
	return opts.formatter(cmd).Render(view, func(w io.Writer) {
		fmt.Fprintf(w, "Created notification %s\n", n.ID)
	})
}

type notificationListOptions struct {
	*RootOptions
	User           string
	All            bool
	IncludeDeleted bool
}

func newNotificationListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &notificationListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		Long: `Without --user, list every stored notification (operator view).
With --user, list what that user sees: unexpired notifications addressed
to them, or all of them, expired included, with --all.

Examples:
  noticeboard notification list --include-deleted
  noticeboard notification list --user alice
  noticeboard notification list --user alice --all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNotificationList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "list the notifications visible to this user")
	cmd.Flags().BoolVar(&opts.All, "all", false, "with --user, include expired notifications")
	cmd.Flags().BoolVar(&opts.IncludeDeleted, "include-deleted", false, "without --user, include soft-deleted notifications")

	return cmd
}

func runNotificationList(cmd *cobra.Command, opts *notificationListOptions) error {
	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore(st)

	c, err := opts.newComponents(st, nil)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var list []model.Notification
	switch {
	case opts.User == "":
		list, err = c.service.List(ctx, notify.Principal{UserID: "admin", Admin: true}, opts.IncludeDeleted)
	case opts.All:
		list, err = c.service.Visible(ctx, notify.Principal{UserID: opts.User})
	default:
		list, err = c.service.Active(ctx, notify.Principal{UserID: opts.User})
	}
	f := opts.formatter(cmd)
	if err != nil {
		return operationError(f, "list notifications", err)
	}

	views := make([]notificationView, 0, len(list))
	for _, n := range list {
		views = append(views, toNotificationView(n))
	}
	return f.Render(views, func(w io.Writer) {
		if len(views) == 0 {
			fmt.Fprintln(w, "No notifications.")
			return
		}
		for _, v := range views {
			fmt.Fprintf(w, "%s  %s%s\n", v.ID, v.Title, notificationFlags(v))
		}
	})
}

// notificationFlags renders the bracketed attributes shown in text lists.
func notificationFlags(v notificationView) string {
	var flags []string
	if v.Global {
		flags = append(flags, "global")
	} else {
		flags = append(flags, "to:"+strings.Join(v.Targets, ","))
	}
	if v.RecurrenceRule != "" {
		flags = append(flags, "recurring")
	}
	if v.ExpiresAt != nil {
		flags = append(flags, "expires:"+v.ExpiresAt.Format(time.RFC3339))
	}
	if v.Deleted {
		flags = append(flags, "deleted")
	}
	return "  [" + strings.Join(flags, " ") + "]"
}

func newNotificationStateCommand(rootOpts *RootOptions, verb, short string) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:           verb + " <id>",
		Short:         short,
		Args:          cobra.ExactArgs(1),
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

			p := notify.Principal{UserID: as, Admin: true}
			apply := c.service.SoftDelete
			if verb == "restore" {
				apply = c.service.Restore
			}

			f := rootOpts.formatter(cmd)
			if err := apply(cmd.Context(), p, args[0]); err != nil {
				return operationError(f, verb+" notification", err)
			}
			return f.Render(map[string]string{"id": args[0], "action": verb}, func(w io.Writer) {
				fmt.Fprintf(w, "Notification %s: %s done\n", args[0], verb)
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "admin", "acting admin user")
	return cmd
}
