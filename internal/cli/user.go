package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// NewUserCommand creates the user command group.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the user directory used for global fan-out",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "add <id>...",
		Short:         "Register users",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			added := []string{}
			now := time.Now().UTC()
			for _, id := range args {
				ok, err := st.AddUser(cmd.Context(), id, now)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to add user "+id, err)
				}
				if ok {
					added = append(added, id)
				}
			}

			return rootOpts.formatter(cmd).Render(map[string]any{"added": added}, func(w io.Writer) {
				fmt.Fprintf(w, "Added %d of %d user(s)\n", len(added), len(args))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "list",
		Short:         "List registered users",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer closeStore(st)

			ids, err := st.AllUserIDs(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list users", err)
			}
			return rootOpts.formatter(cmd).Render(ids, func(w io.Writer) {
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
			})
		},
	})

	return cmd
}
