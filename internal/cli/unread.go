package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUnreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Show unread totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}

			eng := app.engine(nil)
			defer eng.Close()

			counts, err := eng.UnreadCounts(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d unread message(s) in %d conversation(s)\n",
				counts.Messages, counts.Conversations)
			return nil
		},
	}
}
