package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <username>",
		Short: "Mark a conversation's incoming messages read",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}
}

func runRead(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	eng := app.engine(nil)
	defer eng.Close()
	if err := eng.Reload(cmd.Context()); err != nil {
		return err
	}

	t, ok := eng.Store().FindByUsername(args[0])
	if !ok {
		return fmt.Errorf("no conversation with %s", args[0])
	}

	marked, err := eng.MarkThreadRead(cmd.Context(), t.Partner.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Marked %d message(s) read\n", marked)
	return nil
}
