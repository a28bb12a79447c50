package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"listenlist/internal/engine"
)

func newSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <username> <message...>",
		Short: "Send a message, starting the conversation when needed",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSend,
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	eng := app.engine(nil)
	defer eng.Close()
	if err := eng.Reload(cmd.Context()); err != nil {
		return err
	}

	t, err := eng.ResolveRecipient(cmd.Context(), engine.Recipient{Username: args[0]})
	if err != nil {
		return err
	}

	text := strings.Join(args[1:], " ")
	created, err := eng.Send(cmd.Context(), t.Partner.ID, text)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s (%s)\n", t.Partner.DisplayName(), created.ID)
	return nil
}
