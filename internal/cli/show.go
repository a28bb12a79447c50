package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"listenlist/internal/share"
	"listenlist/internal/thread"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <username>",
		Short: "Show a conversation's messages",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}
	cmd.Flags().Bool("mark-read", false, "Mark the shown messages read")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
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

	renderConversation(cmd.OutOrStdout(), t, time.Now())

	if markRead, _ := cmd.Flags().GetBool("mark-read"); markRead {
		marked, err := eng.MarkThreadRead(cmd.Context(), t.Partner.ID)
		if err != nil {
			return err
		}
		if marked > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\nMarked %d message(s) read\n", marked)
		}
	}
	return nil
}

func renderConversation(out io.Writer, t *thread.Thread, now time.Time) {
	fmt.Fprintln(out, headerStyle.Render(t.Partner.DisplayName()))
	if len(t.Messages) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No messages yet."))
		return
	}

	for _, msg := range t.Messages {
		who := "me"
		if msg.Direction == share.DirectionIncoming {
			who = t.Partner.Username
		}
		line := fmt.Sprintf("%s %s  %s",
			dimStyle.Render(relativeTime(msg.CreatedAt, now)),
			partnerStyle.Render(who+":"),
			messageText(msg))
		if msg.Direction == share.DirectionIncoming && !msg.IsRead {
			line = unreadStyle.Render("● ") + line
		}
		fmt.Fprintln(out, line)
	}
}

func messageText(msg share.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	if msg.ContentType != share.ContentOther {
		return dimStyle.Render(fmt.Sprintf("[shared %s %s]", msg.ContentType, msg.ItemID))
	}
	return dimStyle.Render("[shared item]")
}
