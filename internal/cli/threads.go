package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"listenlist/internal/thread"
)

func newThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"ls"},
		Short:   "List conversations, newest activity first",
		RunE:    runThreads,
	}
	cmd.Flags().Bool("cached", false, "Render the last synced snapshot without hitting the network")
	return cmd
}

func runThreads(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	cached, _ := cmd.Flags().GetBool("cached")
	if cached {
		return runThreadsCached(cmd, app)
	}

	database, snapshots, err := app.openSnapshots()
	if err != nil {
		return err
	}
	defer database.Close()

	eng := app.engine(snapshots)
	defer eng.Close()
	if err := eng.Reload(cmd.Context()); err != nil {
		return err
	}

	renderThreads(cmd.OutOrStdout(), eng.Store().List(), time.Now())
	return nil
}

func runThreadsCached(cmd *cobra.Command, app *app) error {
	session, err := app.guard.PeekSession()
	if err != nil {
		return err
	}

	database, snapshots, err := app.openSnapshots()
	if err != nil {
		return err
	}
	defer database.Close()

	shares, err := snapshots.LoadAll(cmd.Context(), session.UserID)
	if err != nil {
		return err
	}
	if len(shares) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cached threads. Run llmsg threads to sync.")
		return nil
	}

	renderThreads(cmd.OutOrStdout(), thread.Hydrate(shares, session.UserID), time.Now())
	return nil
}

func renderThreads(out io.Writer, threads []*thread.Thread, now time.Time) {
	if len(threads) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return
	}

	headers := []string{
		headerStyle.Render("PARTNER"),
		headerStyle.Render("LAST"),
		headerStyle.Render("PREVIEW"),
	}
	rows := make([][]string, 0, len(threads))
	for _, t := range threads {
		name := partnerStyle.Render(t.Partner.DisplayName())
		if t.HasUnread {
			name = unreadStyle.Render("● " + t.Partner.DisplayName())
		}
		rows = append(rows, []string{
			name,
			dimStyle.Render(relativeTime(t.LastMessageAt, now)),
			truncate(t.LastMessagePreview, 60),
		})
	}
	_ = writeTable(out, headers, rows)
}
