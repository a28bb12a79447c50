package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"listenlist/internal/events"
	"listenlist/internal/share"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live message activity until interrupted",
		RunE:  runWatch,
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	app, err := newApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, snapshots, err := app.openSnapshots()
	if err != nil {
		return err
	}
	defer database.Close()

	eng := app.engine(snapshots)
	defer eng.Close()
	if err := eng.Reload(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Watching %d conversation(s). Ctrl-C to stop.\n", eng.Store().Len())

	eng.Subscribe(events.Filter{Types: []events.Type{events.TypeThreadUpdated}}, func(event events.Event) {
		t, ok := eng.Store().Get(event.PartnerID)
		if !ok {
			return
		}
		for _, msg := range t.Messages {
			if msg.ID != event.ShareID {
				continue
			}
			who := "me"
			if msg.Direction == share.DirectionIncoming {
				who = t.Partner.DisplayName()
			}
			fmt.Fprintf(out, "%s %s  %s\n",
				dimStyle.Render(time.Now().Format("15:04:05")),
				partnerStyle.Render(who+":"),
				messageText(msg))
			return
		}
	})
	eng.Subscribe(events.Filter{Types: []events.Type{events.TypeChannelState}}, func(event events.Event) {
		fmt.Fprintln(out, dimStyle.Render("channel "+event.State))
	})

	eng.Run(ctx)
	return nil
}
