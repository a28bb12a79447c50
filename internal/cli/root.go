// Package cli implements the llmsg command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the llmsg CLI.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "llmsg",
		Short:         "ListenList direct messages from the terminal",
		Long:          "llmsg reads and sends ListenList direct messages, kept live over the push channel.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}
	cmd.PersistentFlags().String("config", "", "Config file path")
	cmd.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newThreadsCmd(),
		newShowCmd(),
		newSendCmd(),
		newReadCmd(),
		newUnreadCmd(),
		newWatchCmd(),
	)

	return cmd
}
