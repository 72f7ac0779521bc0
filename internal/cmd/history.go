package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/config"
	"github.com/Iron-Ham/shmchat/internal/console"
	"github.com/Iron-Ham/shmchat/internal/errors"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the retained history of a chat",
	Long:  `Print the messages a newcomer would see on joining, without joining.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Bool("timestamps", false, "show message times")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	snap, err := chat.Inspect(sessionConfig(cfg, ""))
	var nf *errors.NotFoundError
	if errors.As(err, &nf) && nf.ResourceType == "segment" {
		fmt.Fprintf(out, "No chat on segment %s\n", cfg.Segment.Name)
		return nil
	}
	if err != nil {
		return err
	}

	printer := console.NewPrinter(out, useColor(cfg.Chat.Color, out), cfg.Chat.Timestamps)
	for _, l := range chat.HistoryLines(snap.History) {
		printer.WriteLine(l)
	}
	return nil
}
