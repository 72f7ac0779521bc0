package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/config"
	"github.com/Iron-Ham/shmchat/internal/shm"
)

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a chat's segment",
	Long: `Remove the shared-memory segment of a chat whose participants are all
gone, for example after the last one crashed. Live participants keep their
mapping but new joiners start a fresh chat.`,
	Args: cobra.NoArgs,
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
	removeCmd.Flags().BoolP("force", "f", false, "remove even if participants are still attached")
}

func runRemove(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")

	scfg := sessionConfig(cfg, "")
	path := shm.Path(scfg.Segment, scfg.SegmentOptions()...)
	if !shm.Exists(scfg.Segment, scfg.SegmentOptions()...) {
		fmt.Fprintf(cmd.OutOrStdout(), "No chat on segment %s\n", scfg.Segment)
		return nil
	}
	if err := chat.Remove(scfg, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", path)
	return nil
}
