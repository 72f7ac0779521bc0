package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/config"
	"github.com/Iron-Ham/shmchat/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "shmchat",
	Short: "Terminal chat between processes over shared memory",
	Long: `shmchat lets several processes on one machine chat through a named
shared-memory segment. Every participant sees the retained history when it
joins and every new message as it is posted. The last participant to leave
removes the segment.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/shmchat/config.yaml)")
	rootCmd.PersistentFlags().StringP("segment", "s", "", "shared-memory segment name (default \"shared_memory\")")
	rootCmd.PersistentFlags().String("dir", "", "directory for the segment's backing file (default /dev/shm)")
}

// flagKeys maps command-line flags onto config keys. A flag only overrides
// the config file and environment when it is set.
var flagKeys = map[string]string{
	"segment":      "segment.name",
	"dir":          "segment.dir",
	"size":         "segment.size_bytes",
	"mode":         "chat.mode",
	"capacity":     "chat.capacity",
	"tui":          "chat.tui",
	"timestamps":   "chat.timestamps",
	"color":        "chat.color",
	"metrics-addr": "metrics.addr",
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if err := config.Init(cfgFile); err != nil {
		return err
	}

	// Bind the running command's flags, including inherited ones.
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// sessionConfig maps the loaded configuration onto a session.
func sessionConfig(cfg *config.Config, user string) chat.SessionConfig {
	return chat.SessionConfig{
		User:      user,
		Segment:   cfg.Segment.Name,
		SizeBytes: cfg.Segment.SizeBytes,
		Dir:       cfg.Segment.Dir,
		Names: chat.Names{
			Names: chatlog.Names{
				Log:       cfg.Names.Log,
				Mutex:     cfg.Names.Mutex,
				Condition: cfg.Names.Condition,
				Sequence:  cfg.Names.Sequence,
			},
			Participants: cfg.Names.Participants,
		},
		Mode:        cfg.Chat.LogMode(),
		Capacity:    cfg.Chat.Capacity,
		ExitCommand: cfg.Chat.ExitCommand,
	}
}

// newLogger opens the diagnostic log. A disabled log discards everything.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLogger(cfg.Logging.ResolveDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}
