package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/config"
	"github.com/Iron-Ham/shmchat/internal/console"
	"github.com/Iron-Ham/shmchat/internal/event"
	"github.com/Iron-Ham/shmchat/internal/logging"
	"github.com/Iron-Ham/shmchat/internal/metrics"
	"github.com/Iron-Ham/shmchat/internal/shm"
	"github.com/Iron-Ham/shmchat/internal/tui"
)

var joinCmd = &cobra.Command{
	Use:   "join [name]",
	Short: "Join a chat",
	Long: `Join the chat on a shared-memory segment, creating it if nobody is there
yet. Without a name argument you are prompted for one.

Retained history is shown first, then every new message as it arrives.
Type exit (or send end of input) to leave.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJoin,
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().Int("size", 0, "capacity in bytes of a newly created segment")
	joinCmd.Flags().String("mode", "", "history retention: ring or append")
	joinCmd.Flags().Int("capacity", 0, "messages kept in ring mode")
	joinCmd.Flags().Bool("tui", false, "use the full-screen interface")
	joinCmd.Flags().Bool("timestamps", false, "show message times")
	joinCmd.Flags().String("color", "", "auto, always, or never")
	joinCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	shm.SetLockProbeInterval(cfg.Segment.LockProbe())

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	in := console.NewReader(cmd.InOrStdin())
	var user string
	if len(args) > 0 {
		user = strings.TrimSpace(args[0])
	} else if user, err = console.PromptName(in, cmd.OutOrStdout()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus()
	opts := []chat.SessionOption{chat.WithBus(bus), chat.WithLogger(logger)}
	scfg := sessionConfig(cfg, user)

	if cfg.Chat.TUI {
		app := tui.New(tui.Options{
			User:       user,
			Segment:    scfg.Segment,
			Timestamps: cfg.Chat.Timestamps,
			AltScreen:  cfg.Chat.AltScreen,
		})
		app.Subscribe(bus)
		session := chat.NewSession(scfg, app, app, opts...)
		stopMetrics, err := startMetrics(cfg, bus, session.Stats, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()

		context.AfterFunc(ctx, func() { _ = app.Close() })
		return app.Run(ctx, session.Run)
	}

	printer := console.NewPrinter(cmd.OutOrStdout(), useColor(cfg.Chat.Color, cmd.OutOrStdout()), cfg.Chat.Timestamps)
	session := chat.NewSession(scfg, in, printer, opts...)
	stopMetrics, err := startMetrics(cfg, bus, session.Stats, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	// An interrupt ends input, so the session still leaves cleanly.
	context.AfterFunc(ctx, func() { _ = in.Close() })
	return session.Run(ctx)
}

// useColor resolves the chat.color setting for w.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && console.IsTerminal(f)
}

// startMetrics serves Prometheus metrics when metrics.addr is set. The
// returned func stops the server.
func startMetrics(cfg *config.Config, bus *event.Bus, stats metrics.StatsFunc, logger *logging.Logger) (func(), error) {
	if cfg.Metrics.Addr == "" {
		return func() {}, nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, stats)
	m.Observe(bus)

	srv, err := metrics.Start(cfg.Metrics.Addr, metrics.NewRouter(reg, stats), logger)
	if err != nil {
		m.Close()
		return nil, err
	}
	return func() {
		m.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", "error", err)
		}
	}, nil
}
