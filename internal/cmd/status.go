package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/config"
	"github.com/Iron-Ham/shmchat/internal/errors"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is in a chat",
	Long: `Display the participants, sequence number, retained history, and
segment usage of a chat without joining it.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", "text", "output format: text or yaml")
}

// statusReport is the yaml form of a snapshot.
type statusReport struct {
	Segment      string              `yaml:"segment"`
	Path         string              `yaml:"path"`
	SizeBytes    uint64              `yaml:"size_bytes"`
	UsedBytes    uint64              `yaml:"used_bytes"`
	Closed       bool                `yaml:"closed"`
	CreatorPID   int                 `yaml:"creator_pid"`
	Mode         string              `yaml:"mode"`
	Capacity     int                 `yaml:"capacity"`
	Seq          uint64              `yaml:"seq"`
	Retained     int                 `yaml:"retained"`
	Participants []participantReport `yaml:"participants"`
}

type participantReport struct {
	Name   string    `yaml:"name"`
	PID    int       `yaml:"pid"`
	ID     string    `yaml:"id"`
	Joined time.Time `yaml:"joined"`
	Alive  bool      `yaml:"alive"`
}

func newStatusReport(snap chat.Snapshot) statusReport {
	r := statusReport{
		Segment:    snap.Segment.Name,
		Path:       snap.Segment.Path,
		SizeBytes:  snap.Segment.Size,
		UsedBytes:  snap.Segment.Used,
		Closed:     snap.Segment.Closed,
		CreatorPID: snap.Segment.CreatorPID,
		Mode:       string(snap.Log.Mode),
		Capacity:   snap.Log.Capacity,
		Seq:        snap.Log.Seq,
		Retained:   snap.Log.Retained,
	}
	for _, p := range snap.Participants {
		r.Participants = append(r.Participants, participantReport{
			Name:   p.Name,
			PID:    p.PID,
			ID:     p.ID.String(),
			Joined: p.Joined,
			Alive:  p.Alive,
		})
	}
	return r
}

func runStatus(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")
	if output != "text" && output != "yaml" {
		return fmt.Errorf("invalid output format %q: must be text or yaml", output)
	}

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

	report := newStatusReport(snap)
	if output == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return err
		}
		return enc.Close()
	}
	printStatus(out, report)
	return nil
}

func printStatus(out io.Writer, r statusReport) {
	fmt.Fprintf(out, "Segment: %s\n", r.Segment)
	fmt.Fprintf(out, "Path: %s\n", r.Path)
	fmt.Fprintf(out, "Usage: %d of %d bytes\n", r.UsedBytes, r.SizeBytes)
	if r.Closed {
		fmt.Fprintln(out, "State: closing")
	}
	fmt.Fprintf(out, "History: %s, %d of %d retained, seq %d\n", r.Mode, r.Retained, r.Capacity, r.Seq)
	fmt.Fprintf(out, "Participants: %d\n\n", len(r.Participants))

	if len(r.Participants) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPID\tJOINED\tSTATE")
	for _, p := range r.Participants {
		state := "alive"
		if !p.Alive {
			state = "gone"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.Name, p.PID, p.Joined.Format("2006-01-02 15:04:05"), state)
	}
	_ = tw.Flush()
}
