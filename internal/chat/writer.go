package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/errors"
	"github.com/Iron-Ham/shmchat/internal/event"
	"github.com/Iron-Ham/shmchat/internal/logging"
	"github.com/Iron-Ham/shmchat/internal/util"
)

// DefaultExitCommand ends the writer loop when typed on a line by itself.
const DefaultExitCommand = "exit"

const previewLen = 40

// Writer publishes the user's lines to the log. It never touches the
// reader's cursor.
type Writer struct {
	log      *chatlog.Log
	src      LineSource
	sink     LineSink
	user     string
	sentinel string
	bus      *event.Bus
	logger   *logging.Logger
}

// NewWriter creates a writer publishing as user. An empty sentinel means
// DefaultExitCommand.
func NewWriter(log *chatlog.Log, src LineSource, sink LineSink, user, sentinel string, bus *event.Bus, logger *logging.Logger) *Writer {
	if sentinel == "" {
		sentinel = DefaultExitCommand
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Writer{
		log:      log,
		src:      src,
		sink:     sink,
		user:     user,
		sentinel: sentinel,
		bus:      bus,
		logger:   logger.WithComponent("writer"),
	}
}

// Run reads lines until the sentinel, end of input, or ctx is done.
// Blank lines are skipped and oversized lines get a local notice; any
// other publish failure ends the loop with the error.
func (w *Writer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := w.src.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read input")
		}

		line = strings.TrimRight(line, "\r\n")
		if line == w.sentinel {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		seq, err := w.log.Publish(chatlog.KindChat, w.user, line)
		if errors.Is(err, errors.ErrRecordTooLarge) {
			w.sink.WriteLine(Notice(fmt.Sprintf("Message not sent: %d bytes is over the %d byte limit.", len(line), chatlog.MaxTextLen)))
			continue
		}
		if err != nil {
			w.logger.Error("publish failed", "error", err)
			return err
		}
		w.logger.Debug("published", "seq", seq, "text", util.Preview(line, previewLen))
		w.bus.Publish(event.NewMessagePublishedEvent(seq, chatlog.KindChat.String(), len(line)))
	}
}
