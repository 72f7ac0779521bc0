package chat

import (
	"time"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
)

// Fixed user-visible text.
const (
	HistoryHeading = "Accessible messages' history:"
	ClosedNotice   = "Chat is closed because everyone has left it."
	NamePrompt     = "Enter your name: "
)

// JoinedText and LeftText are the announcements published for a user.
func JoinedText(user string) string { return user + " joined the chat" }
func LeftText(user string) string   { return user + " left the chat" }

// Line is one unit of output handed to a LineSink.
type Line struct {
	Kind    chatlog.Kind
	Seq     uint64 // zero for local notices
	Author  string
	Text    string
	Time    time.Time
	History bool // rendered while replaying history
}

// String returns the text exactly as a participant should see it.
func (l Line) String() string {
	return chatlog.Record{Kind: l.Kind, Author: l.Author, Text: l.Text}.Line()
}

// Notice builds a local-only line.
func Notice(text string) Line {
	return Line{Kind: chatlog.KindNotice, Text: text, Time: time.Now()}
}

func lineFromRecord(r chatlog.Record, history bool) Line {
	return Line{
		Kind:    r.Kind,
		Seq:     r.Seq,
		Author:  r.Author,
		Text:    r.Text,
		Time:    r.Time,
		History: history,
	}
}

// LineSource supplies the user's input one line at a time. ReadLine
// returns io.EOF at end of input.
type LineSource interface {
	ReadLine() (string, error)
}

// LineSink receives everything the session renders. WriteLine is called
// from the reader goroutine and the session goroutine, so implementations
// must be safe for concurrent use.
type LineSink interface {
	WriteLine(Line)
}

// HistoryLines renders retained records the way a newcomer sees them: a
// heading and a blank line, then the records. No records means no lines.
func HistoryLines(records []chatlog.Record) []Line {
	if len(records) == 0 {
		return nil
	}
	lines := make([]Line, 0, len(records)+2)
	lines = append(lines, Notice(HistoryHeading), Notice(""))
	for _, r := range records {
		lines = append(lines, lineFromRecord(r, true))
	}
	return lines
}
