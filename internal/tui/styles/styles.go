// Package styles holds the lipgloss palette shared by the plain console
// and the full-screen chat UI.
package styles

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/shmchat/internal/chatlog"
)

var (
	// Colors meet WCAG AA contrast on both black and dark surfaces.
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	Muted   = lipgloss.NewStyle().Foreground(MutedColor)
	Warning = lipgloss.NewStyle().Foreground(WarningColor)
	Error   = lipgloss.NewStyle().Foreground(ErrorColor)
	Text    = lipgloss.NewStyle().Foreground(TextColor)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Announcement = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Italic(true)

	Closed = lipgloss.NewStyle().
		Bold(true).
		Foreground(WarningColor)

	Notice = lipgloss.NewStyle().
		Foreground(MutedColor).
		Italic(true)

	Timestamp = lipgloss.NewStyle().Foreground(BorderColor)

	InputBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	StatusBar = lipgloss.NewStyle().
			Foreground(MutedColor).
			Padding(0, 1)
)

// authorPalette colors participant names. A name always maps to the same
// color in every process.
var authorPalette = []lipgloss.Color{
	"#A78BFA", // purple
	"#60A5FA", // blue
	"#10B981", // green
	"#FBBF24", // yellow
	"#F472B6", // pink
	"#FB923C", // orange
	"#22D3EE", // cyan
}

// Author returns the style for a participant's name.
func Author(name string) lipgloss.Style {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return lipgloss.NewStyle().Bold(true).Foreground(authorPalette[h.Sum32()%uint32(len(authorPalette))])
}

// ForKind returns the body style for a record kind.
func ForKind(kind chatlog.Kind) lipgloss.Style {
	switch kind {
	case chatlog.KindJoin, chatlog.KindLeave:
		return Announcement
	case chatlog.KindClosed:
		return Closed
	case chatlog.KindNotice:
		return Notice
	default:
		return Text
	}
}
