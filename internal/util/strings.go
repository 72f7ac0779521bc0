// Package util holds small text helpers shared by the console, the TUI,
// and the session log output.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "..."

// Preview shortens a chat line to at most n runes for log output. Line
// breaks are flattened so one message stays on one log line.
func Preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if n <= len(ellipsis) {
		return ellipsis
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-len(ellipsis)]) + ellipsis
}

// FitWidth cuts styled terminal text to width columns. Escape sequences
// are preserved and wide characters count by their display width.
func FitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= width {
		return s
	}
	if width <= len(ellipsis) {
		return ansi.Truncate(s, width, "")
	}
	return ansi.Truncate(s, width, ellipsis)
}
