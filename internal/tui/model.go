package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/shmchat/internal/chat"
	"github.com/Iron-Ham/shmchat/internal/chatlog"
	"github.com/Iron-Ham/shmchat/internal/console"
	"github.com/Iron-Ham/shmchat/internal/tui/styles"
	"github.com/Iron-Ham/shmchat/internal/util"
)

// Messages

type lineMsg chat.Line

type attachedMsg struct {
	participants int64
}

type droppedMsg struct {
	count uint64
}

type sessionDoneMsg struct {
	err error
}

// Layout offsets around the viewport: input box (3) + status bar (1).
const chromeHeight = 4

// Model is the bubbletea model for one chat session.
type Model struct {
	user       string
	segment    string
	timestamps bool

	input  textinput.Model
	view   viewport.Model
	lines  []chat.Line
	width  int
	height int

	participants int64
	seq          uint64
	dropped      uint64

	submit func(string) bool
	hangup func()

	leaving bool
	done    bool
	err     error
}

// NewModel creates a model. submit hands a typed line to the session and
// reports whether it was accepted; hangup ends the user's input.
func NewModel(user, segment string, timestamps bool, submit func(string) bool, hangup func()) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = "Type a message, or exit to leave"
	input.CharLimit = chatlog.MaxTextLen
	input.Focus()

	return Model{
		user:       user,
		segment:    segment,
		timestamps: timestamps,
		input:      input,
		view:       viewport.New(0, 0),
		submit:     submit,
		hangup:     hangup,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.render()
	case lineMsg:
		m.addLine(chat.Line(msg))
	case attachedMsg:
		m.participants = msg.participants
	case droppedMsg:
		m.dropped += msg.count
	case sessionDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.leaving {
				// Second interrupt while the session is tearing down.
				return m, tea.Quit
			}
			m.leave()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.view, cmd = m.view.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			if m.leaving {
				return m, nil
			}
			text := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(text) == "" {
				return m, nil
			}
			if !m.submit(text) {
				m.addLine(chat.Notice("Input is busy, message not sent."))
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) leave() {
	m.leaving = true
	m.input.Blur()
	if m.hangup != nil {
		m.hangup()
	}
}

func (m *Model) addLine(l chat.Line) {
	m.lines = append(m.lines, l)
	if l.Seq > m.seq {
		m.seq = l.Seq
	}
	if !l.History && l.Author != m.user {
		switch l.Kind {
		case chatlog.KindJoin:
			m.participants++
		case chatlog.KindLeave:
			if m.participants > 1 {
				m.participants--
			}
		}
	}
	m.render()
}

func (m *Model) resize() {
	m.view.Width = m.width
	m.view.Height = max(m.height-chromeHeight, 1)
	m.input.Width = max(m.width-6, 10)
}

func (m *Model) render() {
	rendered := make([]string, len(m.lines))
	for i, l := range m.lines {
		rendered[i] = console.Format(l, true, m.timestamps)
	}
	content := strings.Join(rendered, "\n")
	if m.width > 0 {
		content = lipgloss.NewStyle().Width(m.width).Render(content)
	}
	follow := m.view.AtBottom() || m.view.TotalLineCount() == 0
	m.view.SetContent(content)
	if follow {
		m.view.GotoBottom()
	}
}

func (m Model) status() string {
	parts := []string{
		styles.Author(m.user).Render(m.user),
		"segment " + m.segment,
		fmt.Sprintf("%d here", m.participants),
		fmt.Sprintf("seq %d", m.seq),
	}
	if m.dropped > 0 {
		parts = append(parts, styles.Warning.Render(fmt.Sprintf("%d dropped", m.dropped)))
	}
	if m.leaving && !m.done {
		parts = append(parts, styles.Muted.Render("leaving..."))
	}
	return styles.StatusBar.Render(util.FitWidth(strings.Join(parts, " · "), max(m.width-2, 10)))
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Connecting...\n"
	}
	var b strings.Builder
	b.WriteString(m.view.View())
	b.WriteByte('\n')
	if !m.done {
		b.WriteString(styles.InputBox.Width(max(m.width-2, 10)).Render(m.input.View()))
		b.WriteByte('\n')
	}
	b.WriteString(m.status())
	return b.String()
}
