// Package views provides TUI view components for manimgpt.
package views

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/freQuensy23-coder/manim-gpt/internal/session"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui"
)

// SendChatMsg is sent when the user submits a message.
type SendChatMsg struct {
	Content string
}

// Hints are the phrases shown in the input placeholder.
type Hints struct {
	Continue      string
	Finish        string
	ShowReasoning bool
}

// ChatModel renders the session transcript and the input box.
type ChatModel struct {
	session  *session.Session
	typed    map[string]bool
	hints    Hints
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	busy     bool
	err      error
	width    int
	height   int
}

// NewChatModel creates a ChatModel for sessionID.
func NewChatModel(sessionID string, hints Hints, width, height int) ChatModel {
	ta := textarea.New()
	ta.Placeholder = "Describe the video you want..."
	ta.CharLimit = 5000
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline = tui.DefaultKeyMap.NewLine
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = tui.TitleStyle

	s, _ := session.New(sessionID)

	m := ChatModel{
		session:  s,
		typed:    map[string]bool{},
		hints:    hints,
		textarea: ta,
		viewport: viewport.New(20, 5),
		spinner:  sp,
	}
	m.resize(width, height)
	return m
}

// Init returns the initial command for the chat view.
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Busy reports whether a turn is in flight.
func (m ChatModel) Busy() bool { return m.busy }

// Phase returns the phase of the latest snapshot.
func (m ChatModel) Phase() session.Phase { return m.session.Phase }

// SetSession replaces the transcript with a newer snapshot.
func (m *ChatModel) SetSession(s *session.Session) {
	m.session = s
	m.refresh()
}

// Done marks the running turn as finished.
func (m *ChatModel) Done(err error) {
	m.busy = false
	m.err = err
	m.textarea.Placeholder = placeholder(m.session.Phase, m.hints)
	m.refresh()
}

// Update handles messages for the chat view.
func (m ChatModel) Update(msg tea.Msg) (ChatModel, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, tui.DefaultKeyMap.Send) {
			content := strings.TrimSpace(m.textarea.Value())
			if content == "" || m.busy || m.session.Phase == session.Finished {
				return m, nil
			}
			m.typed[content] = true
			m.textarea.Reset()
			m.busy = true
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
				return SendChatMsg{Content: content}
			})
		}
		if key.Matches(msg, tui.DefaultKeyMap.PageUp, tui.DefaultKeyMap.PageDown) {
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case spinner.TickMsg:
		if m.busy {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}

	if !m.busy {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View renders the chat view.
func (m ChatModel) View() string {
	var b strings.Builder

	b.WriteString(tui.TitleStyle.Render("manimgpt"))
	b.WriteString("  ")
	b.WriteString(tui.DimStyle.Render(m.session.ID))
	b.WriteString("\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.busy:
		b.WriteString(fmt.Sprintf("%s %s...", m.spinner.View(), working(m.session.Phase)))
	case m.err != nil:
		b.WriteString(tui.ErrorStyle.Render("Error: " + m.err.Error()))
	}
	b.WriteString("\n")

	if m.busy {
		b.WriteString(tui.DimStyle.Render(m.textarea.View()))
	} else {
		b.WriteString(m.textarea.View())
	}
	b.WriteString("\n")

	b.WriteString(statusBar(m.session, m.width))
	b.WriteString("\n")
	b.WriteString(tui.DimStyle.Render(tui.DefaultKeyMap.HelpLine()))

	return b.String()
}

func (m *ChatModel) resize(width, height int) {
	m.width = width
	m.height = height

	// Reserve space for: header (2 lines), status line (1), textarea (3), bars (2).
	vpHeight := height - 10
	if vpHeight < 5 {
		vpHeight = 5
	}
	vpWidth := width - 2
	if vpWidth < 20 {
		vpWidth = 20
	}
	m.viewport.Width = vpWidth
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(vpWidth)
	m.refresh()
}

func (m *ChatModel) refresh() {
	m.viewport.SetContent(FormatTranscript(m.session, m.typed, m.viewport.Width, m.hints.ShowReasoning))
	m.viewport.GotoBottom()
}

// FormatTranscript renders every turn of s. User turns whose text is not in
// typed were sent by the loop and are shown as their first line only.
func FormatTranscript(s *session.Session, typed map[string]bool, width int, showReasoning bool) string {
	if s == nil || len(s.Turns) == 0 {
		return tui.DimStyle.Render("Describe the animation you want to see. The model will draft a scenario first.")
	}

	wrap := lipgloss.NewStyle().Width(width)
	var blocks []string
	for _, t := range s.Turns {
		if typed[t.User] {
			blocks = append(blocks, tui.UserStyle.Render("You: ")+wrap.Render(t.User))
		} else if t.User != "" {
			blocks = append(blocks, tui.DimStyle.Render("Loop: "+firstLine(t.User)))
		}
		if showReasoning && t.Reasoning != "" {
			blocks = append(blocks, tui.ReasoningStyle.Width(width).Render(strings.TrimSpace(t.Reasoning)))
		}
		if t.Answer != "" {
			blocks = append(blocks, tui.ModelStyle.Render("Gemini: ")+wrap.Render(strings.TrimSpace(t.Answer)))
		}
		if t.Notice != "" {
			blocks = append(blocks, tui.NoticeStyle.Width(width).Render(strings.TrimSpace(t.Notice)))
		}
	}
	return strings.Join(blocks, "\n\n")
}

func statusBar(s *session.Session, width int) string {
	text := "phase: " + tui.PhaseStyle(s.Phase).Render(s.Phase.String())
	if s.LastArtifact != "" {
		text += "  video: " + filepath.Base(s.LastArtifact)
	}
	return tui.StatusBarStyle.Width(width).Render(text)
}

func working(p session.Phase) string {
	switch p {
	case session.CodingLoop:
		return "Writing and rendering code"
	case session.ReviewLoop:
		return "Reviewing the video"
	case session.AwaitFeedback:
		return "Applying feedback"
	default:
		return "Thinking"
	}
}

func placeholder(p session.Phase, h Hints) string {
	switch p {
	case session.AwaitTask:
		return fmt.Sprintf("Refine the scenario, or type %q to write code...", h.Continue)
	case session.AwaitFeedback:
		return fmt.Sprintf("Describe what to change, or type %q to finish...", h.Finish)
	case session.Finished:
		return "Session complete. Press ctrl+c to quit."
	default:
		return "Send a message to resume coding..."
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if line, _, found := strings.Cut(s, "\n"); found {
		return line + " ..."
	}
	return s
}
