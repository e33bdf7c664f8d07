// Package tui implements the terminal user interface using Bubble Tea.
package tui

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/freQuensy23-coder/manim-gpt/internal/orchestrator"
)

// Common key binding constants.
const (
	KeyCtrlC = "ctrl+c"
	KeyCtrlJ = "ctrl+j"
	KeyEnter = "enter"
	KeyEsc   = "esc"
)

// Engine runs session turns. *orchestrator.Orchestrator satisfies it.
type Engine interface {
	Handle(ctx context.Context, sessionID, text string) (<-chan orchestrator.Update, <-chan error)
	Abort(sessionID string) bool
}

// IsTTY returns true if stdout is connected to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Run starts the TUI program with the given model in alternate screen mode.
func Run(m tea.Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
