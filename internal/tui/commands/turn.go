// Package commands provides Bubble Tea commands for TUI operations.
package commands

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/freQuensy23-coder/manim-gpt/internal/orchestrator"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui"
)

// StartTurnCmd hands text to the engine and returns immediately with the
// turn's channels. The turn itself runs on the engine's goroutine.
func StartTurnCmd(ctx context.Context, engine tui.Engine, sessionID, text string) tea.Cmd {
	return func() tea.Msg {
		updates, errs := engine.Handle(ctx, sessionID, text)
		return tui.TurnStartedMsg{Updates: updates, Errs: errs}
	}
}

// ListenTurnCmd waits for the next update of a running turn. It returns
// TurnUpdateMsg for each update, or TurnDoneMsg once the updates channel
// closes.
func ListenTurnCmd(updates <-chan orchestrator.Update, errs <-chan error) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return tui.TurnDoneMsg{Err: <-errs}
		}
		return tui.TurnUpdateMsg{Update: u}
	}
}
