// Package app provides the TUI application that connects the chat view to
// the orchestrator.
package app

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/freQuensy23-coder/manim-gpt/internal/orchestrator"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui/commands"
	"github.com/freQuensy23-coder/manim-gpt/internal/tui/views"
)

// App is the top-level Bubble Tea model for one chat session.
type App struct {
	ctx       context.Context
	engine    tui.Engine
	sessionID string

	chatView views.ChatModel

	// Channels of the running turn, nil when idle.
	updates <-chan orchestrator.Update
	errs    <-chan error
}

// New creates an App for sessionID.
func New(ctx context.Context, engine tui.Engine, sessionID string, hints views.Hints) *App {
	return &App{
		ctx:       ctx,
		engine:    engine,
		sessionID: sessionID,
		chatView:  views.NewChatModel(sessionID, hints, 80, 24),
	}
}

// Init returns the initial command for the TUI.
func (a *App) Init() tea.Cmd {
	return a.chatView.Init()
}

// Update handles messages and updates the application state.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, tui.DefaultKeyMap.Quit):
			a.engine.Abort(a.sessionID)
			return a, tea.Quit
		case key.Matches(msg, tui.DefaultKeyMap.Abort):
			if a.chatView.Busy() {
				a.engine.Abort(a.sessionID)
			}
			return a, nil
		}

	case views.SendChatMsg:
		return a, commands.StartTurnCmd(a.ctx, a.engine, a.sessionID, msg.Content)

	case tui.TurnStartedMsg:
		a.updates, a.errs = msg.Updates, msg.Errs
		return a, commands.ListenTurnCmd(a.updates, a.errs)

	case tui.TurnUpdateMsg:
		a.chatView.SetSession(msg.Update.Session)
		return a, commands.ListenTurnCmd(a.updates, a.errs)

	case tui.TurnDoneMsg:
		a.updates, a.errs = nil, nil
		a.chatView.Done(msg.Err)
		return a, nil
	}

	var cmd tea.Cmd
	a.chatView, cmd = a.chatView.Update(msg)
	return a, cmd
}

// View renders the current view.
func (a *App) View() string {
	return a.chatView.View()
}
