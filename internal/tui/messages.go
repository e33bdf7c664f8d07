package tui

import "github.com/freQuensy23-coder/manim-gpt/internal/orchestrator"

// TurnStartedMsg carries the channels of a turn that has been handed to the
// engine.
type TurnStartedMsg struct {
	Updates <-chan orchestrator.Update
	Errs    <-chan error
}

// TurnUpdateMsg is one session snapshot streamed during a turn.
type TurnUpdateMsg struct {
	Update orchestrator.Update
}

// TurnDoneMsg signals that a turn ended. Err is nil on success.
type TurnDoneMsg struct {
	Err error
}
