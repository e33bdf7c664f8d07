package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all key bindings for the TUI.
type KeyMap struct {
	Send     key.Binding
	NewLine  key.Binding
	Abort    key.Binding
	Quit     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

// DefaultKeyMap provides the default key bindings for the TUI.
var DefaultKeyMap = KeyMap{
	Send: key.NewBinding(
		key.WithKeys(KeyEnter),
		key.WithHelp("enter", "send"),
	),
	NewLine: key.NewBinding(
		key.WithKeys(KeyCtrlJ),
		key.WithHelp("ctrl+j", "new line"),
	),
	Abort: key.NewBinding(
		key.WithKeys(KeyEsc),
		key.WithHelp("esc", "abort turn"),
	),
	Quit: key.NewBinding(
		key.WithKeys(KeyCtrlC),
		key.WithHelp("ctrl+c", "quit"),
	),
	PageUp: key.NewBinding(
		key.WithKeys("pgup"),
		key.WithHelp("pgup", "scroll up"),
	),
	PageDown: key.NewBinding(
		key.WithKeys("pgdown"),
		key.WithHelp("pgdn", "scroll down"),
	),
}

// HelpLine renders the bindings as a one-line footer.
func (k KeyMap) HelpLine() string {
	var out string
	for i, b := range []key.Binding{k.Send, k.NewLine, k.Abort, k.Quit} {
		if i > 0 {
			out += " · "
		}
		h := b.Help()
		out += h.Key + ": " + h.Desc
	}
	return out
}
