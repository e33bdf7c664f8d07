package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/freQuensy23-coder/manim-gpt/internal/session"
)

const (
	primaryColor   = "#7C3AED"
	secondaryColor = "#10B981"
	warningColor   = "#F59E0B"
	errorColor     = "#EF4444"
	dimColor       = "#6B7280"
	barBackground  = "#1F2937"
	barForeground  = "#9CA3AF"
)

var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	// UserStyle and ModelStyle label the two sides of a turn.
	UserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(secondaryColor)).
			Bold(true)
	ModelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(primaryColor)).
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor))

	ReasoningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(dimColor)).
			Italic(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(errorColor))

	// NoticeStyle renders loop notices such as "rendering done".
	NoticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(warningColor))

	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color(barBackground)).
			Foreground(lipgloss.Color(barForeground)).
			Padding(0, 1)
)

// PhaseStyle colors a phase name in the status bar: amber while the loop is
// working, green once finished, primary while waiting for the user.
func PhaseStyle(p session.Phase) lipgloss.Style {
	base := lipgloss.NewStyle().Background(lipgloss.Color(barBackground)).Bold(true)
	switch p {
	case session.CodingLoop, session.ReviewLoop:
		return base.Foreground(lipgloss.Color(warningColor))
	case session.Finished:
		return base.Foreground(lipgloss.Color(secondaryColor))
	default:
		return base.Foreground(lipgloss.Color(primaryColor))
	}
}
