package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	focusedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	blurredStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	spinnerStyle  = focusedStyle
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	headingStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	helpStyle     = blurredStyle
	currentStyle  = focusedStyle.Bold(true)
	reachedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	checkedMark   = successStyle.Render("[x]")
	uncheckedMark = "[ ]"
)

func checkbox(on bool) string {
	if on {
		return checkedMark
	}
	return uncheckedMark
}

func radio(on bool) string {
	if on {
		return successStyle.Render("(•)")
	}
	return "( )"
}
