package tui

import "github.com/charmbracelet/lipgloss"

var (
	brandColor   = lipgloss.Color("#1758C8")
	warningColor = lipgloss.Color("#F7941D")
	dimColor     = lipgloss.Color("8")
	errorColor   = lipgloss.Color("9")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(brandColor).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(dimColor).MarginTop(1)

	counterShortStyle = lipgloss.NewStyle().Foreground(warningColor)
	counterOKStyle    = lipgloss.NewStyle().Foreground(brandColor)

	buttonStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("15")).
			Background(brandColor)
	buttonFocusedStyle = buttonStyle.
				Underline(true).
				Background(lipgloss.Color("#0F3F91"))
	buttonDisabledStyle = buttonStyle.
				Foreground(lipgloss.Color("7")).
				Background(dimColor)

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandColor).
			Padding(1, 3).
			Width(56)
	dialogClosingStyle = dialogStyle.
				BorderForeground(dimColor).
				Foreground(dimColor)
	dialogTitleStyle      = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	dialogErrorTitleStyle = dialogTitleStyle.Foreground(errorColor)
)
