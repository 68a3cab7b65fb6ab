// Package styles defines shared lipgloss styles for terminal output.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors
	primaryColor   = lipgloss.Color("#5FAFAF") // Teal accent
	secondaryColor = lipgloss.Color("#666666") // Gray for secondary text
	successColor   = lipgloss.Color("#87AF87") // Muted sage for success
	errorColor     = lipgloss.Color("#AF5F5F") // Muted terracotta for errors
	warningColor   = lipgloss.Color("#D7AF5F") // Muted amber for warnings

	// GradientStart and GradientEnd color the progress bar.
	GradientStart = "#5FAFAF"
	GradientEnd   = "#87AF87"

	// TitleStyle for headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// SpinnerStyle for the activity spinner
	SpinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// SubtleStyle for hints and counters
	SubtleStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	// SuccessStyle for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// ErrorStyle for error messages
	ErrorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	// WarningStyle for cancellations and skipped work
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)
)
