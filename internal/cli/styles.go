package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color palette, amber like the TUI
var (
	colorAccent  = lipgloss.Color("#F59E0B")
	colorSuccess = lipgloss.Color("#2FBF71")
	colorWarn    = lipgloss.Color("#FFB020")
	colorError   = lipgloss.Color("#E23D2D")
	colorMuted   = lipgloss.Color("#8B7F77")
	colorInfo    = lipgloss.Color("#FBBF24")
)

// Styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginBottom(1)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	styleWarn = lipgloss.NewStyle().
			Foreground(colorWarn)

	styleError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	styleMuted = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleInfo = lipgloss.NewStyle().
			Foreground(colorInfo)

	styleAuthor = lipgloss.NewStyle().
			Foreground(colorAccent).
			Bold(true)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

// printNote prints an informational note
func printNote(w io.Writer, message, title string) {
	if title != "" {
		fmt.Fprintln(w, styleInfo.Render(title))
	}
	fmt.Fprintln(w, styleMuted.Render(message))
}

func printSuccess(w io.Writer, message string) {
	fmt.Fprintln(w, styleSuccess.Render("✓ "+message))
}

func printWarning(w io.Writer, message string) {
	fmt.Fprintln(w, styleWarn.Render("! "+message))
}

func printError(w io.Writer, message string) {
	fmt.Fprintln(w, styleError.Render("✗ "+message))
}
