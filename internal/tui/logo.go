package tui

import "github.com/charmbracelet/lipgloss"

var logoLeft = []string{
	"                     ",
	"█    █▀▀█ █▀▀▄ ▀▀█▀▀ ",
	"█    █▀▀█ █  █   █   ",
	"▀▀▀▀ ▀  ▀ ▀  ▀   ▀   ",
}

var logoRight = []string{
	"               ",
	"█▀▀▀ █▀▀█ █▀▀▄",
	"█▀▀▀ █▄▄▀ █  █",
	"▀▀▀▀ ▀ ▀▀ ▀  ▀",
}

// 渲染 Logo，水平居中
func renderLogo(width int) string {
	theme := getTheme()
	var result string

	for i := range logoLeft {
		left := lipgloss.NewStyle().Foreground(theme.textMuted).Render(logoLeft[i])
		right := lipgloss.NewStyle().Foreground(theme.primary).Bold(true).Render(logoRight[i])
		line := left + right
		padding := (width - lipgloss.Width(line)) / 2
		if padding > 0 {
			line = lipgloss.NewStyle().PaddingLeft(padding).Render(line)
		}
		result += line + "\n"
	}
	return result
}
