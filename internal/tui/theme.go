package tui

import "github.com/charmbracelet/lipgloss"

// Theme 定义 TUI 的颜色主题
type Theme struct {
	text      lipgloss.Color
	textMuted lipgloss.Color
	primary   lipgloss.Color
	author    lipgloss.Color
	self      lipgloss.Color
	warning   lipgloss.Color
	error     lipgloss.Color
	border    lipgloss.Color
}

// 默认暗色主题，主色为灯笼橙
func getTheme() Theme {
	return Theme{
		text:      lipgloss.Color("#e0e0e0"),
		textMuted: lipgloss.Color("#666666"),
		primary:   lipgloss.Color("#f59e0b"),
		author:    lipgloss.Color("#60a5fa"),
		self:      lipgloss.Color("#22c55e"),
		warning:   lipgloss.Color("#eab308"),
		error:     lipgloss.Color("#ef4444"),
		border:    lipgloss.Color("#333333"),
	}
}
