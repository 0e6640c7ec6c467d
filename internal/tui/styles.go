package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorText    = lipgloss.Color("#cdd6f4")
	colorSubtext = lipgloss.Color("#a6adc8")
	colorOverlay = lipgloss.Color("#7f849c")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorYellow  = lipgloss.Color("#f9e2af")
	colorRed     = lipgloss.Color("#f38ba8")
	colorBlue    = lipgloss.Color("#89b4fa")
	colorPeach   = lipgloss.Color("#fab387")
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorBlue).MarginBottom(1)
	infoStyle     = lipgloss.NewStyle().Foreground(colorSubtext)
	labelStyle    = lipgloss.NewStyle().Foreground(colorText).Width(30)
	resultStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorGreen)
	noticeStyle   = lipgloss.NewStyle().Foreground(colorPeach).MarginTop(1)
	dimStyle      = lipgloss.NewStyle().Foreground(colorOverlay)
	cursorStyle   = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorOverlay).Padding(0, 1)
	statusOK      = lipgloss.NewStyle().Foreground(colorGreen)
	statusWarn    = lipgloss.NewStyle().Foreground(colorYellow)
	statusBad     = lipgloss.NewStyle().Foreground(colorRed)
	disabledStyle = lipgloss.NewStyle().Foreground(colorOverlay).Strikethrough(true)
)
