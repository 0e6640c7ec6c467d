package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/Station-Manager/elm327"
	"github.com/Station-Manager/elm327/params"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	var keys help.KeyMap = mainKeys{m.keys}
	switch m.screen {
	case screenDevices:
		body = m.devicesView()
		keys = deviceKeys{m.keys}
	case screenParams:
		body = m.paramsView()
		keys = paramKeys{m.keys}
	case screenEnable:
		body = panelStyle.Render("Bluetooth is turned off. Turn it on? (y/n)")
	default:
		body = m.mainView()
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(body)
	if m.busy != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render(m.busy))
	}
	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(noticeStyle.Render(m.notice))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m Model) mainView() string {
	var lines []string
	if m.info == "" {
		lines = append(lines, dimStyle.Render("No device chosen"))
	} else {
		lines = append(lines, infoStyle.Render(m.info))
	}
	lines = append(lines, m.statusLine(), "")

	for i, label := range m.labels {
		if label == "" {
			continue
		}
		result := ""
		if i < len(m.results) {
			result = m.results[i]
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(label), resultStyle.Render(result)))
	}
	if m.snapshot != nil {
		lines = append(lines, "", healthLine(m.snapshot))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) statusLine() string {
	switch {
	case m.ctrl.Polling():
		return statusOK.Render("● polling")
	case m.ctrl.Connected():
		return statusWarn.Render("● connected")
	default:
		return statusBad.Render("○ disconnected")
	}
}

func healthLine(s *elm327.MetricsSnapshot) string {
	style := statusOK
	switch elm327.HealthStatus(s.HealthStatus) {
	case elm327.HealthStatusDegraded:
		style = statusWarn
	case elm327.HealthStatusUnhealthy, elm327.HealthStatusDown:
		style = statusBad
	}
	return fmt.Sprintf("%s  %s",
		style.Render("link "+s.HealthStatus),
		dimStyle.Render(fmt.Sprintf("avg read %s  %.0f B/s  errors %.1f%%",
			s.AverageReadLatency.Round(time.Millisecond), s.BytesPerSecond, s.ErrorRate)))
}

func (m Model) devicesView() string {
	var b strings.Builder
	b.WriteString("Paired devices\n\n")
	for i, d := range m.devices {
		line := fmt.Sprintf("%s  %s", d.Name, dimStyle.Render(d.Address))
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("> ") + line)
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) paramsView() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Parameters (%d-%d)\n\n", params.MinSelected, params.MaxSelected)
	full := m.picked.Len() >= params.MaxSelected
	for i, name := range params.Names() {
		checked := m.picked.Contains(name)
		box := "[ ]"
		if checked {
			box = "[x]"
		}
		label := name
		if full && !checked {
			label = disabledStyle.Render(name)
		}
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + box + " " + label + "\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}
