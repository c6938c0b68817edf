// File: internal/ui/view.go
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/gateway"
)

// chromeHeight is the vertical space taken by the title bar, tab bar, stat
// cards, and status bar around the main pane.
const chromeHeight = 7

// treePaneWidth sizes the left agent pane from the terminal width.
func treePaneWidth(total int) int {
	w := total / 3
	if w < 24 {
		w = 24
	}
	if w > 44 {
		w = 44
	}
	return w
}

// --- Styles ---

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#6C7086")).
				Background(lipgloss.Color("#313244")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#89B4FA"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C7086"))

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6E3A1")).
			Bold(true)

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F38BA8")).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAB387"))

	cardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CDD6F4")).
			Background(lipgloss.Color("#1E1E2E"))
)

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	var b strings.Builder
	b.WriteString(m.renderTitleBar())
	b.WriteRune('\n')
	b.WriteString(m.renderTabBar())
	b.WriteRune('\n')
	b.WriteString(m.renderStatCards())
	b.WriteRune('\n')
	b.WriteRune('\n')

	var content string
	switch m.activeView {
	case viewFeed:
		content = m.renderSplit()
	case viewVulns:
		content = m.renderVulns()
	case viewReport:
		content = m.renderReport()
	case viewConfig:
		content = m.renderScanConfig()
	}
	content = clipHeight(content, m.height-chromeHeight)
	content = truncateLines(content, m.width)
	b.WriteString(content)

	rendered := strings.Count(b.String(), "\n")
	for rendered < m.height-2 {
		b.WriteRune('\n')
		rendered++
	}

	if m.showHelp {
		b.WriteString(m.help.View(keys))
	} else {
		b.WriteString(m.renderStatusBar())
	}
	return b.String()
}

func (m Model) renderTitleBar() string {
	title := titleStyle.Render("lancet")
	name := ""
	if m.snap.Stats != nil && m.snap.Stats.RunName != "" {
		name = dimStyle.Render(" " + m.snap.Stats.RunName)
	}
	badge := m.statusBadge()
	left := title + name
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(badge)-1))
	return left + gap + badge
}

// statusBadge combines the run status with the connection phase. The run
// badge dominates once terminal; otherwise a non-open socket shows through.
func (m Model) statusBadge() string {
	if m.snap.Terminal() {
		switch m.snap.Status() {
		case string(schemas.AgentFailed):
			return failedStyle.Render("FAILED")
		case string(schemas.AgentStopped):
			return stoppedStyle.Render("STOPPED")
		default:
			return runningStyle.Render("COMPLETED")
		}
	}
	switch m.client.Phase() {
	case gateway.StateOpen:
		return runningStyle.Render("LIVE")
	case gateway.StateConnecting:
		return stoppedStyle.Render("CONNECTING")
	default:
		return failedStyle.Render("RECONNECTING")
	}
}

func (m Model) renderTabBar() string {
	var tabs []string
	for v := viewID(0); v < viewCount; v++ {
		label := v.String()
		if v == viewVulns {
			label = fmt.Sprintf("%s (%d)", label, len(m.snap.Vulnerabilities))
		}
		if v == m.activeView {
			tabs = append(tabs, tabActiveStyle.Render(label))
		} else {
			tabs = append(tabs, tabInactiveStyle.Render(label))
		}
	}
	return strings.Join(tabs, " ")
}

// renderStatCards shows the aggregate counters in one row.
func (m Model) renderStatCards() string {
	stats := m.snap.Stats
	cards := []string{
		cardStyle.Render(fmt.Sprintf("agents %d", len(m.snap.Agents))),
		cardStyle.Render(fmt.Sprintf("tools %d", len(m.snap.Tools))),
		cardStyle.Render(fmt.Sprintf("vulns %d", len(m.snap.Vulnerabilities))),
	}
	if stats != nil {
		cards = append(cards,
			cardStyle.Render(fmt.Sprintf("tokens %s", formatCount(stats.LLM.Total.InputTokens+stats.LLM.Total.OutputTokens))),
			cardStyle.Render(fmt.Sprintf("cost $%.2f", stats.LLM.Total.Cost)),
		)
		if stats.TokensPerSecond > 0 {
			cards = append(cards, cardStyle.Render(fmt.Sprintf("%.0f tok/s", stats.TokensPerSecond)))
		}
		if stats.ContextLimit > 0 {
			used := stats.MaxContextTokens
			if used == 0 {
				used = stats.LLM.MaxContextTokens
			}
			cards = append(cards, cardStyle.Render(fmt.Sprintf("ctx %s/%s", formatCount(used), formatCount(stats.ContextLimit))))
		}
		if elapsed := runElapsed(stats); elapsed != "" {
			cards = append(cards, cardStyle.Render("elapsed "+elapsed))
		}
	}
	return strings.Join(cards, " ")
}

func (m Model) renderStatusBar() string {
	left := " tab: views | J/K: agent | s: screenshot | ?: help | q: quit"
	right := m.status
	if right == "" {
		right = fmt.Sprintf("socket %s, attempt %d", m.client.Phase(), m.client.Attempts())
	}
	right += " "
	gap := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return statusBarStyle.Render(left + gap + right)
}

// renderSplit lays the agent pane and the feed side by side.
func (m Model) renderSplit() string {
	treeWidth := treePaneWidth(m.width)
	tree := m.renderAgentPane(treeWidth)
	feed := m.feed.View()

	treeLines := strings.Split(tree, "\n")
	feedLines := strings.Split(feed, "\n")
	rows := max(len(treeLines), len(feedLines))
	sep := dimStyle.Render("│")

	var b strings.Builder
	for i := 0; i < rows; i++ {
		var left, right string
		if i < len(treeLines) {
			left = treeLines[i]
		}
		if i < len(feedLines) {
			right = feedLines[i]
		}
		b.WriteString(padLine(left, treeWidth))
		b.WriteString(" ")
		b.WriteString(sep)
		b.WriteString(" ")
		b.WriteString(right)
		b.WriteRune('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// --- Helpers ---

func clipHeight(content string, height int) string {
	if height <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

// truncateLines trims every line to the terminal width so resizes never
// cause hard wrapping. ANSI-aware.
func truncateLines(content string, width int) string {
	if width <= 0 {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if lipgloss.Width(line) > width {
			lines[i] = ansi.Truncate(line, width, "")
		}
	}
	return strings.Join(lines, "\n")
}

// padLine pads or trims a styled line to the target visible width.
func padLine(line string, width int) string {
	w := lipgloss.Width(line)
	if w > width {
		return ansi.Truncate(line, width, "…")
	}
	return line + strings.Repeat(" ", width-w)
}

func formatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// runElapsed derives the elapsed time from the stats anchors. Timestamps
// are RFC3339 strings on the wire; unparseable anchors yield "".
func runElapsed(stats *schemas.RunStats) string {
	if stats.StartTime == "" {
		return ""
	}
	start, err := time.Parse(time.RFC3339, stats.StartTime)
	if err != nil {
		return ""
	}
	end := time.Now()
	if stats.EndTime != "" {
		if t, err := time.Parse(time.RFC3339, stats.EndTime); err == nil {
			end = t
		}
	}
	d := end.Sub(start).Truncate(time.Second)
	if d < 0 {
		return ""
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
