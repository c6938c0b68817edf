// File: internal/ui/feed.go
package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/timeline"
)

var (
	roleAssistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")).Bold(true)
	roleUserStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Bold(true)
	roleSystemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")).Bold(true)
	toolStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387"))
	streamStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	cursorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Blink(true)

	sevStyles = map[schemas.Severity]lipgloss.Style{
		schemas.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true),
		schemas.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387")).Bold(true),
		schemas.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")),
		schemas.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA")),
		schemas.SeverityInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086")),
	}
)

func severityBadge(raw string) string {
	sev := schemas.NormalizeSeverity(raw)
	return sevStyles[sev].Render(strings.ToUpper(string(sev)))
}

// renderFeed turns the composed entries into the viewport body.
func (m *Model) renderFeed() string {
	var b strings.Builder
	for _, e := range m.entries {
		switch e.Kind {
		case timeline.KindChat:
			b.WriteString(m.renderChatEntry(e))
		case timeline.KindTool:
			b.WriteString(m.renderToolEntry(e))
		case timeline.KindVuln:
			b.WriteString(m.renderVulnEntry(e))
		case timeline.KindStream:
			b.WriteString(streamStyle.Render(fmt.Sprintf("… %s", e.AgentID)))
			b.WriteRune('\n')
			b.WriteString(dimStyle.Render(e.StreamText))
			b.WriteRune('\n')
		case timeline.KindCursor:
			b.WriteString(cursorStyle.Render("▌"))
			b.WriteRune('\n')
		}
		b.WriteRune('\n')
	}
	if len(m.entries) == 0 {
		b.WriteString(dimStyle.Render("(waiting for activity)"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Model) renderChatEntry(e timeline.Entry) string {
	msg := e.Chat
	var role string
	switch msg.Role {
	case "assistant":
		role = roleAssistantStyle.Render("assistant")
	case "user":
		role = roleUserStyle.Render("user")
	default:
		role = roleSystemStyle.Render(msg.Role)
	}
	header := role
	if msg.AgentID != nil && *msg.AgentID != "" {
		header += dimStyle.Render(" · " + *msg.AgentID)
	}
	return header + "\n" + m.renderer.Render(msg.Content) + "\n"
}

func (m *Model) renderToolEntry(e timeline.Entry) string {
	tool := e.Tool
	line := toolStyle.Render("⚙ "+tool.ToolName) + dimStyle.Render(fmt.Sprintf(" · %s · %s", tool.AgentID, tool.Status))
	summary := tool.SummaryText()
	if summary == "" {
		return line + "\n"
	}
	return line + "\n" + dimStyle.Render(truncate(summary, 300)) + "\n"
}

func (m *Model) renderVulnEntry(e timeline.Entry) string {
	v := e.Vuln
	header := severityBadge(v.Severity) + " " + headerStyle.Render(v.Title)
	if v.CVSS != nil {
		header += dimStyle.Render(fmt.Sprintf(" (CVSS %.1f)", *v.CVSS))
	}
	if v.Description == "" {
		return header + "\n"
	}
	return header + "\n" + m.renderer.Render(v.Description) + "\n"
}

// --- Agent pane ---

// agentRow is one line of the flattened agent forest.
type agentRow struct {
	index int
	depth int
}

// flattenAgents orders the agents as a forest: roots in arrival order, each
// followed by its subtree. An unresolvable parent id makes the agent a
// root.
func flattenAgents(agents []schemas.Agent) []agentRow {
	byID := make(map[string]int, len(agents))
	for i, a := range agents {
		byID[a.ID] = i
	}
	children := make(map[string][]int)
	var roots []int
	for i, a := range agents {
		if a.ParentID != nil {
			if _, ok := byID[*a.ParentID]; ok && *a.ParentID != a.ID {
				children[*a.ParentID] = append(children[*a.ParentID], i)
				continue
			}
		}
		roots = append(roots, i)
	}

	rows := make([]agentRow, 0, len(agents))
	seen := make(map[int]bool, len(agents))
	var walk func(idx, depth int)
	walk = func(idx, depth int) {
		if seen[idx] {
			return
		}
		seen[idx] = true
		rows = append(rows, agentRow{index: idx, depth: depth})
		for _, child := range children[agents[idx].ID] {
			walk(child, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	// Cycles leave orphans behind; surface them as roots rather than drop.
	for i := range agents {
		if !seen[i] {
			walk(i, 0)
		}
	}
	return rows
}

func (m Model) renderAgentPane(width int) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Agents"))
	b.WriteRune('\n')

	if len(m.snap.Agents) == 0 {
		b.WriteString(dimStyle.Render("  (none yet)"))
		return b.String()
	}

	for _, row := range flattenAgents(m.snap.Agents) {
		a := m.snap.Agents[row.index]
		cursor := "  "
		if row.index == m.selectedAgent {
			cursor = "> "
		}
		indent := strings.Repeat("  ", row.depth)
		marker := statusMarker(a.Status)
		extras := ""
		if a.Compacting {
			extras += dimStyle.Render(" ⊜")
		}
		if _, ok := m.snap.ScreenshotAgents[a.ID]; ok {
			extras += dimStyle.Render(" ◉")
		}
		label := a.Name
		if label == "" {
			label = a.ID
		}
		line := cursor + indent + marker + " " + label + dimStyle.Render(fmt.Sprintf(" (%d)", a.ToolCount)) + extras
		b.WriteString(padLine(line, width))
		b.WriteRune('\n')

		if row.index == m.selectedAgent && a.Task != "" {
			task := truncate(a.Task, m.uiCfg.TaskTruncate)
			b.WriteString(padLine("    "+dimStyle.Render(task), width))
			b.WriteRune('\n')
		}
	}

	if stream, ok := m.snap.Streaming[m.snap.Agents[m.selectedAgent].ID]; ok && stream != "" {
		b.WriteRune('\n')
		b.WriteString(streamStyle.Render("streaming…"))
		b.WriteRune('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusMarker(status string) string {
	switch schemas.AgentStatus(strings.ToLower(status)) {
	case schemas.AgentRunning:
		return runningStyle.Render("●")
	case schemas.AgentCompleted:
		return dimStyle.Render("✓")
	case schemas.AgentFailed:
		return failedStyle.Render("✗")
	case schemas.AgentStopped:
		return stoppedStyle.Render("■")
	default:
		return dimStyle.Render("○")
	}
}

// --- Findings / report / config panes ---

func (m Model) renderVulns() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Findings"))
	b.WriteRune('\n')

	if len(m.snap.Vulnerabilities) == 0 {
		b.WriteString(dimStyle.Render("  (no findings reported)"))
		return b.String()
	}

	for i := range m.snap.Vulnerabilities {
		v := &m.snap.Vulnerabilities[i]
		b.WriteString(severityBadge(v.Severity))
		b.WriteString(" ")
		b.WriteString(headerStyle.Render(v.Title))
		if v.CVSS != nil {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" (CVSS %.1f)", *v.CVSS)))
		}
		if v.Endpoint != "" {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s %s", v.Method, v.Endpoint)))
		}
		b.WriteRune('\n')
		if v.Description != "" {
			b.WriteString(m.renderer.Render(v.Description))
			b.WriteRune('\n')
		}
		for _, section := range []struct{ label, text string }{
			{"Impact", v.Impact},
			{"Analysis", v.TechnicalAnalysis},
			{"PoC", v.POC},
			{"Remediation", v.Remediation},
		} {
			if section.text == "" {
				continue
			}
			b.WriteString(headerStyle.Render(section.label))
			b.WriteRune('\n')
			b.WriteString(m.renderer.Render(section.text))
			b.WriteRune('\n')
		}
		b.WriteRune('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderReport() string {
	text := schemas.FinalReportText(m.snap.FinalReport)
	if text == "" {
		return dimStyle.Render("  (no final report yet)")
	}
	return m.renderer.Render(text)
}

func (m Model) renderScanConfig() string {
	if len(m.snap.ScanConfig) == 0 {
		return dimStyle.Render("  (no scan config received)")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Scan Config"))
	b.WriteRune('\n')
	for _, key := range sortedKeys(m.snap.ScanConfig) {
		b.WriteString(fmt.Sprintf("  %s: %v\n", dimStyle.Render(key), m.snap.ScanConfig[key]))
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
