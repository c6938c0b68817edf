// File: internal/ui/model.go

// Package ui is the terminal dashboard: a live feed of the remote run plus
// agent, vulnerability, and report panes. All state comes from store
// snapshots; the model never mutates the store.
package ui

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/gateway"
	"github.com/xkilldash9x/lancet/internal/markdown"
	"github.com/xkilldash9x/lancet/internal/screenshot"
	"github.com/xkilldash9x/lancet/internal/state"
	"github.com/xkilldash9x/lancet/internal/timeline"
)

// --- Messages ---

// changedMsg signals that the store or connection phase moved.
type changedMsg struct{}

// shotMsg carries the outcome of a screenshot fetch.
type shotMsg struct {
	agentID string
	path    string
	width   int
	height  int
	err     error
}

type tickMsg struct{}

// --- Key bindings ---

type keyMap struct {
	Quit       key.Binding
	Tab        key.Binding
	Up         key.Binding
	Down       key.Binding
	NextAgent  key.Binding
	PrevAgent  key.Binding
	Screenshot key.Binding
	Bottom     key.Binding
	Help       key.Binding
}

var keys = keyMap{
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Tab:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("k/up", "scroll up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("j/down", "scroll down")),
	NextAgent:  key.NewBinding(key.WithKeys("J", "right"), key.WithHelp("J", "next agent")),
	PrevAgent:  key.NewBinding(key.WithKeys("K", "left"), key.WithHelp("K", "prev agent")),
	Screenshot: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "save screenshot")),
	Bottom:     key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "jump to bottom")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Screenshot, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.Up, k.Down, k.Bottom},
		{k.NextAgent, k.PrevAgent, k.Screenshot, k.Quit},
	}
}

// --- Views ---

type viewID int

const (
	viewFeed viewID = iota
	viewVulns
	viewReport
	viewConfig
	viewCount
)

func (v viewID) String() string {
	switch v {
	case viewFeed:
		return "Feed"
	case viewVulns:
		return "Findings"
	case viewReport:
		return "Report"
	case viewConfig:
		return "Config"
	}
	return "?"
}

// --- Model ---

// Model is the bubbletea model for the dashboard.
type Model struct {
	store    *state.Store
	client   *gateway.Client
	fetcher  *screenshot.Fetcher
	composer *timeline.Composer
	logger   *zap.Logger
	uiCfg    config.UIConfig

	snap    state.Snapshot
	entries []timeline.Entry

	activeView    viewID
	width         int
	height        int
	selectedAgent int
	showHelp      bool

	feed     viewport.Model
	renderer *markdown.Renderer
	help     help.Model

	// status is a transient one-line notice (screenshot saved, fetch
	// failed) shown in the status bar until the next one replaces it.
	status string
}

// NewModel wires the dashboard together. The gateway and fetcher must
// already be constructed; the caller starts the gateway loop.
func NewModel(store *state.Store, client *gateway.Client, fetcher *screenshot.Fetcher, uiCfg config.UIConfig, logger *zap.Logger) Model {
	vp := viewport.New(80, 20)
	return Model{
		store:    store,
		client:   client,
		fetcher:  fetcher,
		composer: timeline.NewComposer(uiCfg.StreamTailLimit),
		logger:   logger.Named("ui"),
		uiCfg:    uiCfg,
		snap:     store.Snapshot(),
		feed:     vp,
		renderer: markdown.NewRenderer(78),
		help:     help.New(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), tickEvery())
}

// waitForChange blocks on the gateway's coalesced change channel.
func (m Model) waitForChange() tea.Cmd {
	ch := m.client.Changes()
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.layout()
		m.refreshFeed(true)

	case changedMsg:
		if m.composer.ShouldCompose(m.store.Snapshot()) {
			m.snap = m.store.Snapshot()
			m.entries = m.composer.Compose(m.snap)
			m.clampSelection()
			m.refreshFeed(false)
		} else {
			// Phase flips and stats churn still move the chrome. The agent
			// list can shrink here too, so the selection must be re-clamped
			// before the next render indexes into it.
			m.snap = m.store.Snapshot()
			m.clampSelection()
		}
		return m, m.waitForChange()

	case shotMsg:
		switch {
		case msg.err != nil:
			m.status = fmt.Sprintf("screenshot %s: %v", msg.agentID, msg.err)
		case msg.width > 0:
			m.status = fmt.Sprintf("screenshot saved: %s (%dx%d)", msg.path, msg.width, msg.height)
		default:
			m.status = fmt.Sprintf("screenshot saved: %s", msg.path)
		}

	case tickMsg:
		return m, tickEvery()
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		m.activeView = (m.activeView + 1) % viewCount

	case key.Matches(msg, keys.Up):
		m.feed.LineUp(1)

	case key.Matches(msg, keys.Down):
		m.feed.LineDown(1)

	case key.Matches(msg, keys.Bottom):
		m.feed.GotoBottom()

	case key.Matches(msg, keys.NextAgent):
		if m.selectedAgent < len(m.snap.Agents)-1 {
			m.selectedAgent++
			m.composer.Invalidate()
		}

	case key.Matches(msg, keys.PrevAgent):
		if m.selectedAgent > 0 {
			m.selectedAgent--
			m.composer.Invalidate()
		}

	case key.Matches(msg, keys.Screenshot):
		return m, m.fetchScreenshot()

	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
	}
	return m, nil
}

// fetchScreenshot saves the selected agent's latest capture to a PNG next
// to the working directory. Fetches carry no sequencing token; with rapid
// reselection the last response to land wins.
func (m Model) fetchScreenshot() tea.Cmd {
	if m.fetcher == nil || len(m.snap.Agents) == 0 {
		return nil
	}
	agentID := m.snap.Agents[m.selectedAgent].ID
	if _, ok := m.snap.ScreenshotAgents[agentID]; !ok {
		status := fmt.Sprintf("agent %s has no screenshots", agentID)
		return func() tea.Msg { return shotMsg{agentID: agentID, err: fmt.Errorf("%s", status)} }
	}
	fetcher := m.fetcher
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		res, err := fetcher.Fetch(ctx, agentID)
		if err != nil {
			return shotMsg{agentID: agentID, err: err}
		}
		if res.PNG == nil {
			return shotMsg{agentID: agentID, err: fmt.Errorf("no capture available")}
		}
		path := fmt.Sprintf("lancet-%s.png", agentID)
		if err := os.WriteFile(path, res.PNG, 0o644); err != nil {
			return shotMsg{agentID: agentID, err: err}
		}
		msg := shotMsg{agentID: agentID, path: path}
		if cfg, err := png.DecodeConfig(bytes.NewReader(res.PNG)); err == nil {
			msg.width = cfg.Width
			msg.height = cfg.Height
		}
		return msg
	}
}

// layout recomputes pane sizes from the window size.
func (m *Model) layout() {
	feedWidth := m.width - treePaneWidth(m.width) - 3
	if feedWidth < 20 {
		feedWidth = 20
	}
	feedHeight := m.height - chromeHeight
	if feedHeight < 3 {
		feedHeight = 3
	}
	m.feed.Width = feedWidth
	m.feed.Height = feedHeight
	m.renderer = markdown.NewRenderer(feedWidth - 2)
}

// refreshFeed rebuilds the viewport content, preserving the reader's
// position: auto-scroll re-sticks only when the view was already near the
// bottom before the redraw.
func (m *Model) refreshFeed(force bool) {
	threshold := m.uiCfg.BottomThresholdLines
	if threshold <= 0 {
		threshold = 3
	}
	wasNearBottom := m.feed.AtBottom() ||
		m.feed.TotalLineCount()-(m.feed.YOffset+m.feed.Height) <= threshold

	m.feed.SetContent(m.renderFeed())

	if wasNearBottom || force {
		m.feed.GotoBottom()
	}
}

func (m *Model) clampSelection() {
	if len(m.snap.Agents) == 0 {
		m.selectedAgent = 0
	} else if m.selectedAgent >= len(m.snap.Agents) {
		m.selectedAgent = len(m.snap.Agents) - 1
	}
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
