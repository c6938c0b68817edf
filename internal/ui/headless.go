// File: internal/ui/headless.go
package ui

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/gateway"
	"github.com/xkilldash9x/lancet/internal/state"
	"github.com/xkilldash9x/lancet/internal/timeline"
)

// Headless tails the run as plain text lines instead of drawing the TUI.
// Useful for piping a run into a file or another terminal.
type Headless struct {
	store    *state.Store
	client   *gateway.Client
	composer *timeline.Composer
	out      io.Writer
	logger   *zap.Logger

	printedChat  int
	printedTools int
	printedVulns int
}

// NewHeadless builds a headless follower writing to out.
func NewHeadless(store *state.Store, client *gateway.Client, tailLimit int, out io.Writer, logger *zap.Logger) *Headless {
	return &Headless{
		store:    store,
		client:   client,
		composer: timeline.NewComposer(tailLimit),
		out:      out,
		logger:   logger.Named("headless"),
	}
}

// Run prints feed entries as they arrive until the run reaches a terminal
// state or ctx is canceled.
func (h *Headless) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.client.Changes():
		}

		snap := h.store.Snapshot()
		if !h.composer.ShouldCompose(snap) {
			continue
		}
		h.printNew(snap)

		if snap.Terminal() {
			if report := schemas.FinalReportText(snap.FinalReport); report != "" {
				fmt.Fprintf(h.out, "\n--- final report ---\n%s\n", report)
			}
			fmt.Fprintf(h.out, "run %s\n", snap.Status())
			return nil
		}
	}
}

// printNew emits the entries appended since the last call. Progress is
// tracked per source slice, not by position in the composed feed: a late
// arrival with an older timestamp sorts before already-printed rows there,
// which would shift a feed index past it. The new entries are ordered among
// themselves by composing just the unprinted suffixes. Stream tails and the
// cursor are display-only churn and are skipped.
func (h *Headless) printNew(snap state.Snapshot) {
	// A full resync can shrink the histories.
	h.printedChat = min(h.printedChat, len(snap.Chat))
	h.printedTools = min(h.printedTools, len(snap.Tools))
	h.printedVulns = min(h.printedVulns, len(snap.Vulnerabilities))

	fresh := state.Snapshot{
		Chat:            snap.Chat[h.printedChat:],
		Tools:           snap.Tools[h.printedTools:],
		Vulnerabilities: snap.Vulnerabilities[h.printedVulns:],
	}
	h.printedChat = len(snap.Chat)
	h.printedTools = len(snap.Tools)
	h.printedVulns = len(snap.Vulnerabilities)

	for _, e := range h.composer.Compose(fresh) {
		switch e.Kind {
		case timeline.KindChat, timeline.KindTool, timeline.KindVuln:
			fmt.Fprintln(h.out, formatEntry(e))
		}
	}
}

func formatEntry(e timeline.Entry) string {
	switch e.Kind {
	case timeline.KindChat:
		agent := ""
		if e.Chat.AgentID != nil && *e.Chat.AgentID != "" {
			agent = " " + *e.Chat.AgentID
		}
		return fmt.Sprintf("[%s%s] %s", e.Chat.Role, agent, e.Chat.Content)
	case timeline.KindTool:
		line := fmt.Sprintf("[tool] %s agent=%s status=%s", e.Tool.ToolName, e.Tool.AgentID, e.Tool.Status)
		if summary := e.Tool.SummaryText(); summary != "" {
			line += " " + truncate(summary, 200)
		}
		return line
	case timeline.KindVuln:
		return fmt.Sprintf("[vuln] %s %s", schemas.NormalizeSeverity(e.Vuln.Severity), e.Vuln.Title)
	default:
		return ""
	}
}
