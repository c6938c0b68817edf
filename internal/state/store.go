// File: internal/state/store.go
package state

import (
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
)

// Store is the canonical client-side mirror of the remote run. It is the
// exclusive owner of every slice; consumers only ever see deep-copied
// snapshots. The gateway goroutine is the single writer, so each inbound
// message mutates the store atomically before the next one is processed;
// the mutex exists because the UI goroutine reads concurrently.
type Store struct {
	mu     sync.RWMutex
	logger *zap.Logger

	agents           []schemas.Agent
	tools            []schemas.ToolExecution
	chat             []schemas.ChatMessage
	vulnerabilities  []schemas.Vulnerability
	streaming        map[string]string
	screenshotAgents map[string]struct{}
	stats            *schemas.RunStats
	scanConfig       schemas.ScanConfig
	finalReport      json.RawMessage
}

// NewStore creates an empty Store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		logger:           logger.Named("state"),
		streaming:        make(map[string]string),
		screenshotAgents: make(map[string]struct{}),
	}
}

// ApplyFull discards all existing state and adopts the snapshot verbatim.
// Missing fields reset to their empty form. This is the resynchronization
// mechanism: deltas missed while disconnected are made irrelevant by the
// next authoritative snapshot.
func (s *Store) ApplyFull(fs *schemas.FullState) {
	if fs == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agents = append([]schemas.Agent(nil), fs.Agents...)
	s.tools = append([]schemas.ToolExecution(nil), fs.Tools...)
	s.chat = append([]schemas.ChatMessage(nil), fs.Chat...)
	s.vulnerabilities = append([]schemas.Vulnerability(nil), fs.Vulnerabilities...)

	s.streaming = make(map[string]string, len(fs.Streaming))
	for id, text := range fs.Streaming {
		s.streaming[id] = text
	}

	s.screenshotAgents = make(map[string]struct{}, len(fs.ScreenshotAgents))
	for _, id := range fs.ScreenshotAgents {
		s.screenshotAgents[id] = struct{}{}
	}

	s.stats = cloneStats(fs.Stats)
	s.scanConfig = cloneConfig(fs.ScanConfig)
	s.finalReport = append(json.RawMessage(nil), fs.FinalReport...)

	s.logger.Debug("Adopted full state snapshot.",
		zap.Int("agents", len(s.agents)),
		zap.Int("tools", len(s.tools)),
		zap.Int("chat", len(s.chat)),
		zap.Int("vulnerabilities", len(s.vulnerabilities)))
}

// ApplyDeltas applies an ordered delta list atomically, in array order.
func (s *Store) ApplyDeltas(deltas []schemas.Delta) {
	if len(deltas) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range deltas {
		s.applyDelta(&deltas[i])
	}
}

// applyDelta is the reducer: a pure type-switch over the delta kind.
// Collections either replace wholesale or append; nothing is merged
// field-by-field. Unknown types are skipped without disturbing the rest of
// the batch. Callers hold the write lock.
func (s *Store) applyDelta(d *schemas.Delta) {
	switch d.Type {
	case schemas.DeltaAgents:
		s.agents = append([]schemas.Agent(nil), d.Agents...)

	case schemas.DeltaTools:
		s.tools = append(s.tools, d.Tools...)

	case schemas.DeltaChat:
		s.chat = append(s.chat, d.Messages...)

	case schemas.DeltaVulnerability:
		s.vulnerabilities = append(s.vulnerabilities, d.Vulnerabilities...)

	case schemas.DeltaStreaming:
		s.streaming = make(map[string]string, len(d.Streaming))
		for id, text := range d.Streaming {
			s.streaming[id] = text
		}

	case schemas.DeltaScreenshot:
		if d.AgentID != "" {
			s.screenshotAgents[d.AgentID] = struct{}{}
		}

	case schemas.DeltaStats:
		s.stats = cloneStats(d.Stats)

	case schemas.DeltaScanConfig:
		s.scanConfig = cloneConfig(d.ScanConfig)

	case schemas.DeltaScanComplete:
		// Terminal marker for the display layer. The store keeps accepting
		// later deltas; only the UI stops showing live affordances.
		s.finalReport = append(json.RawMessage(nil), d.FinalReport...)

	default:
		s.logger.Debug("Skipping unknown delta type.", zap.String("type", string(d.Type)))
	}
}

// Snapshot is a deep copy of the store, safe to read without coordination.
type Snapshot struct {
	Agents           []schemas.Agent
	Tools            []schemas.ToolExecution
	Chat             []schemas.ChatMessage
	Vulnerabilities  []schemas.Vulnerability
	Streaming        map[string]string
	ScreenshotAgents map[string]struct{}
	Stats            *schemas.RunStats
	ScanConfig       schemas.ScanConfig
	FinalReport      json.RawMessage
}

// Snapshot copies the current state. Maps and slices are duplicated so the
// caller can never alias store internals.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Agents:           append([]schemas.Agent(nil), s.agents...),
		Tools:            append([]schemas.ToolExecution(nil), s.tools...),
		Chat:             append([]schemas.ChatMessage(nil), s.chat...),
		Vulnerabilities:  append([]schemas.Vulnerability(nil), s.vulnerabilities...),
		Streaming:        make(map[string]string, len(s.streaming)),
		ScreenshotAgents: make(map[string]struct{}, len(s.screenshotAgents)),
		Stats:            cloneStats(s.stats),
		ScanConfig:       cloneConfig(s.scanConfig),
		FinalReport:      append(json.RawMessage(nil), s.finalReport...),
	}
	for id, text := range s.streaming {
		snap.Streaming[id] = text
	}
	for id := range s.screenshotAgents {
		snap.ScreenshotAgents[id] = struct{}{}
	}
	return snap
}

// Status derives the run status. It is not an independent state machine:
// it reads stats.status, defaulting to running while no stats have arrived.
func (snap Snapshot) Status() string {
	if snap.Stats == nil || snap.Stats.Status == "" {
		return string(schemas.AgentRunning)
	}
	return snap.Stats.Status
}

// Terminal reports whether the run is over for UI purposes: a terminal
// status or a present final report. The store itself never locks.
func (snap Snapshot) Terminal() bool {
	if snap.HasFinalReport() {
		return true
	}
	return schemas.TerminalStatus(snap.Status())
}

// HasFinalReport reports whether scan_complete (or a snapshot carrying a
// report) has been observed.
func (snap Snapshot) HasFinalReport() bool {
	return len(snap.FinalReport) > 0 && string(snap.FinalReport) != "null"
}

// StreamingIDs returns the ids with non-empty in-progress text in sorted
// order, giving map iteration a deterministic stand-in.
func (snap Snapshot) StreamingIDs() []string {
	ids := make([]string, 0, len(snap.Streaming))
	for id, text := range snap.Streaming {
		if text != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func cloneStats(in *schemas.RunStats) *schemas.RunStats {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneConfig(in schemas.ScanConfig) schemas.ScanConfig {
	if in == nil {
		return nil
	}
	out := make(schemas.ScanConfig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
