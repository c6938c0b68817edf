// File: internal/timeline/composer.go

// Package timeline merges the three append-only histories (chat, tools,
// vulnerabilities) and the live streaming map into one strictly ordered
// display feed.
package timeline

import (
	"hash/fnv"
	"sort"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/state"
)

// EntryKind discriminates feed entries.
type EntryKind string

const (
	KindChat   EntryKind = "chat"
	KindTool   EntryKind = "tool"
	KindVuln   EntryKind = "vuln"
	KindStream EntryKind = "stream"
	KindCursor EntryKind = "cursor"
)

// Entry is one row of the composed feed. Exactly one of the payload
// pointers is set, matching Kind; stream entries carry the agent id and the
// truncated tail instead.
type Entry struct {
	Kind      EntryKind
	Timestamp string

	Chat      *schemas.ChatMessage
	Tool      *schemas.ToolExecution
	Vuln      *schemas.Vulnerability
	VulnIndex int

	AgentID    string
	StreamText string
}

// Composer turns store snapshots into feeds and decides when recomposition
// is worth doing.
type Composer struct {
	tailLimit int

	primed bool
	last   signature
	dirty  bool
}

// signature is the cheap change detector. Entry counts catch appends;
// field-level edits to existing rows do not happen in this protocol.
// Streaming is wholesale-replaced each update, so its identity is a digest
// over the ids and their partial texts: any replacement that changes what
// would be displayed moves the digest.
type signature struct {
	entries      int
	streaming    int
	streamDigest uint64
	terminal     bool
}

// NewComposer creates a Composer. tailLimit caps how many trailing
// characters of an in-progress response are kept per stream entry.
func NewComposer(tailLimit int) *Composer {
	if tailLimit <= 0 {
		tailLimit = 500
	}
	return &Composer{tailLimit: tailLimit}
}

// Invalidate forces the next ShouldCompose to report true regardless of the
// signature. Used for agent reselection and other presentation-only changes.
func (c *Composer) Invalidate() {
	c.dirty = true
}

// ShouldCompose reports whether the feed derived from snap would differ
// from the last composed one. It consumes the dirty flag and records the
// new signature when it returns true.
func (c *Composer) ShouldCompose(snap state.Snapshot) bool {
	ids := snap.StreamingIDs()
	digest := fnv.New64a()
	for _, id := range ids {
		digest.Write([]byte(id))
		digest.Write([]byte{0})
		digest.Write([]byte(snap.Streaming[id]))
		digest.Write([]byte{0})
	}
	sig := signature{
		entries:      len(snap.Chat) + len(snap.Tools) + len(snap.Vulnerabilities),
		streaming:    len(ids),
		streamDigest: digest.Sum64(),
		terminal:     snap.Terminal(),
	}
	if c.primed && !c.dirty && sig == c.last {
		return false
	}
	c.primed = true
	c.last = sig
	c.dirty = false
	return true
}

// Compose builds the ordered feed. It is a pure function of the snapshot.
//
// Historical entries sort by timestamp string; ISO-8601 strings compare
// correctly as time order. An entry with a timestamp sorts before one
// without. Ties and the all-untimestamped case fall back to accumulation
// order via the stable sort. Streaming tails follow in sorted agent id
// order, and a live cursor closes the feed while the run is not terminal.
func (c *Composer) Compose(snap state.Snapshot) []Entry {
	entries := make([]Entry, 0, len(snap.Chat)+len(snap.Tools)+len(snap.Vulnerabilities)+len(snap.Streaming)+1)

	for i := range snap.Chat {
		msg := &snap.Chat[i]
		entries = append(entries, Entry{Kind: KindChat, Timestamp: msg.Timestamp, Chat: msg})
	}
	for i := range snap.Tools {
		tool := &snap.Tools[i]
		entries = append(entries, Entry{Kind: KindTool, Timestamp: tool.Timestamp, Tool: tool})
	}
	for i := range snap.Vulnerabilities {
		vuln := &snap.Vulnerabilities[i]
		entries = append(entries, Entry{Kind: KindVuln, Timestamp: vuln.EffectiveTimestamp(), Vuln: vuln, VulnIndex: i})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].Timestamp, entries[j].Timestamp
		switch {
		case a != "" && b != "":
			return a < b
		case a != "":
			return true
		default:
			return false
		}
	})

	for _, id := range snap.StreamingIDs() {
		entries = append(entries, Entry{
			Kind:       KindStream,
			AgentID:    id,
			StreamText: Tail(snap.Streaming[id], c.tailLimit),
		})
	}

	if !snap.Terminal() {
		entries = append(entries, Entry{Kind: KindCursor})
	}
	return entries
}

// Tail returns the last limit characters of s. Truncation counts runes so a
// multi-byte character is never split.
func Tail(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[len(runes)-limit:])
}
