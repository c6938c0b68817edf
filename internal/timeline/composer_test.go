// File: internal/timeline/composer_test.go
package timeline

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/state"
)

func composeFrom(t *testing.T, deltas ...schemas.Delta) []Entry {
	t.Helper()
	store := state.NewStore(zap.NewNop())
	store.ApplyDeltas(deltas)
	return NewComposer(500).Compose(store.Snapshot())
}

func kinds(entries []Entry) []EntryKind {
	out := make([]EntryKind, len(entries))
	for i, e := range entries {
		out[i] = e.Kind
	}
	return out
}

func TestTimestampedEntriesSortLexicographically(t *testing.T) {
	entries := composeFrom(t,
		schemas.Delta{Type: schemas.DeltaChat, Messages: []schemas.ChatMessage{
			{Role: "user", Content: "later", Timestamp: "2024-01-01T00:00:02Z"},
		}},
		schemas.Delta{Type: schemas.DeltaTools, Tools: []schemas.ToolExecution{
			{ToolName: "scan", Timestamp: "2024-01-01T00:00:01Z"},
		}},
	)

	require.Len(t, entries, 3) // tool, chat, cursor
	assert.Equal(t, KindTool, entries[0].Kind)
	assert.Equal(t, KindChat, entries[1].Kind)
	assert.Equal(t, KindCursor, entries[2].Kind)
}

func TestTimestampedSortsBeforeUntimestamped(t *testing.T) {
	// The untimestamped entry arrives first but must sort after.
	entries := composeFrom(t,
		schemas.Delta{Type: schemas.DeltaChat, Messages: []schemas.ChatMessage{
			{Role: "system", Content: "no time"},
		}},
		schemas.Delta{Type: schemas.DeltaChat, Messages: []schemas.ChatMessage{
			{Role: "user", Content: "timed", Timestamp: "2024-01-01T00:00:01Z"},
		}},
	)

	require.Len(t, entries, 3)
	assert.Equal(t, "timed", entries[0].Chat.Content)
	assert.Equal(t, "no time", entries[1].Chat.Content)
}

func TestUntimestampedEntriesKeepArrivalOrder(t *testing.T) {
	entries := composeFrom(t,
		schemas.Delta{Type: schemas.DeltaChat, Messages: []schemas.ChatMessage{
			{Role: "user", Content: "first"},
			{Role: "user", Content: "second"},
			{Role: "user", Content: "third"},
		}},
	)

	require.Len(t, entries, 4)
	assert.Equal(t, "first", entries[0].Chat.Content)
	assert.Equal(t, "second", entries[1].Chat.Content)
	assert.Equal(t, "third", entries[2].Chat.Content)
}

func TestVulnerabilityFallsBackToDiscoveredAt(t *testing.T) {
	entries := composeFrom(t,
		schemas.Delta{Type: schemas.DeltaChat, Messages: []schemas.ChatMessage{
			{Role: "user", Content: "late", Timestamp: "2024-01-01T00:00:05Z"},
		}},
		schemas.Delta{Type: schemas.DeltaVulnerability, Vulnerabilities: []schemas.Vulnerability{
			{Title: "SQLi", DiscoveredAt: "2024-01-01T00:00:01Z"},
		}},
	)

	require.Len(t, entries, 3)
	assert.Equal(t, KindVuln, entries[0].Kind)
	assert.Equal(t, 0, entries[0].VulnIndex)
	assert.Equal(t, KindChat, entries[1].Kind)
}

func TestStreamingEntriesAppendedInSortedIDOrder(t *testing.T) {
	entries := composeFrom(t,
		schemas.Delta{Type: schemas.DeltaStreaming, Streaming: map[string]string{
			"b2": "beta", "a1": "alpha", "c3": "",
		}},
	)

	require.Len(t, entries, 3) // two streams + cursor
	assert.Equal(t, "a1", entries[0].AgentID)
	assert.Equal(t, "b2", entries[1].AgentID)
	assert.Equal(t, KindCursor, entries[2].Kind)
}

func TestStreamingTailTruncation(t *testing.T) {
	long := strings.Repeat("x", 480) + strings.Repeat("y", 100)
	store := state.NewStore(zap.NewNop())
	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"a1": long}},
	})

	entries := NewComposer(500).Compose(store.Snapshot())
	require.GreaterOrEqual(t, len(entries), 1)
	tail := entries[0].StreamText
	assert.Len(t, tail, 500)
	assert.True(t, strings.HasSuffix(tail, strings.Repeat("y", 100)))
}

func TestTailCountsRunes(t *testing.T) {
	assert.Equal(t, "héllo", Tail("héllo", 10))
	assert.Equal(t, "llo", Tail("héllo", 3))
	assert.Equal(t, "é", Tail("é", 1))
}

func TestCursorSuppressedWhenTerminal(t *testing.T) {
	entries := composeFrom(t,
		schemas.Delta{Type: schemas.DeltaScanComplete, FinalReport: json.RawMessage(`"done"`)},
	)
	assert.NotContains(t, kinds(entries), KindCursor)

	entries = composeFrom(t,
		schemas.Delta{Type: schemas.DeltaStats, Stats: &schemas.RunStats{Status: "completed"}},
	)
	assert.NotContains(t, kinds(entries), KindCursor)
}

func TestComposeIsDeterministic(t *testing.T) {
	deltas := []schemas.Delta{
		{Type: schemas.DeltaChat, Messages: []schemas.ChatMessage{
			{Role: "user", Content: "a", Timestamp: "T2"},
			{Role: "user", Content: "b"},
		}},
		{Type: schemas.DeltaTools, Tools: []schemas.ToolExecution{{ToolName: "scan", Timestamp: "T1"}}},
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"z": "1", "a": "2"}},
	}

	first := composeFrom(t, deltas...)
	second := composeFrom(t, deltas...)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind, "entry %d", i)
		assert.Equal(t, first[i].AgentID, second[i].AgentID, "entry %d", i)
	}
}

func TestShouldComposeGating(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	composer := NewComposer(500)

	// First look always composes.
	assert.True(t, composer.ShouldCompose(store.Snapshot()))
	// Unchanged signature, no dirty flag: skip.
	assert.False(t, composer.ShouldCompose(store.Snapshot()))

	// An append moves the count.
	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaChat, Messages: []schemas.ChatMessage{{Role: "user", Content: "hi"}}},
	})
	assert.True(t, composer.ShouldCompose(store.Snapshot()))
	assert.False(t, composer.ShouldCompose(store.Snapshot()))

	// Explicit invalidation forces a pass even without changes.
	composer.Invalidate()
	assert.True(t, composer.ShouldCompose(store.Snapshot()))
	assert.False(t, composer.ShouldCompose(store.Snapshot()))

	// Streaming churn moves the signature.
	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"a1": "text"}},
	})
	assert.True(t, composer.ShouldCompose(store.Snapshot()))
	assert.False(t, composer.ShouldCompose(store.Snapshot()))

	// Text growth within the same agent set also counts as churn.
	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"a1": "text grew"}},
	})
	assert.True(t, composer.ShouldCompose(store.Snapshot()))
}

func TestShouldComposeDetectsStreamingReplacement(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	composer := NewComposer(500)

	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"agent-a": "hello"}},
	})
	require.True(t, composer.ShouldCompose(store.Snapshot()))

	// Same agent count and same total length, different content: the
	// replacement must still force a recompose.
	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"agent-b": "howdy"}},
	})
	assert.True(t, composer.ShouldCompose(store.Snapshot()))

	// Same id, same length, different text.
	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"agent-b": "haydo"}},
	})
	assert.True(t, composer.ShouldCompose(store.Snapshot()))

	// Identical replacement does not.
	store.ApplyDeltas([]schemas.Delta{
		{Type: schemas.DeltaStreaming, Streaming: map[string]string{"agent-b": "haydo"}},
	})
	assert.False(t, composer.ShouldCompose(store.Snapshot()))
}

func TestEmptySnapshotYieldsOnlyCursor(t *testing.T) {
	store := state.NewStore(zap.NewNop())
	entries := NewComposer(500).Compose(store.Snapshot())

	require.Len(t, entries, 1)
	assert.Equal(t, KindCursor, entries[0].Kind)
}
