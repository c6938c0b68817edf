// File: api/schemas/schemas_test.go
package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	msgType, err := ParseEnvelope([]byte(`{"type":"full_state","agents":[]}`))
	require.NoError(t, err)
	assert.Equal(t, MessageFullState, msgType)

	_, err = ParseEnvelope([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseFullStateDefaultsMissingFields(t *testing.T) {
	fs, err := ParseFullState([]byte(`{"type":"full_state"}`))
	require.NoError(t, err)

	assert.Empty(t, fs.Agents)
	assert.Empty(t, fs.Tools)
	assert.Empty(t, fs.Chat)
	assert.Empty(t, fs.Vulnerabilities)
	assert.Empty(t, fs.Streaming)
	assert.Empty(t, fs.ScreenshotAgents)
	assert.Nil(t, fs.Stats)
	assert.Nil(t, fs.ScanConfig)
	assert.Empty(t, fs.FinalReport)
}

func TestParseDeltaBatchPreservesOrder(t *testing.T) {
	payload := `{"type":"delta_batch","deltas":[
		{"type":"chat_update","messages":[{"role":"user","content":"hi"}]},
		{"type":"tools_update","tools":[{"tool_name":"scan","agent_id":"a1"}]},
		{"type":"stats_update","stats":{"agent_count":2}}
	]}`
	deltas, err := ParseDeltaBatch([]byte(payload))
	require.NoError(t, err)
	require.Len(t, deltas, 3)

	assert.Equal(t, DeltaChat, deltas[0].Type)
	assert.Equal(t, DeltaTools, deltas[1].Type)
	assert.Equal(t, DeltaStats, deltas[2].Type)
	assert.Equal(t, "scan", deltas[1].Tools[0].ToolName)
	assert.Equal(t, 2, deltas[2].Stats.AgentCount)
}

func TestSummaryText(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{"plain string", `"port 443 open"`, "port 443 open"},
		{"object", `{"status":"done"}`, `{"status":"done"}`},
		{"absent", ``, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tool := ToolExecution{ResultSummary: json.RawMessage(tc.raw)}
			assert.Equal(t, tc.expected, tool.SummaryText())
		})
	}
}

func TestFinalReportText(t *testing.T) {
	assert.Equal(t, "", FinalReportText(nil))
	assert.Equal(t, "", FinalReportText(json.RawMessage(`null`)))
	assert.Equal(t, "# Report", FinalReportText(json.RawMessage(`"# Report"`)))
	assert.Equal(t, "body", FinalReportText(json.RawMessage(`{"report":"body"}`)))
	assert.Equal(t, "body", FinalReportText(json.RawMessage(`{"content":"body"}`)))

	// Unrecognized shapes are surfaced as JSON, not dropped.
	out := FinalReportText(json.RawMessage(`{"other":1}`))
	assert.Contains(t, out, `"other"`)
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, NormalizeSeverity("CRITICAL"))
	assert.Equal(t, SeverityHigh, NormalizeSeverity(" high "))
	assert.Equal(t, SeverityInfo, NormalizeSeverity("bogus"))
	assert.Equal(t, SeverityInfo, NormalizeSeverity(""))
}

func TestTerminalStatus(t *testing.T) {
	assert.True(t, TerminalStatus("completed"))
	assert.True(t, TerminalStatus("Failed"))
	assert.True(t, TerminalStatus("stopped"))
	assert.False(t, TerminalStatus("running"))
	assert.False(t, TerminalStatus(""))
}

func TestVulnerabilityEffectiveTimestamp(t *testing.T) {
	v := Vulnerability{Timestamp: "2024-01-01T00:00:00Z", DiscoveredAt: "older"}
	assert.Equal(t, "2024-01-01T00:00:00Z", v.EffectiveTimestamp())

	v = Vulnerability{DiscoveredAt: "2024-01-01T00:00:00Z"}
	assert.Equal(t, "2024-01-01T00:00:00Z", v.EffectiveTimestamp())

	v = Vulnerability{}
	assert.Equal(t, "", v.EffectiveTimestamp())
}
