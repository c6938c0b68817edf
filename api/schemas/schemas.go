// File: api/schemas/schemas.go
package schemas

import (
	"encoding/json"
	"strings"
)

// Severity defines the severity level of a reported vulnerability.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// NormalizeSeverity maps arbitrary-case severity strings from the wire onto
// the canonical constants. Unrecognized values fall back to info.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// AgentStatus captures the lifecycle state of a remote agent.
type AgentStatus string

const (
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
	AgentStopped   AgentStatus = "stopped"
)

// TerminalStatus reports whether a run status string means the run is over.
// Anything other than the three terminal states counts as still in progress.
func TerminalStatus(status string) bool {
	switch AgentStatus(strings.ToLower(status)) {
	case AgentCompleted, AgentFailed, AgentStopped:
		return true
	}
	return false
}

// Agent mirrors one agent in the remote run. Agents form a forest via
// ParentID; an agent whose parent id does not resolve is treated as a root.
// The server replaces the whole collection on every agents_update, so
// instances are never mutated field-by-field on this side.
type Agent struct {
	ID            string  `json:"id"`
	ParentID      *string `json:"parent_id"`
	Name          string  `json:"name"`
	Task          string  `json:"task"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	HasScreenshot bool    `json:"has_screenshot"`
	ToolCount     int     `json:"tool_count"`
	Compacting    bool    `json:"compacting"`
}

// ToolExecution is one tool invocation observed in the run. Executions are
// append-only: once received they are accumulated, never edited or removed.
type ToolExecution struct {
	ExecutionID   int64                  `json:"execution_id"`
	AgentID       string                 `json:"agent_id"`
	ToolName      string                 `json:"tool_name"`
	Args          map[string]interface{} `json:"args"`
	Status        string                 `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	CompletedAt   *string                `json:"completed_at"`
	ResultSummary json.RawMessage        `json:"result_summary"`
	HasScreenshot bool                   `json:"has_screenshot"`
}

// SummaryText flattens the result summary, which the server sends either as
// a plain string or as an object (with any screenshot payload stripped).
// Objects are rendered as compact JSON; absent summaries yield "".
func (t *ToolExecution) SummaryText() string {
	if len(t.ResultSummary) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(t.ResultSummary, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(t.ResultSummary, &obj); err == nil {
		compact, err := json.Marshal(obj)
		if err == nil {
			return string(compact)
		}
	}
	return string(t.ResultSummary)
}

// ChatMessage is one transcript entry. Append-only.
type ChatMessage struct {
	Role      string  `json:"role"`
	AgentID   *string `json:"agent_id"`
	Content   string  `json:"content"`
	Timestamp string  `json:"timestamp"`
}

// Vulnerability is one reported finding. Findings carry no identity beyond
// their arrival order; the client's accumulation index is the stable
// tiebreaker when timestamps collide or are absent.
type Vulnerability struct {
	Title             string   `json:"title"`
	Severity          string   `json:"severity"`
	CVSS              *float64 `json:"cvss"`
	Description       string   `json:"description"`
	Impact            string   `json:"impact,omitempty"`
	TechnicalAnalysis string   `json:"technical_analysis,omitempty"`
	POC               string   `json:"poc,omitempty"`
	Remediation       string   `json:"remediation,omitempty"`
	CVSSBreakdown     string   `json:"cvss_breakdown,omitempty"`
	CodeDiff          string   `json:"code_diff,omitempty"`
	Endpoint          string   `json:"endpoint,omitempty"`
	Method            string   `json:"method,omitempty"`
	Timestamp         string   `json:"timestamp,omitempty"`
	DiscoveredAt      string   `json:"discovered_at,omitempty"`
}

// EffectiveTimestamp returns the finding's timestamp, falling back to the
// discovery-time alias used by older bridge versions. Empty means the
// finding has no usable time and sorts by accumulation order.
func (v *Vulnerability) EffectiveTimestamp() string {
	if v.Timestamp != "" {
		return v.Timestamp
	}
	return v.DiscoveredAt
}

// LLMTotals aggregates token and cost counters across the run.
type LLMTotals struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// LLMStats is the nested llm block inside RunStats.
type LLMStats struct {
	Total            LLMTotals `json:"total"`
	TotalTokens      int64     `json:"total_tokens"`
	MaxContextTokens int64     `json:"max_context_tokens"`
}

// RunStats is the wholesale-replaced aggregate snapshot of the run.
type RunStats struct {
	LLM              LLMStats `json:"llm"`
	AgentCount       int      `json:"agent_count"`
	ToolCount        int      `json:"tool_count"`
	VulnCount        int      `json:"vuln_count"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	Status           string   `json:"status"`
	MaxContextTokens int64    `json:"max_context_tokens"`
	ContextLimit     int64    `json:"context_limit"`
	TokensPerSecond  float64  `json:"tokens_per_second"`
	RunName          string   `json:"run_name"`
	RunID            string   `json:"run_id"`
}

// ScanConfig is the opaque scan configuration blob. The client only
// displays it, so the structure stays a free-form map.
type ScanConfig map[string]interface{}

// FinalReportText flattens a final_report payload, which arrives either as
// a markdown string or as an object carrying the report under a well-known
// key. Unrecognized shapes are rendered as indented JSON so nothing is
// silently dropped.
func FinalReportText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"report", "content", "summary"} {
			if v, ok := obj[key].(string); ok && v != "" {
				return v
			}
		}
	}
	indented, err := json.MarshalIndent(json.RawMessage(raw), "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(indented)
}
