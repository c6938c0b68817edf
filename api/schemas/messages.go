// File: api/schemas/messages.go
package schemas

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates inbound socket frames.
type MessageType string

const (
	MessageFullState  MessageType = "full_state"
	MessageDeltaBatch MessageType = "delta_batch"
	MessageHeartbeat  MessageType = "heartbeat"
)

// DeltaType discriminates entries inside a delta_batch.
type DeltaType string

const (
	DeltaAgents        DeltaType = "agents_update"
	DeltaTools         DeltaType = "tools_update"
	DeltaChat          DeltaType = "chat_update"
	DeltaVulnerability DeltaType = "vulnerability_update"
	DeltaStreaming     DeltaType = "streaming_update"
	DeltaScreenshot    DeltaType = "screenshot_update"
	DeltaStats         DeltaType = "stats_update"
	DeltaScanConfig    DeltaType = "scan_config_update"
	DeltaScanComplete  DeltaType = "scan_complete"
)

// Envelope carries only the discriminator; the payload is re-decoded into
// the concrete message type once the kind is known.
type Envelope struct {
	Type MessageType `json:"type"`
}

// FullState is a complete snapshot that supersedes all prior client state.
// Any field may be absent on the wire; absent fields mean "empty", and the
// store resets the corresponding slice accordingly.
type FullState struct {
	Agents           []Agent           `json:"agents"`
	Tools            []ToolExecution   `json:"tools"`
	Chat             []ChatMessage     `json:"chat"`
	Vulnerabilities  []Vulnerability   `json:"vulnerabilities"`
	Streaming        map[string]string `json:"streaming"`
	ScreenshotAgents []string          `json:"screenshot_agents"`
	Stats            *RunStats         `json:"stats"`
	ScanConfig       ScanConfig        `json:"scan_config"`
	FinalReport      json.RawMessage   `json:"final_report"`
	Timestamp        string            `json:"timestamp"`
}

// Delta is one typed incremental mutation. The payload fields are disjoint
// per type, so a single struct decodes every variant; the reducer switches
// on Type and reads only the field that type defines.
type Delta struct {
	Type            DeltaType         `json:"type"`
	Agents          []Agent           `json:"agents"`
	Tools           []ToolExecution   `json:"tools"`
	Messages        []ChatMessage     `json:"messages"`
	Vulnerabilities []Vulnerability   `json:"vulnerabilities"`
	Streaming       map[string]string `json:"streaming"`
	AgentID         string            `json:"agent_id"`
	Stats           *RunStats         `json:"stats"`
	ScanConfig      ScanConfig        `json:"scan_config"`
	FinalReport     json.RawMessage   `json:"final_report"`
}

// DeltaBatch is an ordered list of deltas applied strictly in array order.
type DeltaBatch struct {
	Deltas []Delta `json:"deltas"`
}

// ParseEnvelope decodes just the type discriminator of an inbound frame.
func ParseEnvelope(data []byte) (MessageType, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	return env.Type, nil
}

// ParseFullState decodes a full_state frame.
func ParseFullState(data []byte) (*FullState, error) {
	var fs FullState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("decode full_state: %w", err)
	}
	return &fs, nil
}

// ParseDeltaBatch decodes a delta_batch frame, preserving delta order.
func ParseDeltaBatch(data []byte) ([]Delta, error) {
	var batch DeltaBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode delta_batch: %w", err)
	}
	return batch.Deltas, nil
}
