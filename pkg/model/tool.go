package model

import "encoding/json"

// ApprovalDecision is the result of a pre-use hook (§3 Pre-use hook).
type ApprovalDecision string

const (
	ApprovalAllow ApprovalDecision = "allow"
	ApprovalDeny  ApprovalDecision = "deny"
	ApprovalAsk   ApprovalDecision = "approve"
)

// ToolResult is the uniform shape every tool execution resolves to (§4.3
// step 3). Content is stringified before being written into a tool Message.
type ToolResult struct {
	Success  bool           `json:"success"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ErrorResult synthesizes a failed ToolResult, used by the dispatcher for
// unknown tools, denials, and panics caught at the execution boundary.
func ErrorResult(reason string, meta map[string]any) ToolResult {
	if meta == nil {
		meta = map[string]any{}
	}
	return ToolResult{Success: false, Content: reason, Metadata: meta}
}

// ToolSchema is the JSON-schema parameter definition shown to the model.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}
