package model

import "time"

// EventType enumerates the observable happenings the bus fans out (§3 Event).
type EventType string

const (
	EventStateChanged      EventType = "state:changed"
	EventMessageAppended   EventType = "message:appended"
	EventMessageEdited     EventType = "message:edited"
	EventMessageDeleted    EventType = "message:deleted"
	EventToolCallStarted   EventType = "tool:started"
	EventToolCallCompleted EventType = "tool:completed"
	EventApprovalRequested EventType = "approval:requested"
	EventApprovalResolved  EventType = "approval:resolved"
	EventChannelJoined     EventType = "channel:joined"
	EventChannelLeft       EventType = "channel:left"
	EventChannelCreated    EventType = "channel:created"
	EventChannelDeleted    EventType = "channel:deleted"
	EventPTYOutput         EventType = "pty:output"
	EventPTYClosed         EventType = "pty:closed"
	EventSessionStarted    EventType = "session:started"
	EventSessionForked     EventType = "session:forked"
	EventDaemonShutdown    EventType = "daemon:shutdown"
)

// Event is a single observable record. Seq is monotonic within SessionID;
// across sessions no ordering is guaranteed (§5).
type Event struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"session_id,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Seq       uint64         `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}
