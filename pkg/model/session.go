package model

import "time"

// FSMState is a session's position in the turn loop (§4.7).
type FSMState string

const (
	StateCreated     FSMState = "created"
	StatePending     FSMState = "pending"
	StateRunning     FSMState = "running"
	StateToolExec    FSMState = "tool_exec"
	StateHumanInput  FSMState = "human_input"
	StatePaused      FSMState = "paused"
	StateSuccess     FSMState = "success"
	StateFailed      FSMState = "failed"
	StateStopped     FSMState = "stopped"
)

// Terminal reports whether a state accepts no further scheduler-driven
// transitions (success/stopped are terminal; failed may still be retried
// into pending, see §4.7).
func (s FSMState) Terminal() bool {
	return s == StateSuccess || s == StateStopped
}

// Metadata is the `metadata` block of a session document (§6.1).
type Metadata struct {
	Name          string            `yaml:"name" json:"name"`
	Model         string            `yaml:"model" json:"model"`
	CreatedAt     time.Time         `yaml:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `yaml:"updated_at,omitempty" json:"updated_at,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Tools         []string          `yaml:"tools,omitempty" json:"tools,omitempty"`
	PID           int               `yaml:"pid,omitempty" json:"pid,omitempty"`
	Timeout       time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	StartTime     time.Time         `yaml:"start_time,omitempty" json:"start_time,omitempty"`
	LastRead      time.Time         `yaml:"last_read,omitempty" json:"last_read,omitempty"`
	FSMState      FSMState          `yaml:"fsm_state,omitempty" json:"fsm_state,omitempty"`
	FSMStateData  map[string]any    `yaml:"fsm_state_data,omitempty" json:"fsm_state_data,omitempty"`
	Usage         map[string]any    `yaml:"usage,omitempty" json:"usage,omitempty"`
	Provider      string            `yaml:"provider,omitempty" json:"provider,omitempty"`
	ChannelName   string            `yaml:"channel,omitempty" json:"channel,omitempty"`
}

// Spec is the `spec` block of a session document.
type Spec struct {
	SystemPrompt string    `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Messages     []Message `yaml:"messages" json:"messages"`
}

// Document is the on-disk YAML representation of a Session, Template, or
// fork source (§6.1). apiVersion/kind are validated by fork() per §4.1.
type Document struct {
	APIVersion string   `yaml:"apiVersion" json:"apiVersion"`
	Kind       string   `yaml:"kind" json:"kind"`
	Metadata   Metadata `yaml:"metadata" json:"metadata"`
	Spec       Spec     `yaml:"spec" json:"spec"`
}

const (
	APIVersionV1 = "daemon/v1"
	KindAgent    = "Agent"
)

// NewDocument builds an empty, well-formed session document.
func NewDocument(name, model string) *Document {
	now := time.Now().UTC()
	return &Document{
		APIVersion: APIVersionV1,
		Kind:       KindAgent,
		Metadata: Metadata{
			Name:      name,
			Model:     model,
			CreatedAt: now,
			UpdatedAt: now,
			FSMState:  StateCreated,
		},
	}
}

// Summary is the lightweight listing projection returned by Store.List.
type Summary struct {
	ID            string   `json:"id"`
	State         FSMState `json:"state"`
	Name          string   `json:"name"`
	Model         string   `json:"model"`
	LastMessage   string   `json:"last_message,omitempty"`
	MessageCount  int      `json:"message_count"`
}
