package model

import "time"

// ChannelDocument is the on-disk representation of a named grouping of
// sessions (§3 Channel, §6.1 agents/channels/<name>.yaml).
type ChannelDocument struct {
	Metadata ChannelMetadata `yaml:"metadata" json:"metadata"`
	Spec     ChannelSpec     `yaml:"spec" json:"spec"`
}

type ChannelMetadata struct {
	Name      string    `yaml:"name" json:"name"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
}

type ChannelSpec struct {
	AgentSessions []string          `yaml:"agent_sessions" json:"agent_sessions"`
	Description   string            `yaml:"description,omitempty" json:"description,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// NewChannel creates an empty channel document.
func NewChannel(name, description string) *ChannelDocument {
	now := time.Now().UTC()
	return &ChannelDocument{
		Metadata: ChannelMetadata{Name: name, CreatedAt: now, UpdatedAt: now},
		Spec:     ChannelSpec{Description: description, AgentSessions: []string{}},
	}
}
