package model

// MCPApprovalPolicy is the per-server default pre_use_hook outcome (§3
// MCPServer.approval_policy).
type MCPApprovalPolicy string

const (
	MCPPolicyAllow   MCPApprovalPolicy = "allow"
	MCPPolicyApprove MCPApprovalPolicy = "approve"
	MCPPolicyDeny    MCPApprovalPolicy = "deny"
)

// MCPServerConfig describes how to launch and police one MCP subprocess.
type MCPServerConfig struct {
	Name           string            `yaml:"name" json:"name"`
	Command        string            `yaml:"command" json:"command"`
	Args           []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Cwd            string            `yaml:"cwd,omitempty" json:"cwd,omitempty"`
	ApprovalPolicy MCPApprovalPolicy `yaml:"approval_policy" json:"approval_policy"`
	MaxRestarts    int               `yaml:"max_restarts" json:"max_restarts"`
}

// MCPToolSchema is one entry of a cached tools/list response (§6.1
// agents/mcp/<server>.yaml).
type MCPToolSchema struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	InputSchema []byte `yaml:"input_schema,omitempty" json:"input_schema,omitempty"`
}

// MCPSchemaCache is the persisted document at agents/mcp/<server>.yaml.
type MCPSchemaCache struct {
	Server  string                   `yaml:"server" json:"server"`
	Updated string                   `yaml:"updated" json:"updated"`
	Tools   map[string]MCPToolSchema `yaml:"tools" json:"tools"`
}
