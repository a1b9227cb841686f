// Package config implements SPEC_FULL's configuration-layer section: a
// plain Go struct with yaml tags and a Normalize method, modeled on the
// teacher's internal/config package (config.go's Config/applyDefaults).
// Loading itself is out of the kernel's scope per spec.md §1; cmd/nexusd
// is the only caller of Load.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
	"gopkg.in/yaml.v3"
)

// Daemon is the top-level configuration the kernel consumes.
type Daemon struct {
	Workspace WorkspaceConfig    `yaml:"workspace"`
	Scheduler SchedulerConfig    `yaml:"scheduler"`
	Server    ServerConfig       `yaml:"server"`
	Tools     ToolsConfig        `yaml:"tools"`
	Logging   LoggingConfig      `yaml:"logging"`
	Tracing   TracingConfig      `yaml:"tracing"`
	Providers []ProviderConfig   `yaml:"providers"`
	MCPServers []MCPServerConfig `yaml:"mcp_servers"`
}

// TracingConfig toggles OpenTelemetry span export (observer.TraceConfig).
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// ProviderConfig describes one LLM backend to register (component wired
// via provider.HTTPProvider). Exactly one routing rule applies per
// entry: Prefix ("ollama:qwen3" routes on the "ollama" prefix), Pattern
// (a regex against the bare model name), or Fallback.
type ProviderConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Prefix    string `yaml:"prefix,omitempty"`
	Pattern   string `yaml:"pattern,omitempty"`
	Fallback  bool   `yaml:"fallback,omitempty"`
}

// MCPServerConfig mirrors model.MCPServerConfig; kept as a distinct
// config-layer type so the workspace-document shape (model.MCPServerConfig,
// persisted nowhere) and the startup-config shape can evolve
// independently.
type MCPServerConfig struct {
	Name           string            `yaml:"name"`
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	Cwd            string            `yaml:"cwd,omitempty"`
	ApprovalPolicy string            `yaml:"approval_policy"`
	MaxRestarts    int               `yaml:"max_restarts"`
}

// WorkspaceConfig locates the on-disk session/channel/template tree
// (spec §6.1).
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// SchedulerConfig tunes the FSM engine's tick scheduler (spec §4.7).
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	// Mode is "strict" (default) or "permissive" — see fsmengine.Mode.
	Mode        string        `yaml:"mode"`
	ApprovalTTL time.Duration `yaml:"approval_ttl"`
}

// ServerConfig configures the observer gateway's HTTP surface (component
// I): the websocket event stream and the Prometheus /metrics endpoint.
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// ToolsConfig tunes the tool dispatcher/executor (component D, spec
// §4.3) and points at the shell allowlist file (component A, spec §4.2).
type ToolsConfig struct {
	ShellAllowlistPath string        `yaml:"shell_allowlist_path"`
	Concurrency        int           `yaml:"concurrency"`
	PerToolTimeout     time.Duration `yaml:"per_tool_timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
	RetryBackoff       time.Duration `yaml:"retry_backoff"`
	MaxResultChars     int           `yaml:"max_result_chars"`
}

// LoggingConfig holds logging preferences read from the config file.
// cmd/nexusd does not apply them: its slog handler is chosen from the
// NEXUSD_LOG_FORMAT and NEXUSD_LOG_LEVEL environment variables and from
// whether stderr is a terminal.
type LoggingConfig struct {
	// Format is "text" (default, TTY-friendly) or "json".
	Format string `yaml:"format"`
	// Level is "debug", "info" (default), "warn", or "error".
	Level string `yaml:"level"`
}

// ToModel converts c to model.MCPServerConfig for mcpsup.NewSupervisor.
func (c MCPServerConfig) ToModel() model.MCPServerConfig {
	policy := model.MCPApprovalPolicy(c.ApprovalPolicy)
	if policy == "" {
		policy = model.MCPPolicyApprove
	}
	return model.MCPServerConfig{
		Name:           c.Name,
		Command:        c.Command,
		Args:           c.Args,
		Env:            c.Env,
		Cwd:            c.Cwd,
		ApprovalPolicy: policy,
		MaxRestarts:    c.MaxRestarts,
	}
}

// Normalize fills in defaults for every zero-valued field, the way the
// teacher's applyDefaults/applyServerDefaults/... family does per
// sub-struct. It never overwrites an explicitly configured value.
func (d *Daemon) Normalize() {
	if d.Workspace.Root == "" {
		d.Workspace.Root = "./nexusd-workspace"
	}

	if d.Scheduler.TickInterval <= 0 {
		d.Scheduler.TickInterval = 100 * time.Millisecond
	}
	if d.Scheduler.Mode == "" {
		d.Scheduler.Mode = "strict"
	}

	if d.Server.Host == "" {
		d.Server.Host = "127.0.0.1"
	}
	if d.Server.Port == 0 {
		d.Server.Port = 8089
	}
	if d.Server.MetricsPort == 0 {
		d.Server.MetricsPort = 9090
	}

	if d.Tools.Concurrency <= 0 {
		d.Tools.Concurrency = 4
	}
	if d.Tools.PerToolTimeout <= 0 {
		d.Tools.PerToolTimeout = 30 * time.Second
	}
	if d.Tools.MaxAttempts <= 0 {
		d.Tools.MaxAttempts = 1
	}
	if d.Tools.MaxResultChars <= 0 {
		d.Tools.MaxResultChars = 64 * 1024
	}

	if d.Logging.Format == "" {
		d.Logging.Format = "text"
	}
	if d.Logging.Level == "" {
		d.Logging.Level = "info"
	}

	if d.Tracing.ServiceName == "" {
		d.Tracing.ServiceName = "nexusd"
	}

	for i := range d.MCPServers {
		if d.MCPServers[i].ApprovalPolicy == "" {
			d.MCPServers[i].ApprovalPolicy = string(model.MCPPolicyApprove)
		}
		if d.MCPServers[i].MaxRestarts <= 0 {
			d.MCPServers[i].MaxRestarts = 3
		}
	}
}

// Load reads path as YAML (after expanding ${VAR}/$VAR environment
// references, matching the teacher's Load), rejects unknown fields, and
// normalizes the result.
func Load(path string) (*Daemon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Daemon
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: %s must be a single YAML document", path)
	}

	cfg.Normalize()
	return &cfg, nil
}
