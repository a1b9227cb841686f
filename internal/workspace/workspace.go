// Package workspace lays out and guards the on-disk directory tree
// described in spec §6.1: agents/sessions, agents/channels,
// agents/templates, agents/proc, agents/mcp.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Root is the workspace root directory. All persisted kernel state lives
// under Root()/agents/...
type Root struct {
	dir string
}

// New validates that dir exists (or can be created) and returns a Root
// rooted there. An unreadable or uncreatable root is a fatal error per §7.
func New(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolve root: %w", err)
	}
	for _, sub := range []string{"agents/sessions", "agents/channels", "agents/templates", "agents/proc", "agents/mcp"} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", sub, err)
		}
	}
	return &Root{dir: abs}, nil
}

func (r *Root) Dir() string { return r.dir }

func (r *Root) SessionsDir() string {
	return filepath.Join(r.dir, "agents", "sessions")
}

func (r *Root) SessionPath(id string) string {
	return filepath.Join(r.dir, "agents", "sessions", id+".yaml")
}

func (r *Root) ChannelPath(name string) string {
	return filepath.Join(r.dir, "agents", "channels", name+".yaml")
}

func (r *Root) ChannelsDir() string {
	return filepath.Join(r.dir, "agents", "channels")
}

func (r *Root) TemplatePath(name string) string {
	return filepath.Join(r.dir, "agents", "templates", name+".yaml")
}

func (r *Root) TemplatesDir() string {
	return filepath.Join(r.dir, "agents", "templates")
}

func (r *Root) CounterPath() string {
	return filepath.Join(r.dir, "agents", "proc", "_next")
}

func (r *Root) MCPCachePath(server string) string {
	return filepath.Join(r.dir, "agents", "mcp", server+".yaml")
}

// WriteFileAtomic writes data to path via temp-file + rename so readers
// never observe a partial write (§4.1, §6.1).
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteYAMLAtomic marshals v and writes it atomically.
func WriteYAMLAtomic(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("workspace: marshal: %w", err)
	}
	return WriteFileAtomic(path, data, 0o600)
}

// ReadYAML loads and unmarshals a YAML document from path.
func ReadYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
