package mcpsup

import (
	"testing"

	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

func TestToolNameIsPrefixedByServer(t *testing.T) {
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	sup := NewSupervisor(model.MCPServerConfig{Name: "github"}, root, nil)
	if got := sup.ToolName("list_issues"); got != "mcp_github_list_issues" {
		t.Fatalf("unexpected tool name: %s", got)
	}
}

func TestNewSupervisorDefaultsMaxRestarts(t *testing.T) {
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	sup := NewSupervisor(model.MCPServerConfig{Name: "x"}, root, nil)
	if sup.cfg.MaxRestarts != 3 {
		t.Fatalf("expected default max restarts 3, got %d", sup.cfg.MaxRestarts)
	}
}

func TestCallToolResultConcatenatesTextBlocks(t *testing.T) {
	result := CallToolResult{Content: []ContentBlock{
		{Type: "text", Text: "hello "},
		{Type: "text", Text: "world"},
	}}
	if got := result.Text(); got != "hello world" {
		t.Fatalf("unexpected concatenated text: %q", got)
	}
}

func TestCacheSchemasWritesYAMLFile(t *testing.T) {
	root, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	sup := NewSupervisor(model.MCPServerConfig{Name: "github"}, root, nil)
	sup.cacheSchemas([]Tool{{Name: "list_issues", Description: "lists issues"}})

	if !workspace.Exists(root.MCPCachePath("github")) {
		t.Fatal("expected schema cache file to be written")
	}

	var cache model.MCPSchemaCache
	if err := workspace.ReadYAML(root.MCPCachePath("github"), &cache); err != nil {
		t.Fatalf("ReadYAML: %v", err)
	}
	if _, ok := cache.Tools["list_issues"]; !ok {
		t.Fatalf("expected list_issues in cache, got %+v", cache.Tools)
	}
}
