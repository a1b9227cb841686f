package main

import (
	"log/slog"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "session"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestSessionSubcommandIncludesCreateAndList(t *testing.T) {
	cmd := buildSessionCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"create", "list"} {
		if !names[name] {
			t.Fatalf("expected session subcommand %q to be registered", name)
		}
	}
}

func TestSessionCreateRequiresTemplateFlag(t *testing.T) {
	cmd := buildSessionCreateCmd()
	if err := cmd.Flags().Set("config", "nexusd.yaml"); err != nil {
		t.Fatalf("set config flag: %v", err)
	}
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error when --template is omitted")
	}
}

func TestNewLogHandlerRespectsFormatOverride(t *testing.T) {
	t.Setenv("NEXUSD_LOG_FORMAT", "json")
	h := newLogHandler()
	if h == nil {
		t.Fatal("expected a non-nil handler")
	}
	if _, ok := h.(*slog.JSONHandler); !ok {
		t.Fatalf("expected a JSON handler for NEXUSD_LOG_FORMAT=json, got %T", h)
	}
}
