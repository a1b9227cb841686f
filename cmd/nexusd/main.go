// Command nexusd runs the local multi-agent orchestration daemon: the
// session FSM engine, its tool dispatcher, PTY and MCP subsystems, and
// the read-only observer gateway, all driven from one YAML config file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	slog.SetDefault(slog.New(newLogHandler()))

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// newLogHandler picks text (human-readable, for an attached terminal) or
// JSON (for piped/redirected output) the way a daemon's default output
// mode should follow its environment; NEXUSD_LOG_FORMAT overrides either
// way.
func newLogHandler() slog.Handler {
	format := os.Getenv("NEXUSD_LOG_FORMAT")
	if format == "" {
		if term.IsTerminal(int(os.Stderr.Fd())) {
			format = "text"
		} else {
			format = "json"
		}
	}

	level := slog.LevelInfo
	if os.Getenv("NEXUSD_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func versionString() string {
	return fmt.Sprintf("%s (commit %s)", version, commit)
}
