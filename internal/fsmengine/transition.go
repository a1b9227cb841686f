// Package fsmengine implements spec §4.7: the per-session state machine
// and its 100ms cooperative tick scheduler.
package fsmengine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// Mode selects how the engine reacts to a transition not present in the
// allowed-transition table.
type Mode int

const (
	// ModeStrict rejects a disallowed transition with ErrInvalidTransition
	// and leaves the session's persisted state untouched. Default.
	ModeStrict Mode = iota
	// ModePermissive logs a warning and applies the transition anyway.
	ModePermissive
)

// ErrInvalidTransition is returned by CheckTransition in strict mode for
// an edge absent from the allowed-transition table.
var ErrInvalidTransition = errors.New("fsmengine: invalid transition")

// allowed is the transition table of spec §4.7. success and stopped have
// no outgoing edges (terminal); failed only retries into pending.
var allowed = map[model.FSMState]map[model.FSMState]bool{
	model.StateCreated: {
		model.StatePending: true,
	},
	model.StatePending: {
		model.StateRunning: true,
		model.StatePaused:  true,
		model.StateStopped: true,
	},
	model.StateRunning: {
		model.StateToolExec: true,
		model.StateSuccess:  true,
		model.StateFailed:   true,
		model.StatePaused:   true,
		model.StateStopped:  true,
	},
	model.StateToolExec: {
		model.StateRunning:     true,
		model.StateHumanInput:  true,
		model.StatePaused:      true,
		model.StateStopped:     true,
		model.StateFailed:      true,
	},
	model.StateHumanInput: {
		model.StateRunning: true,
		model.StatePaused:  true,
		model.StateStopped: true,
		model.StateFailed:  true,
	},
	model.StatePaused: {
		model.StatePending: true,
		model.StateStopped: true,
	},
	model.StateFailed: {
		model.StatePending: true,
	},
}

// IsAllowed reports whether from → to appears in the spec's transition
// table.
func IsAllowed(from, to model.FSMState) bool {
	return allowed[from][to]
}

// CheckTransition validates from → to against mode. In ModeStrict a
// disallowed edge returns ErrInvalidTransition and logs nothing; the
// engine then logs the rejection and leaves the session in its current
// state. In ModePermissive a disallowed edge is logged and
// nil is returned so the caller proceeds.
func CheckTransition(mode Mode, from, to model.FSMState, logger *slog.Logger) error {
	if IsAllowed(from, to) {
		return nil
	}
	if mode == ModeStrict {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if logger != nil {
		logger.Warn("applying transition absent from the allowed table", "from", from, "to", to)
	}
	return nil
}
