package allowlist

import (
	"log/slog"
	"strings"

	"github.com/mikesmullin/daemon-sub001/internal/workspace"
	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// Evaluator holds a parsed, ordered rule set and decides shell commands
// against it (§4.2).
type Evaluator struct {
	rules  RuleSet
	logger *slog.Logger
}

// Load reads an allowlist document from path. A missing file yields an
// empty, permissive-by-default Evaluator (every command falls through to
// ask, per §4.2's default decision).
func Load(path string, logger *slog.Logger) (*Evaluator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "allowlist")

	var doc Document
	if workspace.Exists(path) {
		if err := workspace.ReadYAML(path, &doc); err != nil {
			return nil, err
		}
	}
	for _, r := range doc.Rules {
		if invalid, ok := r.Pattern.(InvalidPattern); ok {
			logger.Warn("invalid regex pattern in allowlist, rule will never match", "pattern", invalid.text, "error", invalid.err)
		}
	}
	return &Evaluator{rules: doc.Rules, logger: logger}, nil
}

// New builds an Evaluator directly from an in-memory rule set, used by
// tests and by callers that assemble rules programmatically.
func New(rules RuleSet, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{rules: rules, logger: logger.With("component", "allowlist")}
}

// trackedDecision accumulates the sticky-deny / last-approve-wins outcome
// for a single scope instance (either the full line, or one sub-command).
type trackedDecision struct {
	set    bool
	denied bool
	allow  bool
}

func (d *trackedDecision) apply(effect Effect) {
	if effect.Unset || d.denied {
		return
	}
	d.set = true
	d.allow = effect.Approve
	if !effect.Approve {
		d.denied = true
	}
}

func (d *trackedDecision) result() (approve bool, denied bool, set bool) {
	return d.allow, d.denied, d.set
}

// Evaluate implements the §4.2 decision algorithm: split the line into
// atomic sub-commands, run every rule against its scope (full line or
// sub-command) in declaration order with sticky-deny / last-match-wins
// semantics, then combine per the final-decision rules.
func (e *Evaluator) Evaluate(line string) model.ApprovalDecision {
	if strings.TrimSpace(line) == "" {
		return model.ApprovalAsk
	}

	subcommands := Split(line)
	fullLine := strings.TrimSpace(line)

	var lineTrack trackedDecision
	subTracks := make([]trackedDecision, len(subcommands))

	for _, rule := range e.rules {
		if rule.Effect.MatchCommandLine {
			if rule.Pattern.Match(fullLine) {
				lineTrack.apply(rule.Effect)
			}
			continue
		}
		for i, sub := range subcommands {
			if rule.Pattern.Match(sub) {
				subTracks[i].apply(rule.Effect)
			}
		}
	}

	if _, denied, set := lineTrack.result(); set && denied {
		return model.ApprovalDeny
	}
	for _, t := range subTracks {
		if _, denied, set := t.result(); set && denied {
			return model.ApprovalDeny
		}
	}

	if allow, _, set := lineTrack.result(); set && allow {
		return model.ApprovalAllow
	}

	if len(subTracks) > 0 {
		allApproved := true
		for _, t := range subTracks {
			allow, _, set := t.result()
			if !set || !allow {
				allApproved = false
				break
			}
		}
		if allApproved {
			return model.ApprovalAllow
		}
	}

	return model.ApprovalAsk
}
