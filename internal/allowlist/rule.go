package allowlist

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Effect is a rule's outcome, per spec §4.2: true (approve), false (deny),
// an object {approve, match_command_line} for full-line regex matching, or
// null (no effect, the rule is recorded but never influences a decision).
type Effect struct {
	Unset            bool
	Approve          bool
	MatchCommandLine bool
}

func (e *Effect) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*e = Effect{Unset: true}
			return nil
		}
		var approve bool
		if err := node.Decode(&approve); err != nil {
			return fmt.Errorf("allowlist: effect must be bool, object, or null: %w", err)
		}
		*e = Effect{Approve: approve}
		return nil
	case yaml.MappingNode:
		var obj struct {
			Approve          bool `yaml:"approve"`
			MatchCommandLine bool `yaml:"match_command_line"`
		}
		if err := node.Decode(&obj); err != nil {
			return fmt.Errorf("allowlist: invalid effect object: %w", err)
		}
		*e = Effect{Approve: obj.Approve, MatchCommandLine: obj.MatchCommandLine}
		return nil
	default:
		return fmt.Errorf("allowlist: unsupported effect node kind %v", node.Kind)
	}
}

// Rule pairs a parsed Pattern with its Effect, preserving the order it was
// declared in the allowlist document (iteration order is policy-relevant,
// §4.2's last-match-wins / sticky-deny tie-break).
type Rule struct {
	Text    string
	Pattern Pattern
	Effect  Effect
}

// RuleSet is an ordered list of Rules. It unmarshals from a YAML mapping
// node directly (rather than through map[string]Effect, which Go does not
// guarantee preserves key order) so declaration order survives.
type RuleSet []Rule

func (rs *RuleSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("allowlist: rules must be a mapping, got kind %v", node.Kind)
	}
	out := make(RuleSet, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var text string
		if err := keyNode.Decode(&text); err != nil {
			return fmt.Errorf("allowlist: rule key: %w", err)
		}
		var effect Effect
		if err := valNode.Decode(&effect); err != nil {
			return fmt.Errorf("allowlist: rule %q: %w", text, err)
		}
		out = append(out, Rule{Text: text, Pattern: ParsePattern(text), Effect: effect})
	}
	*rs = out
	return nil
}

// Document is the top-level shape of an allowlist YAML file.
type Document struct {
	Rules RuleSet `yaml:"rules"`
}
