// Package allowlist implements the shell-command policy evaluator of
// spec §4.2: parsing a command line into atomic sub-commands and deciding
// allow/deny/ask against an ordered rule set.
package allowlist

import (
	"fmt"
	"regexp"
	"strings"
)

// Pattern is the sum type of spec §9's "Define an explicit Pattern sum
// type {Exact(string) | Regex(compiled)}".
type Pattern interface {
	// Match reports whether candidate (a sub-command or the full command
	// line, depending on the owning rule's scope) matches this pattern.
	Match(candidate string) bool
	String() string
}

// ExactPattern matches a bare command name against the candidate's base
// executable, or against a command-line prefix for multi-word patterns
// like "git status" (§4.2).
type ExactPattern struct {
	text string
}

func (p ExactPattern) String() string { return p.text }

func (p ExactPattern) Match(candidate string) bool {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return false
	}
	if trimmed == p.text || strings.HasPrefix(trimmed, p.text+" ") {
		return true
	}
	return baseExecutable(trimmed) == p.text
}

// baseExecutable returns the leading token of a command string with
// quoting and path prefixes stripped, e.g. `"/usr/bin/git" status` -> git.
func baseExecutable(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	token := strings.Trim(fields[0], `"'`)
	if idx := strings.LastIndexByte(token, '/'); idx >= 0 {
		token = token[idx+1:]
	}
	return token
}

// RegexPattern wraps a compiled /pattern/flags literal (§4.2).
type RegexPattern struct {
	text string
	re   *regexp.Regexp
}

func (p RegexPattern) String() string { return p.text }

func (p RegexPattern) Match(candidate string) bool {
	return p.re.MatchString(candidate)
}

// InvalidPattern stands in for a rule whose regex failed to compile. It
// never matches anything, per §4.2's "invalid regex... rule treated as
// non-matching".
type InvalidPattern struct {
	text string
	err  error
}

func (p InvalidPattern) String() string { return p.text }
func (p InvalidPattern) Match(string) bool { return false }

// ParsePattern parses a pattern-string key from the allowlist file: either
// an exact command name, or a `/regex/flags` literal.
func ParsePattern(text string) Pattern {
	if len(text) >= 2 && text[0] == '/' {
		if closing := strings.LastIndexByte(text, '/'); closing > 0 {
			body := text[1:closing]
			flags := text[closing+1:]
			expr := body
			if strings.Contains(flags, "i") {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return InvalidPattern{text: text, err: fmt.Errorf("allowlist: invalid regex %q: %w", text, err)}
			}
			return RegexPattern{text: text, re: re}
		}
	}
	return ExactPattern{text: text}
}
