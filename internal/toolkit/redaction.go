package toolkit

import (
	"regexp"

	"github.com/mikesmullin/daemon-sub001/pkg/model"
)

// DefaultMaxResultChars bounds a tool result's persisted size (64KB),
// guarding against one runaway tool bloating the session log.
const DefaultMaxResultChars = 64 * 1024

// builtinSecretPatterns catches the common secret shapes a shell or HTTP
// tool's raw output tends to leak: API keys, bearer tokens, AWS
// credentials, generic password/secret/token assignments, and PEM private
// keys.
var builtinSecretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w\-.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ResultGuard redacts secret-shaped substrings from a tool result's
// content and truncates it to MaxChars before it is persisted to the
// session log (§4.3 step 3's "content is stringified" leaves no room for
// a later sanitization pass — this runs at the point of execution).
type ResultGuard struct {
	Enabled       bool
	MaxChars      int
	RedactionText string
}

// DefaultResultGuard applies builtin secret redaction and
// DefaultMaxResultChars truncation.
func DefaultResultGuard() ResultGuard {
	return ResultGuard{Enabled: true, MaxChars: DefaultMaxResultChars}
}

func (g ResultGuard) apply(result model.ToolResult) model.ToolResult {
	if !g.Enabled || result.Content == "" {
		return result
	}

	redaction := g.RedactionText
	if redaction == "" {
		redaction = "[REDACTED]"
	}

	content := result.Content
	for _, re := range builtinSecretPatterns {
		content = re.ReplaceAllString(content, redaction)
	}

	if g.MaxChars > 0 && len(content) > g.MaxChars {
		content = content[:g.MaxChars] + "...[truncated]"
	}

	result.Content = content
	return result
}
