package allowlist

import (
	"bytes"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Split implements spec §4.2's atomic sub-command extraction: the full
// line L is split on &&, ||, ;, and | into its component simple commands,
// and the contents of $(...), `...`, <(...), and >(...) substitutions are
// extracted as additional independently-checked sub-commands.
//
// Parsing is delegated to mvdan.cc/sh/v3's bash-compatible parser so that
// quoting and nesting are handled the way a real shell would split them,
// rather than by regexing on the separator characters.
func Split(line string) []string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(trimmed), "")
	if err != nil {
		// Not valid shell grammar (or uses syntax the parser doesn't
		// support); fall back to treating the whole line as one
		// sub-command so it still gets policy-checked.
		return []string{trimmed}
	}

	printer := syntax.NewPrinter()
	var out []string
	seen := make(map[string]bool)
	syntax.Walk(file, func(node syntax.Node) bool {
		call, ok := node.(*syntax.CallExpr)
		if !ok {
			return true
		}
		var buf bytes.Buffer
		if err := printer.Print(&buf, call); err != nil {
			return true
		}
		text := strings.TrimSpace(buf.String())
		if text != "" && !seen[text] {
			seen[text] = true
			out = append(out, text)
		}
		return true
	})

	if len(out) == 0 {
		return []string{trimmed}
	}
	return out
}
