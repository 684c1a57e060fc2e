// Template resolution for step prompts.
//
// Information Hiding:
// - Placeholder scanning
// - Precedence between bound and sys.* names

package chain

import (
	"strings"

	"github.com/richinex/llmchain/model"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Resolve replaces every {{name}} in template with its value. Names are
// looked up in ctx first, then among system variables. The scan is a single
// left-to-right pass and inserted values are never expanded again. An
// unterminated "{{" is kept as literal text.
func Resolve(template string, ctx *ExecutionContext, sys SystemVars) (string, error) {
	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			b.WriteString(rest)
			break
		}
		end += start + len(openDelim)

		b.WriteString(rest[:start])
		name := strings.TrimSpace(rest[start+len(openDelim) : end])
		value, err := lookup(name, ctx, sys)
		if err != nil {
			return "", err
		}
		b.WriteString(value)
		rest = rest[end+len(closeDelim):]
	}
	return b.String(), nil
}

// References lists placeholder names in template, in order of appearance,
// without duplicates.
func References(template string) []string {
	var names []string
	seen := make(map[string]bool)

	rest := template
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			return names
		}
		end := strings.Index(rest[start+len(openDelim):], closeDelim)
		if end < 0 {
			return names
		}
		end += start + len(openDelim)

		name := strings.TrimSpace(rest[start+len(openDelim) : end])
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		rest = rest[end+len(closeDelim):]
	}
}

func lookup(name string, ctx *ExecutionContext, sys SystemVars) (string, error) {
	if ctx != nil {
		if v, ok := ctx.Lookup(name); ok {
			return v, nil
		}
	}
	if IsSystemName(name) {
		if v, ok := sys.Lookup(name); ok {
			return v, nil
		}
		return "", model.Errorf(model.KindUnresolvedVariable, "unknown system variable %q", name)
	}
	return "", model.Errorf(model.KindUnresolvedVariable, "variable %q is not bound", name)
}
