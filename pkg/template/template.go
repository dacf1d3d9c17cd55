// Package template implements {{name}} placeholder substitution against a
// variable snapshot, and the reverse operation: compiling a placeholder
// template into an extraction pattern.
package template

import "regexp"

// varPattern matches a single {{ identifier }} placeholder. Identifiers may
// contain word characters, dots and dashes.
var varPattern = regexp.MustCompile(`\{\{\s*([\w.-]+)\s*\}\}`)

// Source is a read-only variable lookup. Missing keys resolve to the empty
// string, never an error.
type Source interface {
	Get(key string) string
}

// MapSource adapts a plain map to a Source.
type MapSource map[string]string

// Get returns the value for key, or "" when absent.
func (m MapSource) Get(key string) string { return m[key] }

// Resolve substitutes every {{name}} placeholder in raw with the variable's
// value. Substitution is a single pass: substituted text is not rescanned,
// so re-resolving the output is a no-op.
func Resolve(raw string, vars Source) string {
	return varPattern.ReplaceAllStringFunc(raw, func(m string) string {
		sub := varPattern.FindStringSubmatch(m)
		return vars.Get(sub[1])
	})
}

// ResolveValue recurses structurally into maps and slices, resolving every
// string it finds, including string map keys. Non-string scalars pass
// through unchanged. nil in, nil out.
func ResolveValue(value any, vars Source) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return Resolve(v, vars)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[Resolve(key, vars)] = ResolveValue(val, vars)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ResolveValue(item, vars)
		}
		return out
	default:
		return value
	}
}
