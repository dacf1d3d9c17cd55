package template

import (
	"regexp"
	"strings"
)

// placeholderPattern matches {{ name }} inside a targets template. Unlike
// varPattern it accepts any non-brace payload so prefixed names like
// "acct:email" survive until normalization.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

var whitespaceRun = regexp.MustCompile(`\s+`)

// TargetsPattern is a compiled extraction pattern built from a template like
// "{{a}};{{b}}": one non-greedy capture group per placeholder, anchored at
// both ends, with literal whitespace runs relaxed to \s*.
type TargetsPattern struct {
	Names []string
	re    *regexp.Regexp
}

// CompileTargets compiles a targets template. Returns nil when the template
// contains no placeholders.
func CompileTargets(tpl string) *TargetsPattern {
	var (
		names []string
		parts []string
		last  int
	)
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(tpl, -1) {
		parts = append(parts, escapeLiteral(tpl[last:loc[0]]))
		parts = append(parts, "(.*?)")
		names = append(names, strings.TrimSpace(tpl[loc[2]:loc[3]]))
		last = loc[1]
	}
	if len(names) == 0 {
		return nil
	}
	parts = append(parts, escapeLiteral(tpl[last:]))
	re := regexp.MustCompile("^" + strings.Join(parts, "") + "$")
	return &TargetsPattern{Names: names, re: re}
}

// Match applies the pattern to source (trimmed first) and returns the
// extracted values keyed by normalized placeholder name, each trimmed.
// The second return is false when the pattern does not match.
func (p *TargetsPattern) Match(source string) (map[string]string, bool) {
	groups := p.re.FindStringSubmatch(strings.TrimSpace(source))
	if groups == nil {
		return nil, false
	}
	out := make(map[string]string, len(p.Names))
	for i, name := range p.Names {
		normalized := NormalizeName(name)
		if normalized == "" {
			continue
		}
		value := ""
		if i+1 < len(groups) {
			value = groups[i+1]
		}
		out[normalized] = strings.TrimSpace(value)
	}
	return out, true
}

// NormalizeName strips a "prefix:" qualifier from a placeholder name,
// keeping the segment after the last colon.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ":")
	cleaned := strings.TrimSpace(parts[len(parts)-1])
	if cleaned == "" {
		return strings.TrimSpace(name)
	}
	return cleaned
}

// escapeLiteral regex-escapes a literal chunk of the template, compiling
// every run of whitespace to \s* so extraction tolerates spacing drift.
func escapeLiteral(literal string) string {
	if literal == "" {
		return ""
	}
	var b strings.Builder
	last := 0
	for _, loc := range whitespaceRun.FindAllStringIndex(literal, -1) {
		b.WriteString(regexp.QuoteMeta(literal[last:loc[0]]))
		b.WriteString(`\s*`)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(literal[last:]))
	return b.String()
}
