package store

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultAccountTemplate is the import format assumed when none is given.
const DefaultAccountTemplate = "{email};{password};{secret_key};{extra};{twofa_url}"

var linePlaceholder = regexp.MustCompile(`\{([^}]+)\}`)

// ParseAccountLine splits one import line by the delimiter derived from the
// template (the first literal run between placeholders) and maps the pieces
// to placeholder names. The field count must match exactly.
func ParseAccountLine(line, template string) (map[string]any, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty account line")
	}
	template = strings.TrimSpace(template)
	if template == "" {
		template = DefaultAccountTemplate
	}

	var (
		names    []string
		literals []string
		last     int
	)
	for _, loc := range linePlaceholder.FindAllStringSubmatchIndex(template, -1) {
		literals = append(literals, template[last:loc[0]])
		names = append(names, template[loc[2]:loc[3]])
		last = loc[1]
	}
	literals = append(literals, template[last:])
	if len(names) == 0 {
		return nil, fmt.Errorf("template must contain placeholders like {email}")
	}
	delim := ";"
	for _, lit := range literals {
		if lit != "" {
			delim = lit
			break
		}
	}

	values := strings.Split(line, delim)
	if len(values) != len(names) {
		return nil, fmt.Errorf("expected %d fields, got %d with delimiter %q", len(names), len(values), delim)
	}
	out := make(map[string]any, len(names))
	for i, name := range names {
		out[name] = strings.TrimSpace(values[i])
	}
	return out, nil
}

// Proxy is one parsed proxy endpoint.
type Proxy struct {
	Host     string
	Port     int
	User     string
	Password string
}

// ParseProxyLine parses "host:port:login:password", tolerating a leading
// scheme.
func ParseProxyLine(line string) (Proxy, error) {
	raw := strings.TrimSpace(line)
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
	}
	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return Proxy{}, fmt.Errorf("proxy line must be ip:port:login:password")
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return Proxy{}, fmt.Errorf("proxy port must be a number")
	}
	return Proxy{Host: parts[0], Port: port, User: parts[2], Password: parts[3]}, nil
}

// Apply merges the proxy into an account's proxy fields.
func (p Proxy) Apply(acc map[string]any) {
	acc["proxy_host"] = p.Host
	acc["proxy_port"] = p.Port
	acc["proxy_user"] = p.User
	acc["proxy_password"] = p.Password
}
