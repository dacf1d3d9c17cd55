// Package vars holds the two variable namespaces available to scenario
// steps: an execution-local profile store created per run, and a
// process-wide shared store visible to every concurrent execution.
package vars

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// Profile is the execution-local variable map. It is seeded from the
// account payload at construction and mutated by data actions. Lookups for
// missing keys return "", never an error.
type Profile struct {
	mu     sync.Mutex
	values map[string]string
	path   string
	log    zerolog.Logger
}

// NewProfile builds the execution-local store. One level of nested
// "extra_fields" from the account payload is flattened into the top-level
// namespace; shared seed values overlay the account fields. The cookies and
// timestamp entries always exist so templates referencing them resolve
// before their first refresh.
func NewProfile(account map[string]any, shared map[string]string, path string, log zerolog.Logger) *Profile {
	values := make(map[string]string, len(account)+len(shared)+2)
	for key, val := range account {
		if key == "extra_fields" {
			if extra, ok := val.(map[string]any); ok {
				for ek, ev := range extra {
					values[ek] = Stringify(ev)
				}
				continue
			}
		}
		values[key] = Stringify(val)
	}
	for key, val := range shared {
		values[key] = val
	}
	if _, ok := values["cookies"]; !ok {
		values["cookies"] = "[]"
	}
	if _, ok := values["timestamp"]; !ok {
		values["timestamp"] = ""
	}
	return &Profile{values: values, path: path, log: log}
}

// Get returns the variable's value, or "" when absent.
func (p *Profile) Get(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[key]
}

// Set stores a value.
func (p *Profile) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Snapshot returns a copy of the full map.
func (p *Profile) Snapshot() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Persist writes the full map to the profile-scoped vars file. Failures are
// logged at debug level and reported to the caller; mutating actions treat
// them as non-fatal.
func (p *Profile) Persist() error {
	if p.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(p.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile vars: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		p.log.Debug().Err(err).Str("path", p.path).Msg("persist profile vars")
		return err
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		p.log.Debug().Err(err).Str("path", p.path).Msg("persist profile vars")
		return err
	}
	return nil
}

// Path returns the persistence target, if any.
func (p *Profile) Path() string { return p.path }

// Stringify renders an arbitrary JSON-decoded value the way templates
// expect: nil becomes "", numbers drop a trailing ".0", booleans render as
// true/false, everything else re-encodes as JSON.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case json.Number:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
