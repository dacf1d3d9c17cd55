package runtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Tort1k558/Camouflow/pkg/driver"
	"github.com/Tort1k558/Camouflow/pkg/schema"
	"github.com/Tort1k558/Camouflow/pkg/template"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

// nowFunc is swapped in tests.
var nowFunc = time.Now

func templateResolve(raw string, profile *vars.Profile) string {
	return template.Resolve(raw, profile)
}

// firstField returns the first non-blank field among keys, rendered as a
// string.
func firstField(st *schema.Step, keys ...string) string {
	for _, key := range keys {
		if v := st.StringField(key); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// firstRawField returns the first present raw value among keys.
func firstRawField(fields map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := fields[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// parseJSONMap coerces a value to a JSON object: maps pass through, strings
// are template-resolved and decoded, everything else yields nil.
func (e *Executor) parseJSONMap(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		return v
	case string:
		rendered := strings.TrimSpace(e.resolve(v))
		if rendered == "" {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(rendered), &out); err != nil {
			return nil
		}
		return out
	default:
		return nil
	}
}

// resolveStringMap template-resolves a JSON object and flattens its values
// to strings, nil values becoming "".
func (e *Executor) resolveStringMap(raw any) map[string]string {
	m := e.parseJSONMap(raw)
	if m == nil {
		return nil
	}
	resolved, _ := template.ResolveValue(m, e.profile).(map[string]any)
	out := make(map[string]string, len(resolved))
	for k, v := range resolved {
		out[k] = vars.Stringify(v)
	}
	return out
}

// stopDriver converts a driver error into the standard stop reason,
// distinguishing wait timeouts from hard failures.
func stopDriver(action string, err error) Outcome {
	if driver.IsTimeout(err) {
		return Stopf("Timeout in action %s: %v", action, err)
	}
	return Stopf("Driver error in %s: %v", action, err)
}

// buildTarget assembles the element resolution request from a step's
// locator fields, template-resolving the selector and frame chain.
func (e *Executor) buildTarget(st *schema.Step) driver.Target {
	t := driver.Target{
		Selector: strings.TrimSpace(e.resolve(st.StringField("selector"))),
		Kind:     driver.ParseSelectorKind(strings.ToLower(firstField(st, "selector_type", "selector_kind"))),
		State:    normalizeState(st.StringField("state")),
		Exact:    st.BoolField("exact", false),
		Timeout:  stepTimeout(st),
	}
	if ord, ok := st.FloatField("selector_index"); ok {
		n := int(ord)
		t.Ordinal = &n
	}
	t.FrameChain = e.frameChain(st)
	return t
}

// frameChain resolves the optional iframe descent list: either a list of
// selectors or a single ">>"-separated string.
func (e *Executor) frameChain(st *schema.Step) []string {
	raw, ok := st.Field("frame_selector")
	if !ok || raw == nil {
		return nil
	}
	var chain []string
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(e.resolve(vars.Stringify(item))); s != "" {
				chain = append(chain, s)
			}
		}
	case string:
		rendered := strings.TrimSpace(e.resolve(v))
		if rendered == "" {
			return nil
		}
		for _, part := range strings.Split(rendered, ">>") {
			if p := strings.TrimSpace(part); p != "" {
				chain = append(chain, p)
			}
		}
	}
	return chain
}

func normalizeState(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "attached", "detached", "visible", "hidden":
		return strings.ToLower(strings.TrimSpace(raw))
	default:
		return "visible"
	}
}

func stepTimeout(st *schema.Step) time.Duration {
	if ms, ok := st.FloatField("timeout_ms"); ok && ms > 0 {
		return time.Duration(ms * float64(time.Millisecond))
	}
	return 0
}

// locate resolves the step's target element. A wait timeout or empty
// selector stops with "Element not found"; other driver failures keep
// their own reason.
func (e *Executor) locate(ctx context.Context, st *schema.Step, forWhat string) (driver.Element, Outcome, bool) {
	target := e.buildTarget(st)
	if target.Selector == "" {
		return nil, Stopf("Element not found for %s", forWhat), false
	}
	el, err := e.drv.Locate(ctx, target)
	if err != nil {
		if driver.IsTimeout(err) {
			return nil, Stopf("Element not found for %s", forWhat), false
		}
		return nil, stopDriver(forWhat, err), false
	}
	return el, Outcome{}, true
}
