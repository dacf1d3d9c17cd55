// Package schema defines the scenario document model: typed steps over a
// closed action enum, strict JSON loading with unknown-field preservation,
// and load-time validation of the step graph.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Step is one unit of work inside a scenario. The promoted fields are parsed
// once at load; everything else the author wrote stays in Fields untouched,
// so handlers can read their own keys and a save round-trips the document.
type Step struct {
	Action      Action
	Tag         string
	Description string
	When        string
	NextSuccess string
	NextError   string

	// Fields is the raw decoded step object, aliases normalized
	// (a missing "value" is filled from url/text/message).
	Fields map[string]any

	raw string
}

// Field returns the raw value for key and whether it is present.
func (st *Step) Field(key string) (any, bool) {
	v, ok := st.Fields[key]
	return v, ok
}

// StringField returns the field rendered as a string; missing keys and nil
// values render as "".
func (st *Step) StringField(key string) string {
	v, ok := st.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// FloatField parses the field as a number. Strings are parsed; ok is false
// when the field is absent or not numeric.
func (st *Step) FloatField(key string) (float64, bool) {
	v, present := st.Fields[key]
	if !present {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// BoolField interprets the field as a flag. Absent fields return def.
func (st *Step) BoolField(key string, def bool) bool {
	v, present := st.Fields[key]
	if !present || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off", "":
			return false
		}
		return def
	case float64:
		return t != 0
	default:
		return def
	}
}

// MapField returns the field as an object, or nil.
func (st *Step) MapField(key string) map[string]any {
	m, _ := st.Fields[key].(map[string]any)
	return m
}

// Mentions reports whether the step's raw payload references the named
// template variable anywhere, in any field. Used to refresh expensive
// variables lazily, only before steps that can actually consume them.
// The check is deliberately loose: any payload containing "{{" and the
// name counts, which over-approximates but never misses a real use.
func (st *Step) Mentions(name string) bool {
	lowered := strings.ToLower(st.raw)
	return strings.Contains(lowered, "{{") && strings.Contains(lowered, strings.ToLower(name))
}

// MarshalJSON re-emits the original fields, so editing tools that load and
// save scenarios do not lose keys the engine does not understand.
func (st *Step) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.Fields)
}

// Scenario is a loaded scenario document. Steps are replaced wholesale on
// hot reload; the tag index is rebuilt with them.
type Scenario struct {
	Name        string
	Description string
	Steps       []*Step

	tagIndex map[string]int
	extra    map[string]any
}

// StepIndex resolves a tag to its zero-based step index.
func (s *Scenario) StepIndex(tag string) (int, bool) {
	i, ok := s.tagIndex[tag]
	return i, ok
}

// MarshalJSON writes the document back in its on-disk shape.
func (s *Scenario) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.extra)+3)
	for k, v := range s.extra {
		doc[k] = v
	}
	doc["name"] = s.Name
	if s.Description != "" {
		doc["description"] = s.Description
	}
	doc["steps"] = s.Steps
	return json.Marshal(doc)
}

// valueAliases fill a missing "value" from older field spellings.
var valueAliases = []string{"url", "text", "message"}

// LoadFile reads and parses a scenario JSON file.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a scenario document. Unknown actions, duplicate tags and
// branch targets that name no step are load errors; they are collected so
// one pass reports every problem.
func Load(r io.Reader) (*Scenario, error) {
	var doc map[string]any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	return fromDocument(doc)
}

func fromDocument(doc map[string]any) (*Scenario, error) {
	s := &Scenario{
		tagIndex: make(map[string]int),
		extra:    make(map[string]any),
	}
	for k, v := range doc {
		switch k {
		case "name":
			s.Name, _ = v.(string)
		case "description":
			s.Description, _ = v.(string)
		case "steps":
		default:
			s.extra[k] = v
		}
	}

	rawSteps, _ := doc["steps"].([]any)
	var errs []error
	for i, rs := range rawSteps {
		fields, ok := rs.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("steps[%d]: not an object", i))
			continue
		}
		st, err := buildStep(fields, i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := s.tagIndex[st.Tag]; dup {
			errs = append(errs, fmt.Errorf("steps[%d]: duplicate tag %q (first at steps[%d])", i, st.Tag, prev))
			continue
		}
		s.tagIndex[st.Tag] = len(s.Steps)
		s.Steps = append(s.Steps, st)
	}

	errs = append(errs, s.validateEdges()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return s, nil
}

func buildStep(fields map[string]any, index int) (*Step, error) {
	name, _ := fields["action"].(string)
	action, ok := ParseAction(name)
	if !ok {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("steps[%d]: missing action", index)
		}
		return nil, fmt.Errorf("steps[%d]: unknown action %q", index, name)
	}

	if _, has := fields["value"]; !has {
		for _, alias := range valueAliases {
			if v, ok := fields[alias]; ok {
				fields["value"] = v
				break
			}
		}
	}

	st := &Step{Action: action, Fields: fields}
	st.Tag = strings.TrimSpace(st.StringField("tag"))
	if st.Tag == "" {
		st.Tag = fmt.Sprintf("step_%d", index+1)
	}
	st.Description = st.StringField("description")
	st.When = st.StringField("when")
	st.NextSuccess = strings.TrimSpace(st.StringField("next_success_step"))
	st.NextError = strings.TrimSpace(st.StringField("next_error_step"))

	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("steps[%d]: %w", index, err)
	}
	st.raw = string(raw)
	return st, nil
}

// validateEdges checks every static branch target against the tag index.
func (s *Scenario) validateEdges() []error {
	var errs []error
	check := func(i int, field, tag string) {
		if tag == "" {
			return
		}
		if _, ok := s.tagIndex[tag]; !ok {
			errs = append(errs, fmt.Errorf("steps[%d].%s: no step tagged %q", i, field, tag))
		}
	}
	for i, st := range s.Steps {
		check(i, "next_success_step", st.NextSuccess)
		check(i, "next_error_step", st.NextError)
	}
	return errs
}
