package schema

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is a single validation finding with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "steps[3].selector")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile runs the full validation pipeline on a scenario file.
// Phase 1: structural (strict JSON load with edge checks)
// Phase 2: semantic (JSON Schema validation)
// Phase 3: domain (per-action Go rules)
func ValidateFile(path string) (*Scenario, []*ValidationError) {
	var all []*ValidationError

	sc, err := LoadFile(path)
	if err != nil {
		all = append(all, &ValidationError{
			Phase:    "structural",
			Path:     "",
			Message:  err.Error(),
			Severity: "error",
		})
		return nil, all
	}

	all = append(all, validateSemantic(sc)...)
	all = append(all, ValidateDomain(sc)...)

	if len(all) > 0 {
		return sc, all
	}
	return sc, nil
}

// validateSemantic validates the scenario against the generated JSON Schema.
func validateSemantic(sc *Scenario) []*ValidationError {
	fail := func(msg string) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Path: "", Message: msg, Severity: "error"}}
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return fail(fmt.Sprintf("marshal for schema validation: %v", err))
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return fail(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fail(fmt.Sprintf("unmarshal schema: %v", err))
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("scenario-v1.json", schemaDoc); err != nil {
		return fail(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("scenario-v1.json")
	if err != nil {
		return fail(fmt.Sprintf("compile schema: %v", err))
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fail(fmt.Sprintf("unmarshal document: %v", err))
	}

	if err := sch.Validate(doc); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     "",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// firstStepField returns the first non-blank field among the alias
// spellings the dispatcher accepts for one logical field.
func firstStepField(st *Step, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(st.StringField(key)); v != "" {
			return v
		}
	}
	return ""
}

// ValidateDomain applies per-action rules the schema cannot express. Field
// lookups follow the same alias spellings the runtime dispatcher reads, so
// a scenario the engine can execute never fails domain validation on a
// differently spelled field.
func ValidateDomain(sc *Scenario) []*ValidationError {
	var errs []*ValidationError
	add := func(path, msg, severity string) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: msg, Severity: severity})
	}

	if strings.TrimSpace(sc.Name) == "" {
		add("name", "scenario has no name", "warning")
	}
	if len(sc.Steps) == 0 {
		add("steps", "scenario must contain at least one step", "error")
	}

	for i, st := range sc.Steps {
		at := func(field string) string { return fmt.Sprintf("steps[%d].%s", i, field) }

		switch st.Action {
		case ActionGoto, ActionNewTab:
			if strings.TrimSpace(st.StringField("value")) == "" {
				add(at("value"), fmt.Sprintf("%s step %q requires a url", st.Action, st.Tag), "error")
			}
		case ActionClick, ActionType, ActionWaitElement, ActionExtractText:
			if strings.TrimSpace(st.StringField("selector")) == "" {
				add(at("selector"), fmt.Sprintf("%s step %q requires a selector", st.Action, st.Tag), "error")
			}
		case ActionCompare:
			for _, branch := range []string{"true_step", "false_step"} {
				tag := strings.TrimSpace(st.StringField(branch))
				if tag == "" {
					continue
				}
				if _, ok := sc.StepIndex(tag); !ok {
					add(at(branch), fmt.Sprintf("no step tagged %q", tag), "error")
				}
			}
		case ActionRunScenario:
			if firstStepField(st, "scenario", "scenario_name", "name", "value") == "" {
				add(at("value"), fmt.Sprintf("run_scenario step %q requires a scenario name", st.Tag), "error")
			}
		case ActionHTTPRequest:
			if strings.TrimSpace(st.StringField("url")) == "" && strings.TrimSpace(st.StringField("value")) == "" {
				add(at("url"), fmt.Sprintf("http_request step %q requires a url", st.Tag), "error")
			}
		case ActionWriteFile:
			p := firstStepField(st, "filename", "file")
			if p == "" {
				add(at("filename"), fmt.Sprintf("write_file step %q requires a filename", st.Tag), "error")
			} else if filepath.IsAbs(p) || strings.Contains(p, "..") {
				add(at("filename"), fmt.Sprintf("write_file path %q must be relative and stay inside the outputs root", p), "error")
			}
		case ActionSleep:
			_, hasSeconds := st.FloatField("seconds")
			_, hasTimeout := st.FloatField("timeout_ms")
			if !hasSeconds && !hasTimeout {
				add(at("seconds"), fmt.Sprintf("sleep step %q has no duration, defaulting to 0", st.Tag), "warning")
			}
		case ActionPopShared:
			if strings.TrimSpace(st.StringField("value")) == "" {
				add(at("value"), fmt.Sprintf("pop_shared step %q requires a pool key", st.Tag), "error")
			}
		}

		if st.Action == ActionSetVar && firstStepField(st, "name", "variable", "var") == "" {
			add(at("variable"), fmt.Sprintf("set_var step %q requires a variable name", st.Tag), "error")
		}
	}
	return errs
}
