package runtime

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Tort1k558/Camouflow/pkg/schema"
	"github.com/Tort1k558/Camouflow/pkg/template"
)

func (e *Executor) actionLog(st *schema.Step) Outcome {
	message := e.resolve(st.StringField("value"))
	e.log.Info().Msgf("SCENARIO LOG: %s", message)
	return Next()
}

func (e *Executor) actionSetVar(st *schema.Step) Outcome {
	name := strings.TrimSpace(firstField(st, "name", "variable", "var"))
	if name == "" {
		return Next()
	}
	value := e.resolve(st.StringField("value"))
	scope := strings.ToLower(strings.TrimSpace(st.StringField("scope")))

	e.profile.Set(name, value)
	if scope == "shared" || scope == "both" {
		e.shared.Set(name, value)
		e.log.Info().Str("var", name).Str("value", value).Msg("shared variable set")
	} else {
		e.log.Info().Str("var", name).Str("value", value).Msg("scenario variable set")
	}
	if err := e.profile.Persist(); err != nil {
		e.log.Debug().Err(err).Msg("profile vars persist failed")
	}
	return Next()
}

func (e *Executor) actionParseVar(st *schema.Step) Outcome {
	fromVar := strings.TrimSpace(firstField(st, "from_var", "var", "name"))
	var source string
	if fromVar != "" {
		source = e.profile.Get(fromVar)
	} else {
		source = e.resolve(st.StringField("value"))
	}

	patternStr := strings.TrimSpace(firstField(st, "pattern", "targets_string"))
	if patternStr == "" {
		return Stop("Pattern is required for parse_var")
	}
	pattern := template.CompileTargets(patternStr)
	if pattern == nil {
		return Stop("Pattern must contain placeholders like {{name}}")
	}
	extracted, ok := pattern.Match(source)
	if !ok {
		return Stop("Pattern did not match source for parse_var")
	}
	for name, value := range extracted {
		e.profile.Set(name, value)
	}

	if st.BoolField("update_account", true) && len(extracted) > 0 {
		e.updateAccountFields(extracted)
	}
	if err := e.profile.Persist(); err != nil {
		e.log.Debug().Err(err).Msg("profile vars persist failed")
	}

	names := make([]string, 0, len(extracted))
	for name := range extracted {
		names = append(names, name)
	}
	sort.Strings(names)
	origin := fromVar
	if origin == "" {
		origin = "value"
	}
	e.log.Info().Str("source", origin).Strs("vars", names).Msg("parsed variables")
	return Next()
}

func (e *Executor) actionCompare(st *schema.Step) Outcome {
	op := strings.ToLower(strings.TrimSpace(firstField(st, "op", "operator")))
	if op == "" {
		op = "equals"
	}
	caseSensitive := st.BoolField("case_sensitive", false)

	var left string
	if leftVar := strings.TrimSpace(firstField(st, "left_var", "from_var", "var", "name")); leftVar != "" {
		left = e.profile.Get(leftVar)
	} else {
		left = e.resolve(firstField(st, "left", "a"))
	}
	var right string
	if rightVar := strings.TrimSpace(firstField(st, "right_var", "b_var")); rightVar != "" {
		right = e.profile.Get(rightVar)
	} else {
		right = e.resolve(firstField(st, "right", "b", "value"))
	}

	result, out, ok := evaluateCompare(op, left, right, caseSensitive)
	if !ok {
		return out
	}

	if outVar := strings.TrimSpace(firstField(st, "result_var", "to_var")); outVar != "" {
		e.profile.Set(outVar, strconv.FormatBool(result))
		if err := e.profile.Persist(); err != nil {
			e.log.Debug().Err(err).Msg("profile vars persist failed")
		}
	}

	trueTarget := firstField(st, "true_step", "next_success_step")
	falseTarget := firstField(st, "false_step", "next_error_step")

	if result {
		if trueTarget != "" {
			return Jump(trueTarget)
		}
		return Next()
	}
	if falseTarget != "" {
		return Jump(falseTarget)
	}
	if trueTarget != "" {
		return Stop("Compare is false but false branch is not configured")
	}
	return Next()
}

// evaluateCompare applies one comparison operator. The third return is
// false when the operator is unknown or evaluation failed; out then carries
// the stop.
func evaluateCompare(op, left, right string, caseSensitive bool) (bool, Outcome, bool) {
	fold := func(a, b string) (string, string) {
		if caseSensitive {
			return a, b
		}
		return strings.ToLower(a), strings.ToLower(b)
	}

	switch op {
	case "is_empty", "empty":
		return strings.TrimSpace(left) == "", Outcome{}, true
	case "not_empty", "has_value":
		return strings.TrimSpace(left) != "", Outcome{}, true
	case "equals", "eq", "==":
		a, b := fold(left, right)
		return a == b, Outcome{}, true
	case "not_equals", "ne", "!=":
		a, b := fold(left, right)
		return a != b, Outcome{}, true
	case "contains":
		a, b := fold(left, right)
		return strings.Contains(a, b), Outcome{}, true
	case "not_contains":
		a, b := fold(left, right)
		return !strings.Contains(a, b), Outcome{}, true
	case "startswith":
		a, b := fold(left, right)
		return strings.HasPrefix(a, b), Outcome{}, true
	case "endswith":
		a, b := fold(left, right)
		return strings.HasSuffix(a, b), Outcome{}, true
	case "regex", "re", "match":
		pattern := right
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, Stopf("Compare failed: %v", err), false
		}
		return re.FindStringIndex(left) != nil, Outcome{}, true
	case "gt", ">", "gte", ">=", "lt", "<", "lte", "<=":
		a, errA := strconv.ParseFloat(strings.TrimSpace(left), 64)
		b, errB := strconv.ParseFloat(strings.TrimSpace(right), 64)
		if errA != nil {
			return false, Stopf("Compare failed: %v", errA), false
		}
		if errB != nil {
			return false, Stopf("Compare failed: %v", errB), false
		}
		switch op {
		case "gt", ">":
			return a > b, Outcome{}, true
		case "gte", ">=":
			return a >= b, Outcome{}, true
		case "lt", "<":
			return a < b, Outcome{}, true
		default:
			return a <= b, Outcome{}, true
		}
	}
	return false, Stopf("Unknown compare operator %s", op), false
}

func (e *Executor) actionWriteFile(st *schema.Step) Outcome {
	filename := strings.TrimSpace(e.resolve(firstField(st, "filename", "file")))
	content := e.resolve(st.StringField("value"))

	if filename == "" {
		return Stop("File name is required for write_file action")
	}
	if filepath.IsAbs(filename) {
		return Stop("Absolute file paths are not allowed for write_file action")
	}
	path := filepath.Join(e.outputsDir, filename)
	if rel, err := filepath.Rel(e.outputsDir, path); err != nil || strings.HasPrefix(rel, "..") {
		return Stopf("File path %s escapes the outputs folder", filename)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Stopf("Cannot create folder for file %s: %v", path, err)
	}
	if err := appendLine(path, content); err != nil {
		return Stopf("Failed to write file %s: %v", path, err)
	}
	return Next()
}

// appendLine appends content plus a trailing newline, inserting a separator
// first when the existing file does not end with one.
func appendLine(path, content string) error {
	prefix := ""
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		f, err := os.Open(path)
		if err != nil {
			prefix = "\n"
		} else {
			buf := make([]byte, 1)
			if _, err := f.ReadAt(buf, info.Size()-1); err != nil || (buf[0] != '\n' && buf[0] != '\r') {
				prefix = "\n"
			}
			f.Close()
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(prefix + content + "\n")
	return err
}

// updateAccountFields pushes extracted values into the account record and
// the in-memory payload. Persistence failures are logged, not fatal.
func (e *Executor) updateAccountFields(fields map[string]string) {
	if e.accounts != nil {
		if err := e.accounts.UpdateAccount(e.accountName, fields); err != nil {
			e.log.Warn().Err(err).Str("account", e.accountName).Msg("account update failed")
			return
		}
	}
	if e.account != nil {
		for k, v := range fields {
			e.account[k] = v
		}
	}
}
