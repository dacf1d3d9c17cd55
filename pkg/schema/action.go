package schema

import (
	"slices"
	"strings"
)

// Action is the closed set of step kinds. Scenario files spell actions as
// strings; they are parsed into this enum once at load time, so the engine
// dispatches on a constant and an unknown spelling is a load error, not a
// runtime surprise.
type Action int

const (
	ActionInvalid Action = iota
	ActionStart
	ActionGoto
	ActionWaitForLoadState
	ActionWaitElement
	ActionSleep
	ActionClick
	ActionType
	ActionSetVar
	ActionExtractText
	ActionParseVar
	ActionCompare
	ActionNewTab
	ActionSwitchTab
	ActionCloseTab
	ActionLog
	ActionHTTPRequest
	ActionPopShared
	ActionRunScenario
	ActionSetStage
	ActionWriteFile
	ActionEnd
)

// actionNames maps every accepted spelling, aliases included, to its enum
// constant.
var actionNames = map[string]Action{
	"start":              ActionStart,
	"goto":               ActionGoto,
	"wait_for_load_state": ActionWaitForLoadState,
	"wait_element":       ActionWaitElement,
	"sleep":              ActionSleep,
	"click":              ActionClick,
	"type":               ActionType,
	"set_var":            ActionSetVar,
	"extract_text":       ActionExtractText,
	"extract":            ActionExtractText,
	"parse_var":          ActionParseVar,
	"parse_vars":         ActionParseVar,
	"parse_variable":     ActionParseVar,
	"compare":            ActionCompare,
	"if":                 ActionCompare,
	"new_tab":            ActionNewTab,
	"switch_tab":         ActionSwitchTab,
	"close_tab":          ActionCloseTab,
	"log":                ActionLog,
	"http_request":       ActionHTTPRequest,
	"http":               ActionHTTPRequest,
	"pop_shared":         ActionPopShared,
	"pop":                ActionPopShared,
	"run_scenario":       ActionRunScenario,
	"set_stage":          ActionSetStage,
	"set_tag":            ActionSetStage,
	"write_file":         ActionWriteFile,
	"end":                ActionEnd,
}

// canonical spelling per constant, used by String and error messages.
var actionStrings = map[Action]string{
	ActionStart:            "start",
	ActionGoto:             "goto",
	ActionWaitForLoadState: "wait_for_load_state",
	ActionWaitElement:      "wait_element",
	ActionSleep:            "sleep",
	ActionClick:            "click",
	ActionType:             "type",
	ActionSetVar:           "set_var",
	ActionExtractText:      "extract_text",
	ActionParseVar:         "parse_var",
	ActionCompare:          "compare",
	ActionNewTab:           "new_tab",
	ActionSwitchTab:        "switch_tab",
	ActionCloseTab:         "close_tab",
	ActionLog:              "log",
	ActionHTTPRequest:      "http_request",
	ActionPopShared:        "pop_shared",
	ActionRunScenario:      "run_scenario",
	ActionSetStage:         "set_stage",
	ActionWriteFile:        "write_file",
	ActionEnd:              "end",
}

// ParseAction resolves an action spelling, lowercased and trimmed, to its
// enum constant. ok is false for spellings outside the closed set.
func ParseAction(s string) (Action, bool) {
	a, ok := actionNames[strings.ToLower(strings.TrimSpace(s))]
	return a, ok
}

// String returns the canonical spelling.
func (a Action) String() string {
	if s, ok := actionStrings[a]; ok {
		return s
	}
	return "invalid"
}

// ActionSpellings lists every accepted spelling sorted for schema generation
// and error messages.
func ActionSpellings() []string {
	out := make([]string, 0, len(actionNames))
	for name := range actionNames {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
