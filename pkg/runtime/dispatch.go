package runtime

import (
	"context"

	"github.com/expr-lang/expr"

	"github.com/Tort1k558/Camouflow/pkg/schema"
)

// runStep dispatches one step to its handler. Panics inside a handler are
// recovered into Stop outcomes so a buggy step fails its scenario instead
// of the process.
func (e *Executor) runStep(ctx context.Context, st *schema.Step, label string, idx int) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Str("scenario", label).
				Int("step", idx+1).
				Interface("panic", r).
				Msg("step handler panicked")
			out = Stopf("step %s panicked: %v", st.Tag, r)
		}
	}()

	e.log.Info().
		Str("scenario", label).
		Int("step", idx+1).
		Str("action", st.Action.String()).
		Msgf("running step: %s", describe(st))

	// Expensive variables refresh lazily, only before steps that reference
	// them.
	if st.Mentions("cookies") {
		e.refreshCookies(ctx)
	}
	if st.Mentions("timestamp") {
		e.profile.Set("timestamp", nowFunc().Format(timestampFormat))
	}

	if st.When != "" {
		ok, err := e.evalWhen(st.When)
		if err != nil {
			return Stopf("when guard failed on step %s: %v", st.Tag, err)
		}
		if !ok {
			e.log.Debug().Str("tag", st.Tag).Msg("when guard false, step skipped")
			return Next()
		}
	}

	switch st.Action {
	case schema.ActionStart:
		return Next()
	case schema.ActionGoto:
		return e.actionGoto(ctx, st)
	case schema.ActionWaitForLoadState:
		return e.actionWaitForLoadState(ctx, st)
	case schema.ActionWaitElement:
		return e.actionWaitElement(ctx, st)
	case schema.ActionSleep:
		return e.actionSleep(ctx, st)
	case schema.ActionClick:
		return e.actionClick(ctx, st)
	case schema.ActionType:
		return e.actionType(ctx, st)
	case schema.ActionSetVar:
		return e.actionSetVar(st)
	case schema.ActionExtractText:
		return e.actionExtract(ctx, st)
	case schema.ActionParseVar:
		return e.actionParseVar(st)
	case schema.ActionCompare:
		return e.actionCompare(st)
	case schema.ActionNewTab:
		return e.actionNewTab(ctx, st)
	case schema.ActionSwitchTab:
		return e.actionSwitchTab(ctx, st)
	case schema.ActionCloseTab:
		return e.actionCloseTab(ctx, st)
	case schema.ActionLog:
		return e.actionLog(st)
	case schema.ActionHTTPRequest:
		return e.actionHTTPRequest(ctx, st)
	case schema.ActionPopShared:
		return e.actionPopShared(st)
	case schema.ActionRunScenario:
		return e.actionRunScenario(ctx, st)
	case schema.ActionSetStage:
		return e.actionSetStage(st)
	case schema.ActionWriteFile:
		return e.actionWriteFile(st)
	case schema.ActionEnd:
		return e.actionEnd(ctx)
	}
	return Stopf("unknown action %s", st.Action)
}

// evalWhen compiles and evaluates an expression guard against the current
// variable snapshot.
func (e *Executor) evalWhen(cond string) (bool, error) {
	env := make(map[string]any)
	for k, v := range e.profile.Snapshot() {
		env[k] = v
	}
	program, err := expr.Compile(cond, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	res, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	b, _ := res.(bool)
	return b, nil
}
