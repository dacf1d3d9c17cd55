package runtime

import (
	"context"
	"strings"

	"github.com/Tort1k558/Camouflow/pkg/schema"
	"github.com/Tort1k558/Camouflow/pkg/template"
)

func (e *Executor) actionRunScenario(ctx context.Context, st *schema.Step) Outcome {
	name := strings.TrimSpace(e.resolve(firstField(st, "scenario", "scenario_name", "name", "value")))
	if name == "" {
		return Stop("Scenario name is empty for run_scenario action")
	}
	if e.scenarios == nil {
		return Stopf("Scenario %s not found", name)
	}
	nested, nestedPath, err := e.scenarios.Load(name)
	if err != nil {
		return Stopf("Scenario %s not found: %v", name, err)
	}

	display := nested.Name
	if display == "" {
		display = name
	}
	for _, active := range e.stack {
		if strings.EqualFold(active, display) {
			return Stopf("Recursive scenario call detected for %s", display)
		}
	}

	// Nested steps run in this same executor: same variables, same driver
	// session, same debug gate.
	e.stack = append(e.stack, display)
	runErr := e.executeScenario(ctx, nested, nestedPath)
	e.stack = e.stack[:len(e.stack)-1]

	if runErr != nil {
		return Stopf("Nested scenario %s failed: %v", display, runErr)
	}
	return Next()
}

func (e *Executor) actionSetStage(st *schema.Step) Outcome {
	stage := strings.TrimSpace(e.resolve(firstField(st, "value", "tag", "stage")))
	if e.accounts != nil {
		if err := e.accounts.UpdateStage(e.accountName, stage); err != nil {
			e.log.Warn().Err(err).Str("account", e.accountName).Msg("stage update failed")
		}
	}
	if e.account != nil {
		e.account["stage"] = stage
	}
	e.log.Info().Str("account", e.accountName).Str("stage", stage).Msg("stage set")
	return Next()
}

func (e *Executor) actionPopShared(st *schema.Step) Outcome {
	key := strings.TrimSpace(e.resolve(st.StringField("value")))
	if key == "" {
		return Stop("Shared key (value) is required for pop_shared")
	}

	item, remaining, ok := e.shared.PopLine(key)
	if !ok {
		return Stopf("No items in shared var %s", key)
	}
	e.profile.Set(key, remaining)
	if e.settings != nil {
		if err := e.settings.PersistSharedVar(key, remaining); err != nil {
			e.log.Warn().Err(err).Str("key", key).Msg("shared var persist failed")
		}
	}

	patternStr := strings.TrimSpace(firstField(st, "pattern", "targets_string"))
	if patternStr == "" {
		return Stop("Pattern (targets_string) is required for pop_shared")
	}
	pattern := template.CompileTargets(patternStr)
	if pattern == nil {
		return Stop("Pattern must contain placeholders like {{name}}")
	}
	extracted, matched := pattern.Match(item)
	if !matched {
		return Stopf("Pattern did not match shared value for %s", key)
	}
	for name, value := range extracted {
		e.profile.Set(name, value)
	}

	e.log.Info().Str("key", key).Str("item", item).Msg("popped from shared pool")
	if len(extracted) > 0 {
		e.updateAccountFields(extracted)
	}
	if err := e.profile.Persist(); err != nil {
		e.log.Debug().Err(err).Msg("profile vars persist failed")
	}
	return Next()
}
