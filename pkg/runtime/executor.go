// Package runtime executes scenarios: it walks the step list, dispatches
// each step to its action handler, and resolves handler outcomes into
// control flow. Debug gating, hot reload and nested scenario calls all
// happen here.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tort1k558/Camouflow/pkg/debug"
	"github.com/Tort1k558/Camouflow/pkg/driver"
	"github.com/Tort1k558/Camouflow/pkg/schema"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

// Config wires an Executor. Driver, Profile, Shared and Scenario are
// required; the rest are optional collaborators.
type Config struct {
	Driver       driver.PageDriver
	Profile      *vars.Profile
	Shared       *vars.Shared
	Scenario     *schema.Scenario
	ScenarioPath string

	// Session enables debug gating when non-nil and enabled.
	Session *debug.Session
	// Scenarios resolves run_scenario calls.
	Scenarios ScenarioSource
	// Accounts receives field and stage updates.
	Accounts AccountWriter
	// Settings persists shared pool remainders.
	Settings SettingsWriter

	AccountName string
	Account     map[string]any
	OutputsDir  string
	Logger      zerolog.Logger
}

// Executor runs one scenario for one account over one driver session.
// It is not safe for concurrent use; the debug session is the only
// cross-goroutine surface.
type Executor struct {
	drv       driver.PageDriver
	profile   *vars.Profile
	shared    *vars.Shared
	scenario  *schema.Scenario
	path      string
	session   *debug.Session
	scenarios ScenarioSource
	accounts  AccountWriter
	settings  SettingsWriter

	accountName string
	account     map[string]any
	outputsDir  string
	log         zerolog.Logger

	stack  []string
	mtimes map[string]time.Time
}

// NewExecutor builds an executor from cfg.
func NewExecutor(cfg Config) *Executor {
	e := &Executor{
		drv:         cfg.Driver,
		profile:     cfg.Profile,
		shared:      cfg.Shared,
		scenario:    cfg.Scenario,
		path:        cfg.ScenarioPath,
		session:     cfg.Session,
		scenarios:   cfg.Scenarios,
		accounts:    cfg.Accounts,
		settings:    cfg.Settings,
		accountName: cfg.AccountName,
		account:     cfg.Account,
		outputsDir:  cfg.OutputsDir,
		log:         cfg.Logger,
		mtimes:      make(map[string]time.Time),
	}
	if cfg.Scenario != nil && cfg.Scenario.Name != "" {
		e.stack = append(e.stack, cfg.Scenario.Name)
	}
	return e
}

func (e *Executor) debugging() bool {
	return e.session != nil && e.session.Enabled()
}

// Run executes the scenario to completion. In debug mode it loops: after
// each pass it parks on the session until the operator requests another
// run-from-step or stops, re-reading the scenario file between passes.
func (e *Executor) Run(ctx context.Context) error {
	if !e.debugging() {
		return e.executeScenario(ctx, e.scenario, e.path)
	}
	return e.runDebugLoop(ctx)
}

func (e *Executor) runDebugLoop(ctx context.Context) error {
	var lastErr error
	for {
		lastErr = e.executeScenario(ctx, e.scenario, e.path)

		if !e.debugging() || e.session.StopRequested() {
			return lastErr
		}

		reason := ""
		if lastErr != nil {
			reason = lastErr.Error()
		}
		e.session.Pause()
		e.session.NotifyFinished(lastErr == nil, reason)

		d := e.session.WaitForCommand()
		if d.Stop || e.session.StopRequested() {
			return lastErr
		}

		// Re-read the file so jumps line up with the latest edits. A file
		// that no longer parses keeps the last good version.
		if e.path != "" {
			if next, err := schema.LoadFile(e.path); err == nil {
				e.scenario = next
			}
		}

		switch {
		case d.JumpToIndex != nil:
			e.session.SetInitialStep(*d.JumpToIndex + 1)
		case d.JumpToTag != "":
			if idx, ok := e.scenario.StepIndex(d.JumpToTag); ok {
				e.session.SetInitialStep(idx + 1)
			} else {
				e.session.SetInitialStep(1)
			}
		}
	}
}

// executeScenario is the per-step loop shared by top-level runs and nested
// run_scenario calls. A nil return means the scenario completed.
func (e *Executor) executeScenario(ctx context.Context, sc *schema.Scenario, path string) error {
	idx := 0
	label := sc.Name
	if e.debugging() {
		if initial := e.session.ConsumeInitialStep(); initial != nil && *initial < len(sc.Steps) {
			idx = *initial
		}
	}

	for idx < len(sc.Steps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		st := sc.Steps[idx]

		if e.debugging() {
			d := e.session.BeforeStep(debug.Update{
				Scenario:    label,
				Account:     e.accountName,
				StepIndex:   idx,
				TotalSteps:  len(sc.Steps),
				Action:      st.Action.String(),
				Description: describe(st),
				Tag:         st.Tag,
			})
			if d.Stop {
				return errors.New("stopped by debugger")
			}
			if d.JumpToIndex != nil {
				idx = max(0, *d.JumpToIndex)
				continue
			}
			if d.JumpToTag != "" {
				if j, ok := sc.StepIndex(d.JumpToTag); ok {
					idx = j
					continue
				}
			}

			if path != "" {
				if next := e.maybeHotReload(sc, path); next != nil {
					sc = next
					if sc.Name != "" {
						label = sc.Name
					}
					if idx >= len(sc.Steps) {
						idx = max(0, len(sc.Steps)-1)
					}
					continue
				}
			}
		}

		out := e.runStep(ctx, st, label, idx)
		if out.Status == StatusStop {
			out = e.recoverStepError(st, sc, label, idx, out.StopReason)
		}

		switch out.Status {
		case StatusEnd:
			e.log.Info().Str("scenario", label).Int("step", idx+1).Msg("scenario ended")
			return nil
		case StatusJump:
			j, ok := sc.StepIndex(out.JumpTarget)
			if !ok {
				msg := fmt.Sprintf("jump target %s not found in scenario %s", out.JumpTarget, label)
				e.log.Error().Msg(msg)
				return errors.New(msg)
			}
			idx = j
			continue
		case StatusStop:
			reason := out.StopReason
			if reason == "" {
				reason = "unknown reason"
			}
			e.log.Error().Str("scenario", label).Int("step", idx+1).Msg(reason)
			return errors.New(reason)
		}

		if st.NextSuccess != "" {
			if j, ok := sc.StepIndex(st.NextSuccess); ok {
				idx = j
				continue
			}
		}
		if st.BoolField("_no_default_links", false) {
			break
		}
		idx++
	}
	return nil
}

// maybeHotReload re-reads path when its mtime advanced past the last seen
// value. The first observation only records the baseline. Returns the
// freshly loaded scenario, or nil when nothing changed or the new file does
// not load.
func (e *Executor) maybeHotReload(sc *schema.Scenario, path string) *schema.Scenario {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	mtime := info.ModTime()
	last, seen := e.mtimes[path]
	if !seen {
		e.mtimes[path] = mtime
		return nil
	}
	if !mtime.After(last) {
		return nil
	}

	next, err := schema.LoadFile(path)
	if err != nil {
		e.log.Warn().Err(err).Str("path", path).Msg("hot reload skipped, file does not load")
		return nil
	}
	e.mtimes[path] = mtime
	if e.session != nil {
		e.session.NotifyReload()
	}
	if next.Name == "" {
		next.Name = sc.Name
	}
	e.log.Info().Str("scenario", next.Name).Int("steps", len(next.Steps)).Msg("scenario hot reloaded")
	return next
}

// recoverStepError routes a failed step through its error branch when one is
// configured; otherwise the stop stands.
func (e *Executor) recoverStepError(st *schema.Step, sc *schema.Scenario, label string, idx int, reason string) Outcome {
	if reason == "" {
		reason = "unknown reason"
	}
	target := st.NextError
	if target == "" {
		return Stop(reason)
	}
	if _, ok := sc.StepIndex(target); !ok {
		return Stopf("error step %s not found in scenario %s", target, label)
	}
	e.log.Warn().
		Str("scenario", label).
		Int("step", idx+1).
		Str("jump", target).
		Msg(reason)
	return Jump(target)
}

// resolve substitutes {{name}} placeholders from the profile store.
func (e *Executor) resolve(raw string) string {
	return templateResolve(raw, e.profile)
}

// refreshCookies reloads the cookies variable from the driver's jar.
func (e *Executor) refreshCookies(ctx context.Context) {
	jar, err := e.drv.Cookies(ctx)
	if err != nil {
		e.log.Debug().Err(err).Msg("cookie refresh failed")
		e.profile.Set("cookies", "[]")
		return
	}
	if strings.TrimSpace(jar) == "" {
		jar = "[]"
	}
	e.profile.Set("cookies", jar)
}

// timestampFormat renders timestamps safe for filenames.
const timestampFormat = "2006-01-02-15-04-05"

func describe(st *schema.Step) string {
	if st.Description != "" {
		return st.Description
	}
	if st.Tag != "" {
		return st.Tag
	}
	return st.Action.String()
}
