package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tort1k558/Camouflow/pkg/debug"
	"github.com/Tort1k558/Camouflow/pkg/driver/drivertest"
	"github.com/Tort1k558/Camouflow/pkg/logging"
	"github.com/Tort1k558/Camouflow/pkg/schema"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

type fakeScenarios map[string]*schema.Scenario

func (f fakeScenarios) Load(name string) (*schema.Scenario, string, error) {
	sc, ok := f[strings.ToLower(name)]
	if !ok {
		return nil, "", os.ErrNotExist
	}
	return sc, "", nil
}

type fakeAccounts struct {
	fields map[string]string
	stage  string
}

func (f *fakeAccounts) UpdateAccount(name string, fields map[string]string) error {
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	for k, v := range fields {
		f.fields[k] = v
	}
	return nil
}

func (f *fakeAccounts) UpdateStage(name, stage string) error {
	f.stage = stage
	return nil
}

type fakeSettings struct {
	persisted map[string]string
}

func (f *fakeSettings) PersistSharedVar(key, raw string) error {
	if f.persisted == nil {
		f.persisted = make(map[string]string)
	}
	f.persisted[key] = raw
	return nil
}

func mustScenario(t *testing.T, doc string) *schema.Scenario {
	t.Helper()
	sc, err := schema.Load(strings.NewReader(doc))
	require.NoError(t, err)
	return sc
}

type execFixture struct {
	exec     *Executor
	fake     *drivertest.Fake
	profile  *vars.Profile
	shared   *vars.Shared
	accounts *fakeAccounts
	settings *fakeSettings
}

func newFixture(t *testing.T, sc *schema.Scenario, tweak func(*Config)) *execFixture {
	t.Helper()
	log := logging.Nop()
	fake := drivertest.New()
	shared := vars.NewShared(log)
	profile := vars.NewProfile(
		map[string]any{"name": "acct-1", "email": "a@b.c"},
		shared.StringSnapshot(),
		filepath.Join(t.TempDir(), "scenario_vars.json"),
		log,
	)
	accounts := &fakeAccounts{}
	settings := &fakeSettings{}
	cfg := Config{
		Driver:      fake,
		Profile:     profile,
		Shared:      shared,
		Scenario:    sc,
		Accounts:    accounts,
		Settings:    settings,
		AccountName: "acct-1",
		Account:     map[string]any{"name": "acct-1"},
		OutputsDir:  t.TempDir(),
		Logger:      log,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	return &execFixture{
		exec:     NewExecutor(cfg),
		fake:     fake,
		profile:  profile,
		shared:   shared,
		accounts: accounts,
		settings: settings,
	}
}

func TestRunWalksStepsInOrder(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "start"},
		{"action": "goto", "value": "https://example.com"},
		{"action": "wait_for_load_state"}
	]}`)
	fx := newFixture(t, sc, nil)

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Equal(t, []string{"open https://example.com", "wait_for_load_state load"}, fx.fake.Calls)
}

func TestEndStepClosesSessionAndSucceeds(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "start"},
		{"action": "end"},
		{"action": "goto", "value": "https://never.example"}
	]}`)
	fx := newFixture(t, sc, nil)

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.True(t, fx.fake.Closed())
	assert.NotContains(t, fx.fake.Calls, "open https://never.example")
}

func TestNextSuccessStepRedirectsFlow(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "start", "next_success_step": "finish"},
		{"action": "goto", "value": "https://skipped.example"},
		{"action": "end", "tag": "finish"}
	]}`)
	fx := newFixture(t, sc, nil)

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Equal(t, []string{"close force=true"}, fx.fake.Calls, "the middle step must be skipped")
}

func TestStopWithoutErrorBranchFailsRun(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "click", "selector": "#missing"}
	]}`)
	fx := newFixture(t, sc, nil)

	err := fx.exec.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Element not found for click")
}

func TestStopRecoversThroughErrorBranch(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "click", "selector": "#missing", "next_error_step": "recover"},
		{"action": "goto", "value": "https://skipped.example"},
		{"action": "set_var", "tag": "recover", "variable": "recovered", "value": "yes"}
	]}`)
	fx := newFixture(t, sc, nil)

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Equal(t, "yes", fx.profile.Get("recovered"))
	assert.NotContains(t, fx.fake.Calls, "open https://skipped.example")
}

func TestNoDefaultLinksMarkerStopsAdvance(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "set_var", "variable": "a", "value": "1", "_no_default_links": true},
		{"action": "goto", "value": "https://never.example"}
	]}`)
	fx := newFixture(t, sc, nil)

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Equal(t, "1", fx.profile.Get("a"))
	assert.Empty(t, fx.fake.Calls)
}

func TestRunScenarioNestsAndShares(t *testing.T) {
	nested := mustScenario(t, `{"name": "child", "steps": [
		{"action": "set_var", "variable": "from_child", "value": "{{email}}"}
	]}`)
	sc := mustScenario(t, `{"name": "parent", "steps": [
		{"action": "run_scenario", "value": "child"},
		{"action": "set_var", "variable": "after", "value": "done"}
	]}`)
	fx := newFixture(t, sc, func(cfg *Config) {
		cfg.Scenarios = fakeScenarios{"child": nested}
	})

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Equal(t, "a@b.c", fx.profile.Get("from_child"))
	assert.Equal(t, "done", fx.profile.Get("after"))
}

func TestRunScenarioRejectsRecursion(t *testing.T) {
	loop := mustScenario(t, `{"name": "Loop", "steps": [
		{"action": "run_scenario", "value": "loop"}
	]}`)
	fx := newFixture(t, loop, func(cfg *Config) {
		cfg.Scenarios = fakeScenarios{"loop": loop}
	})

	err := fx.exec.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Recursive")
}

func TestNestedScenarioFailureStopsParent(t *testing.T) {
	nested := mustScenario(t, `{"name": "child", "steps": [
		{"action": "click", "selector": "#missing"}
	]}`)
	sc := mustScenario(t, `{"name": "parent", "steps": [
		{"action": "run_scenario", "value": "child"}
	]}`)
	fx := newFixture(t, sc, func(cfg *Config) {
		cfg.Scenarios = fakeScenarios{"child": nested}
	})

	err := fx.exec.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nested scenario child failed")
}

func TestWhenGuardSkipsStep(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "set_var", "variable": "mode", "value": "quiet"},
		{"action": "goto", "value": "https://loud.example", "when": "mode == 'loud'"},
		{"action": "set_var", "variable": "after", "value": "done", "when": "mode == 'quiet'"}
	]}`)
	fx := newFixture(t, sc, nil)

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Empty(t, fx.fake.Calls)
	assert.Equal(t, "done", fx.profile.Get("after"))
}

func TestDebuggerStopAbortsRun(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "start"},
		{"action": "goto", "value": "https://example.com"}
	]}`)
	session := debug.NewSession()
	session.RequestStop()
	fx := newFixture(t, sc, func(cfg *Config) { cfg.Session = session })

	err := fx.exec.executeScenario(context.Background(), sc, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped by debugger")
	assert.Empty(t, fx.fake.Calls)
}

func TestDebugJumpToUnknownTagFallsThrough(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "goto", "value": "https://one.example"},
		{"action": "goto", "value": "https://two.example"}
	]}`)
	session := debug.NewSession()
	session.RequestJumpToTag("ghost")
	fx := newFixture(t, sc, func(cfg *Config) { cfg.Session = session })

	// A jump to a tag the scenario does not have is discarded at the gate;
	// the run carries on from the current step instead of failing.
	require.NoError(t, fx.exec.executeScenario(context.Background(), sc, ""))
	assert.Equal(t, []string{
		"open https://one.example",
		"open https://two.example",
	}, fx.fake.Calls)
}

func TestDebugLoopRunsFromRequestedStep(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")
	doc := `{"name": "s", "steps": [
		{"action": "goto", "value": "https://one.example"},
		{"action": "goto", "value": "https://two.example"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	sc := mustScenario(t, doc)

	session := debug.NewSession()
	fx := newFixture(t, sc, func(cfg *Config) {
		cfg.Session = session
		cfg.ScenarioPath = path
	})

	done := make(chan error, 1)
	go func() { done <- fx.exec.Run(context.Background()) }()

	// First pass finishes, the loop parks; ask for a run from step 2, then
	// stop after it completes.
	require.Eventually(t, func() bool { return session.Paused() }, 2*time.Second, 10*time.Millisecond)
	session.RequestJumpToStep(2)
	require.Eventually(t, func() bool { return session.Paused() }, 2*time.Second, 10*time.Millisecond)
	session.RequestStop()

	require.NoError(t, <-done)
	assert.Equal(t, []string{
		"open https://one.example",
		"open https://two.example",
		"open https://two.example",
	}, fx.fake.Calls)
}

func TestHotReloadReplacesStepsWholesale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")
	original := `{"name": "s", "steps": [
		{"action": "goto", "value": "https://one.example"},
		{"action": "goto", "value": "https://two.example"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	sc, err := schema.LoadFile(path)
	require.NoError(t, err)

	fx := newFixture(t, sc, func(cfg *Config) { cfg.Session = debug.NewSession() })

	// First observation records the baseline only.
	assert.Nil(t, fx.exec.maybeHotReload(sc, path))

	edited := `{"name": "s2", "steps": [
		{"action": "goto", "value": "https://three.example"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	next := fx.exec.maybeHotReload(sc, path)
	require.NotNil(t, next)
	assert.Equal(t, "s2", next.Name)
	require.Len(t, next.Steps, 1)

	// Unchanged mtime: no further reload.
	assert.Nil(t, fx.exec.maybeHotReload(next, path))
}

func TestHotReloadKeepsLastGoodVersionOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")
	original := `{"name": "s", "steps": [{"action": "start"}]}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	sc, err := schema.LoadFile(path)
	require.NoError(t, err)

	fx := newFixture(t, sc, func(cfg *Config) { cfg.Session = debug.NewSession() })
	assert.Nil(t, fx.exec.maybeHotReload(sc, path))

	require.NoError(t, os.WriteFile(path, []byte(`{"steps": [{"action": "bogus"}]}`), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Nil(t, fx.exec.maybeHotReload(sc, path))
}

// rewriteOnStep swaps the scenario file's content when the run reaches
// stepIndex, bumping the mtime so the next gate picks the edit up.
func rewriteOnStep(path, edited string, stepIndex int) (debug.Option, *error) {
	var once sync.Once
	var rewriteErr error
	opt := debug.WithOnUpdate(func(u debug.Update) {
		if u.StepIndex != stepIndex {
			return
		}
		once.Do(func() {
			rewriteErr = os.WriteFile(path, []byte(edited), 0o644)
			if rewriteErr == nil {
				future := time.Now().Add(2 * time.Second)
				rewriteErr = os.Chtimes(path, future, future)
			}
		})
	})
	return opt, &rewriteErr
}

func TestHotReloadClampsIndexMidRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")
	original := `{"name": "s", "steps": [
		{"action": "goto", "value": "https://one.example"},
		{"action": "goto", "value": "https://two.example"},
		{"action": "goto", "value": "https://three.example"},
		{"action": "goto", "value": "https://four.example"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	sc, err := schema.LoadFile(path)
	require.NoError(t, err)

	// The edit lands while the run sits at index 2; the new list has only
	// two steps, so the index must clamp onto the last one.
	edited := `{"name": "s", "steps": [
		{"action": "goto", "value": "https://alpha.example"},
		{"action": "goto", "value": "https://beta.example"}
	]}`
	opt, rewriteErr := rewriteOnStep(path, edited, 2)
	fx := newFixture(t, sc, func(cfg *Config) {
		cfg.Session = debug.NewSession(opt)
		cfg.ScenarioPath = path
	})

	require.NoError(t, fx.exec.executeScenario(context.Background(), sc, path))
	require.NoError(t, *rewriteErr)
	assert.Equal(t, []string{
		"open https://one.example",
		"open https://two.example",
		"open https://beta.example",
	}, fx.fake.Calls)
}

func TestHotReloadKeepsInRangeIndexMidRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.json")
	original := `{"name": "s", "steps": [
		{"action": "goto", "value": "https://one.example"},
		{"action": "goto", "value": "https://two.example"},
		{"action": "goto", "value": "https://three.example"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	sc, err := schema.LoadFile(path)
	require.NoError(t, err)

	// Same length after the edit: the run stays at index 1 and continues
	// with the new file's step there, never restarting from the top.
	edited := `{"name": "s", "steps": [
		{"action": "goto", "value": "https://alpha.example"},
		{"action": "goto", "value": "https://beta.example"},
		{"action": "goto", "value": "https://gamma.example"}
	]}`
	opt, rewriteErr := rewriteOnStep(path, edited, 1)
	fx := newFixture(t, sc, func(cfg *Config) {
		cfg.Session = debug.NewSession(opt)
		cfg.ScenarioPath = path
	})

	require.NoError(t, fx.exec.executeScenario(context.Background(), sc, path))
	require.NoError(t, *rewriteErr)
	assert.Equal(t, []string{
		"open https://one.example",
		"open https://beta.example",
		"open https://gamma.example",
	}, fx.fake.Calls)
}

func TestLazyTimestampRefresh(t *testing.T) {
	fixed := time.Date(2026, 8, 23, 10, 30, 0, 0, time.UTC)
	old := nowFunc
	nowFunc = func() time.Time { return fixed }
	defer func() { nowFunc = old }()

	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "set_var", "variable": "stamp", "value": "{{timestamp}}"}
	]}`)
	fx := newFixture(t, sc, nil)

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Equal(t, "2026-08-23-10-30-00", fx.profile.Get("stamp"))
}

func TestLazyCookiesRefresh(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "set_var", "variable": "jar", "value": "{{cookies}}"},
		{"action": "set_var", "variable": "nojar", "value": "static"}
	]}`)
	fx := newFixture(t, sc, nil)
	fx.fake.CookiesJSON = `[{"name":"sid","value":"1"}]`

	require.NoError(t, fx.exec.Run(context.Background()))
	assert.Equal(t, `[{"name":"sid","value":"1"}]`, fx.profile.Get("jar"))
	// Only the step referencing cookies triggers a jar read.
	count := 0
	for _, call := range fx.fake.Calls {
		if call == "cookies" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestContextCancellationStopsRun(t *testing.T) {
	sc := mustScenario(t, `{"name": "s", "steps": [
		{"action": "start"},
		{"action": "goto", "value": "https://example.com"}
	]}`)
	fx := newFixture(t, sc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fx.exec.Run(ctx)
	require.Error(t, err)
	assert.Empty(t, fx.fake.Calls)
}
