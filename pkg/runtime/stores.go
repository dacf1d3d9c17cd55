package runtime

import "github.com/Tort1k558/Camouflow/pkg/schema"

// ScenarioSource resolves scenario names for run_scenario steps. The second
// return is the backing file path, used for hot reload of nested scenarios.
type ScenarioSource interface {
	Load(name string) (*schema.Scenario, string, error)
}

// AccountWriter persists account field updates extracted by parse_var and
// pop_shared, and the stage marker written by set_stage.
type AccountWriter interface {
	UpdateAccount(name string, fields map[string]string) error
	UpdateStage(name, stage string) error
}

// SettingsWriter persists the remainder of a shared pool after pop_shared,
// keeping the on-disk definition's declared type (string or list).
type SettingsWriter interface {
	PersistSharedVar(key, raw string) error
}
