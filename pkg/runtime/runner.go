package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Tort1k558/Camouflow/pkg/debug"
	"github.com/Tort1k558/Camouflow/pkg/driver"
	"github.com/Tort1k558/Camouflow/pkg/schema"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

// DriverFactory builds a driver session for one account. proxy is the
// assembled socks5 URL, or "" when the account has no proxy configured.
type DriverFactory func(account map[string]any, proxy string) (driver.PageDriver, error)

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Scenarios ScenarioSource
	Accounts  AccountWriter
	Settings  SettingsWriter
	Shared    *vars.Shared
	NewDriver DriverFactory

	// Session enables debug mode; debug runs are restricted to one account.
	Session *debug.Session

	// OnProfile, when set, receives each account's variable profile right
	// after construction. Debug controllers use it to inspect live state.
	OnProfile func(account string, p *vars.Profile)

	OutputsDir string
	// RunsDir receives a per-run manifest; empty disables manifests.
	RunsDir string
	// ProfileVarsPath maps an account name to its scenario_vars.json path.
	ProfileVarsPath func(account string) string

	Logger zerolog.Logger
}

// Runner executes one scenario for a batch of accounts, sequentially.
type Runner struct {
	cfg RunnerConfig
}

// NewRunner builds a runner from cfg.
func NewRunner(cfg RunnerConfig) *Runner {
	return &Runner{cfg: cfg}
}

// RunManifest records what one run did.
type RunManifest struct {
	RunID      string           `yaml:"run_id"`
	Scenario   string           `yaml:"scenario"`
	StartedAt  time.Time        `yaml:"started_at"`
	FinishedAt time.Time        `yaml:"finished_at"`
	Debug      bool             `yaml:"debug"`
	Accounts   []AccountOutcome `yaml:"accounts"`
}

// AccountOutcome is one account's result within a run.
type AccountOutcome struct {
	Name   string `yaml:"name"`
	OK     bool   `yaml:"ok"`
	Reason string `yaml:"reason,omitempty"`
}

// Run executes sc for up to maxAccounts accounts and returns the accounts
// that completed successfully. Debug mode runs exactly one account. A
// failing account is logged and skipped; it never aborts the batch.
func (r *Runner) Run(ctx context.Context, accounts []map[string]any, sc *schema.Scenario, scenarioPath string, maxAccounts int) []map[string]any {
	debugging := r.cfg.Session != nil && r.cfg.Session.Enabled()
	toRun := accounts
	if debugging {
		if len(toRun) > 1 {
			toRun = toRun[:1]
		}
	} else if maxAccounts >= 0 && len(toRun) > maxAccounts {
		toRun = toRun[:maxAccounts]
	}

	manifest := RunManifest{
		RunID:     uuid.NewString(),
		Scenario:  sc.Name,
		StartedAt: nowFunc(),
		Debug:     debugging,
	}

	var processed []map[string]any
	for _, acc := range toRun {
		if debugging && r.cfg.Session.StopRequested() {
			break
		}
		name := vars.Stringify(acc["name"])
		err := r.runAccount(ctx, acc, name, sc, scenarioPath)
		outcome := AccountOutcome{Name: name, OK: err == nil}
		if err != nil {
			outcome.Reason = err.Error()
			r.cfg.Logger.Error().Err(err).Str("account", name).Str("scenario", sc.Name).Msg("scenario failed")
		} else {
			processed = append(processed, acc)
		}
		manifest.Accounts = append(manifest.Accounts, outcome)
	}

	manifest.FinishedAt = nowFunc()
	if err := r.writeManifest(manifest); err != nil {
		r.cfg.Logger.Warn().Err(err).Msg("run manifest write failed")
	}
	return processed
}

func (r *Runner) runAccount(ctx context.Context, acc map[string]any, name string, sc *schema.Scenario, scenarioPath string) error {
	proxy := BuildProxy(acc)
	drv, err := r.cfg.NewDriver(acc, proxy)
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	if r.cfg.Session != nil {
		account := name
		drv.OnClosed(func() {
			r.cfg.Session.NotifyBrowserClosedFor(account)
		})
	}

	varsPath := ""
	if r.cfg.ProfileVarsPath != nil {
		varsPath = r.cfg.ProfileVarsPath(name)
	}
	log := r.cfg.Logger.With().Str("account", name).Str("scenario", sc.Name).Logger()
	profile := vars.NewProfile(acc, r.cfg.Shared.StringSnapshot(), varsPath, log)
	if r.cfg.OnProfile != nil {
		r.cfg.OnProfile(name, profile)
	}

	exec := NewExecutor(Config{
		Driver:       drv,
		Profile:      profile,
		Shared:       r.cfg.Shared,
		Scenario:     sc,
		ScenarioPath: scenarioPath,
		Session:      r.cfg.Session,
		Scenarios:    r.cfg.Scenarios,
		Accounts:     r.cfg.Accounts,
		Settings:     r.cfg.Settings,
		AccountName:  name,
		Account:      acc,
		OutputsDir:   r.cfg.OutputsDir,
		Logger:       log,
	})

	if err := drv.Start(ctx); err != nil {
		return fmt.Errorf("session start: %w", err)
	}
	return exec.Run(ctx)
}

func (r *Runner) writeManifest(m RunManifest) error {
	if r.cfg.RunsDir == "" {
		return nil
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.cfg.RunsDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.cfg.RunsDir, "run-"+m.RunID+".yaml"), data, 0o644)
}

// BuildProxy assembles the socks5 proxy URL from account fields. Credentials
// append only when both user and password are present.
func BuildProxy(acc map[string]any) string {
	host := vars.Stringify(acc["proxy_host"])
	port := vars.Stringify(acc["proxy_port"])
	if host == "" || port == "" {
		return ""
	}
	user := vars.Stringify(acc["proxy_user"])
	pwd := vars.Stringify(acc["proxy_password"])
	if user != "" && pwd != "" {
		return fmt.Sprintf("socks5://%s:%s:%s:%s", host, port, user, pwd)
	}
	return fmt.Sprintf("socks5://%s:%s", host, port)
}
