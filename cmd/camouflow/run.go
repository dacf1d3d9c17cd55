package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tort1k558/Camouflow/pkg/debug"
	"github.com/Tort1k558/Camouflow/pkg/debugger"
	"github.com/Tort1k558/Camouflow/pkg/driver"
	"github.com/Tort1k558/Camouflow/pkg/logging"
	"github.com/Tort1k558/Camouflow/pkg/runtime"
	"github.com/Tort1k558/Camouflow/pkg/store"
	"github.com/Tort1k558/Camouflow/pkg/tui"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

var (
	dataDir      string
	scenariosDir string
	accountsPath string
	settingsPath string
	logLevel     string
	logJSON      bool

	runMaxAccounts int
	debugTUI       bool
	debugStartStep int
)

// addDataFlags registers the data-layout flags shared by the commands that
// touch the store.
func addDataFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "Root directory for scenarios, accounts and outputs")
	cmd.Flags().StringVar(&scenariosDir, "scenarios-dir", "", "Scenario directory (default <data-dir>/scenarios)")
	cmd.Flags().StringVar(&accountsPath, "accounts", "", "Accounts file (default <data-dir>/accounts.json)")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "Settings file (default <data-dir>/settings.json)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs instead of console output")
}

// runEnv bundles the opened stores and the shared variable pool.
type runEnv struct {
	scenarios *store.ScenarioStore
	accounts  *store.AccountStore
	settings  *store.SettingsStore
	shared    *vars.Shared
	log       zerolog.Logger
}

// openEnv opens the stores under the data layout and seeds the shared pool
// from the persisted shared-variable definitions.
func openEnv() (*runEnv, error) {
	log, err := logging.New(logging.Options{Level: logLevel, HumanReadable: !logJSON})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if scenariosDir == "" {
		scenariosDir = filepath.Join(dataDir, "scenarios")
	}
	if accountsPath == "" {
		accountsPath = filepath.Join(dataDir, "accounts.json")
	}
	if settingsPath == "" {
		settingsPath = filepath.Join(dataDir, "settings.json")
	}

	scenarios, err := store.NewScenarioStore(scenariosDir, log)
	if err != nil {
		return nil, fmt.Errorf("scenario store: %w", err)
	}
	accounts, err := store.NewAccountStore(accountsPath, log)
	if err != nil {
		return nil, fmt.Errorf("account store: %w", err)
	}
	settings, err := store.NewSettingsStore(settingsPath, log)
	if err != nil {
		return nil, fmt.Errorf("settings store: %w", err)
	}

	shared := vars.NewShared(log)
	seed, err := settings.SharedVariables()
	if err != nil {
		log.Warn().Err(err).Msg("shared variable definitions unreadable, starting empty")
	} else {
		shared.Replace(seed)
	}

	return &runEnv{
		scenarios: scenarios,
		accounts:  accounts,
		settings:  settings,
		shared:    shared,
		log:       log,
	}, nil
}

// runnerConfig assembles the runner wiring for one invocation.
func (env *runEnv) runnerConfig(session *debug.Session) runtime.RunnerConfig {
	return runtime.RunnerConfig{
		Scenarios: env.scenarios,
		Accounts:  env.accounts,
		Settings:  env.settings,
		Shared:    env.shared,
		Session:   session,
		NewDriver: func(account map[string]any, proxy string) (driver.PageDriver, error) {
			return driver.NewHTTPDriver(proxy, env.log)
		},
		OutputsDir: filepath.Join(dataDir, "outputs"),
		RunsDir:    filepath.Join(dataDir, "runs"),
		ProfileVarsPath: func(account string) string {
			return filepath.Join(dataDir, "profiles", account, "scenario_vars.json")
		},
		Logger: env.log,
	}
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run [scenario]",
	Short: "Run a scenario for every configured account",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	sc, path, err := env.scenarios.Load(args[0])
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	accounts, err := env.accounts.All()
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts in %s", accountsPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := runtime.NewRunner(env.runnerConfig(nil))
	processed := runner.Run(ctx, accounts, sc, path, runMaxAccounts)

	attempted := len(accounts)
	if runMaxAccounts >= 0 && attempted > runMaxAccounts {
		attempted = runMaxAccounts
	}
	fmt.Printf("✓ %s: %d/%d accounts completed\n", sc.Name, len(processed), attempted)
	if len(processed) < attempted {
		return fmt.Errorf("%d account(s) failed", attempted-len(processed))
	}
	return nil
}

// --- debug ---

var debugCmd = &cobra.Command{
	Use:   "debug [scenario]",
	Short: "Run a scenario for one account under the interactive debugger",
	Args:  cobra.ExactArgs(1),
	RunE:  runDebug,
}

func runDebug(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	sc, path, err := env.scenarios.Load(args[0])
	if err != nil {
		return fmt.Errorf("load scenario: %w", err)
	}
	accounts, err := env.accounts.All()
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts in %s", accountsPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := debug.NewSession()
	if debugStartStep > 0 {
		session.SetInitialStep(debugStartStep)
	}

	profileCh := make(chan *vars.Profile, 1)
	cfg := env.runnerConfig(session)
	cfg.OnProfile = func(account string, p *vars.Profile) {
		select {
		case profileCh <- p:
		default:
		}
	}

	runner := runtime.NewRunner(cfg)
	done := make(chan []map[string]any, 1)
	go func() { done <- runner.Run(ctx, accounts, sc, path, 1) }()

	var profile *vars.Profile
	select {
	case profile = <-profileCh:
	case <-done:
		return fmt.Errorf("run ended before reaching its first step; check the logs")
	}

	account := vars.Stringify(accounts[0]["name"])
	if debugTUI {
		err = tui.Run(tui.Config{
			Session:  session,
			Profile:  profile,
			Scenario: sc.Name,
			Account:  account,
		})
	} else {
		err = debugger.New(session, profile).Run(ctx)
	}

	// The controller is gone; release the engine if it is still gated.
	session.RequestStop()
	processed := <-done
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s: %d account processed\n", sc.Name, len(processed))
	return nil
}
