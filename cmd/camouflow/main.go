package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tort1k558/Camouflow/pkg/schema"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "camouflow",
	Short: "Scenario automation engine",
	Long:  "camouflow — executes declarative automation scenarios across account profiles, with an interactive debugger.",
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate [scenario.json]",
	Short: "Validate a scenario file against the schema",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	sc, errs := schema.ValidateFile(filePath)
	if len(errs) > 0 {
		var errors []*schema.ValidationError
		var warnings []*schema.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errors = append(errors, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
			}
		}
		if len(errors) > 0 {
			fmt.Fprintf(os.Stderr, "Validation failed: %d error(s)\n\n", len(errors))
			for i, e := range errors {
				fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
				}
			}
			return fmt.Errorf("validation failed with %d error(s)", len(errors))
		}
	}
	fmt.Printf("✓ %s is valid (%d steps)\n", sc.Name, len(sc.Steps))
	return nil
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scenarios in the scenario directory",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	summaries := env.scenarios.List()
	if len(summaries) == 0 {
		fmt.Printf("No scenarios in %s\n", env.scenarios.Dir())
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("  %-28s %3d steps", s.Name, s.Steps)
		if s.Description != "" {
			fmt.Printf("  %s", s.Description)
		}
		fmt.Println()
	}
	return nil
}

// --- schema ---

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the scenario JSON Schema",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func runSchema(cmd *cobra.Command, args []string) error {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	if schemaOut == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(schemaOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", schemaOut, err)
	}
	fmt.Printf("wrote %s\n", schemaOut)
	return nil
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("camouflow %s (%s)\n", version, commit)
	},
}

func init() {
	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to this file instead of stdout")

	addDataFlags(listCmd)
	addDataFlags(runCmd)
	addDataFlags(debugCmd)

	runCmd.Flags().IntVar(&runMaxAccounts, "max-accounts", -1, "Run at most this many accounts (-1 for all)")

	debugCmd.Flags().BoolVar(&debugTUI, "tui", false, "Use the full-screen controller instead of the REPL")
	debugCmd.Flags().IntVar(&debugStartStep, "start-step", 0, "Start execution at this step (1-based)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
