package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/feedstore/internal/harness"
	"github.com/roach88/feedstore/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update  bool   // regenerate golden files
	Filter  string // scenario filter (glob pattern)
	Backend string // run only this backend kind
}

// ScenarioResult holds the result of a single scenario execution on one
// backend.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Backend string   `json:"backend"`
	Pass    bool     `json:"pass"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios against both backends",
		Long: `Run conformance scenarios against the relational and fallback backends.

Each scenario runs in a fresh in-memory store with a deterministic clock.
Its trace is compared with golden/<scenario>.golden next to the scenario
file when that file exists. Every backend must match the same golden file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  feedstore test ./scenarios
  feedstore test ./scenarios --filter "alice-*"
  feedstore test ./scenarios --backend fallback
  feedstore test ./scenarios --update`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Backend, "backend", "", "run only one backend (relational|fallback)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	switch store.Kind(opts.Backend) {
	case "", store.KindRelational, store.KindFallback:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", opts.Backend))
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: []ScenarioResult{}}

	for _, scenarioFile := range scenarioFiles {
		for _, scenResult := range runScenarioFile(scenarioFile, opts, cmd) {
			result.Scenarios = append(result.Scenarios, scenResult)
			result.Total++
			if scenResult.Pass {
				result.Passed++
			} else {
				result.Failed++
			}
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	if result.Total == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}
	return outputTestText(cmd, result)
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		// Only process .yaml and .yml files
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenarioFile executes one scenario file on each selected backend.
func runScenarioFile(scenarioFile string, opts *TestOptions, cmd *cobra.Command) []ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		if text {
			fmt.Fprintf(w, "✗ %s\n", filepath.Base(scenarioFile))
			fmt.Fprintf(w, "  Load error: %v\n", err)
		}
		return []ScenarioResult{{
			Name:   filepath.Base(scenarioFile),
			Pass:   false,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}}
	}

	goldenPath := goldenFilePath(scenarioFile)
	var results []ScenarioResult

	for _, kind := range scenario.Kinds() {
		if opts.Backend != "" && kind != store.Kind(opts.Backend) {
			continue
		}

		sr := ScenarioResult{Name: scenario.Name, Backend: kind.String(), Pass: true}
		label := scenario.Name + " [" + kind.String() + "]"

		result, err := harness.Run(scenario, kind)
		if err != nil {
			sr.Pass = false
			sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		} else {
			sr.Pass = result.Pass
			sr.Errors = result.Errors
			if err := checkGolden(scenario, result, goldenPath, opts.Update); err != nil {
				sr.Pass = false
				sr.Errors = append(sr.Errors, err.Error())
			}
		}

		if text {
			if sr.Pass {
				fmt.Fprintf(w, "✓ %s\n", label)
			} else {
				fmt.Fprintf(w, "✗ %s\n", label)
				for _, e := range sr.Errors {
					fmt.Fprintf(w, "  %s\n", e)
				}
			}
		}
		results = append(results, sr)
	}

	return results
}

// checkGolden compares the trace with the golden file, or rewrites the
// file when update is set. A missing golden file is not an error.
func checkGolden(scenario *harness.Scenario, result *harness.Result, goldenPath string, update bool) error {
	current, err := harness.MarshalSnapshot(harness.TraceSnapshot{
		ScenarioName: scenario.Name,
		Trace:        result.Trace,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}

	if update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(goldenPath, current, 0644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		return nil
	}

	golden, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(golden, current) {
		return fmt.Errorf("trace does not match golden file (run with --update to regenerate)")
	}
	return nil
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "TEST_FAILED",
			Message: fmt.Sprintf("%d scenario run(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario run(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario run(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
