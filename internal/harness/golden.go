package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/feedstore/internal/store"
)

// TraceSnapshot captures the trace of a scenario execution for golden
// comparison. The backend is not recorded: every backend must match the
// same file.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// MarshalSnapshot renders a snapshot as indented JSON with a trailing
// newline.
func MarshalSnapshot(s TraceSnapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario on one backend and compares the trace
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, kind store.Kind) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, kind)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	})
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
