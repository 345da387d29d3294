package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedstore/internal/harness"
)

const passingScenario = `name: one_user
description: A single registration gets the first id.
flow:
  - op: create_user
    args: {name: Alice, email: a@example.com, credential: "97"}
    expect: {id: 1}
assertions:
  - type: trace_count
    op: create_user
    count: 1
`

const failingScenario = `name: wrong_id
description: Expects an id the store never assigns.
flow:
  - op: create_user
    args: {name: Alice, email: a@example.com, credential: "97"}
    expect: {id: 7}
assertions:
  - type: trace_count
    op: create_user
    count: 1
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func runTestCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestScenarioFixturesLoad(t *testing.T) {
	for _, src := range []string{passingScenario, failingScenario} {
		s, err := harness.ParseScenario([]byte(src))
		require.NoError(t, err)
		assert.NotEmpty(t, s.Description)
		assert.NotEmpty(t, s.Assertions)
	}
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := runTestCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := runTestCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandUnknownBackend(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one_user.yaml": passingScenario})
	_, err := runTestCommand(t, "text", dir, "--backend", "postgres")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := runTestCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandPassesOnBothBackends(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one_user.yaml": passingScenario})

	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ one_user [relational]")
	assert.Contains(t, out, "✓ one_user [fallback]")
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")
}

func TestTestCommandBackendFlag(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one_user.yaml": passingScenario})

	out, err := runTestCommand(t, "json", dir, "--backend", "fallback")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "fallback", resp.Data.Scenarios[0].Backend)
}

func TestTestCommandFailureJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"wrong_id.yaml": failingScenario})

	out, err := runTestCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Failed)
	for _, s := range resp.Data.Scenarios {
		assert.False(t, s.Pass)
		assert.NotEmpty(t, s.Errors)
	}
}

func TestTestCommandLoadError(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "flow:\n  - op: explode\n"})

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "Load error")
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"one_user.yaml": passingScenario,
		"wrong_id.yaml": failingScenario,
	})

	out, err := runTestCommand(t, "text", dir, "--filter", "one_*")
	require.NoError(t, err)
	assert.Contains(t, out, "one_user")
	assert.NotContains(t, out, "wrong_id")

	_, err = runTestCommand(t, "text", dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandUpdateWritesGolden(t *testing.T) {
	scenario, err := os.ReadFile("../harness/testdata/scenarios/alice_bob_feed.yaml")
	require.NoError(t, err)
	want, err := os.ReadFile("../harness/testdata/golden/alice_bob_feed.golden")
	require.NoError(t, err)

	dir := scenarioDir(t, map[string]string{"alice_bob_feed.yaml": string(scenario)})

	_, err = runTestCommand(t, "text", dir, "--update")
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "golden", "alice_bob_feed.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	// Both backends now match the file just written.
	out, err := runTestCommand(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")
}

func TestTestCommandGoldenMismatch(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"one_user.yaml": passingScenario})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "one_user.golden"), []byte("{}\n"), 0o644))

	out, err := runTestCommand(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "feed.golden"), goldenFilePath(filepath.Join("scenarios", "feed.yaml")))
	assert.Equal(t, filepath.Join("golden", "x.golden"), goldenFilePath("x.yml"))
}
