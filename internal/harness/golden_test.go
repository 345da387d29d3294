package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios on each of
// its backends. All backends must match the same golden trace.
func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		scenario, err := LoadScenario(file)
		require.NoError(t, err, file)

		for _, kind := range scenario.Kinds() {
			t.Run(scenario.Name+"/"+kind.String(), func(t *testing.T) {
				result, err := RunWithGolden(t, scenario, kind)
				require.NoError(t, err)
				assert.True(t, result.Pass, "errors: %v", result.Errors)
			})
		}
	}
}

func TestMarshalSnapshot(t *testing.T) {
	data, err := MarshalSnapshot(TraceSnapshot{
		ScenarioName: "tiny",
		Trace: []TraceEvent{
			{Step: 1, Op: "toggle_like", OK: true, Liked: boolPtr(false), LikesCount: int64Ptr(0),
				Args: map[string]interface{}{"post": int64(1)}},
			{Step: 2, Op: "create_user", Error: "CONSTRAINT_VIOLATION"},
		},
	})
	require.NoError(t, err)

	want := `{
  "scenario_name": "tiny",
  "trace": [
    {
      "step": 1,
      "op": "toggle_like",
      "ok": true,
      "liked": false,
      "likes_count": 0
    },
    {
      "step": 2,
      "op": "create_user",
      "ok": false,
      "error": "CONSTRAINT_VIOLATION"
    }
  ]
}
`
	assert.Equal(t, want, string(data))
}
