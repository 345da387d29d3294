package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/feedstore/internal/store"
)

const minimalYAML = `
name: minimal
description: One user
flow:
  - op: create_user
    as: alice
    args: {name: Alice, email: a@example.com, credential: "97"}
assertions:
  - type: final_state
    table: user
    where: {id: $alice}
    expect: {name: Alice}
`

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, "create_user", s.Flow[0].Op)
	assert.Equal(t, "alice", s.Flow[0].As)
	assert.Equal(t, "Alice", s.Flow[0].Args["name"])
	assert.Equal(t, []store.Kind{store.KindRelational, store.KindFallback}, s.Kinds())
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Backends(t *testing.T) {
	s, err := ParseScenario([]byte(minimalYAML + "backends: [fallback]\n"))
	require.NoError(t, err)
	assert.Equal(t, []store.Kind{store.KindFallback}, s.Kinds())
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: minimalYAML + "assertion: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: `
description: d
flow: [{op: check, args: {}}]
assertions: [{type: trace_count, op: check, count: 1}]
`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: n
flow: [{op: check, args: {}}]
assertions: [{type: trace_count, op: check, count: 1}]
`,
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: `
name: n
description: d
flow: []
assertions: [{type: trace_count, op: check, count: 1}]
`,
			want: "flow list is required",
		},
		{
			name: "no assertions",
			yaml: `
name: n
description: d
flow: [{op: check, args: {}}]
`,
			want: "assertions list is required",
		},
		{
			name: "unknown op",
			yaml: `
name: n
description: d
flow: [{op: drop_table, args: {}}]
assertions: [{type: trace_count, op: check, count: 1}]
`,
			want: `unknown op "drop_table"`,
		},
		{
			name: "missing args",
			yaml: `
name: n
description: d
flow: [{op: check}]
assertions: [{type: trace_count, op: check, count: 1}]
`,
			want: "args is required",
		},
		{
			name: "unbound reference",
			yaml: `
name: n
description: d
flow: [{op: get_user, args: {user: $ghost}}]
assertions: [{type: trace_count, op: get_user, count: 1}]
`,
			want: "$ghost is not bound",
		},
		{
			name: "rebound name",
			yaml: `
name: n
description: d
flow:
  - {op: create_user, as: a, args: {name: A, email: a@x.io, credential: "1"}}
  - {op: create_user, as: a, args: {name: B, email: b@x.io, credential: "1"}}
assertions: [{type: trace_count, op: create_user, count: 2}]
`,
			want: `"a" is already bound`,
		},
		{
			name: "unknown backend",
			yaml: minimalYAML + "backends: [postgres]\n",
			want: `unknown backend "postgres"`,
		},
		{
			name: "unknown assertion type",
			yaml: `
name: n
description: d
flow: [{op: check, args: {}}]
assertions: [{type: eventually}]
`,
			want: `unknown assertion type "eventually"`,
		},
		{
			name: "trace_order without ops",
			yaml: `
name: n
description: d
flow: [{op: check, args: {}}]
assertions: [{type: trace_order}]
`,
			want: "ops list is required",
		},
		{
			name: "final_state unknown table",
			yaml: `
name: n
description: d
flow: [{op: check, args: {}}]
assertions: [{type: final_state, table: sessions, expect: {a: 1}}]
`,
			want: `unknown table "sessions"`,
		},
		{
			name: "final_state without expect",
			yaml: `
name: n
description: d
flow: [{op: check, args: {}}]
assertions: [{type: final_state, table: consistency}]
`,
			want: "expect is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
