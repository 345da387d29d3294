package harness

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/feedstore/internal/store"
)

// Scenario defines a conformance test scenario: a sequence of store
// operations with expected outcomes and assertions on the result.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backends lists the backend kinds to run against. Empty means all.
	Backends []string `yaml:"backends,omitempty"`

	// Setup steps establish initial state and must succeed.
	Setup []FlowStep `yaml:"setup,omitempty"`

	// Flow contains the operations under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep invokes one store operation.
type FlowStep struct {
	// Op is the operation name, e.g. "create_user" or "toggle_like".
	Op string `yaml:"op"`

	// As binds the returned id so later steps can refer to it as "$name".
	As string `yaml:"as,omitempty"`

	// Args contains the operation arguments. Strings starting with "$"
	// are replaced by bound ids.
	Args map[string]interface{} `yaml:"args"`

	// Expect specifies the expected outcome. If nil the step must succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step outcome. Only set fields are
// checked.
type ExpectClause struct {
	// Error is the expected error code, e.g. "CONSTRAINT_VIOLATION".
	// Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	ID         *int64 `yaml:"id,omitempty"`
	Found      *bool  `yaml:"found,omitempty"`
	Liked      *bool  `yaml:"liked,omitempty"`
	LikesCount *int64 `yaml:"likes_count,omitempty"`
	Count      *int   `yaml:"count,omitempty"`
	Author     string `yaml:"author,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an operation appears in the trace with args
	// - "trace_order": operations appear in order
	// - "trace_count": an operation appears exactly N times
	// - "final_state": look up an entity and verify its fields
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Args are the expected operation arguments (trace_contains).
	// Subset match - only specified fields are validated.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Table is the entity to inspect (final_state): user, post,
	// comments, like or consistency.
	Table string `yaml:"table,omitempty"`

	// Where identifies the entity (final_state).
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Ops is the expected operation order (trace_order).
	Ops []string `yaml:"ops,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// Kinds returns the backend kinds the scenario runs against.
func (s *Scenario) Kinds() []store.Kind {
	if len(s.Backends) == 0 {
		return []store.Kind{store.KindRelational, store.KindFallback}
	}
	kinds := make([]store.Kind, len(s.Backends))
	for i, b := range s.Backends {
		kinds[i] = store.Kind(b)
	}
	return kinds
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, b := range s.Backends {
		switch store.Kind(b) {
		case store.KindRelational, store.KindFallback:
		default:
			return fmt.Errorf("backends[%d]: unknown backend %q", i, b)
		}
	}

	bound := map[string]bool{}
	validateSteps := func(section string, steps []FlowStep) error {
		for i, step := range steps {
			if step.Op == "" {
				return fmt.Errorf("%s[%d]: op is required", section, i)
			}
			if _, ok := operations[step.Op]; !ok {
				return fmt.Errorf("%s[%d]: unknown op %q", section, i, step.Op)
			}
			if step.Args == nil {
				return fmt.Errorf("%s[%d]: args is required (use empty map if no args)", section, i)
			}
			if err := checkRefs(step.Args, bound); err != nil {
				return fmt.Errorf("%s[%d]: %w", section, i, err)
			}
			if step.As != "" {
				if bound[step.As] {
					return fmt.Errorf("%s[%d]: %q is already bound", section, i, step.As)
				}
				bound[step.As] = true
			}
		}
		return nil
	}
	if err := validateSteps("setup", s.Setup); err != nil {
		return err
	}
	if err := validateSteps("flow", s.Flow); err != nil {
		return err
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, bound); err != nil {
			return err
		}
	}

	return nil
}

// checkRefs reports a "$name" argument that no earlier step binds.
func checkRefs(args map[string]interface{}, bound map[string]bool) error {
	for key, v := range args {
		if ref, ok := v.(string); ok && strings.HasPrefix(ref, "$") {
			if !bound[ref[1:]] {
				return fmt.Errorf("args.%s: %s is not bound by an earlier step", key, ref)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, bound map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if _, ok := tables[a.Table]; !ok {
			return fmt.Errorf("assertions[%d]: unknown table %q for final_state", index, a.Table)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
		if err := checkRefs(a.Where, bound); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
