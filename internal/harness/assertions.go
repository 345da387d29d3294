package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/feedstore/internal/persistence"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %v\n", event.Step, event.Op, event.Args)
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an operation matching
// the specified op and args (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion, bindings map[string]int64) error {
	want := resolveBindings(assertion.Args, bindings)
	for _, event := range trace {
		if event.Op == assertion.Op && matchArgs(event.Args, want) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("op %s with args %v", assertion.Op, want),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening ops are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Find first position of each expected op
	positions := make(map[string]int)
	for i, event := range trace {
		for _, op := range assertion.Ops {
			if event.Op == op && positions[op] == 0 {
				positions[op] = i + 1 // 1-indexed for readability
			}
		}
	}

	for _, op := range assertion.Ops {
		if positions[op] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all ops present: %v", assertion.Ops),
				Actual:   fmt.Sprintf("missing op: %s", op),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Ops); i++ {
		prev := assertion.Ops[i-1]
		curr := assertion.Ops[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the op appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Op == assertion.Op {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Op),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// tableFunc loads the fields of one entity for a final_state assertion.
type tableFunc func(ctx context.Context, f *persistence.Facade, where map[string]interface{}) (map[string]interface{}, bool, error)

var tables = map[string]tableFunc{
	"user":        userState,
	"post":        postState,
	"comments":    commentsState,
	"like":        likeState,
	"consistency": consistencyState,
}

func userState(ctx context.Context, f *persistence.Facade, where map[string]interface{}) (map[string]interface{}, bool, error) {
	id, err := num(where, "id")
	if err != nil {
		return nil, false, err
	}
	u, found, err := f.GetUserByID(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	return map[string]interface{}{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
	}, true, nil
}

func postState(ctx context.Context, f *persistence.Facade, where map[string]interface{}) (map[string]interface{}, bool, error) {
	id, err := num(where, "id")
	if err != nil {
		return nil, false, err
	}
	p, found, err := f.GetPostByID(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	return map[string]interface{}{
		"id":          p.ID,
		"title":       p.Title,
		"description": p.Description,
		"tags":        p.Tags,
		"author_id":   p.AuthorID,
		"author_name": p.AuthorName,
		"likes_count": p.LikesCount,
	}, true, nil
}

func commentsState(ctx context.Context, f *persistence.Facade, where map[string]interface{}) (map[string]interface{}, bool, error) {
	postID, err := num(where, "post_id")
	if err != nil {
		return nil, false, err
	}
	comments, err := f.GetCommentsByPostID(ctx, postID)
	if err != nil {
		return nil, false, err
	}
	authors := make([]interface{}, len(comments))
	contents := make([]interface{}, len(comments))
	for i, c := range comments {
		authors[i] = c.UserName
		contents[i] = c.Content
	}
	return map[string]interface{}{
		"count":    int64(len(comments)),
		"authors":  authors,
		"contents": contents,
	}, true, nil
}

func likeState(ctx context.Context, f *persistence.Facade, where map[string]interface{}) (map[string]interface{}, bool, error) {
	postID, err := num(where, "post_id")
	if err != nil {
		return nil, false, err
	}
	userID, err := num(where, "user_id")
	if err != nil {
		return nil, false, err
	}
	liked, err := f.IsPostLikedByUser(ctx, postID, userID)
	if err != nil {
		return nil, false, err
	}
	return map[string]interface{}{"liked": liked}, true, nil
}

func consistencyState(ctx context.Context, f *persistence.Facade, where map[string]interface{}) (map[string]interface{}, bool, error) {
	mismatches, err := f.Check(ctx)
	if err != nil {
		return nil, false, err
	}
	return map[string]interface{}{"mismatches": int64(len(mismatches))}, true, nil
}

// assertFinalState loads the entity named by the assertion and validates
// expected values using subset semantics.
func assertFinalState(ctx context.Context, f *persistence.Facade, assertion Assertion, bindings map[string]int64) error {
	load, ok := tables[assertion.Table]
	if !ok {
		return fmt.Errorf("final_state: unknown table %q", assertion.Table)
	}

	where := resolveBindings(assertion.Where, bindings)
	actual, found, err := load(ctx, f, where)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("look up %s", assertion.Table),
			Actual:   fmt.Sprintf("lookup error: %v", err),
		}
	}
	if !found {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "not found",
		}
	}

	// Check each expected field (subset semantics - only check fields in Expect)
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, assertion.Table),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s.%s = %v (type %T)", assertion.Table, key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("%s.%s = %v (type %T)", assertion.Table, key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// resolveBindings replaces "$name" strings with bound ids.
func resolveBindings(m map[string]interface{}, bindings map[string]int64) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if ref, ok := v.(string); ok && strings.HasPrefix(ref, "$") {
			if id, bound := bindings[ref[1:]]; bound {
				v = id
			}
		}
		out[k] = v
	}
	return out
}

// formatWhereClause creates a human-readable description of lookup keys.
func formatWhereClause(where map[string]interface{}) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	// Sort keys for deterministic output
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected YAML value with an actual value.
// YAML integers decode as int while store values are int64.
func stateValuesEqual(expected, actual interface{}) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	if exp, ok := asInt64(expected); ok {
		act, ok := asInt64(actual)
		return ok && exp == act
	}

	switch exp := expected.(type) {
	case string:
		act, ok := actual.(string)
		return ok && exp == act
	case bool:
		act, ok := actual.(bool)
		return ok && exp == act
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !stateValuesEqual(exp[i], act[i]) {
				return false
			}
		}
		return true
	}

	// Fallback to DeepEqual for complex types
	return reflect.DeepEqual(expected, actual)
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// matchArgs checks if actual args contain all expected args (subset match).
// Extra keys in actual are ignored.
func matchArgs(actual map[string]interface{}, expected map[string]interface{}) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !stateValuesEqual(expectedVal, actualVal) {
			return false
		}
	}
	return true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Facade   *persistence.Facade
	Ctx      context.Context
	Bindings map[string]int64
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides store access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	var bindings map[string]int64
	if actx != nil {
		bindings = actx.Bindings
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, bindings)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.Facade == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires a store", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Facade, assertion, bindings)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
