package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/crm/internal/crm"
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
			fmt.Fprintf(&buf, "  [%d] %s %v", event.Seq, event.Action(), event.IDs)
			if event.Error != "" {
				fmt.Fprintf(&buf, " error=%s", event.Error)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an event for the
// action whose ids include every expected id.
func assertTraceContains(trace []TraceEvent, assertion Assertion, resolve func(any) any) error {
	want := resolveIDs(assertion.IDs, resolve)
	for _, event := range trace {
		if event.Action() != assertion.Action {
			continue
		}
		if !slices.ContainsFunc(want, func(id string) bool { return !slices.Contains(event.IDs, id) }) {
			return nil
		}
	}

	expected := "action " + assertion.Action
	if len(want) > 0 {
		expected += fmt.Sprintf(" with ids %v", want)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed).
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	// Step 1: Find first position of each expected action
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Action()]; !seen {
			positions[event.Action()] = i + 1 // 1-indexed for readability
		}
	}

	// Step 2: Verify all actions found
	for _, action := range assertion.Actions {
		if positions[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", action),
				Trace:    trace,
			}
		}
	}

	// Step 3: Verify order
	for i := 1; i < len(assertion.Actions); i++ {
		prev := assertion.Actions[i-1]
		curr := assertion.Actions[i]

		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}

	return nil
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action() == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertFinalState finds the record selected by id or where and checks the
// expected attributes with subset semantics.
func assertFinalState(ctx context.Context, db *crm.DB, assertion Assertion, resolve func(any) any) error {
	c, err := db.Collection(assertion.Table)
	if err != nil {
		return err
	}

	var doc json.RawMessage
	if assertion.ID != "" {
		id := resolve(assertion.ID).(string)
		it, err := c.GetJSON(ctx, id)
		if err != nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("record %s/%s", assertion.Table, id),
				Actual:   err.Error(),
			}
		}
		doc = it.JSON
	} else {
		where := resolve(assertion.Where).(map[string]any)
		items, err := c.List(ctx)
		if err != nil {
			return fmt.Errorf("final_state: list %s: %w", assertion.Table, err)
		}
		for _, it := range items {
			if diffRecord(it.JSON, where) == "" {
				doc = it.JSON
				break
			}
		}
		if doc == nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("a %s record where %s", assertion.Table, formatWhere(where)),
				Actual:   fmt.Sprintf("none among %d records", len(items)),
			}
		}
	}

	if diff := diffRecord(doc, resolve(assertion.Expect).(map[string]any)); diff != "" {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s record matching %v", assertion.Table, assertion.Expect),
			Actual:   diff,
		}
	}
	return nil
}

// diffRecord compares the expected attributes with a stored record (subset
// match) and describes the first mismatch, or returns "".
func diffRecord(doc json.RawMessage, expected map[string]any) string {
	var actual map[string]any
	if err := json.Unmarshal(doc, &actual); err != nil {
		return fmt.Sprintf("record is not a JSON object: %v", err)
	}

	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Deterministic error messages

	for _, k := range keys {
		got, ok := actual[k]
		if !ok {
			if expected[k] == nil {
				continue
			}
			return fmt.Sprintf("%s: missing", k)
		}
		if !valuesEqual(got, expected[k]) {
			return fmt.Sprintf("%s: expected %v, got %v", k, expected[k], got)
		}
	}
	return ""
}

// valuesEqual compares a decoded JSON value with a YAML-parsed one.
// Numbers compare by value whatever their Go type; maps and slices compare
// element-wise.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}

	if a, ok := number(actual); ok {
		e, ok := number(expected)
		return ok && a == e
	}

	switch exp := expected.(type) {
	case []any:
		act, ok := actual.([]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for i := range exp {
			if !valuesEqual(act[i], exp[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok || len(act) != len(exp) {
			return false
		}
		for k, v := range exp {
			if !valuesEqual(act[k], v) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// formatWhere creates a human-readable description of where conditions.
func formatWhere(where map[string]any) string {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s = %v", k, where[k])
	}
	return strings.Join(parts, " AND ")
}

func resolveIDs(ids []string, resolve func(any) any) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = resolve(id).(string)
	}
	return out
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	DB  *crm.DB
	Ctx context.Context

	// Resolve substitutes $name bindings in expected values.
	Resolve func(any) any
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	resolve := func(v any) any { return v }
	if actx != nil && actx.Resolve != nil {
		resolve = actx.Resolve
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, resolve)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx == nil || actx.DB == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.DB, assertion, resolve)
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
