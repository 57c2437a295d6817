package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/crm/internal/model"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the RFC 3339 instant the scenario starts at.
	// Defaults to testutil.Epoch.
	Clock string `yaml:"clock,omitempty"`

	// Setup establishes initial state. Every setup step must succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow is the main test flow, each step optionally checked.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Operation names.
const (
	OpAdd     = "add"
	OpBulkAdd = "bulk_add"
	OpGet     = "get"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpList    = "list"
	OpCount   = "count"
	OpClear   = "clear"
	OpQuery   = "query"
	OpSeed    = "seed"
	OpAdvance = "advance"
)

// Step is one operation against the database.
type Step struct {
	Op string `yaml:"op"`

	// Table is the target of record operations.
	Table string `yaml:"table,omitempty"`

	// As binds the ids assigned by add/bulk_add, in record order.
	As Names `yaml:"as,omitempty"`

	Record  map[string]any   `yaml:"record,omitempty"`
	Records []map[string]any `yaml:"records,omitempty"`

	// ID is the record for get/update, IDs the records for delete.
	ID  string   `yaml:"id,omitempty"`
	IDs []string `yaml:"ids,omitempty"`

	// Changes are merged by update; a null value removes the attribute.
	Changes map[string]any `yaml:"changes,omitempty"`

	// Helper and Args name a query helper call.
	Helper string         `yaml:"helper,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`

	// Duration is how far advance moves the clock (e.g. "48h").
	Duration string `yaml:"duration,omitempty"`

	// Expect checks the step's outcome. Setup steps may not carry one.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of a flow step.
type Expect struct {
	// Error is the expected error kind: validation, not_found, query or
	// store_fault. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// IDs are the exact ids returned, in order. Absent means unchecked;
	// an empty list means none.
	IDs []string `yaml:"ids,omitempty"`

	// Count is the expected number of records returned or affected.
	Count *int `yaml:"count,omitempty"`

	// Result is a subset match on the first returned record.
	Result map[string]any `yaml:"result,omitempty"`
}

// Names is a list of binding names written either as a single scalar or
// as a sequence.
type Names []string

// UnmarshalYAML accepts "as: alice" as well as "as: [alice, bob]".
func (n *Names) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*n = Names{value.Value}
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*n = names
		return nil
	default:
		return fmt.Errorf("line %d: as must be a name or a list of names", value.Line)
	}
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check action appears in trace, with IDs if given
	// - "trace_order": Check actions appear in order
	// - "trace_count": Check action appears exactly N times
	// - "final_state": Check a stored record's attributes
	Type string `yaml:"type"`

	// Action is "op target" (used by trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// IDs must all appear in the matching event (used by trace_contains).
	IDs []string `yaml:"ids,omitempty"`

	// Actions is the expected action order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Table names the table checked by final_state.
	Table string `yaml:"table,omitempty"`

	// ID selects the record; otherwise Where selects the first record
	// whose attributes include every Where value (used by final_state).
	ID    string         `yaml:"id,omitempty"`
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected attribute values (used by final_state).
	// Subset match - only specified attributes are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

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

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, in file name order.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios (*.yaml) in %s", dir)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Clock != "" {
		if _, err := time.Parse(time.RFC3339, s.Clock); err != nil {
			return fmt.Errorf("clock: %w", err)
		}
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
		if err := validateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	needsTable := func() error {
		if step.Table == "" {
			return fmt.Errorf("%s: table is required", step.Op)
		}
		if !slices.Contains(model.Tables, step.Table) {
			return fmt.Errorf("%s: unknown table %q", step.Op, step.Table)
		}
		return nil
	}

	switch step.Op {
	case OpAdd:
		if step.Record == nil {
			return fmt.Errorf("add: record is required")
		}
		if len(step.As) > 1 {
			return fmt.Errorf("add: binds one name, got %d", len(step.As))
		}
		return needsTable()
	case OpBulkAdd:
		if len(step.Records) == 0 {
			return fmt.Errorf("bulk_add: records are required")
		}
		if len(step.As) > 0 && len(step.As) != len(step.Records) {
			return fmt.Errorf("bulk_add: %d names for %d records", len(step.As), len(step.Records))
		}
		return needsTable()
	case OpGet:
		if step.ID == "" {
			return fmt.Errorf("get: id is required")
		}
		return needsTable()
	case OpUpdate:
		if step.ID == "" {
			return fmt.Errorf("update: id is required")
		}
		if step.Changes == nil {
			return fmt.Errorf("update: changes are required")
		}
		return needsTable()
	case OpDelete:
		if len(step.IDs) == 0 {
			return fmt.Errorf("delete: ids are required")
		}
		return needsTable()
	case OpList, OpCount, OpClear:
		return needsTable()
	case OpQuery:
		if step.Helper == "" {
			return fmt.Errorf("query: helper is required")
		}
	case OpSeed:
	case OpAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("advance: %w", err)
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if a.ID == "" && len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: id or where is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
