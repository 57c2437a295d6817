package harness

// Trace phases.
const (
	PhaseSetup = "setup"
	PhaseFlow  = "flow"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int      `json:"seq"`
	Phase  string   `json:"phase"`
	Op     string   `json:"op"`
	Target string   `json:"target,omitempty"` // table or helper
	IDs    []string `json:"ids,omitempty"`
	Count  int      `json:"count"`
	Error  string   `json:"error,omitempty"` // errs.Kind of the step's error
}

// Action is the event's "op target" label as used by assertions.
func (e TraceEvent) Action() string {
	if e.Target == "" {
		return e.Op
	}
	return e.Op + " " + e.Target
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final record count of every table.
	State map[string]int `json:"state,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev, numbering it.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}
