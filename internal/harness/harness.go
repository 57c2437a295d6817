package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/crm/internal/crm"
	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/model"
	"github.com/roach88/crm/internal/queries"
	"github.com/roach88/crm/internal/seed"
	"github.com/roach88/crm/internal/store"
	"github.com/roach88/crm/internal/testutil"
)

// Options configures Run.
type Options struct {
	// Driver is the SQLite driver. Defaults to store.DriverMattn.
	Driver string

	Logger *slog.Logger
}

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and sequential ids.
type Harness struct {
	db       *crm.DB
	helpers  *queries.Helpers
	clock    *testutil.DeterministicClock
	logger   *slog.Logger
	bindings map[string]string
}

// stepOutcome is what a step produced when it succeeded.
type stepOutcome struct {
	ids     []string
	count   int
	records []json.RawMessage
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Execution flow:
// 1. Open an in-memory store with sequential ids ("rec-0001", ...)
// 2. Execute setup steps; any failure aborts the run
// 3. Execute flow steps, checking each expect clause
// 4. Evaluate assertions and record final table counts
//
// The returned error is reserved for broken scenarios and engine setup;
// mismatches are reported through Result.Errors.
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	}

	st, err := store.Open(ctx, ":memory:", store.Options{
		Driver: opts.Driver,
		IDs:    store.NewSequenceGenerator("rec"),
		Logger: opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	db, err := crm.New(st)
	if err != nil {
		return nil, err
	}

	var start time.Time
	if scenario.Clock != "" {
		if start, err = time.Parse(time.RFC3339, scenario.Clock); err != nil {
			return nil, fmt.Errorf("clock: %w", err)
		}
	}
	clock := testutil.NewDeterministicClock(start)

	h := &Harness{
		db:       db,
		helpers:  queries.New(db, queries.Options{Now: clock.Now, Logger: opts.Logger}),
		clock:    clock,
		logger:   opts.Logger,
		bindings: make(map[string]string),
	}

	result := NewResult()
	if err := h.executeSetup(ctx, scenario.Setup, result); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	actx := &AssertionContext{
		DB:      db,
		Ctx:     ctx,
		Resolve: h.resolve,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	for _, name := range model.Tables {
		c, err := db.Collection(name)
		if err != nil {
			return nil, err
		}
		n, err := c.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		result.State[name] = n
	}

	h.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"steps", len(result.Trace),
		"pass", result.Pass,
	)
	return result, nil
}

// executeSetup runs all setup steps. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []Step, result *Result) error {
	for i, step := range setup {
		out, err := h.execute(ctx, step)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		result.AddTrace(event(PhaseSetup, step, out, nil))

		h.logger.Debug("setup step completed", "step", i, "op", step.Op, "ids", out.ids)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
// Step errors are outcomes to check, not failures of the run; only a
// broken scenario (such as an unknown binding) stops it.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		out, err := h.execute(ctx, step)
		var be *bindingError
		if errors.As(err, &be) {
			return fmt.Errorf("flow step %d: %w", i, err)
		}

		ev := event(PhaseFlow, step, out, err)
		result.AddTrace(ev)

		for _, msg := range h.check(step.Expect, out, err) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, ev.Action(), msg))
		}

		h.logger.Debug("flow step completed",
			"step", i,
			"op", step.Op,
			"ids", out.ids,
			"error", ev.Error,
		)
	}
	return nil
}

func event(phase string, step Step, out stepOutcome, err error) TraceEvent {
	ev := TraceEvent{
		Phase:  phase,
		Op:     step.Op,
		Target: step.Table,
		IDs:    out.ids,
		Count:  out.count,
	}
	if step.Op == OpQuery {
		ev.Target = step.Helper
	}
	if err != nil {
		ev.Error = errorKind(err)
	}
	return ev
}

// errorKind names err for traces and expect clauses.
func errorKind(err error) string {
	if k := errs.Kind(err); k != "" {
		return k
	}
	return "error"
}

// check compares a flow step's outcome with its expect clause. A step
// without one must succeed.
func (h *Harness) check(expect *Expect, out stepOutcome, err error) []string {
	if expect == nil {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
		return nil
	}

	if expect.Error != "" {
		switch {
		case err == nil:
			return []string{fmt.Sprintf("expected %s error, step succeeded", expect.Error)}
		case errorKind(err) != expect.Error:
			return []string{fmt.Sprintf("expected %s error, got %s: %v", expect.Error, errorKind(err), err)}
		}
		return nil
	}
	if err != nil {
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}

	var msgs []string
	if expect.IDs != nil {
		want := make([]string, len(expect.IDs))
		for i, id := range expect.IDs {
			want[i] = h.resolveString(id)
		}
		if !slices.Equal(want, out.ids) {
			msgs = append(msgs, fmt.Sprintf("ids: expected %v, got %v", want, out.ids))
		}
	}
	if expect.Count != nil && *expect.Count != out.count {
		msgs = append(msgs, fmt.Sprintf("count: expected %d, got %d", *expect.Count, out.count))
	}
	if expect.Result != nil {
		if len(out.records) == 0 {
			msgs = append(msgs, "result: step returned no record")
		} else if diff := diffRecord(out.records[0], h.resolve(expect.Result).(map[string]any)); diff != "" {
			msgs = append(msgs, "result: "+diff)
		}
	}
	return msgs
}

// execute runs one step against the database.
func (h *Harness) execute(ctx context.Context, step Step) (stepOutcome, error) {
	switch step.Op {
	case OpSeed:
		return h.seed(ctx)
	case OpAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return stepOutcome{}, err
		}
		h.clock.Advance(d)
		return stepOutcome{}, nil
	case OpQuery:
		return h.query(ctx, step)
	}

	c, err := h.db.Collection(step.Table)
	if err != nil {
		return stepOutcome{}, err
	}

	switch step.Op {
	case OpAdd:
		doc, err := h.document(step.Record)
		if err != nil {
			return stepOutcome{}, err
		}
		id, err := c.AddJSON(ctx, doc)
		if err != nil {
			return stepOutcome{}, err
		}
		h.bind(step.As, []string{id})
		it, err := c.GetJSON(ctx, id)
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{ids: []string{id}, count: 1, records: []json.RawMessage{it.JSON}}, nil

	case OpBulkAdd:
		docs := make([][]byte, len(step.Records))
		for i, rec := range step.Records {
			doc, err := h.document(rec)
			if err != nil {
				return stepOutcome{}, err
			}
			docs[i] = doc
		}
		ids, err := c.BulkAddJSON(ctx, docs)
		if err != nil {
			return stepOutcome{}, err
		}
		h.bind(step.As, ids)
		return stepOutcome{ids: ids, count: len(ids)}, nil

	case OpGet:
		id, err := h.resolveID(step.ID)
		if err != nil {
			return stepOutcome{}, err
		}
		it, err := c.GetJSON(ctx, id)
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{ids: []string{id}, count: 1, records: []json.RawMessage{it.JSON}}, nil

	case OpUpdate:
		id, err := h.resolveID(step.ID)
		if err != nil {
			return stepOutcome{}, err
		}
		changes, err := h.resolveStrict(step.Changes)
		if err != nil {
			return stepOutcome{}, err
		}
		it, err := c.UpdateJSON(ctx, id, changes.(map[string]any))
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{ids: []string{id}, count: 1, records: []json.RawMessage{it.JSON}}, nil

	case OpDelete:
		ids := make([]string, len(step.IDs))
		for i, raw := range step.IDs {
			id, err := h.resolveID(raw)
			if err != nil {
				return stepOutcome{}, err
			}
			ids[i] = id
		}
		if err := c.BulkDelete(ctx, ids); err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{ids: ids, count: len(ids)}, nil

	case OpList:
		items, err := c.List(ctx)
		if err != nil {
			return stepOutcome{}, err
		}
		out := stepOutcome{ids: make([]string, len(items)), count: len(items), records: make([]json.RawMessage, len(items))}
		for i, it := range items {
			out.ids[i] = it.ID
			out.records[i] = it.JSON
		}
		return out, nil

	case OpCount:
		n, err := c.Count(ctx)
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{count: n}, nil

	case OpClear:
		n, err := c.Count(ctx)
		if err != nil {
			return stepOutcome{}, err
		}
		if err := c.Clear(ctx); err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{count: n}, nil
	}

	return stepOutcome{}, fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) query(ctx context.Context, step Step) (stepOutcome, error) {
	args, err := h.resolveStrict(step.Args)
	if err != nil {
		return stepOutcome{}, err
	}
	var qa queries.Args
	if m, ok := args.(map[string]any); ok {
		qa = queries.Args(m)
	}

	res, err := h.helpers.Call(ctx, step.Helper, qa)
	if err != nil {
		return stepOutcome{}, err
	}

	out := stepOutcome{ids: res.IDs, count: len(res.IDs)}
	for _, rec := range res.Records {
		b, err := json.Marshal(rec)
		if err != nil {
			return stepOutcome{}, fmt.Errorf("render %s: %w", rec.Key(), err)
		}
		out.records = append(out.records, b)
	}
	return out, nil
}

func (h *Harness) seed(ctx context.Context) (stepOutcome, error) {
	res, err := seed.Run(ctx, h.db, seed.Options{Now: h.clock.Now, Logger: h.logger})
	if err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{count: res.Contacts + res.Projects + res.Tasks + res.Events}, nil
}

// document renders a scenario record as JSON with bindings resolved.
func (h *Harness) document(rec map[string]any) ([]byte, error) {
	resolved, err := h.resolveStrict(rec)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(resolved)
	if err != nil {
		return nil, fmt.Errorf("record is not JSON-serialisable: %w", err)
	}
	return doc, nil
}

func (h *Harness) bind(names Names, ids []string) {
	for i, name := range names {
		if i < len(ids) && name != "" {
			h.bindings[name] = ids[i]
		}
	}
}

// bindingError reports a $name with no earlier binding.
type bindingError struct {
	name string
}

func (e *bindingError) Error() string {
	return fmt.Sprintf("unknown binding $%s", e.name)
}

func (h *Harness) resolveID(raw string) (string, error) {
	v, err := h.resolveStrict(raw)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// resolveStrict substitutes bindings throughout v, failing on unknown
// names.
func (h *Harness) resolveStrict(v any) (any, error) {
	var missing string
	out := h.substitute(v, func(name string) string {
		id, ok := h.bindings[name]
		if !ok && missing == "" {
			missing = name
		}
		return id
	})
	if missing != "" {
		return nil, &bindingError{name: missing}
	}
	return out, nil
}

// resolve substitutes bindings throughout v; unknown names are kept as
// written so the mismatch shows up in the comparison.
func (h *Harness) resolve(v any) any {
	return h.substitute(v, func(name string) string {
		if id, ok := h.bindings[name]; ok {
			return id
		}
		return "$" + name
	})
}

func (h *Harness) resolveString(s string) string {
	return h.resolve(s).(string)
}

func (h *Harness) substitute(v any, lookup func(string) string) any {
	switch x := v.(type) {
	case string:
		if name, ok := strings.CutPrefix(x, "$"); ok && name != "" {
			return lookup(name)
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = h.substitute(el, lookup)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, el := range x {
			out[k] = h.substitute(el, lookup)
		}
		return out
	default:
		return v
	}
}
