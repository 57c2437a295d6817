// Package harness runs conformance scenarios against the CRM data layer.
//
// A scenario is a YAML file describing records to store, helpers to call
// and what each step must produce. Every scenario runs against its own
// in-memory store with sequential ids ("rec-0001", ...) and a settable
// clock, so the trace it leaves is identical on every run and can be
// compared against a golden file.
//
// # Scenario Format
//
//	name: tasks_by_contact
//	description: "What this scenario validates"
//	clock: 2026-03-02T09:00:00Z
//	setup:
//	  - op: add
//	    table: contacts
//	    as: alice
//	    record: { name: Alice }
//	flow:
//	  - op: query
//	    helper: tasks-by-contact
//	    args: { contactId: $alice }
//	    expect:
//	      ids: []
//	assertions:
//	  - type: final_state
//	    table: contacts
//	    id: $alice
//	    expect: { name: Alice }
//
// Strings of the form $name refer to the id bound by an earlier step's
// "as". Setup steps must succeed; flow steps are checked against their
// expect clause.
//
// # Operations
//
//   - add, bulk_add: store record(s) in table, binding ids with "as"
//   - get, update, delete: act on id (update applies "changes")
//   - list, count, clear: whole-table operations
//   - query: call a helper by name (see queries.Names)
//   - seed: run the first-run sample data routine
//   - advance: move the clock forward by "duration"
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace, optionally with ids
//   - trace_order: actions appear in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: a stored record matches expected attributes
//
// Actions are written "op target", e.g. "add contacts" or
// "query tasks-by-project"; operations without a target are just "op".
package harness
