package queries

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/model"
)

// Args are the named arguments of a helper called by name. Values are
// strings, string lists, integers or times; strings are converted where
// the helper wants something else.
type Args map[string]any

// Outcome is the result of a helper called by name. IDs is always set, in
// result order; Records is nil for helpers that only return ids.
type Outcome struct {
	IDs     []string
	Records []model.Entity
}

type helper struct {
	params []string
	call   func(ctx context.Context, h *Helpers, a Args) (Outcome, error)
}

var helpers = map[string]helper{
	"contacts-by-ids": {[]string{"ids"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.ContactsByIDs(ctx, a.strs("ids")))
	}},
	"projects-by-ids": {[]string{"ids"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.ProjectsByIDs(ctx, a.strs("ids")))
	}},
	"tasks-by-project": {[]string{"projectId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.TasksByProject(ctx, a.str("projectId")))
	}},
	"tasks-by-contact": {[]string{"contactId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.TasksByContact(ctx, a.str("contactId")))
	}},
	"notes-by-entity": {[]string{"type", "id"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.NotesByEntity(ctx, model.EntityKind(a.str("type")), a.str("id")))
	}},
	"documents-by-entity": {[]string{"type", "id"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.DocumentsByEntity(ctx, model.EntityKind(a.str("type")), a.str("id")))
	}},
	"time-entries-by-project": {[]string{"projectId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.TimeEntriesByProject(ctx, a.str("projectId")))
	}},
	"time-entries-by-invoice": {[]string{"invoiceId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.TimeEntriesByInvoice(ctx, a.str("invoiceId")))
	}},
	"invoices-by-contact": {[]string{"contactId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.InvoicesByContact(ctx, a.str("contactId")))
	}},
	"invoices-by-project": {[]string{"projectId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.InvoicesByProject(ctx, a.str("projectId")))
	}},
	"upcoming-tasks": {[]string{"days?"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		days, err := a.integer("days", DefaultHorizonDays)
		if err != nil {
			return Outcome{}, err
		}
		return outcome(h.UpcomingTasks(ctx, days))
	}},
	"events-in-range": {[]string{"start", "end"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		start, err := a.instant("start")
		if err != nil {
			return Outcome{}, err
		}
		end, err := a.instant("end")
		if err != nil {
			return Outcome{}, err
		}
		return outcome(h.EventsInRange(ctx, start, end))
	}},
	"goals-by-project": {[]string{"projectId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.GoalsByProject(ctx, a.str("projectId")))
	}},
	"contacts-by-tag": {[]string{"tag"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.ContactsByTag(ctx, a.str("tag")))
	}},
	"favorite-contacts": {nil, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		return outcome(h.FavoriteContacts(ctx))
	}},
	"project-task-ids": {[]string{"projectId"}, func(ctx context.Context, h *Helpers, a Args) (Outcome, error) {
		ids, err := h.ProjectTaskIDs(ctx, a.str("projectId"))
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{IDs: ids}, nil
	}},
}

// Names lists the helpers callable by name, sorted.
func Names() []string {
	names := make([]string, 0, len(helpers))
	for name := range helpers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Usage describes the arguments of a named helper, e.g.
// "events-in-range start=<..> end=<..>". Optional arguments end in "?".
func Usage(name string) string {
	hp, ok := helpers[name]
	if !ok {
		return name
	}
	parts := []string{name}
	for _, p := range hp.params {
		parts = append(parts, p+"=<..>")
	}
	return strings.Join(parts, " ")
}

// Call runs the helper registered under name. Unknown helpers and unknown
// or missing arguments are a QueryError.
func (h *Helpers) Call(ctx context.Context, name string, args Args) (Outcome, error) {
	hp, ok := helpers[name]
	if !ok {
		return Outcome{}, errs.BadQuery("", "", "unknown helper %q (want one of %v)", name, Names())
	}

	known := make(map[string]bool, len(hp.params))
	for _, p := range hp.params {
		optional := strings.HasSuffix(p, "?")
		p = strings.TrimSuffix(p, "?")
		known[p] = true
		if _, ok := args[p]; !ok && !optional {
			return Outcome{}, errs.BadQuery("", p, "%s: missing argument", name)
		}
	}
	for k := range args {
		if !known[k] {
			return Outcome{}, errs.BadQuery("", k, "%s: unknown argument", name)
		}
	}

	h.log.Debug("helper call", "helper", name, "args", len(args))
	return hp.call(ctx, h, args)
}

func outcome[P model.Entity](recs []P, err error) (Outcome, error) {
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{IDs: make([]string, len(recs)), Records: make([]model.Entity, len(recs))}
	for i, r := range recs {
		out.IDs[i] = r.Key()
		out.Records[i] = r
	}
	return out, nil
}

func (a Args) str(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// strs accepts a list or a comma-separated string.
func (a Args) strs(key string) []string {
	switch v := a[key].(type) {
	case nil:
		return []string{}
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, el := range v {
			out[i] = fmt.Sprint(el)
		}
		return out
	case string:
		if v == "" {
			return []string{}
		}
		return strings.Split(v, ",")
	default:
		return []string{fmt.Sprint(v)}
	}
}

func (a Args) integer(key string, def int) (int, error) {
	switch v := a[key].(type) {
	case nil:
		return def, nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, errs.BadQuery("", key, "not an integer: %q", v)
		}
		return n, nil
	default:
		return 0, errs.BadQuery("", key, "not an integer: %v", v)
	}
}

func (a Args) instant(key string) (time.Time, error) {
	switch v := a[key].(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, errs.BadQuery("", key, "not an RFC 3339 time: %q", v)
		}
		return t, nil
	default:
		return time.Time{}, errs.BadQuery("", key, "not a time: %v", v)
	}
}
