// Package queries holds the read helpers the application composes from
// indexed table lookups. Every helper is a pure read returning full records
// in insertion order; an empty input yields an empty slice.
package queries

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/crm/internal/crm"
	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/model"
	"github.com/roach88/crm/internal/query"
)

// DefaultHorizonDays is the upcoming-tasks window when the call names none.
const DefaultHorizonDays = 7

// Options configures New.
type Options struct {
	// Now is the clock used by date-relative helpers. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Helpers runs the query helpers against one database.
type Helpers struct {
	db  *crm.DB
	now func() time.Time
	log *slog.Logger
}

// New creates Helpers over db.
func New(db *crm.DB, opts Options) *Helpers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Helpers{db: db, now: opts.Now, log: opts.Logger}
}

// ContactsByIDs returns the contacts whose id is in ids. Unknown ids are
// skipped.
func (h *Helpers) ContactsByIDs(ctx context.Context, ids []string) ([]*model.Contact, error) {
	return h.db.Contacts.Where(ctx, query.AnyOf{Field: "id", Values: query.Strings(ids...)})
}

// ProjectsByIDs returns the projects whose id is in ids.
func (h *Helpers) ProjectsByIDs(ctx context.Context, ids []string) ([]*model.Project, error) {
	return h.db.Projects.Where(ctx, query.AnyOf{Field: "id", Values: query.Strings(ids...)})
}

// TasksByProject returns the tasks whose projectId is projectID.
func (h *Helpers) TasksByProject(ctx context.Context, projectID string) ([]*model.Task, error) {
	return h.db.Tasks.Where(ctx, query.Equals{Field: "projectId", Value: projectID})
}

// TasksByContact returns the tasks that list contactID among their
// contacts. Each task appears once.
func (h *Helpers) TasksByContact(ctx context.Context, contactID string) ([]*model.Task, error) {
	return h.db.Tasks.Where(ctx, query.Or{Predicates: []query.Predicate{
		query.Contains{Field: "contactIds", Value: contactID},
		query.StartsWith{Field: "contactIds", Prefix: []string{contactID}},
	}})
}

// NotesByEntity returns the notes linked to the given record. kind must be
// a permitted link target for notes.
func (h *Helpers) NotesByEntity(ctx context.Context, kind model.EntityKind, id string) ([]*model.Note, error) {
	if err := permitted(model.TableNotes, kind, model.NoteRelatedKinds); err != nil {
		return nil, err
	}
	notes, err := h.db.Notes.Where(ctx, query.Equals{Field: "relatedEntityType", Value: string(kind)})
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(notes, func(n *model.Note) bool {
		return n.Related == nil || n.Related.ID != id
	}), nil
}

// DocumentsByEntity returns the documents linked to the given record. kind
// must be a permitted link target for documents.
func (h *Helpers) DocumentsByEntity(ctx context.Context, kind model.EntityKind, id string) ([]*model.Document, error) {
	if err := permitted(model.TableDocuments, kind, model.DocumentRelatedKinds); err != nil {
		return nil, err
	}
	docs, err := h.db.Documents.Where(ctx, query.Equals{Field: "relatedEntityType", Value: string(kind)})
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(docs, func(d *model.Document) bool {
		return d.Related == nil || d.Related.ID != id
	}), nil
}

// TimeEntriesByProject returns the time entries booked on projectID.
func (h *Helpers) TimeEntriesByProject(ctx context.Context, projectID string) ([]*model.TimeEntry, error) {
	return h.db.TimeEntries.Where(ctx, query.Equals{Field: "projectId", Value: projectID})
}

// TimeEntriesByInvoice returns the time entries billed on invoiceID.
func (h *Helpers) TimeEntriesByInvoice(ctx context.Context, invoiceID string) ([]*model.TimeEntry, error) {
	return h.db.TimeEntries.Where(ctx, query.Equals{Field: "invoiceId", Value: invoiceID})
}

// InvoicesByContact returns the invoices addressed to contactID.
func (h *Helpers) InvoicesByContact(ctx context.Context, contactID string) ([]*model.Invoice, error) {
	return h.db.Invoices.Where(ctx, query.Equals{Field: "contactId", Value: contactID})
}

// InvoicesByProject returns the invoices for projectID.
func (h *Helpers) InvoicesByProject(ctx context.Context, projectID string) ([]*model.Invoice, error) {
	return h.db.Invoices.Where(ctx, query.Equals{Field: "projectId", Value: projectID})
}

// UpcomingTasks returns the tasks that are not completed and are due
// between now and now+days, both ends included. Tasks without a due date
// are left out. With days of 0 only tasks due exactly now qualify.
func (h *Helpers) UpcomingTasks(ctx context.Context, days int) ([]*model.Task, error) {
	if days < 0 {
		return nil, errs.BadQuery(model.TableTasks, "dueDate", "horizon must not be negative, got %d days", days)
	}

	open, err := h.db.Tasks.Where(ctx, query.NoneOf{
		Field:  "status",
		Values: query.Strings(string(model.TaskCompleted)),
	})
	if err != nil {
		return nil, err
	}

	from := h.now()
	until := from.AddDate(0, 0, days)
	upcoming := slices.DeleteFunc(open, func(t *model.Task) bool {
		return t.DueDate == nil || t.DueDate.Before(from) || t.DueDate.After(until)
	})

	h.log.Debug("upcoming tasks", "from", from, "until", until, "open", len(open), "due", len(upcoming))
	return upcoming, nil
}

// EventsInRange returns the events that start or end within [start, end].
// An event that starts before start and ends after end is not returned.
func (h *Helpers) EventsInRange(ctx context.Context, start, end time.Time) ([]*model.Event, error) {
	return h.db.Events.Where(ctx, query.Or{Predicates: []query.Predicate{
		query.Between{Field: "startDate", Low: start, High: end},
		query.Between{Field: "endDate", Low: start, High: end},
	}})
}

// GoalsByProject returns the goals that list projectID among their
// related projects.
func (h *Helpers) GoalsByProject(ctx context.Context, projectID string) ([]*model.Goal, error) {
	return h.db.Goals.Where(ctx, query.Contains{Field: "relatedProjectIds", Value: projectID})
}

// ContactsByTag returns the contacts carrying tag. Tags are stored in
// canonical form (see model.NormalizeTag) and tag is canonicalised the same
// way, so composed, decomposed and padded spellings find each other.
func (h *Helpers) ContactsByTag(ctx context.Context, tag string) ([]*model.Contact, error) {
	return h.db.Contacts.Where(ctx, query.Contains{Field: "tags", Value: model.NormalizeTag(tag)})
}

// FavoriteContacts returns the contacts marked favorite.
func (h *Helpers) FavoriteContacts(ctx context.Context) ([]*model.Contact, error) {
	return h.db.Contacts.Where(ctx, query.Equals{Field: "favorite", Value: true})
}

// ProjectTaskIDs derives a project's task ids from Task.projectId. Use it
// in place of the cached Project.TaskIDs, which callers maintain by hand.
func (h *Helpers) ProjectTaskIDs(ctx context.Context, projectID string) ([]string, error) {
	tasks, err := h.TasksByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids, nil
}

func permitted(table string, kind model.EntityKind, kinds []model.EntityKind) error {
	if !slices.Contains(kinds, kind) {
		return errs.BadQuery(table, "relatedEntityType", "%q is not a link target for %s (want one of %v)", kind, table, kinds)
	}
	return nil
}
