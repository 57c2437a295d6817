// Package crm is the typed database handle over the store: one Table per
// record type, plus a name-keyed Collection view for callers that deal in
// raw JSON (the CLI and the conformance harness).
package crm

import (
	"github.com/roach88/crm/internal/model"
	"github.com/roach88/crm/internal/store"
)

// DB groups the typed tables of one open store. Construct it once and pass
// it to every consumer.
type DB struct {
	store *store.Store

	Contacts    *Table[model.Contact, *model.Contact]
	Projects    *Table[model.Project, *model.Project]
	Tasks       *Table[model.Task, *model.Task]
	Events      *Table[model.Event, *model.Event]
	Notes       *Table[model.Note, *model.Note]
	Documents   *Table[model.Document, *model.Document]
	Invoices    *Table[model.Invoice, *model.Invoice]
	TimeEntries *Table[model.TimeEntry, *model.TimeEntry]
	Goals       *Table[model.Goal, *model.Goal]

	collections map[string]Collection
}

// New binds the typed tables to s. It fails with a QueryError if s was
// opened with a schema lacking one of the CRM tables.
func New(s *store.Store) (*DB, error) {
	db := &DB{store: s}
	var err error

	if db.Contacts, err = newTable[model.Contact](s, model.TableContacts); err != nil {
		return nil, err
	}
	if db.Projects, err = newTable[model.Project](s, model.TableProjects); err != nil {
		return nil, err
	}
	if db.Tasks, err = newTable[model.Task](s, model.TableTasks); err != nil {
		return nil, err
	}
	if db.Events, err = newTable[model.Event](s, model.TableEvents); err != nil {
		return nil, err
	}
	if db.Notes, err = newTable[model.Note](s, model.TableNotes); err != nil {
		return nil, err
	}
	if db.Documents, err = newTable[model.Document](s, model.TableDocuments); err != nil {
		return nil, err
	}
	if db.Invoices, err = newTable[model.Invoice](s, model.TableInvoices); err != nil {
		return nil, err
	}
	if db.TimeEntries, err = newTable[model.TimeEntry](s, model.TableTimeEntries); err != nil {
		return nil, err
	}
	if db.Goals, err = newTable[model.Goal](s, model.TableGoals); err != nil {
		return nil, err
	}

	db.collections = map[string]Collection{
		model.TableContacts:    collection(db.Contacts, func(c *model.Contact) string { return c.Name }),
		model.TableProjects:    collection(db.Projects, func(p *model.Project) string { return p.Name }),
		model.TableTasks:       collection(db.Tasks, func(t *model.Task) string { return t.Title }),
		model.TableEvents:      collection(db.Events, func(e *model.Event) string { return e.Title }),
		model.TableNotes:       collection(db.Notes, noteLabel),
		model.TableDocuments:   collection(db.Documents, func(d *model.Document) string { return d.Name }),
		model.TableInvoices:    collection(db.Invoices, func(i *model.Invoice) string { return i.Number }),
		model.TableTimeEntries: collection(db.TimeEntries, timeEntryLabel),
		model.TableGoals:       collection(db.Goals, func(g *model.Goal) string { return g.Title }),
	}

	return db, nil
}

// Store returns the underlying store.
func (db *DB) Store() *store.Store {
	return db.store
}

func noteLabel(n *model.Note) string {
	if n.Title != "" {
		return n.Title
	}
	return n.Content
}

func timeEntryLabel(te *model.TimeEntry) string {
	if te.Description != "" {
		return te.Description
	}
	return te.StartTime.UTC().Format("2006-01-02 15:04")
}
