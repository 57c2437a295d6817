package queries

import (
	"context"
	"math/rand"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crm/internal/crm"
	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/model"
	"github.com/roach88/crm/internal/testutil"
)

type fixture struct {
	ctx   context.Context
	db    *crm.DB
	clock *testutil.DeterministicClock
	q     *Helpers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := crm.New(testutil.OpenStore(t))
	require.NoError(t, err)
	clock := testutil.NewDeterministicClock(time.Time{})
	return &fixture{
		ctx:   context.Background(),
		db:    db,
		clock: clock,
		q:     New(db, Options{Now: clock.Now}),
	}
}

func ids[P model.Entity](recs []P) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Key()
	}
	return out
}

func todo(title string) *model.Task {
	return &model.Task{Title: title, Status: model.TaskTodo, Priority: model.PriorityMedium}
}

func TestScenario_TasksByProjectAndContact(t *testing.T) {
	f := newFixture(t)

	a := &model.Contact{Name: "A"}
	b := &model.Contact{Name: "B"}
	_, err := f.db.Contacts.BulkAdd(f.ctx, []*model.Contact{a, b})
	require.NoError(t, err)

	p := &model.Project{Name: "P", Status: model.ProjectPlanning, ContactIDs: []string{a.ID}}
	_, err = f.db.Projects.Add(f.ctx, p)
	require.NoError(t, err)

	tasks, err := f.q.TasksByProject(f.ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)

	t1 := todo("T1")
	t1.ProjectID = p.ID
	t1.ContactIDs = []string{a.ID}
	_, err = f.db.Tasks.Add(f.ctx, t1)
	require.NoError(t, err)

	tasks, err = f.q.TasksByContact(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{t1.ID}, ids(tasks), "matched by both branches, returned once")

	tasks, err = f.q.TasksByContact(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	taskIDs, err := f.q.ProjectTaskIDs(f.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{t1.ID}, taskIDs)
}

func TestScenario_EventsInRangeBoundaryAndGap(t *testing.T) {
	f := newFixture(t)
	day0 := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	at := func(h int) time.Time { return day0.Add(time.Duration(h) * time.Hour) }

	ev := &model.Event{Title: "Standup", StartDate: at(9), EndDate: at(10)}
	_, err := f.db.Events.Add(f.ctx, ev)
	require.NoError(t, err)

	events, err := f.q.EventsInRange(f.ctx, at(8), at(9))
	require.NoError(t, err)
	assert.Equal(t, []string{ev.ID}, ids(events))

	events, err = f.q.EventsInRange(f.ctx, at(11), at(12))
	require.NoError(t, err)
	assert.Empty(t, events)

	// Spanning event: starts before and ends after the window.
	long := &model.Event{Title: "Offsite", StartDate: at(7), EndDate: at(15)}
	_, err = f.db.Events.Add(f.ctx, long)
	require.NoError(t, err)

	events, err = f.q.EventsInRange(f.ctx, at(11), at(12))
	require.NoError(t, err)
	assert.Empty(t, events, "events spanning the whole window are not returned")
}

func TestMembershipLookupCorrectness(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewSource(7))

	contacts := make([]*model.Contact, 6)
	for i := range contacts {
		contacts[i] = &model.Contact{Name: string(rune('A' + i))}
	}
	_, err := f.db.Contacts.BulkAdd(f.ctx, contacts)
	require.NoError(t, err)

	tasks := make([]*model.Task, 40)
	for i := range tasks {
		tk := todo("task")
		for _, c := range contacts {
			if rng.Intn(3) == 0 {
				tk.ContactIDs = append(tk.ContactIDs, c.ID)
			}
		}
		tasks[i] = tk
	}
	_, err = f.db.Tasks.BulkAdd(f.ctx, tasks)
	require.NoError(t, err)

	for _, c := range contacts {
		var want []string
		for _, tk := range tasks {
			if slices.Contains(tk.ContactIDs, c.ID) {
				want = append(want, tk.ID)
			}
		}

		got, err := f.q.TasksByContact(f.ctx, c.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, ids(got), "contact %s", c.Name)
		for _, tk := range got {
			assert.Contains(t, tk.ContactIDs, c.ID)
		}
	}
}

func TestEventsInRange_Inclusive(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(4 * time.Hour)

	atStart := &model.Event{Title: "s", StartDate: start, EndDate: start.Add(time.Hour)}
	atEnd := &model.Event{Title: "e", StartDate: end, EndDate: end.Add(time.Hour)}
	before := &model.Event{Title: "b", StartDate: start.Add(-3 * time.Hour), EndDate: start.Add(-time.Hour)}
	_, err := f.db.Events.BulkAdd(f.ctx, []*model.Event{atStart, atEnd, before})
	require.NoError(t, err)

	events, err := f.q.EventsInRange(f.ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, []string{atStart.ID, atEnd.ID}, ids(events))

	_, err = f.q.EventsInRange(f.ctx, end, start)
	assert.True(t, errs.IsQuery(err), "inverted range")
}

func TestEventsInRange_TimesOutsideIndexRange(t *testing.T) {
	f := newFixture(t)
	far := time.Date(2300, 1, 1, 9, 0, 0, 0, time.UTC)
	old := time.Date(1750, 7, 4, 9, 0, 0, 0, time.UTC)

	_, err := f.db.Events.Add(f.ctx, &model.Event{Title: "far", StartDate: far, EndDate: far.Add(time.Hour)})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err), "got %v", err)

	n, err := f.db.Events.Count(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "rejected event is not stored")

	kept := &model.Event{Title: "old", StartDate: old, EndDate: old.Add(time.Hour)}
	_, err = f.db.Events.Add(f.ctx, kept)
	require.NoError(t, err)

	events, err := f.q.EventsInRange(f.ctx,
		time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{kept.ID}, ids(events))

	_, err = f.q.EventsInRange(f.ctx, old, far)
	assert.True(t, errs.IsQuery(err), "got %v", err)
}

func TestUpcomingTasks(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	due := func(d time.Duration) *time.Time { v := now.Add(d); return &v }

	dueToday := todo("today")
	dueToday.DueDate = due(0)
	inWeek := todo("in a week")
	inWeek.DueDate = due(7 * 24 * time.Hour)
	tooLate := todo("next month")
	tooLate.DueDate = due(30 * 24 * time.Hour)
	overdue := todo("yesterday")
	overdue.DueDate = due(-24 * time.Hour)
	undated := todo("someday")
	done := todo("done")
	done.Status = model.TaskCompleted
	done.DueDate = due(24 * time.Hour)

	_, err := f.db.Tasks.BulkAdd(f.ctx, []*model.Task{dueToday, inWeek, tooLate, overdue, undated, done})
	require.NoError(t, err)

	got, err := f.q.UpcomingTasks(f.ctx, DefaultHorizonDays)
	require.NoError(t, err)
	assert.Equal(t, []string{dueToday.ID, inWeek.ID}, ids(got))
	assert.NotContains(t, ids(got), done.ID, "completed tasks are never upcoming")

	got, err = f.q.UpcomingTasks(f.ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{dueToday.ID}, ids(got), "a zero horizon keeps only tasks due now")

	got, err = f.q.UpcomingTasks(f.ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, []string{dueToday.ID, inWeek.ID, tooLate.ID}, ids(got))

	_, err = f.q.UpcomingTasks(f.ctx, -1)
	assert.True(t, errs.IsQuery(err))

	f.clock.Advance(8 * 24 * time.Hour)
	got, err = f.q.UpcomingTasks(f.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEmptyInputs(t *testing.T) {
	f := newFixture(t)
	_, err := f.db.Contacts.Add(f.ctx, &model.Contact{Name: "A"})
	require.NoError(t, err)

	contacts, err := f.q.ContactsByIDs(f.ctx, []string{})
	require.NoError(t, err)
	assert.NotNil(t, contacts)
	assert.Empty(t, contacts)

	contacts, err = f.q.ContactsByIDs(f.ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, contacts)

	projects, err := f.q.ProjectsByIDs(f.ctx, []string{"ghost"})
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestByIDs(t *testing.T) {
	f := newFixture(t)

	cs := []*model.Contact{{Name: "A"}, {Name: "B"}, {Name: "C"}}
	_, err := f.db.Contacts.BulkAdd(f.ctx, cs)
	require.NoError(t, err)
	ps := []*model.Project{{Name: "P", Status: model.ProjectOnHold}, {Name: "Q", Status: model.ProjectCompleted}}
	_, err = f.db.Projects.BulkAdd(f.ctx, ps)
	require.NoError(t, err)

	got, err := f.q.ContactsByIDs(f.ctx, []string{cs[2].ID, cs[0].ID, "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{cs[0].ID, cs[2].ID}, ids(got))

	projects, err := f.q.ProjectsByIDs(f.ctx, []string{ps[1].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{ps[1].ID}, ids(projects))
}

func TestNotesAndDocumentsByEntity(t *testing.T) {
	f := newFixture(t)

	onP1 := &model.Note{Content: "a", Related: &model.Related{Type: model.KindProject, ID: "p1"}}
	onP2 := &model.Note{Content: "b", Related: &model.Related{Type: model.KindProject, ID: "p2"}}
	onC1 := &model.Note{Content: "c", Related: &model.Related{Type: model.KindContact, ID: "p1"}}
	loose := &model.Note{Content: "d"}
	_, err := f.db.Notes.BulkAdd(f.ctx, []*model.Note{onP1, onP2, onC1, loose})
	require.NoError(t, err)

	notes, err := f.q.NotesByEntity(f.ctx, model.KindProject, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{onP1.ID}, ids(notes))

	doc := &model.Document{Name: "spec.pdf", FileSize: 3, FileData: []byte("pdf"),
		Related: &model.Related{Type: model.KindTask, ID: "t1"}}
	_, err = f.db.Documents.Add(f.ctx, doc)
	require.NoError(t, err)

	docs, err := f.q.DocumentsByEntity(f.ctx, model.KindTask, "t1")
	require.NoError(t, err)
	require.Equal(t, []string{doc.ID}, ids(docs))
	assert.Equal(t, []byte("pdf"), docs[0].FileData)

	docs, err = f.q.DocumentsByEntity(f.ctx, model.KindTask, "t2")
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, err = f.q.DocumentsByEntity(f.ctx, model.KindInvoice, "i1")
	assert.True(t, errs.IsQuery(err), "invoices are not a document link target")
	_, err = f.q.NotesByEntity(f.ctx, "bogus", "x")
	assert.True(t, errs.IsQuery(err))
}

func TestInvoicesAndTimeEntries(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()

	inv := &model.Invoice{Number: "INV-1", ContactID: "c1", ProjectID: "p1", Status: model.InvoiceSent, Total: 120}
	other := &model.Invoice{Number: "INV-2", ContactID: "c2", Status: model.InvoiceDraft}
	_, err := f.db.Invoices.BulkAdd(f.ctx, []*model.Invoice{inv, other})
	require.NoError(t, err)

	got, err := f.q.InvoicesByContact(f.ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{inv.ID}, ids(got))

	got, err = f.q.InvoicesByProject(f.ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{inv.ID}, ids(got))

	billed := &model.TimeEntry{ProjectID: "p1", StartTime: now, Duration: 90, Billable: true, InvoiceID: inv.ID}
	unbilled := &model.TimeEntry{ProjectID: "p1", StartTime: now, Duration: 30}
	_, err = f.db.TimeEntries.BulkAdd(f.ctx, []*model.TimeEntry{billed, unbilled})
	require.NoError(t, err)

	entries, err := f.q.TimeEntriesByProject(f.ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{billed.ID, unbilled.ID}, ids(entries))

	entries, err = f.q.TimeEntriesByInvoice(f.ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{billed.ID}, ids(entries))
}

func TestContactsByTagAndFavorites(t *testing.T) {
	f := newFixture(t)

	composed := &model.Contact{Name: "A", Tags: []string{"caf\u00e9"}, Favorite: true}
	decomposed := &model.Contact{Name: "B", Tags: []string{"cafe\u0301", " vip"}}
	_, err := f.db.Contacts.BulkAdd(f.ctx, []*model.Contact{composed, decomposed})
	require.NoError(t, err)

	for _, tag := range []string{"caf\u00e9", "cafe\u0301", " caf\u00e9 "} {
		got, err := f.q.ContactsByTag(f.ctx, tag)
		require.NoError(t, err)
		assert.Equal(t, []string{composed.ID, decomposed.ID}, ids(got), "tag %q", tag)
	}

	for _, tag := range []string{"vip", "vip ", " vip"} {
		got, err := f.q.ContactsByTag(f.ctx, tag)
		require.NoError(t, err)
		assert.Equal(t, []string{decomposed.ID}, ids(got), "tag %q", tag)
	}

	stored, err := f.db.Contacts.Get(f.ctx, decomposed.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\u00e9", "vip"}, stored.Tags)

	updated, err := f.db.Contacts.Update(f.ctx, composed.ID, map[string]any{"tags": []any{"  Lead\t"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lead"}, updated.Tags)

	got, err := f.q.ContactsByTag(f.ctx, "Lead")
	require.NoError(t, err)
	assert.Equal(t, []string{composed.ID}, ids(got))

	favs, err := f.q.FavoriteContacts(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{composed.ID}, ids(favs))
}

func TestGoalsByProject(t *testing.T) {
	f := newFixture(t)

	g := &model.Goal{Title: "Ship", Status: model.GoalActive, StartDate: f.clock.Now(),
		RelatedProjectIDs: []string{"p1", "p2"},
		Metrics:           []model.GoalMetric{{Name: "releases", Target: 3, Unit: "count"}}}
	_, err := f.db.Goals.Add(f.ctx, g)
	require.NoError(t, err)

	goals, err := f.q.GoalsByProject(f.ctx, "p2")
	require.NoError(t, err)
	require.Equal(t, []string{g.ID}, ids(goals))
	assert.Equal(t, g.Metrics, goals[0].Metrics)

	goals, err = f.q.GoalsByProject(f.ctx, "p3")
	require.NoError(t, err)
	assert.Empty(t, goals)
}

func TestHelpersDoNotMutate(t *testing.T) {
	f := newFixture(t)

	tk := todo("T")
	tk.ContactIDs = []string{"c1"}
	_, err := f.db.Tasks.Add(f.ctx, tk)
	require.NoError(t, err)
	before, err := f.db.Tasks.Get(f.ctx, tk.ID)
	require.NoError(t, err)

	_, err = f.q.TasksByContact(f.ctx, "c1")
	require.NoError(t, err)
	_, err = f.q.UpcomingTasks(f.ctx, 7)
	require.NoError(t, err)

	after, err := f.db.Tasks.Get(f.ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
