package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/query"
)

type task struct {
	Title      string     `json:"title"`
	Status     string     `json:"status,omitempty"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	ContactIDs []string   `json:"contactIds,omitempty"`
}

func seedTasks(t *testing.T, tbl *Table, tasks ...task) []string {
	t.Helper()
	docs := make([][]byte, len(tasks))
	for i, tk := range tasks {
		docs[i] = mustDoc(t, tk)
	}
	ids, err := tbl.BulkAdd(context.Background(), docs)
	require.NoError(t, err)
	return ids
}

func TestTable_AddGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")
	due := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	in := mustDoc(t, task{Title: "Write", Status: "todo", DueDate: &due, ContactIDs: []string{"c1", "c2"}})
	id, err := tasks.Add(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "rec-0001", id)

	row, err := tasks.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, row.ID)
	assert.JSONEq(t, string(in), string(row.Doc))
}

func TestTable_GetMissingIsNotFound(t *testing.T) {
	tasks := mustTable(t, createTestStore(t), "tasks")

	_, err := tasks.Get(context.Background(), "nope")

	var nf *errs.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "tasks", nf.Table)
	assert.Equal(t, "nope", nf.ID)
}

func TestTable_ToArrayInsertionOrder(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")

	empty, err := tasks.ToArray(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	ids := seedTasks(t, tasks, task{Title: "c"}, task{Title: "a"}, task{Title: "b"})

	rows, err := tasks.ToArray(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, rowIDs(rows))

	n, err := tasks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTable_BulkAddIsAtomic(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")

	_, err := tasks.BulkAdd(ctx, [][]byte{
		[]byte(`{"title":"ok"}`),
		[]byte(`{"title":"bad","dueDate":"next tuesday"}`),
	})
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err))

	n, err := tasks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "no record from a failed batch is stored")
}

func TestTable_BulkAddRollsBackOnEngineError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, t.TempDir()+"/dup.db", Options{IDs: constantIDs("same")})
	tasks := mustTable(t, s, "tasks")

	_, err := tasks.BulkAdd(ctx, [][]byte{[]byte(`{"title":"a"}`), []byte(`{"title":"b"}`)})
	require.Error(t, err)
	assert.True(t, errs.IsStoreFault(err))

	n, err := tasks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type constantIDs string

func (c constantIDs) Generate() string { return string(c) }

func TestTable_PutReplaces(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")
	ids := seedTasks(t, tasks, task{Title: "old", Status: "todo", ContactIDs: []string{"c1"}})

	require.NoError(t, tasks.Put(ctx, ids[0], mustDoc(t, task{Title: "new", ContactIDs: []string{"c2"}})))

	row, err := tasks.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"new","contactIds":["c2"]}`, string(row.Doc))

	rows, err := tasks.Where(ctx, query.Contains{Field: "contactIds", Value: "c1"})
	require.NoError(t, err)
	assert.Empty(t, rows, "old index entries are gone")

	rows, err = tasks.Where(ctx, query.Equals{Field: "status", Value: "todo"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = tasks.Put(ctx, "missing", mustDoc(t, task{Title: "x"}))
	assert.True(t, errs.IsNotFound(err))
}

func TestTable_Modify(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")
	ids := seedTasks(t, tasks, task{Title: "t", Status: "todo"})

	err := tasks.Modify(ctx, ids[0], func(doc []byte) ([]byte, error) {
		var m map[string]any
		require.NoError(t, json.Unmarshal(doc, &m))
		m["status"] = "completed"
		return json.Marshal(m)
	})
	require.NoError(t, err)

	rows, err := tasks.Where(ctx, query.Equals{Field: "status", Value: "completed"})
	require.NoError(t, err)
	assert.Equal(t, ids, rowIDs(rows))

	boom := errors.New("boom")
	err = tasks.Modify(ctx, ids[0], func([]byte) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	err = tasks.Modify(ctx, "missing", func(doc []byte) ([]byte, error) { return doc, nil })
	assert.True(t, errs.IsNotFound(err))
}

func TestTable_DeleteAndBulkDelete(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")
	ids := seedTasks(t, tasks,
		task{Title: "a", ContactIDs: []string{"c1"}},
		task{Title: "b"},
		task{Title: "c"},
	)

	require.NoError(t, tasks.Delete(ctx, ids[0]))
	assert.True(t, errs.IsNotFound(tasks.Delete(ctx, ids[0])))

	rows, err := tasks.Where(ctx, query.Contains{Field: "contactIds", Value: "c1"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	err = tasks.BulkDelete(ctx, []string{ids[1], "missing"})
	assert.True(t, errs.IsNotFound(err))
	n, _ := tasks.Count(ctx)
	assert.Equal(t, 2, n, "failed batch deletes nothing")

	require.NoError(t, tasks.BulkDelete(ctx, []string{ids[1], ids[2], ids[1]}))
	n, _ = tasks.Count(ctx)
	assert.Zero(t, n)
}

func TestTable_Clear(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")
	seedTasks(t, tasks, task{Title: "a", ContactIDs: []string{"c1"}}, task{Title: "b"})

	require.NoError(t, tasks.Clear(ctx))

	n, err := tasks.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var entries int
	require.NoError(t, tasks.s.DB().QueryRow(`SELECT COUNT(*) FROM "tasks__multi"`).Scan(&entries))
	assert.Zero(t, entries)
}

func TestTable_Where(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")
	d1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	d3 := d1.AddDate(0, 0, 2)

	ids := seedTasks(t, tasks,
		task{Title: "a", Status: "todo", DueDate: &d1, ContactIDs: []string{"c1", "c2"}},
		task{Title: "b", Status: "completed", DueDate: &d2, ContactIDs: []string{"c2"}},
		task{Title: "c", DueDate: &d3, ContactIDs: []string{"c1"}},
	)

	tests := []struct {
		name string
		pred query.Predicate
		want []string
	}{
		{"equals", query.Equals{Field: "status", Value: "todo"}, ids[:1]},
		{"primary key", query.AnyOf{Field: "id", Values: query.Strings(ids[2], ids[0])}, []string{ids[0], ids[2]}},
		{"empty anyOf", query.AnyOf{Field: "id"}, []string{}},
		{"noneOf skips missing", query.NoneOf{Field: "status", Values: query.Strings("completed")}, ids[:1]},
		{"between inclusive", query.Between{Field: "dueDate", Low: d1, High: d2}, ids[:2]},
		{"contains", query.Contains{Field: "contactIds", Value: "c1"}, []string{ids[0], ids[2]}},
		{"startsWith", query.StartsWith{Field: "contactIds", Prefix: []string{"c2"}}, ids[1:2]},
		{"startsWith full", query.StartsWith{Field: "contactIds", Prefix: []string{"c1", "c2"}}, ids[:1]},
		{"or deduplicates", query.Or{Predicates: []query.Predicate{
			query.Contains{Field: "contactIds", Value: "c1"},
			query.StartsWith{Field: "contactIds", Prefix: []string{"c1"}},
		}}, []string{ids[0], ids[2]}},
		{"and", query.And{Predicates: []query.Predicate{
			query.Contains{Field: "contactIds", Value: "c2"},
			query.Equals{Field: "status", Value: "completed"},
		}}, ids[1:2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := tasks.Where(ctx, tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rowIDs(rows))
		})
	}
}

func TestTable_WhereRejectsBadPredicate(t *testing.T) {
	tasks := mustTable(t, createTestStore(t), "tasks")

	_, err := tasks.Where(context.Background(), query.Equals{Field: "description", Value: "x"})
	require.Error(t, err)
	assert.True(t, errs.IsQuery(err))
}

func TestTable_RejectsMistypedIndexedAttribute(t *testing.T) {
	ctx := context.Background()
	tasks := mustTable(t, createTestStore(t), "tasks")

	for _, doc := range []string{
		`{"title":42}`,
		`{"title":"x","contactIds":"c1"}`,
		`{"title":"x","contactIds":[1]}`,
		`{"title":"x","dueDate":"2300-01-01T09:00:00Z"}`,
		`{"title":"x","dueDate":"1600-01-01T09:00:00Z"}`,
		`[1,2]`,
	} {
		_, err := tasks.Add(ctx, []byte(doc))
		assert.True(t, errs.IsValidation(err), "%s: got %v", doc, err)
	}
}

func TestTable_ClosedStoreIsStoreFault(t *testing.T) {
	s := createTestStore(t)
	tasks := mustTable(t, s, "tasks")
	require.NoError(t, s.Close())

	_, err := tasks.ToArray(context.Background())
	require.Error(t, err)

	var sf *errs.StoreFault
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, errs.FaultIO, sf.Reason)
}
