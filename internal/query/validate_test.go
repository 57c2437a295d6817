package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/schema"
)

func table(t *testing.T, name string) *schema.Table {
	t.Helper()
	tbl, ok := schema.MustDefault().Latest().Table(name)
	require.True(t, ok, name)
	return tbl
}

func TestValidate_Accepts(t *testing.T) {
	tasks := table(t, "tasks")
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	preds := []Predicate{
		Equals{Field: "projectId", Value: "p1"},
		&Equals{Field: "status", Value: "todo"},
		AnyOf{Field: "id", Values: Strings("a", "b")},
		AnyOf{Field: "status", Values: nil},
		NoneOf{Field: "status", Values: Strings("completed")},
		Between{Field: "dueDate", Low: day, High: day},
		Contains{Field: "contactIds", Value: "c1"},
		StartsWith{Field: "contactIds", Prefix: []string{"c1", "c2"}},
		Or{Predicates: []Predicate{
			Contains{Field: "contactIds", Value: "c1"},
			&StartsWith{Field: "contactIds", Prefix: []string{"c1"}},
		}},
		And{Predicates: []Predicate{
			Equals{Field: "relatedEntityType", Value: "project"},
			Equals{Field: "relatedEntityId", Value: "p1"},
		}},
	}

	for _, p := range preds {
		assert.NoError(t, Validate(tasks, p), "%#v", p)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tasks := table(t, "tasks")
	early := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	tests := []struct {
		name string
		pred Predicate
		want string
	}{
		{"nil", nil, "nil predicate"},
		{"nil pointer", (*Equals)(nil), "nil predicate"},
		{"not indexed", Equals{Field: "description", Value: "x"}, "not indexed"},
		{"equals on multi", Equals{Field: "contactIds", Value: "c1"}, "scalar index"},
		{"contains on scalar", Contains{Field: "status", Value: "todo"}, "multi-valued index"},
		{"wrong value type", Equals{Field: "dueDate", Value: "tomorrow"}, "does not fit a time index"},
		{"inverted range", Between{Field: "dueDate", Low: late, High: early}, "above upper bound"},
		{"empty prefix", StartsWith{Field: "contactIds"}, "non-empty prefix"},
		{"empty or", Or{}, "at least one"},
		{"bad branch", Or{Predicates: []Predicate{Contains{Field: "title", Value: "x"}}}, "multi-valued"},
		{"noneOf id", NoneOf{Field: "id", Values: Strings("a")}, "primary key"},
		{"anyOf mixed", AnyOf{Field: "status", Values: []any{"todo", 3}}, "does not fit"},
		{"time beyond index range", Between{Field: "dueDate", Low: early, High: time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)}, "outside the indexable range"},
		{"time before index range", Equals{Field: "dueDate", Value: time.Date(1600, 1, 1, 0, 0, 0, 0, time.UTC)}, "outside the indexable range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tasks, tt.pred)
			require.Error(t, err)
			assert.True(t, errs.IsQuery(err), "want QueryError, got %T", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestKey(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.FixedZone("X", 3600))

	k, err := Key(schema.Index{Type: schema.TypeTime}, ts)
	require.NoError(t, err)
	assert.Equal(t, ts.UTC().UnixNano(), k)

	k, err = Key(schema.Index{Type: schema.TypeBool}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), k)

	k, err = Key(schema.Index{Type: schema.TypeNumber}, 42)
	require.NoError(t, err)
	assert.Equal(t, float64(42), k)

	_, err = Key(schema.Index{Type: schema.TypeString}, 42)
	assert.Error(t, err)
}

func TestKey_TimeRange(t *testing.T) {
	idx := schema.Index{Type: schema.TypeTime}

	for _, ts := range []time.Time{MinKeyTime, MaxKeyTime, time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC)} {
		k, err := Key(idx, ts)
		require.NoError(t, err, ts)
		assert.Equal(t, ts.UnixNano(), k)
	}

	for _, ts := range []time.Time{
		MinKeyTime.Add(-time.Nanosecond),
		MaxKeyTime.Add(time.Nanosecond),
		time.Date(2300, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
	} {
		_, err := Key(idx, ts)
		assert.ErrorContains(t, err, "outside the indexable range", ts)
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare("a", "b"))
	assert.Equal(t, 0, Compare(int64(5), int64(5)))
	assert.Equal(t, 1, Compare(2.5, 1.0))
}
