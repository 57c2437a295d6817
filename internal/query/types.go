package query

// Predicate selects records through a table's indexes.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Equals matches records whose scalar attribute equals Value.
//
// Field may be the primary key "id". Records lacking the attribute never
// match.
type Equals struct {
	Field string
	Value any
}

func (Equals) predicateNode() {}

// AnyOf matches records whose scalar attribute equals any of Values.
// An empty Values matches nothing.
type AnyOf struct {
	Field  string
	Values []any
}

func (AnyOf) predicateNode() {}

// NoneOf matches records that have the scalar attribute and whose value is
// not among Values. Records lacking the attribute never match, the same as
// a scan over the attribute's index would behave.
type NoneOf struct {
	Field  string
	Values []any
}

func (NoneOf) predicateNode() {}

// Between matches Low <= attribute <= High. Both bounds participate.
// Low greater than High is a query error, not an empty result.
type Between struct {
	Field string
	Low   any
	High  any
}

func (Between) predicateNode() {}

// Contains matches records whose multi-valued attribute holds Value.
type Contains struct {
	Field string
	Value string
}

func (Contains) predicateNode() {}

// StartsWith matches records whose multi-valued attribute, read as an
// ordered sequence, begins with Prefix. Prefix must not be empty.
type StartsWith struct {
	Field  string
	Prefix []string
}

func (StartsWith) predicateNode() {}

// Or matches records matched by any of Predicates. Each record appears
// once however many branches match it.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// And matches records matched by all of Predicates.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Strings converts a string slice to the []any that AnyOf/NoneOf expect.
func Strings(values ...string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
