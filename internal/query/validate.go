package query

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/schema"
)

// Validate checks p against table t.
//
// It rejects unknown attributes, operators applied to the wrong kind of
// index (membership on a scalar, equality on a multi-valued attribute),
// values whose type does not match the index, inverted ranges and empty
// prefixes. The returned error is always an *errs.QueryError.
func Validate(t *schema.Table, p Predicate) error {
	v := &validator{table: t}
	return v.predicate(Normalize(p))
}

type validator struct {
	table *schema.Table
}

func (v *validator) predicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return errs.BadQuery(v.table.Name, "", "nil predicate")

	case Equals:
		idx, err := v.scalar(pred.Field, "equals")
		if err != nil {
			return err
		}
		_, err = v.key(idx, pred.Value)
		return err

	case AnyOf:
		return v.set(pred.Field, "anyOf", pred.Values)

	case NoneOf:
		if pred.Field == schema.PrimaryKey {
			return errs.BadQuery(v.table.Name, pred.Field, "noneOf is not supported on the primary key")
		}
		return v.set(pred.Field, "noneOf", pred.Values)

	case Between:
		idx, err := v.scalar(pred.Field, "between")
		if err != nil {
			return err
		}
		low, err := v.key(idx, pred.Low)
		if err != nil {
			return err
		}
		high, err := v.key(idx, pred.High)
		if err != nil {
			return err
		}
		if Compare(low, high) > 0 {
			return errs.BadQuery(v.table.Name, pred.Field, "range lower bound %v is above upper bound %v", pred.Low, pred.High)
		}
		return nil

	case Contains:
		_, err := v.multi(pred.Field, "contains")
		return err

	case StartsWith:
		if _, err := v.multi(pred.Field, "startsWith"); err != nil {
			return err
		}
		if len(pred.Prefix) == 0 {
			return errs.BadQuery(v.table.Name, pred.Field, "startsWith needs a non-empty prefix")
		}
		return nil

	case Or:
		return v.all("or", pred.Predicates)

	case And:
		return v.all("and", pred.Predicates)

	default:
		return errs.BadQuery(v.table.Name, "", "unsupported predicate type %T", p)
	}
}

func (v *validator) all(op string, preds []Predicate) error {
	if len(preds) == 0 {
		return errs.BadQuery(v.table.Name, "", "%s needs at least one predicate", op)
	}
	for _, p := range preds {
		if err := v.predicate(Normalize(p)); err != nil {
			return err
		}
	}
	return nil
}

func (v *validator) set(field, op string, values []any) error {
	idx, err := v.scalar(field, op)
	if err != nil {
		return err
	}
	for _, val := range values {
		if _, err := v.key(idx, val); err != nil {
			return err
		}
	}
	return nil
}

// scalar resolves a single-valued index, accepting the primary key.
func (v *validator) scalar(field, op string) (schema.Index, error) {
	if field == schema.PrimaryKey {
		return PrimaryIndex, nil
	}
	idx, ok := v.table.Index(field)
	if !ok {
		return schema.Index{}, errs.BadQuery(v.table.Name, field, "%s on an attribute that is not indexed", op)
	}
	if idx.Multi {
		return schema.Index{}, errs.BadQuery(v.table.Name, field, "%s needs a scalar index, attribute is multi-valued", op)
	}
	return idx, nil
}

func (v *validator) multi(field, op string) (schema.Index, error) {
	idx, ok := v.table.Index(field)
	if !ok {
		return schema.Index{}, errs.BadQuery(v.table.Name, field, "%s on an attribute that is not indexed", op)
	}
	if !idx.Multi {
		return schema.Index{}, errs.BadQuery(v.table.Name, field, "%s needs a multi-valued index", op)
	}
	return idx, nil
}

func (v *validator) key(idx schema.Index, val any) (any, error) {
	k, err := Key(idx, val)
	if err != nil {
		return nil, errs.BadQuery(v.table.Name, idx.Name, "%v", err)
	}
	return k, nil
}

// PrimaryIndex describes the implicit primary key.
var PrimaryIndex = schema.Index{
	Name: schema.PrimaryKey,
	Path: []string{schema.PrimaryKey},
	Type: schema.TypeString,
}

// Time keys are unix nanoseconds, so indexed times must fall in this span.
var (
	MinKeyTime = time.Unix(0, math.MinInt64).UTC()
	MaxKeyTime = time.Unix(0, math.MaxInt64).UTC()
)

// Key converts a Go value into the comparable key stored for idx:
// strings stay strings, times become UTC unix nanoseconds, bools become
// 0/1 and numbers become float64. Times outside [MinKeyTime, MaxKeyTime]
// are an error.
func Key(idx schema.Index, val any) (any, error) {
	switch idx.Type {
	case schema.TypeString:
		if s, ok := val.(string); ok {
			return s, nil
		}
	case schema.TypeTime:
		switch t := val.(type) {
		case time.Time:
			return timeKey(t)
		case *time.Time:
			if t != nil {
				return timeKey(*t)
			}
		}
	case schema.TypeBool:
		if b, ok := val.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case schema.TypeNumber:
		switch n := val.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	}
	return nil, fmt.Errorf("value %v (%T) does not fit a %s index", val, val, idx.Type)
}

func timeKey(t time.Time) (any, error) {
	if t.Before(MinKeyTime) || t.After(MaxKeyTime) {
		return nil, fmt.Errorf("time %s is outside the indexable range %s to %s",
			t.UTC().Format(time.RFC3339), MinKeyTime.Format(time.RFC3339), MaxKeyTime.Format(time.RFC3339))
	}
	return t.UTC().UnixNano(), nil
}

// Compare orders two keys produced by Key for the same index.
func Compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case int64:
		y := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

// Normalize dereferences pointer predicates so backends switch over value
// types only.
func Normalize(p Predicate) Predicate {
	switch pred := p.(type) {
	case *Equals:
		if pred == nil {
			return nil
		}
		return *pred
	case *AnyOf:
		if pred == nil {
			return nil
		}
		return *pred
	case *NoneOf:
		if pred == nil {
			return nil
		}
		return *pred
	case *Between:
		if pred == nil {
			return nil
		}
		return *pred
	case *Contains:
		if pred == nil {
			return nil
		}
		return *pred
	case *StartsWith:
		if pred == nil {
			return nil
		}
		return *pred
	case *Or:
		if pred == nil {
			return nil
		}
		return *pred
	case *And:
		if pred == nil {
			return nil
		}
		return *pred
	default:
		return p
	}
}
