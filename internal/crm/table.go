package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/model"
	"github.com/roach88/crm/internal/query"
	"github.com/roach88/crm/internal/store"
)

// Record constrains P to be a pointer to T implementing model.Entity.
type Record[T any] interface {
	*T
	model.Entity
}

// Table is a typed view of one store table. Records are validated before
// every write; an invalid record never reaches the store.
type Table[T any, P Record[T]] struct {
	raw *store.Table
}

func newTable[T any, P Record[T]](s *store.Store, name string) (*Table[T, P], error) {
	raw, err := s.Table(name)
	if err != nil {
		return nil, err
	}
	return &Table[T, P]{raw: raw}, nil
}

// Name returns the table name.
func (t *Table[T, P]) Name() string {
	return t.raw.Name()
}

// Add validates rec, stores it under a fresh id and sets rec's id.
// An id already present on rec is replaced.
func (t *Table[T, P]) Add(ctx context.Context, rec P) (string, error) {
	if err := prepare(rec); err != nil {
		return "", err
	}
	doc, err := encode(rec)
	if err != nil {
		return "", err
	}
	id, err := t.raw.Add(ctx, doc)
	if err != nil {
		return "", err
	}
	rec.SetKey(id)
	return id, nil
}

// BulkAdd validates every record, then stores them in one transaction.
// Ids are set on the records and returned in input order.
func (t *Table[T, P]) BulkAdd(ctx context.Context, recs []P) ([]string, error) {
	docs := make([][]byte, len(recs))
	for i, rec := range recs {
		if err := prepare(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		doc, err := encode(rec)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}

	ids, err := t.raw.BulkAdd(ctx, docs)
	if err != nil {
		return nil, err
	}
	for i, rec := range recs {
		rec.SetKey(ids[i])
	}
	return ids, nil
}

// Get returns the record stored under id.
func (t *Table[T, P]) Get(ctx context.Context, id string) (P, error) {
	row, err := t.raw.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.decode(row)
}

// Put replaces the stored record with rec. rec must carry an id.
func (t *Table[T, P]) Put(ctx context.Context, rec P) error {
	if rec.Key() == "" {
		return errs.Invalid(t.Name(), "id", "put needs a stored record")
	}
	if err := prepare(rec); err != nil {
		return err
	}
	doc, err := encode(rec)
	if err != nil {
		return err
	}
	return t.raw.Put(ctx, rec.Key(), doc)
}

// Update merges changes into the top-level attributes of the record under
// id and returns the result. A nil value removes the attribute. The merged
// record is validated before it is stored; the id cannot change.
func (t *Table[T, P]) Update(ctx context.Context, id string, changes map[string]any) (P, error) {
	if _, ok := changes["id"]; ok {
		return nil, errs.Invalid(t.Name(), "id", "is assigned by the store and cannot change")
	}

	var merged P
	err := t.raw.Modify(ctx, id, func(doc []byte) ([]byte, error) {
		var attrs map[string]any
		if err := json.Unmarshal(doc, &attrs); err != nil {
			return nil, corrupt(t.Name(), id, err)
		}
		for k, v := range changes {
			if v == nil {
				delete(attrs, k)
				continue
			}
			attrs[k] = v
		}

		next, err := json.Marshal(attrs)
		if err != nil {
			return nil, errs.Invalid(t.Name(), "", "changes are not serialisable: %v", err)
		}
		rec, err := decodeStrict[T, P](t.Name(), next)
		if err != nil {
			return nil, err
		}
		if err := prepare(rec); err != nil {
			return nil, err
		}
		merged = rec
		return encode(rec)
	})
	if err != nil {
		return nil, err
	}
	merged.SetKey(id)
	return merged, nil
}

// Delete removes the record under id.
func (t *Table[T, P]) Delete(ctx context.Context, id string) error {
	return t.raw.Delete(ctx, id)
}

// BulkDelete removes every listed record, or none if any is missing.
func (t *Table[T, P]) BulkDelete(ctx context.Context, ids []string) error {
	return t.raw.BulkDelete(ctx, ids)
}

// ToArray returns every record in insertion order.
func (t *Table[T, P]) ToArray(ctx context.Context) ([]P, error) {
	rows, err := t.raw.ToArray(ctx)
	if err != nil {
		return nil, err
	}
	return t.decodeAll(rows)
}

// Count returns the number of records.
func (t *Table[T, P]) Count(ctx context.Context) (int, error) {
	return t.raw.Count(ctx)
}

// Clear removes every record.
func (t *Table[T, P]) Clear(ctx context.Context) error {
	return t.raw.Clear(ctx)
}

// Where returns the records matching p in insertion order.
func (t *Table[T, P]) Where(ctx context.Context, p query.Predicate) ([]P, error) {
	rows, err := t.raw.Where(ctx, p)
	if err != nil {
		return nil, err
	}
	return t.decodeAll(rows)
}

func (t *Table[T, P]) decode(row store.Row) (P, error) {
	rec := P(new(T))
	if err := json.Unmarshal(row.Doc, rec); err != nil {
		return nil, corrupt(t.Name(), row.ID, err)
	}
	rec.SetKey(row.ID)
	return rec, nil
}

func (t *Table[T, P]) decodeAll(rows []store.Row) ([]P, error) {
	out := make([]P, 0, len(rows))
	for _, row := range rows {
		rec, err := t.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// prepare brings rec into its stored form and validates it.
func prepare(rec model.Entity) error {
	if n, ok := rec.(model.Normalizer); ok {
		n.Normalize()
	}
	return rec.Validate()
}

// encode serialises rec without its id; the store keeps ids apart from
// documents.
func encode(rec model.Entity) ([]byte, error) {
	id := rec.Key()
	rec.SetKey("")
	defer rec.SetKey(id)

	doc, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return doc, nil
}

// decodeStrict parses caller-supplied JSON into a record, rejecting
// unknown attributes and mistyped values.
func decodeStrict[T any, P Record[T]](table string, doc []byte) (P, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()

	rec := P(new(T))
	if err := dec.Decode(rec); err != nil {
		return nil, errs.Invalid(table, "", "%v", err)
	}
	return rec, nil
}

func corrupt(table, id string, err error) error {
	return &errs.StoreFault{
		Reason: errs.FaultCorruption,
		Op:     "decode " + table,
		Err:    fmt.Errorf("record %s: %w", id, err),
	}
}
