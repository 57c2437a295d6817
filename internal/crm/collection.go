package crm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/crm/internal/errs"
	"github.com/roach88/crm/internal/model"
)

// Item is one record rendered for display.
type Item struct {
	ID    string
	Label string
	JSON  json.RawMessage
}

// Collection is an untyped view of a table: records go in and come out as
// JSON, still validated by the table's record type.
type Collection interface {
	Name() string
	AddJSON(ctx context.Context, doc []byte) (string, error)
	BulkAddJSON(ctx context.Context, docs [][]byte) ([]string, error)
	UpdateJSON(ctx context.Context, id string, changes map[string]any) (Item, error)
	GetJSON(ctx context.Context, id string) (Item, error)
	List(ctx context.Context) ([]Item, error)
	Count(ctx context.Context) (int, error)
	BulkDelete(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
}

// Collection returns the named table's JSON view. Unknown names are a
// QueryError.
func (db *DB) Collection(name string) (Collection, error) {
	c, ok := db.collections[name]
	if !ok {
		return nil, errs.BadQuery(name, "", "no such table (want one of %v)", model.Tables)
	}
	return c, nil
}

type jsonCollection[T any, P Record[T]] struct {
	*Table[T, P]
	label func(P) string
}

func collection[T any, P Record[T]](t *Table[T, P], label func(P) string) Collection {
	return &jsonCollection[T, P]{Table: t, label: label}
}

// AddJSON decodes doc strictly into the record type and adds it.
func (c *jsonCollection[T, P]) AddJSON(ctx context.Context, doc []byte) (string, error) {
	rec, err := decodeStrict[T, P](c.Name(), doc)
	if err != nil {
		return "", err
	}
	return c.Add(ctx, rec)
}

// BulkAddJSON decodes every doc before adding them as one batch.
func (c *jsonCollection[T, P]) BulkAddJSON(ctx context.Context, docs [][]byte) ([]string, error) {
	recs := make([]P, len(docs))
	for i, doc := range docs {
		rec, err := decodeStrict[T, P](c.Name(), doc)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		recs[i] = rec
	}
	return c.BulkAdd(ctx, recs)
}

func (c *jsonCollection[T, P]) UpdateJSON(ctx context.Context, id string, changes map[string]any) (Item, error) {
	rec, err := c.Update(ctx, id, changes)
	if err != nil {
		return Item{}, err
	}
	return c.item(rec)
}

func (c *jsonCollection[T, P]) GetJSON(ctx context.Context, id string) (Item, error) {
	rec, err := c.Get(ctx, id)
	if err != nil {
		return Item{}, err
	}
	return c.item(rec)
}

func (c *jsonCollection[T, P]) List(ctx context.Context) ([]Item, error) {
	recs, err := c.ToArray(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(recs))
	for _, rec := range recs {
		it, err := c.item(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (c *jsonCollection[T, P]) item(rec P) (Item, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return Item{}, fmt.Errorf("render %s/%s: %w", c.Name(), rec.Key(), err)
	}
	return Item{ID: rec.Key(), Label: c.label(rec), JSON: b}, nil
}
