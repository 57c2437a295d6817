// Package model defines the CRM record types and their validation.
//
// Records serialise to JSON with camelCase attribute names; those names
// are what the schema indexes. The store assigns ID on insert and never
// stores it inside the document. CreatedAt and UpdatedAt belong to the
// caller.
package model

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/crm/internal/errs"
)

// Table names, as declared in the schema.
const (
	TableContacts    = "contacts"
	TableProjects    = "projects"
	TableTasks       = "tasks"
	TableEvents      = "events"
	TableNotes       = "notes"
	TableDocuments   = "documents"
	TableInvoices    = "invoices"
	TableTimeEntries = "timeEntries"
	TableGoals       = "goals"
)

// Tables lists every table in display order.
var Tables = []string{
	TableContacts, TableProjects, TableTasks, TableEvents, TableNotes,
	TableDocuments, TableInvoices, TableTimeEntries, TableGoals,
}

// Entity is implemented by every record type.
type Entity interface {
	Key() string
	SetKey(id string)
	Validate() error
}

// Normalizer is implemented by records whose attributes have a canonical
// stored form. Normalize runs before Validate on every write.
type Normalizer interface {
	Normalize()
}

// Base carries the attributes every record shares.
type Base struct {
	ID        string    `json:"id,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Key returns the store-assigned id, empty before the first save.
func (b *Base) Key() string { return b.ID }

// SetKey records the id assigned by the store.
func (b *Base) SetKey(id string) { b.ID = id }

// Stamp sets CreatedAt when unset and UpdatedAt to now.
func (b *Base) Stamp(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// EntityKind tags the target of a polymorphic link.
type EntityKind string

const (
	KindProject EntityKind = "project"
	KindContact EntityKind = "contact"
	KindTask    EntityKind = "task"
	KindInvoice EntityKind = "invoice"
)

// Permitted link targets per record type.
var (
	TaskRelatedKinds     = []EntityKind{KindProject, KindContact, KindInvoice}
	NoteRelatedKinds     = []EntityKind{KindProject, KindContact, KindTask}
	DocumentRelatedKinds = []EntityKind{KindProject, KindContact, KindTask}
)

// Related links a record to one record of another table. It is indexed as
// relatedEntityType and relatedEntityId.
type Related struct {
	Type EntityKind `json:"type"`
	ID   string     `json:"id"`
}

func validateRelated(entity string, r *Related, permitted []EntityKind) error {
	if r == nil {
		return nil
	}
	if !slices.Contains(permitted, r.Type) {
		return errs.Invalid(entity, "related.type", "%q is not one of %v", r.Type, permitted)
	}
	if r.ID == "" {
		return errs.Invalid(entity, "related.id", "link to a %s needs an id", r.Type)
	}
	return nil
}

func required(entity, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.Invalid(entity, field, "is required")
	}
	return nil
}

func requiredTime(entity, field string, t time.Time) error {
	if t.IsZero() {
		return errs.Invalid(entity, field, "is required")
	}
	return nil
}

func oneOf[S ~string](entity, field string, v S, allowed ...S) error {
	if !slices.Contains(allowed, v) {
		return errs.Invalid(entity, field, "%q is not one of %v", v, allowed)
	}
	return nil
}

// NormalizeTag returns the canonical form tags are stored and matched in:
// trimmed and in Unicode NFC.
func NormalizeTag(tag string) string {
	return norm.NFC.String(strings.TrimSpace(tag))
}

func normalizeTags(tags []string) []string {
	for i, tag := range tags {
		tags[i] = NormalizeTag(tag)
	}
	return tags
}

func validTags(entity string, tags []string) error {
	for i, tag := range tags {
		if tag == "" {
			return errs.Invalid(entity, "tags", "tag %d is empty", i)
		}
	}
	return nil
}
