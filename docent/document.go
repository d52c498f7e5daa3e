package docent

import (
	"github.com/docent-db/docent/docent/store"
)

// Document is the base every entity embeds. It carries the identifier and
// the private lifecycle state the collection maintains: whether the
// instance has been inserted, whether it was hydrated from storage, and
// the plain-value snapshot dirty tracking diffs against.
//
// A zero Document is a new, unsaved instance. Lifecycle state is owned by
// the collection; entities only read it through IsNew/IsLoaded.
//
// Instances are single-owner: one in-flight write per document instance.
// Mutating the same instance from multiple goroutines concurrently with a
// Save is not supported.
type Document struct {
	ID ID `json:"id"`

	notNew   bool
	loaded   bool
	snapshot store.Doc
}

// IsNew reports whether the document has never been inserted.
func (d *Document) IsNew() bool { return !d.notNew }

// IsLoaded reports whether the document has been hydrated from storage or
// persisted at least once.
func (d *Document) IsLoaded() bool { return d.loaded }

// documentMeta anchors the Model interface; it is promoted onto every
// embedding entity.
func (d *Document) documentMeta() *Document { return d }

// markLoaded flips the document into loaded state and installs the plain
// serialization snapshot, clearing the dirty set.
func (d *Document) markLoaded(snapshot store.Doc) {
	d.notNew = true
	d.loaded = true
	d.snapshot = snapshot
}

// Model is satisfied by every struct that embeds Document.
type Model interface {
	documentMeta() *Document
}

// Validator is the schema-validation capability: entities implementing it
// are validated before persistence (at the pre-validate stage and during
// Update). Return an error wrapping ErrValidation to surface a field
// problem to callers.
type Validator interface {
	Validate() error
}
