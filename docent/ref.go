package docent

import (
	"context"
	"encoding/json"
	"fmt"
)

// Ref is a typed link to another entity. It is a tagged union: either
// unresolved (identifier only) or resolved (identifier plus the hydrated
// target). At rest it is always stored as the target's identifier; JSON
// output renders the identifier's textual form.
//
// The field declares its target entity by registry name:
//
//	Author docent.Ref[Author] `docent:"author" ref:"Author"`
type Ref[T any] struct {
	id  ID
	doc *T
}

// NewRef builds an unresolved reference to id.
func NewRef[T any](id ID) Ref[T] {
	return Ref[T]{id: id}
}

// ResolvedRef builds a reference already carrying its hydrated target.
// The target must embed Document and have an assigned identifier.
func ResolvedRef[T any](doc *T) Ref[T] {
	m, ok := any(doc).(Model)
	if !ok {
		panic(fmt.Sprintf("docent: %T does not embed docent.Document", doc))
	}
	return Ref[T]{id: m.documentMeta().ID, doc: doc}
}

// ID returns the referenced identifier.
func (r Ref[T]) ID() ID { return r.id }

// Doc returns the hydrated target, or nil while unresolved.
func (r Ref[T]) Doc() *T { return r.doc }

// Resolved reports whether the target has been hydrated.
func (r Ref[T]) Resolved() bool { return r.doc != nil }

// IsZero reports whether the reference points at nothing.
func (r Ref[T]) IsZero() bool { return r.id.IsZero() && r.doc == nil }

// MarshalJSON renders the identifier's textual form regardless of
// resolution state.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(r.id.String())
}

// UnmarshalJSON accepts an identifier string (or null), leaving the
// reference unresolved.
func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*r = Ref[T]{}
		return nil
	}
	id, err := ParseID(*s)
	if err != nil {
		return err
	}
	*r = Ref[T]{id: id}
	return nil
}

// refSlot is the untyped view the populate engine and codec use to read
// and write Ref fields through reflection.
type refSlot interface {
	refID() ID
	setRefID(id ID)
	refResolved() bool
	resolvedDoc() any
	// bindResolved attaches a hydrated target (a *T passed as any).
	// It reports false when the value has the wrong type.
	bindResolved(id ID, v any) bool
}

func (r *Ref[T]) refID() ID         { return r.id }
func (r *Ref[T]) setRefID(id ID)    { r.id, r.doc = id, nil }
func (r *Ref[T]) refResolved() bool { return r.doc != nil }

func (r *Ref[T]) resolvedDoc() any {
	if r.doc == nil {
		return nil
	}
	return r.doc
}

func (r *Ref[T]) bindResolved(id ID, v any) bool {
	doc, ok := v.(*T)
	if !ok {
		return false
	}
	r.id, r.doc = id, doc
	return true
}

// LazyRef is a handle bound to one document field that fetches its target
// on first Resolve and caches the result. It layers on top of a
// PopulateEngine, which may itself already hold the target.
type LazyRef[T any] struct {
	entity any
	field  string
	engine *PopulateEngine
	cached *T
}

// NewLazyRef binds a lazy handle to entity.field. A nil engine gets a
// fresh request-scoped one.
func NewLazyRef[T any](entity Model, field string, engine *PopulateEngine) *LazyRef[T] {
	if engine == nil {
		engine = NewPopulateEngine()
	}
	return &LazyRef[T]{entity: entity, field: field, engine: engine}
}

// RefID returns the raw referenced identifier without resolving.
func (l *LazyRef[T]) RefID() (ID, error) {
	slot, _, err := l.engine.refSlotFor(l.entity, l.field)
	if err != nil {
		return "", err
	}
	return slot.refID(), nil
}

// Resolve fetches the referenced document, caching the result for
// subsequent calls.
func (l *LazyRef[T]) Resolve(ctx context.Context) (*T, error) {
	if l.cached != nil {
		return l.cached, nil
	}
	if err := l.engine.PopulateOne(ctx, l.entity, l.field); err != nil {
		return nil, err
	}
	slot, _, err := l.engine.refSlotFor(l.entity, l.field)
	if err != nil {
		return nil, err
	}
	doc := slot.resolvedDoc()
	if doc == nil {
		return nil, nil
	}
	typed, ok := doc.(*T)
	if !ok {
		return nil, fmt.Errorf("%w: lazy ref field %q resolves to %T", Err, l.field, doc)
	}
	l.cached = typed
	return typed, nil
}
