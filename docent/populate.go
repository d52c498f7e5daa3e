package docent

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
)

// MaxPopulateDepth caps how many reference segments a populate path may
// traverse.
const MaxPopulateDepth = 5

// PopulateEngine resolves Ref fields in batches. It keeps a per-engine
// cache keyed by entity name and identifier, so within one engine each
// document is fetched at most once no matter how many references point
// at it. Reference cycles therefore terminate: the second time an
// identifier comes up it is served from cache.
//
// Engines are cheap; make one per request or reuse a collection's via
// auto-populate. An engine is not safe for concurrent use.
type PopulateEngine struct {
	types  *TypeRegistry
	cache  map[string]map[ID]any
	logger *slog.Logger
}

// NewPopulateEngine builds an engine over the process-wide type
// registry.
func NewPopulateEngine() *PopulateEngine {
	return newPopulateEngine(defaultTypes)
}

func newPopulateEngine(types *TypeRegistry) *PopulateEngine {
	return &PopulateEngine{
		types:  types,
		cache:  make(map[string]map[ID]any),
		logger: slog.Default(),
	}
}

// Populate resolves one reference path ("author", "post.author") on the
// given entities, batching each segment into at most one fetch.
func Populate[T any](ctx context.Context, engine *PopulateEngine, path string, entities ...*T) error {
	if engine == nil {
		engine = NewPopulateEngine()
	}
	if len(entities) == 0 {
		return nil
	}
	t := reflect.TypeOf(entities[0]).Elem()
	entry, err := engine.types.lookupType(t)
	if err != nil {
		return err
	}
	models := make([]Model, len(entities))
	for i, e := range entities {
		m, ok := any(e).(Model)
		if !ok {
			return fmt.Errorf("%w: %T does not embed docent.Document", Err, e)
		}
		models[i] = m
	}
	return engine.populatePath(ctx, models, entry.schema, path)
}

// Populate resolves reference paths on entities of this collection.
func (c *Collection[T]) Populate(ctx context.Context, path string, entities ...*T) error {
	engine := newPopulateEngine(c.types)
	models := make([]Model, len(entities))
	for i, e := range entities {
		models[i] = any(e).(Model)
	}
	return engine.populatePath(ctx, models, c.schema, path)
}

// PopulateOne resolves one reference path on a single entity.
func (e *PopulateEngine) PopulateOne(ctx context.Context, entity any, path string) error {
	m, ok := entity.(Model)
	if !ok {
		return fmt.Errorf("%w: %T does not embed docent.Document", Err, entity)
	}
	entry, err := e.types.lookupType(reflect.TypeOf(entity).Elem())
	if err != nil {
		return err
	}
	return e.populatePath(ctx, []Model{m}, entry.schema, path)
}

func (e *PopulateEngine) populatePath(ctx context.Context, entities []Model, s *schema, path string) error {
	segments := strings.Split(path, ".")
	if len(segments) > MaxPopulateDepth {
		return fmt.Errorf("%w: %q has %d segments, limit %d",
			ErrPopulateTooDeep, path, len(segments), MaxPopulateDepth)
	}
	for _, seg := range segments {
		if seg == "" {
			return fmt.Errorf("%w: %q", ErrInvalidPopulatePath, path)
		}
	}
	return e.populateSegments(ctx, entities, s, segments)
}

func (e *PopulateEngine) populateSegments(ctx context.Context, entities []Model, s *schema, segments []string) error {
	if len(entities) == 0 || len(segments) == 0 {
		return nil
	}
	field := segments[0]

	spec := s.byName[field]
	if spec == nil {
		spec = s.byKey[field]
	}
	if spec == nil {
		return fmt.Errorf("%w: %s has no field %q", ErrInvalidPopulatePath, s.typ.Name(), field)
	}
	if !spec.isRef {
		return fmt.Errorf("%w: %s.%s is not a reference", ErrInvalidPopulatePath, s.typ.Name(), field)
	}

	entry, err := e.types.lookupName(spec.refTarget)
	if err != nil {
		return err
	}
	bucket := e.cache[entry.name]
	if bucket == nil {
		bucket = make(map[ID]any)
		e.cache[entry.name] = bucket
	}

	// One pass to find identifiers not yet resolved or cached.
	slots := make([]refSlot, len(entities))
	var missing []ID
	seen := make(map[ID]bool)
	for i, m := range entities {
		slot := e.slotOf(m, s, spec)
		slots[i] = slot
		id := slot.refID()
		if id.IsZero() || slot.refResolved() {
			continue
		}
		if _, cached := bucket[id]; cached {
			e.logger.Debug("populate cache hit", "entity", entry.name, "id", id)
			continue
		}
		if !seen[id] {
			seen[id] = true
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		fetched, err := entry.fetch(ctx, missing)
		if err != nil {
			return err
		}
		for id, doc := range fetched {
			bucket[id] = doc
		}
	}

	// Bind whatever is available; dangling references stay unresolved.
	var next []Model
	for i := range entities {
		slot := slots[i]
		id := slot.refID()
		if id.IsZero() {
			continue
		}
		if !slot.refResolved() {
			doc, ok := bucket[id]
			if !ok {
				continue
			}
			if !slot.bindResolved(id, doc) {
				return fmt.Errorf("%w: %s.%s cannot hold a %s",
					Err, s.typ.Name(), spec.name, entry.name)
			}
		}
		if len(segments) > 1 {
			if resolved, ok := slot.resolvedDoc().(Model); ok {
				next = append(next, resolved)
			}
		}
	}

	if len(segments) > 1 {
		return e.populateSegments(ctx, next, entry.schema, segments[1:])
	}
	return nil
}

// slotOf extracts the refSlot view of one entity's field.
func (e *PopulateEngine) slotOf(m Model, s *schema, spec *fieldSpec) refSlot {
	rv := reflect.ValueOf(m).Elem()
	return rv.FieldByIndex(spec.path).Addr().Interface().(refSlot)
}

// refSlotFor locates the refSlot behind entity.field for lazy handles.
func (e *PopulateEngine) refSlotFor(entity any, field string) (refSlot, *fieldSpec, error) {
	entry, err := e.types.lookupType(reflect.TypeOf(entity).Elem())
	if err != nil {
		return nil, nil, err
	}
	spec := entry.schema.byName[field]
	if spec == nil {
		spec = entry.schema.byKey[field]
	}
	if spec == nil {
		return nil, nil, fmt.Errorf("%w: %s has no field %q", ErrInvalidPopulatePath, entry.schema.typ.Name(), field)
	}
	if !spec.isRef {
		return nil, nil, fmt.Errorf("%w: %s.%s is not a reference", ErrInvalidPopulatePath, entry.schema.typ.Name(), spec.name)
	}
	m, ok := entity.(Model)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %T does not embed docent.Document", Err, entity)
	}
	return e.slotOf(m, entry.schema, spec), spec, nil
}
