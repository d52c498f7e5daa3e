package docent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	"github.com/docent-db/docent/docent/store"
)

// Collection is the typed gateway to one entity's documents. It owns the
// entity's parsed declaration, its hook chain, and the ambient machinery
// every operation flows through. Build one per entity type, typically at
// startup:
//
//	posts, err := docent.NewCollection[Post]()
//
// A collection resolves its store connection by alias on every
// operation, so it may be constructed before Connect is called.
type Collection[T any] struct {
	name   string
	alias  string
	entity string

	schema *schema
	hooks  *HookRegistry

	conns  *ConnRegistry
	types  *TypeRegistry
	enc    *EncryptionManager
	tracer *Tracer
	logger *slog.Logger

	audit        bool
	autoPopulate []string
	indexes      []IndexSpec
}

type collectionConfig struct {
	name         string
	alias        string
	conns        *ConnRegistry
	types        *TypeRegistry
	enc          *EncryptionManager
	tracer       *Tracer
	logger       *slog.Logger
	audit        bool
	autoPopulate []string
	indexes      []IndexSpec
}

// Option configures a collection at construction.
type Option func(*collectionConfig)

// WithName overrides the collection name derived from the type name.
func WithName(name string) Option {
	return func(c *collectionConfig) { c.name = name }
}

// WithAlias binds the collection to a named connection instead of the
// default one.
func WithAlias(alias string) Option {
	return func(c *collectionConfig) { c.alias = alias }
}

// WithConnRegistry uses a private connection registry instead of the
// process-wide one.
func WithConnRegistry(r *ConnRegistry) Option {
	return func(c *collectionConfig) { c.conns = r }
}

// WithTypeRegistry uses a private type registry instead of the
// process-wide one.
func WithTypeRegistry(r *TypeRegistry) Option {
	return func(c *collectionConfig) { c.types = r }
}

// WithEncryption uses a private encryption manager instead of the
// process-wide one.
func WithEncryption(m *EncryptionManager) Option {
	return func(c *collectionConfig) { c.enc = m }
}

// WithTracer uses a private tracer instead of the process-wide one.
func WithTracer(t *Tracer) Option {
	return func(c *collectionConfig) { c.tracer = t }
}

// WithLogger sets the collection's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *collectionConfig) { c.logger = l }
}

// WithAudit enables audit-trail records for every write.
func WithAudit() Option {
	return func(c *collectionConfig) { c.audit = true }
}

// WithAutoPopulate resolves the given reference paths on every read.
func WithAutoPopulate(paths ...string) Option {
	return func(c *collectionConfig) { c.autoPopulate = paths }
}

// WithIndexes declares indexes beyond the single-field ones carried by
// `index` struct tags; EnsureIndexes creates both kinds.
func WithIndexes(specs ...IndexSpec) Option {
	return func(c *collectionConfig) { c.indexes = specs }
}

// NewCollection parses T's declaration and builds its collection. The
// entity type is registered under its Go type name, which is the name
// `ref` tags on other entities use to point at it.
func NewCollection[T any](opts ...Option) (*Collection[T], error) {
	s, err := parseSchema(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}

	cfg := collectionConfig{
		alias:  DefaultAlias,
		conns:  defaultConns,
		types:  defaultTypes,
		enc:    defaultEncryption,
		tracer: defaultTracer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.name == "" {
		cfg.name = pluralize(s.typ.Name())
	}

	c := &Collection[T]{
		name:         cfg.name,
		alias:        cfg.alias,
		entity:       s.typ.Name(),
		schema:       s,
		hooks:        collectHooks(s.typ),
		conns:        cfg.conns,
		types:        cfg.types,
		enc:          cfg.enc,
		tracer:       cfg.tracer,
		logger:       cfg.logger,
		audit:        cfg.audit,
		autoPopulate: cfg.autoPopulate,
		indexes:      cfg.indexes,
	}

	c.types.register(&typeEntry{
		name:   c.entity,
		typ:    s.typ,
		schema: s,
		fetch: func(ctx context.Context, ids []ID) (map[ID]any, error) {
			return c.fetchByIDs(ctx, ids)
		},
	})
	return c, nil
}

// Name returns the store collection name.
func (c *Collection[T]) Name() string { return c.name }

// EntityName returns the registered entity name.
func (c *Collection[T]) EntityName() string { return c.entity }

// Hooks returns the collection's hook registry for external
// registrations beyond what the entity type declares.
func (c *Collection[T]) Hooks() *HookRegistry { return c.hooks }

// Tracer returns the tracer observing this collection.
func (c *Collection[T]) Tracer() *Tracer { return c.tracer }

func (c *Collection[T]) storeCollection() (store.Collection, error) {
	conn, err := c.conns.Get(c.alias)
	if err != nil {
		return nil, err
	}
	return conn.Database().Collection(c.name), nil
}

func (c *Collection[T]) metaOf(entity *T) *Document {
	rv := reflect.ValueOf(entity).Elem()
	return rv.FieldByIndex(c.schema.docPath).Addr().Interface().(*Document)
}

// EnsureIndexes creates every declared index: the single-field ones from
// `index` struct tags plus the ones given to WithIndexes. Creation is
// idempotent.
func (c *Collection[T]) EnsureIndexes(ctx context.Context) error {
	coll, err := c.storeCollection()
	if err != nil {
		return err
	}
	var specs []IndexSpec
	for _, f := range c.schema.fields {
		if f.index != nil {
			specs = append(specs, *f.index)
		}
	}
	specs = append(specs, c.indexes...)
	for _, spec := range specs {
		if _, err := coll.CreateIndex(ctx, spec.model()); err != nil {
			return fmt.Errorf("%w: create index on %s: %v", Err, c.name, err)
		}
	}
	return nil
}

// validate runs the pre-validate hooks and the entity's own Validate.
func (c *Collection[T]) validate(ctx context.Context, entity *T) error {
	if err := c.hooks.run(ctx, HookPreValidate, entity); err != nil {
		return err
	}
	if v, ok := any(entity).(Validator); ok {
		if err := v.Validate(); err != nil {
			if errors.Is(err, ErrValidation) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return nil
}

// Save persists the entity. New entities are inserted whole; loaded
// entities get a partial update carrying only the fields that changed
// since hydration. Saving a clean loaded entity is a complete no-op:
// no store round-trip and no hooks. Otherwise the order is
// pre-validate, Validate, pre-save, write, post-save.
func (c *Collection[T]) Save(ctx context.Context, entity *T) error {
	meta := c.metaOf(entity)

	if !meta.IsNew() {
		dirty, err := c.IsDirty(entity)
		if err != nil {
			return err
		}
		if !dirty {
			return nil
		}
	}

	if err := c.validate(ctx, entity); err != nil {
		return err
	}
	if err := c.hooks.run(ctx, HookPreSave, entity); err != nil {
		return err
	}

	if meta.IsNew() {
		return c.insert(ctx, entity, meta)
	}
	// The diff is recomputed inside saveDirty since hooks may have
	// touched more fields.
	return c.saveDirty(ctx, entity, meta)
}

// Insert writes a new entity, running the pre-validate and pre-save
// hooks first. Inserting an entity that is already persisted fails.
func (c *Collection[T]) Insert(ctx context.Context, entity *T) error {
	meta := c.metaOf(entity)
	if !meta.IsNew() {
		return fmt.Errorf("%w: %s %s is already persisted", ErrInvalidUpdate, c.entity, meta.ID)
	}
	if err := c.validate(ctx, entity); err != nil {
		return err
	}
	if err := c.hooks.run(ctx, HookPreSave, entity); err != nil {
		return err
	}
	return c.insert(ctx, entity, meta)
}

// Create persists a freshly constructed entity and hands it back, for
// call sites that build and save in one expression.
func (c *Collection[T]) Create(ctx context.Context, entity *T) (*T, error) {
	if err := c.Insert(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (c *Collection[T]) insert(ctx context.Context, entity *T, meta *Document) error {
	coll, err := c.storeCollection()
	if err != nil {
		return err
	}
	if meta.ID.IsZero() {
		meta.ID = NewID()
	}
	if ts, ok := any(entity).(timestamped); ok && c.schema.hasTimestamps {
		now := time.Now().UTC()
		ts.stampCreated(now)
		ts.stampUpdated(now)
	}

	wire, err := marshalEntity(c.schema, c.enc, entity, true)
	if err != nil {
		return err
	}
	done := c.tracer.start("insert", c.name, c.entity, store.Filter{"_id": meta.ID}, nil)
	_, err = coll.InsertOne(ctx, wire)
	done(1, err)
	if err != nil {
		return fmt.Errorf("%w: insert into %s: %v", Err, c.name, err)
	}

	plain, err := marshalEntity(c.schema, c.enc, entity, false)
	if err != nil {
		return err
	}
	meta.markLoaded(plain)
	c.writeAudit(ctx, "insert", meta.ID, nil)
	return c.hooks.run(ctx, HookPostSave, entity)
}

func (c *Collection[T]) saveDirty(ctx context.Context, entity *T, meta *Document) error {
	plain, err := marshalEntity(c.schema, c.enc, entity, false)
	if err != nil {
		return err
	}
	set, unset := diffDocs(meta.snapshot, plain)
	if len(set) == 0 && len(unset) == 0 {
		return nil
	}

	if ts, ok := any(entity).(timestamped); ok && c.schema.hasTimestamps {
		ts.stampUpdated(time.Now().UTC())
		if plain, err = marshalEntity(c.schema, c.enc, entity, false); err != nil {
			return err
		}
		set, unset = diffDocs(meta.snapshot, plain)
	}

	update, err := c.wireUpdate(set, unset)
	if err != nil {
		return err
	}

	coll, err := c.storeCollection()
	if err != nil {
		return err
	}
	filter := store.Filter{"_id": meta.ID}
	done := c.tracer.start("update", c.name, c.entity, filter, update)
	matched, err := coll.UpdateOne(ctx, filter, update)
	done(matched, err)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", Err, c.name, err)
	}
	if matched == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.entity, meta.ID)
	}

	changed := changedKeys(set, unset)
	meta.markLoaded(plain)
	c.writeAudit(ctx, "update", meta.ID, changed)
	return c.hooks.run(ctx, HookPostSave, entity)
}

// wireUpdate converts a plain-value diff into the operator document sent
// to the store, encrypting marked fields on the way.
func (c *Collection[T]) wireUpdate(set store.Doc, unset []string) (store.Update, error) {
	update := store.Update{}
	if len(set) > 0 {
		wireSet := store.Doc{}
		for key, value := range set {
			spec := c.schema.byKey[key]
			if spec != nil && spec.encrypted {
				plaintext, _ := value.(string)
				ciphertext, err := c.enc.Encrypt(plaintext)
				if err != nil {
					return nil, fmt.Errorf("field %q: %w", spec.name, err)
				}
				value = ciphertext
			}
			wireSet[key] = value
		}
		update["$set"] = wireSet
	}
	if len(unset) > 0 {
		unsetDoc := store.Doc{}
		for _, key := range unset {
			unsetDoc[key] = ""
		}
		update["$unset"] = unsetDoc
	}
	return update, nil
}

// DirtyFields returns the wire keys that changed since the entity was
// hydrated or last saved, sorted. New entities report every serialized
// field.
func (c *Collection[T]) DirtyFields(entity *T) ([]string, error) {
	meta := c.metaOf(entity)
	plain, err := marshalEntity(c.schema, c.enc, entity, false)
	if err != nil {
		return nil, err
	}
	set, unset := diffDocs(meta.snapshot, plain)
	return changedKeys(set, unset), nil
}

// IsDirty reports whether Save would write anything.
func (c *Collection[T]) IsDirty(entity *T) (bool, error) {
	keys, err := c.DirtyFields(entity)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// Get fetches one document by identifier, accepting the ID type or its
// string form. Soft-deleted documents are not returned.
func (c *Collection[T]) Get(ctx context.Context, id any) (*T, error) {
	coerced, err := coerceID(id)
	if err != nil {
		return nil, err
	}
	filter := store.Filter{"_id": coerced}
	if c.schema.softDelete {
		filter["deleted_at"] = nil
	}
	return c.findOne(ctx, filter)
}

// FindOne executes the filter immediately and returns the single match,
// or nil when nothing matches. Soft-deleted documents are excluded; use
// Find with a visibility variant for anything fancier.
func (c *Collection[T]) FindOne(ctx context.Context, filter store.Filter) (*T, error) {
	entity, err := c.Find(filter).First(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return entity, err
}

func (c *Collection[T]) findOne(ctx context.Context, filter store.Filter) (*T, error) {
	coll, err := c.storeCollection()
	if err != nil {
		return nil, err
	}
	done := c.tracer.start("find_one", c.name, c.entity, filter, nil)
	doc, err := coll.FindOne(ctx, filter)
	if err != nil {
		done(0, err)
		return nil, fmt.Errorf("%w: find in %s: %v", Err, c.name, err)
	}
	if doc == nil {
		done(0, nil)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, c.entity)
	}
	done(1, nil)
	entity, err := c.hydrate(doc)
	if err != nil {
		return nil, err
	}
	if err := c.applyAutoPopulate(ctx, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

// hydrate builds a loaded entity from a stored document.
func (c *Collection[T]) hydrate(doc store.Doc) (*T, error) {
	entity := new(T)
	if err := unmarshalEntity(c.schema, c.enc, doc, entity); err != nil {
		return nil, err
	}
	plain, err := marshalEntity(c.schema, c.enc, entity, false)
	if err != nil {
		return nil, err
	}
	c.metaOf(entity).markLoaded(plain)
	return entity, nil
}

func (c *Collection[T]) applyAutoPopulate(ctx context.Context, entities ...*T) error {
	if len(c.autoPopulate) == 0 {
		return nil
	}
	engine := newPopulateEngine(c.types)
	for _, path := range c.autoPopulate {
		models := make([]Model, len(entities))
		for i, e := range entities {
			models[i] = any(e).(Model)
		}
		if err := engine.populatePath(ctx, models, c.schema, path); err != nil {
			return err
		}
	}
	return nil
}

// fetchByIDs backs reference population: one $in query, hydrated without
// auto-populate so reference cycles terminate.
func (c *Collection[T]) fetchByIDs(ctx context.Context, ids []ID) (map[ID]any, error) {
	out := make(map[ID]any, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	coll, err := c.storeCollection()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	filter := store.Filter{"_id": store.Doc{"$in": values}}
	done := c.tracer.start("find", c.name, c.entity, filter, nil)
	cursor, err := coll.Find(ctx, filter, nil)
	if err != nil {
		done(0, err)
		return nil, fmt.Errorf("%w: find in %s: %v", Err, c.name, err)
	}
	defer cursor.Close(ctx)
	var count int64
	for cursor.Next(ctx) {
		entity, err := c.hydrate(cursor.Current())
		if err != nil {
			done(count, err)
			return nil, err
		}
		out[c.metaOf(entity).ID] = entity
		count++
	}
	done(count, cursor.Err())
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor on %s: %v", Err, c.name, err)
	}
	return out, nil
}

// Reload re-hydrates the entity from storage, discarding local changes.
func (c *Collection[T]) Reload(ctx context.Context, entity *T) error {
	meta := c.metaOf(entity)
	if meta.ID.IsZero() {
		return fmt.Errorf("%w: entity has no identifier", ErrInvalidID)
	}
	coll, err := c.storeCollection()
	if err != nil {
		return err
	}
	filter := store.Filter{"_id": meta.ID}
	done := c.tracer.start("find_one", c.name, c.entity, filter, nil)
	doc, err := coll.FindOne(ctx, filter)
	if err != nil {
		done(0, err)
		return fmt.Errorf("%w: find in %s: %v", Err, c.name, err)
	}
	if doc == nil {
		done(0, nil)
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.entity, meta.ID)
	}
	done(1, nil)
	fresh, err := c.hydrate(doc)
	if err != nil {
		return err
	}
	*entity = *fresh
	return nil
}

// Update applies named changes to a loaded entity and persists exactly
// those fields. Keys may be Go field names or wire keys; unknown keys
// and the identifier fail with ErrInvalidUpdate. Validation runs against
// a copy carrying the changes, so a rejected update leaves the entity
// untouched.
func (c *Collection[T]) Update(ctx context.Context, entity *T, changes map[string]any) error {
	meta := c.metaOf(entity)
	if meta.IsNew() {
		return fmt.Errorf("%w: entity has not been saved", ErrInvalidUpdate)
	}

	specs := make(map[string]*fieldSpec, len(changes))
	for key := range changes {
		spec := c.schema.byName[key]
		if spec == nil {
			spec = c.schema.byKey[key]
		}
		if spec == nil {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidUpdate, key)
		}
		specs[key] = spec
	}

	// Trial application on a copy.
	clone := new(T)
	*clone = *entity
	if err := applyChanges(c.schema, clone, changes, specs); err != nil {
		return err
	}
	if err := c.validate(ctx, clone); err != nil {
		return err
	}

	if err := applyChanges(c.schema, entity, changes, specs); err != nil {
		return err
	}
	if ts, ok := any(entity).(timestamped); ok && c.schema.hasTimestamps {
		ts.stampUpdated(time.Now().UTC())
	}

	plain, err := marshalEntity(c.schema, c.enc, entity, false)
	if err != nil {
		return err
	}
	set := store.Doc{}
	var unset []string
	for _, spec := range specs {
		if value, ok := plain[spec.key]; ok {
			set[spec.key] = value
		} else {
			unset = append(unset, spec.key)
		}
	}
	if c.schema.hasTimestamps {
		if value, ok := plain["updated_at"]; ok {
			set["updated_at"] = value
		}
	}

	update, err := c.wireUpdate(set, unset)
	if err != nil {
		return err
	}
	coll, err := c.storeCollection()
	if err != nil {
		return err
	}
	filter := store.Filter{"_id": meta.ID}
	done := c.tracer.start("update", c.name, c.entity, filter, update)
	matched, err := coll.UpdateOne(ctx, filter, update)
	done(matched, err)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", Err, c.name, err)
	}
	if matched == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.entity, meta.ID)
	}

	// Refresh only the snapshot entries this update touched; other local
	// modifications stay dirty.
	if meta.snapshot == nil {
		meta.snapshot = store.Doc{}
	}
	for key := range set {
		meta.snapshot[key] = plain[key]
	}
	for _, key := range unset {
		delete(meta.snapshot, key)
	}

	c.writeAudit(ctx, "update", meta.ID, changedKeys(set, unset))
	return c.hooks.run(ctx, HookPostUpdate, entity)
}

func applyChanges[T any](s *schema, entity *T, changes map[string]any, specs map[string]*fieldSpec) error {
	rv := reflect.ValueOf(entity).Elem()
	for key, value := range changes {
		spec := specs[key]
		fv := rv.FieldByIndex(spec.path)
		if value == nil {
			fv.Set(reflect.Zero(fv.Type()))
			continue
		}
		if err := setValue(fv, value); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidUpdate, key, err)
		}
	}
	return nil
}

// Delete removes the entity. Soft-deletable entities are stamped with a
// deletion time and excluded from normal queries; others are removed
// from the store. Hook order: pre-delete, write, post-delete.
func (c *Collection[T]) Delete(ctx context.Context, entity *T) error {
	meta := c.metaOf(entity)
	if err := c.hooks.run(ctx, HookPreDelete, entity); err != nil {
		return err
	}

	if c.schema.softDelete {
		now := time.Now().UTC()
		coll, err := c.storeCollection()
		if err != nil {
			return err
		}
		filter := store.Filter{"_id": meta.ID}
		update := store.Update{"$set": store.Doc{"deleted_at": now}}
		done := c.tracer.start("soft_delete", c.name, c.entity, filter, update)
		matched, err := coll.UpdateOne(ctx, filter, update)
		done(matched, err)
		if err != nil {
			return fmt.Errorf("%w: soft delete in %s: %v", Err, c.name, err)
		}
		if matched == 0 {
			return fmt.Errorf("%w: %s %s", ErrNotFound, c.entity, meta.ID)
		}
		if sd, ok := any(entity).(softDeletable); ok {
			sd.setDeletedAt(&now)
		}
		if meta.snapshot != nil {
			meta.snapshot["deleted_at"] = now
		}
		c.writeAudit(ctx, "soft_delete", meta.ID, nil)
		return c.hooks.run(ctx, HookPostDelete, entity)
	}

	if err := c.hardDelete(ctx, entity, meta); err != nil {
		return err
	}
	return c.hooks.run(ctx, HookPostDelete, entity)
}

// Restore clears a soft-deleted entity's deletion mark.
func (c *Collection[T]) Restore(ctx context.Context, entity *T) error {
	if !c.schema.softDelete {
		return fmt.Errorf("%w: %s is not soft-deletable", Err, c.entity)
	}
	meta := c.metaOf(entity)
	coll, err := c.storeCollection()
	if err != nil {
		return err
	}
	filter := store.Filter{"_id": meta.ID}
	update := store.Update{"$unset": store.Doc{"deleted_at": ""}}
	done := c.tracer.start("restore", c.name, c.entity, filter, update)
	matched, err := coll.UpdateOne(ctx, filter, update)
	done(matched, err)
	if err != nil {
		return fmt.Errorf("%w: restore in %s: %v", Err, c.name, err)
	}
	if matched == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.entity, meta.ID)
	}
	if sd, ok := any(entity).(softDeletable); ok {
		sd.setDeletedAt(nil)
	}
	if meta.snapshot != nil {
		delete(meta.snapshot, "deleted_at")
	}
	c.writeAudit(ctx, "restore", meta.ID, nil)
	return nil
}

// HardDelete removes the entity from the store even when it is
// soft-deletable.
func (c *Collection[T]) HardDelete(ctx context.Context, entity *T) error {
	return c.hardDelete(ctx, entity, c.metaOf(entity))
}

func (c *Collection[T]) hardDelete(ctx context.Context, entity *T, meta *Document) error {
	coll, err := c.storeCollection()
	if err != nil {
		return err
	}
	filter := store.Filter{"_id": meta.ID}
	done := c.tracer.start("delete", c.name, c.entity, filter, nil)
	deleted, err := coll.DeleteOne(ctx, filter)
	done(deleted, err)
	if err != nil {
		return fmt.Errorf("%w: delete in %s: %v", Err, c.name, err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotFound, c.entity, meta.ID)
	}
	c.writeAudit(ctx, "delete", meta.ID, nil)

	// The entity may be re-saved, which inserts it again.
	*meta = Document{ID: meta.ID}
	return nil
}

// diffDocs compares two plain serializations. Keys whose values differ
// land in set; keys present before and gone now land in unset. The
// identifier never participates.
func diffDocs(old, current store.Doc) (set store.Doc, unset []string) {
	set = store.Doc{}
	for key, value := range current {
		if key == "_id" {
			continue
		}
		prev, ok := old[key]
		if !ok || !reflect.DeepEqual(prev, value) {
			set[key] = value
		}
	}
	for key := range old {
		if key == "_id" {
			continue
		}
		if _, ok := current[key]; !ok {
			unset = append(unset, key)
		}
	}
	sort.Strings(unset)
	return set, unset
}

func changedKeys(set store.Doc, unset []string) []string {
	keys := make([]string, 0, len(set)+len(unset))
	for key := range set {
		keys = append(keys, key)
	}
	keys = append(keys, unset...)
	sort.Strings(keys)
	return keys
}
