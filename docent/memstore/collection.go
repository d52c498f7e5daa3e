package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/store"
)

type collection struct {
	db   *database
	name string

	mu      sync.RWMutex
	docs    map[string]store.Doc
	order   *btree.BTreeG[string]
	indexes map[string]store.IndexModel
}

func newCollection(db *database, name string) *collection {
	return &collection{
		db:      db,
		name:    name,
		docs:    make(map[string]store.Doc),
		order:   btree.NewG(16, func(a, b string) bool { return a < b }),
		indexes: make(map[string]store.IndexModel),
	}
}

func (c *collection) Name() string { return c.name }

// idKey flattens an identifier value to the map key used internally.
func idKey(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case docent.ID:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func (c *collection) FindOne(ctx context.Context, filter store.Filter) (store.Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var found store.Doc
	c.order.Ascend(func(key string) bool {
		doc := c.docs[key]
		if matchFilter(doc, filter) {
			found = copyDoc(doc)
			return false
		}
		return true
	})
	return found, nil
}

func (c *collection) Find(ctx context.Context, filter store.Filter, opts *store.FindOptions) (store.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	var matched []store.Doc
	c.order.Ascend(func(key string) bool {
		doc := c.docs[key]
		if matchFilter(doc, filter) {
			matched = append(matched, copyDoc(doc))
		}
		return true
	})
	c.mu.RUnlock()

	if opts != nil {
		if len(opts.Sort) > 0 {
			sortDocs(matched, opts.Sort)
		}
		if opts.Skip > 0 {
			if opts.Skip >= int64(len(matched)) {
				matched = nil
			} else {
				matched = matched[opts.Skip:]
			}
		}
		if opts.Limit > 0 && int64(len(matched)) > opts.Limit {
			matched = matched[:opts.Limit]
		}
		if len(opts.Projection) > 0 {
			for i, doc := range matched {
				matched[i] = projectDoc(doc, opts.Projection)
			}
		}
	}
	return &sliceCursor{docs: matched}, nil
}

func sortDocs(docs []store.Doc, fields []store.SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			cmp, ok := compareValues(docs[i][f.Key], docs[j][f.Key])
			if !ok || cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func projectDoc(doc store.Doc, keys []string) store.Doc {
	out := store.Doc{"_id": doc["_id"]}
	for _, key := range keys {
		if v, ok := doc[key]; ok {
			out[key] = v
		}
	}
	return out
}

func (c *collection) InsertOne(ctx context.Context, doc store.Doc) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := copyDoc(doc)
	id, ok := stored["_id"]
	if !ok || id == nil {
		id = uuid.NewString()
		stored["_id"] = id
	}
	key := idKey(id)

	c.mu.Lock()
	if _, dup := c.docs[key]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("memstore: duplicate _id %q in %s", key, c.name)
	}
	if err := c.checkUniqueLocked(stored, key); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.docs[key] = stored
	c.order.ReplaceOrInsert(key)
	c.mu.Unlock()

	if err := c.db.client.flush(); err != nil {
		return nil, err
	}
	return id, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter store.Filter, update store.Update) (int64, error) {
	return c.update(ctx, filter, update, true)
}

func (c *collection) UpdateMany(ctx context.Context, filter store.Filter, update store.Update) (int64, error) {
	return c.update(ctx, filter, update, false)
}

func (c *collection) update(ctx context.Context, filter store.Filter, update store.Update, single bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	var matched int64
	var stop bool
	var updateErr error
	c.order.Ascend(func(key string) bool {
		if stop {
			return false
		}
		doc := c.docs[key]
		if !matchFilter(doc, filter) {
			return true
		}
		changed := copyDoc(doc)
		if err := applyUpdate(changed, update); err != nil {
			updateErr = err
			return false
		}
		if err := c.checkUniqueLocked(changed, key); err != nil {
			updateErr = err
			return false
		}
		c.docs[key] = changed
		matched++
		if single {
			stop = true
		}
		return true
	})
	c.mu.Unlock()
	if updateErr != nil {
		return matched, updateErr
	}
	if matched > 0 {
		if err := c.db.client.flush(); err != nil {
			return matched, err
		}
	}
	return matched, nil
}

func applyUpdate(doc store.Doc, update store.Update) error {
	for op, payload := range update {
		fields, ok := payload.(map[string]any)
		if !ok {
			return fmt.Errorf("memstore: %s payload must be a document, got %T", op, payload)
		}
		switch op {
		case "$set":
			for key, value := range fields {
				doc[key] = copyValue(value)
			}
		case "$unset":
			for key := range fields {
				delete(doc, key)
			}
		case "$inc":
			for key, value := range fields {
				cur, _ := toNumber(doc[key])
				delta, ok := toNumber(value)
				if !ok {
					return fmt.Errorf("memstore: $inc needs a numeric value for %q", key)
				}
				doc[key] = cur + delta
			}
		default:
			return fmt.Errorf("memstore: unsupported update operator %q", op)
		}
	}
	return nil
}

func (c *collection) DeleteOne(ctx context.Context, filter store.Filter) (int64, error) {
	return c.delete(ctx, filter, true)
}

func (c *collection) DeleteMany(ctx context.Context, filter store.Filter) (int64, error) {
	return c.delete(ctx, filter, false)
}

func (c *collection) delete(ctx context.Context, filter store.Filter, single bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	var keys []string
	c.order.Ascend(func(key string) bool {
		if matchFilter(c.docs[key], filter) {
			keys = append(keys, key)
			if single {
				return false
			}
		}
		return true
	})
	for _, key := range keys {
		delete(c.docs, key)
		c.order.Delete(key)
	}
	c.mu.Unlock()

	if len(keys) > 0 {
		if err := c.db.client.flush(); err != nil {
			return int64(len(keys)), err
		}
	}
	return int64(len(keys)), nil
}

func (c *collection) CountDocuments(ctx context.Context, filter store.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	c.order.Ascend(func(key string) bool {
		if matchFilter(c.docs[key], filter) {
			n++
		}
		return true
	})
	return n, nil
}

func (c *collection) Distinct(ctx context.Context, field string, filter store.Filter) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var values []any
	c.order.Ascend(func(key string) bool {
		doc := c.docs[key]
		if !matchFilter(doc, filter) {
			return true
		}
		v, ok := doc[field]
		if !ok {
			return true
		}
		for _, have := range values {
			if equalValues(have, v) {
				return true
			}
		}
		values = append(values, copyValue(v))
		return true
	})
	return values, nil
}

func (c *collection) CreateIndex(ctx context.Context, model store.IndexModel) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := model.Name
	if name == "" {
		var parts []string
		for _, k := range model.Keys {
			if k.Desc {
				parts = append(parts, k.Field+"_-1")
			} else {
				parts = append(parts, k.Field+"_1")
			}
		}
		name = strings.Join(parts, "_")
		model.Name = name
	}

	c.mu.Lock()
	if _, exists := c.indexes[name]; exists {
		c.mu.Unlock()
		return name, nil
	}
	if model.Unique {
		if err := c.checkExistingUniqueLocked(model); err != nil {
			c.mu.Unlock()
			return "", err
		}
	}
	c.indexes[name] = model
	c.mu.Unlock()

	if err := c.db.client.flush(); err != nil {
		return "", err
	}
	return name, nil
}

// indexTuple extracts the index key values of a document, reporting
// whether any key field is present.
func indexTuple(doc store.Doc, model store.IndexModel) ([]any, bool) {
	tuple := make([]any, len(model.Keys))
	present := false
	for i, k := range model.Keys {
		v, ok := doc[k.Field]
		if ok {
			present = true
		}
		tuple[i] = v
	}
	return tuple, present
}

func tuplesEqual(a, b []any) bool {
	for i := range a {
		if !equalValues(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (c *collection) checkUniqueLocked(candidate store.Doc, selfKey string) error {
	for _, model := range c.indexes {
		if !model.Unique {
			continue
		}
		tuple, present := indexTuple(candidate, model)
		if model.Sparse && !present {
			continue
		}
		var conflict error
		c.order.Ascend(func(key string) bool {
			if key == selfKey {
				return true
			}
			other, otherPresent := indexTuple(c.docs[key], model)
			if model.Sparse && !otherPresent {
				return true
			}
			if tuplesEqual(tuple, other) {
				conflict = fmt.Errorf("memstore: duplicate key for unique index %q in %s", model.Name, c.name)
				return false
			}
			return true
		})
		if conflict != nil {
			return conflict
		}
	}
	return nil
}

func (c *collection) checkExistingUniqueLocked(model store.IndexModel) error {
	var seen [][]any
	var conflict error
	c.order.Ascend(func(key string) bool {
		tuple, present := indexTuple(c.docs[key], model)
		if model.Sparse && !present {
			return true
		}
		for _, have := range seen {
			if tuplesEqual(have, tuple) {
				conflict = fmt.Errorf("memstore: existing documents violate unique index %q in %s", model.Name, c.name)
				return false
			}
		}
		seen = append(seen, tuple)
		return true
	})
	return conflict
}

func (c *collection) Explain(ctx context.Context, filter store.Filter, opts *store.FindOptions) (store.Doc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plan := "COLLSCAN"
	if _, ok := filter["_id"]; ok {
		plan = "IXSCAN { _id: 1 }"
	} else {
		for _, model := range c.indexes {
			if len(model.Keys) == 0 {
				continue
			}
			if _, ok := filter[model.Keys[0].Field]; ok {
				plan = fmt.Sprintf("IXSCAN { %s }", model.Name)
				break
			}
		}
	}
	return store.Doc{
		"namespace":     c.db.name + "." + c.name,
		"plan":          plan,
		"filter":        filter,
		"docs_examined": int64(len(c.docs)),
	}, nil
}

func (c *collection) snapshot() collSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := collSnapshot{}
	c.order.Ascend(func(key string) bool {
		snap.Docs = append(snap.Docs, copyDoc(c.docs[key]))
		return true
	})
	for _, model := range c.indexes {
		snap.Indexes = append(snap.Indexes, model)
	}
	sort.Slice(snap.Indexes, func(i, j int) bool { return snap.Indexes[i].Name < snap.Indexes[j].Name })
	return snap
}

func (c *collection) restore(snap collSnapshot) {
	for _, doc := range snap.Docs {
		key := idKey(doc["_id"])
		c.docs[key] = doc
		c.order.ReplaceOrInsert(key)
	}
	for _, model := range snap.Indexes {
		c.indexes[model.Name] = model
	}
}

// sliceCursor iterates a pre-materialized result set.
type sliceCursor struct {
	docs []store.Doc
	pos  int
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Current() store.Doc { return c.docs[c.pos-1] }

func (c *sliceCursor) Err() error { return nil }

func (c *sliceCursor) Close(ctx context.Context) error { return nil }
