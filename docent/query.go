package docent

import (
	"context"
	"fmt"
	"strings"

	"github.com/docent-db/docent/docent/store"
)

// visibility selects which documents of a soft-deletable collection a
// query sees.
type visibility int

const (
	visibleLive visibility = iota
	visibleDeleted
	visibleAll
)

// QuerySet is a lazy, immutable query under construction. Builder
// methods return modified copies and never touch the store; only the
// terminal methods (All, One, Count, Delete, ...) execute. A QuerySet
// may therefore be built once and executed many times, and partial
// queries can be shared safely:
//
//	published := posts.Find(store.Filter{"published": true})
//	recent := published.Sort("-created_at").Limit(10)
type QuerySet[T any] struct {
	c *Collection[T]

	filter   store.Filter
	sort     []store.SortField
	skip     int64
	limit    int64
	project  []string
	populate []string
	mode     visibility

	// err carries a deferred builder error to the terminal call.
	err error
}

// Find starts a query over live documents. A nil filter matches all.
func (c *Collection[T]) Find(filter store.Filter) *QuerySet[T] {
	return &QuerySet[T]{c: c, filter: cloneFilter(filter)}
}

// FindAll starts an unfiltered query over live documents.
func (c *Collection[T]) FindAll() *QuerySet[T] {
	return c.Find(nil)
}

// FindDeleted starts a query over soft-deleted documents only.
func (c *Collection[T]) FindDeleted(filter store.Filter) *QuerySet[T] {
	qs := c.Find(filter)
	qs.mode = visibleDeleted
	return qs
}

// FindWithDeleted starts a query seeing live and soft-deleted documents
// alike.
func (c *Collection[T]) FindWithDeleted(filter store.Filter) *QuerySet[T] {
	qs := c.Find(filter)
	qs.mode = visibleAll
	return qs
}

func (qs *QuerySet[T]) clone() *QuerySet[T] {
	out := *qs
	out.filter = cloneFilter(qs.filter)
	out.sort = append([]store.SortField(nil), qs.sort...)
	out.project = append([]string(nil), qs.project...)
	out.populate = append([]string(nil), qs.populate...)
	return &out
}

func cloneFilter(f store.Filter) store.Filter {
	if f == nil {
		return store.Filter{}
	}
	out := make(store.Filter, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Filter narrows the query with additional conditions, combining with
// the existing ones. A key constrained twice combines under $and.
func (qs *QuerySet[T]) Filter(extra store.Filter) *QuerySet[T] {
	out := qs.clone()
	for key, value := range extra {
		if prev, clash := out.filter[key]; clash {
			out.filter = store.Filter{"$and": []store.Filter{
				{key: prev}, out.filterWithout(key), {key: value},
			}}
			continue
		}
		out.filter[key] = value
	}
	return out
}

func (qs *QuerySet[T]) filterWithout(key string) store.Filter {
	rest := cloneFilter(qs.filter)
	delete(rest, key)
	return rest
}

// Where adds one equality (or operator-document) condition.
func (qs *QuerySet[T]) Where(key string, value any) *QuerySet[T] {
	return qs.Filter(store.Filter{key: value})
}

// ByID narrows the query to one identifier, accepting the ID type or
// its string form. A malformed identifier surfaces at the terminal call.
func (qs *QuerySet[T]) ByID(id any) *QuerySet[T] {
	coerced, err := coerceID(id)
	if err != nil {
		out := qs.clone()
		out.err = err
		return out
	}
	return qs.Where("_id", coerced)
}

// Sort orders results by the given wire keys; a "-" prefix sorts
// descending. Later calls replace earlier orders.
func (qs *QuerySet[T]) Sort(keys ...string) *QuerySet[T] {
	out := qs.clone()
	out.sort = nil
	for _, key := range keys {
		if name, ok := strings.CutPrefix(key, "-"); ok {
			out.sort = append(out.sort, store.SortField{Key: name, Desc: true})
			continue
		}
		out.sort = append(out.sort, store.SortField{Key: key})
	}
	return out
}

// Skip drops the first n results.
func (qs *QuerySet[T]) Skip(n int64) *QuerySet[T] {
	out := qs.clone()
	out.skip = n
	return out
}

// Limit caps the result count. Zero means unlimited.
func (qs *QuerySet[T]) Limit(n int64) *QuerySet[T] {
	out := qs.clone()
	out.limit = n
	return out
}

// Project restricts hydration to the given wire keys; the identifier is
// always included. Unprojected fields hold their zero values.
func (qs *QuerySet[T]) Project(keys ...string) *QuerySet[T] {
	out := qs.clone()
	out.project = append([]string(nil), keys...)
	return out
}

// Populate queues reference paths to resolve after execution. Paths are
// batched so each distinct identifier is fetched at most once per
// terminal call.
func (qs *QuerySet[T]) Populate(paths ...string) *QuerySet[T] {
	out := qs.clone()
	out.populate = append(out.populate, paths...)
	return out
}

// effectiveFilter folds the soft-delete visibility into the user filter.
func (qs *QuerySet[T]) effectiveFilter() store.Filter {
	filter := cloneFilter(qs.filter)
	if !qs.c.schema.softDelete {
		return filter
	}
	switch qs.mode {
	case visibleLive:
		filter["deleted_at"] = nil
	case visibleDeleted:
		filter["deleted_at"] = store.Doc{"$ne": nil}
	}
	return filter
}

func (qs *QuerySet[T]) options() *store.FindOptions {
	return &store.FindOptions{
		Sort:       qs.sort,
		Skip:       qs.skip,
		Limit:      qs.limit,
		Projection: qs.project,
	}
}

// All executes the query and returns every match.
func (qs *QuerySet[T]) All(ctx context.Context) ([]*T, error) {
	if qs.err != nil {
		return nil, qs.err
	}
	coll, err := qs.c.storeCollection()
	if err != nil {
		return nil, err
	}
	filter := qs.effectiveFilter()
	done := qs.c.tracer.start("find", qs.c.name, qs.c.entity, filter, nil)
	cursor, err := coll.Find(ctx, filter, qs.options())
	if err != nil {
		done(0, err)
		return nil, fmt.Errorf("%w: find in %s: %v", Err, qs.c.name, err)
	}
	defer cursor.Close(ctx)

	var out []*T
	for cursor.Next(ctx) {
		entity, err := qs.c.hydrate(cursor.Current())
		if err != nil {
			done(int64(len(out)), err)
			return nil, err
		}
		out = append(out, entity)
	}
	done(int64(len(out)), cursor.Err())
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor on %s: %v", Err, qs.c.name, err)
	}
	if err := qs.c.applyAutoPopulate(ctx, out...); err != nil {
		return nil, err
	}
	if len(qs.populate) > 0 && len(out) > 0 {
		// One engine across all queued paths so they share a cache.
		engine := newPopulateEngine(qs.c.types)
		models := make([]Model, len(out))
		for i, e := range out {
			models[i] = any(e).(Model)
		}
		for _, path := range qs.populate {
			if err := engine.populatePath(ctx, models, qs.c.schema, path); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// First executes the query and returns the first match, or ErrNotFound.
func (qs *QuerySet[T]) First(ctx context.Context) (*T, error) {
	items, err := qs.Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, qs.c.entity)
	}
	return items[0], nil
}

// One executes the query expecting exactly one match: ErrNotFound on
// zero, ErrMultipleFound on more than one.
func (qs *QuerySet[T]) One(ctx context.Context) (*T, error) {
	items, err := qs.Limit(2).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, qs.c.entity)
	case 1:
		return items[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrMultipleFound, qs.c.entity)
	}
}

// Count returns the number of matches, ignoring skip and limit.
func (qs *QuerySet[T]) Count(ctx context.Context) (int64, error) {
	if qs.err != nil {
		return 0, qs.err
	}
	coll, err := qs.c.storeCollection()
	if err != nil {
		return 0, err
	}
	filter := qs.effectiveFilter()
	done := qs.c.tracer.start("count", qs.c.name, qs.c.entity, filter, nil)
	n, err := coll.CountDocuments(ctx, filter)
	done(n, err)
	if err != nil {
		return 0, fmt.Errorf("%w: count in %s: %v", Err, qs.c.name, err)
	}
	return n, nil
}

// Exists reports whether at least one document matches.
func (qs *QuerySet[T]) Exists(ctx context.Context) (bool, error) {
	n, err := qs.Limit(1).Count(ctx)
	return n > 0, err
}

// Distinct returns the de-duplicated values of one wire key across all
// matches.
func (qs *QuerySet[T]) Distinct(ctx context.Context, key string) ([]any, error) {
	if qs.err != nil {
		return nil, qs.err
	}
	coll, err := qs.c.storeCollection()
	if err != nil {
		return nil, err
	}
	filter := qs.effectiveFilter()
	done := qs.c.tracer.start("distinct", qs.c.name, qs.c.entity, filter, nil)
	values, err := coll.Distinct(ctx, key, filter)
	done(int64(len(values)), err)
	if err != nil {
		return nil, fmt.Errorf("%w: distinct in %s: %v", Err, qs.c.name, err)
	}
	return values, nil
}

// Update applies an operator document ($set, $unset) to every match and
// returns the matched count. An empty filter is rejected with
// ErrEmptyFilter; use UpdateAll to touch the whole collection.
func (qs *QuerySet[T]) Update(ctx context.Context, update store.Update) (int64, error) {
	if len(qs.filter) == 0 {
		return 0, fmt.Errorf("%w: update_many needs a filter, use UpdateAll to touch everything", ErrEmptyFilter)
	}
	return qs.updateMany(ctx, update)
}

// UpdateAll is Update without the empty-filter guard.
func (qs *QuerySet[T]) UpdateAll(ctx context.Context, update store.Update) (int64, error) {
	return qs.updateMany(ctx, update)
}

func (qs *QuerySet[T]) updateMany(ctx context.Context, update store.Update) (int64, error) {
	if qs.err != nil {
		return 0, qs.err
	}
	if err := validateUpdateDoc(update); err != nil {
		return 0, err
	}
	coll, err := qs.c.storeCollection()
	if err != nil {
		return 0, err
	}
	filter := qs.effectiveFilter()
	done := qs.c.tracer.start("update_many", qs.c.name, qs.c.entity, filter, update)
	matched, err := coll.UpdateMany(ctx, filter, update)
	done(matched, err)
	if err != nil {
		return 0, fmt.Errorf("%w: update in %s: %v", Err, qs.c.name, err)
	}
	return matched, nil
}

// Delete removes (or soft-deletes) every match and returns the count.
// An empty filter is rejected with ErrEmptyFilter; use DeleteAll to wipe
// the collection.
func (qs *QuerySet[T]) Delete(ctx context.Context) (int64, error) {
	if len(qs.filter) == 0 {
		return 0, fmt.Errorf("%w: delete_many needs a filter, use DeleteAll to wipe the collection", ErrEmptyFilter)
	}
	return qs.deleteMany(ctx)
}

// DeleteAll is Delete without the empty-filter guard.
func (qs *QuerySet[T]) DeleteAll(ctx context.Context) (int64, error) {
	return qs.deleteMany(ctx)
}

func (qs *QuerySet[T]) deleteMany(ctx context.Context) (int64, error) {
	if qs.err != nil {
		return 0, qs.err
	}
	coll, err := qs.c.storeCollection()
	if err != nil {
		return 0, err
	}
	filter := qs.effectiveFilter()

	if qs.c.schema.softDelete && qs.mode == visibleLive {
		update := store.Update{"$set": store.Doc{"deleted_at": nowUTC()}}
		done := qs.c.tracer.start("soft_delete_many", qs.c.name, qs.c.entity, filter, update)
		matched, err := coll.UpdateMany(ctx, filter, update)
		done(matched, err)
		if err != nil {
			return 0, fmt.Errorf("%w: soft delete in %s: %v", Err, qs.c.name, err)
		}
		return matched, nil
	}

	done := qs.c.tracer.start("delete_many", qs.c.name, qs.c.entity, filter, nil)
	deleted, err := coll.DeleteMany(ctx, filter)
	done(deleted, err)
	if err != nil {
		return 0, fmt.Errorf("%w: delete in %s: %v", Err, qs.c.name, err)
	}
	return deleted, nil
}

// Explain returns the store's plan for this query, for diagnostics.
func (qs *QuerySet[T]) Explain(ctx context.Context) (store.Doc, error) {
	if qs.err != nil {
		return nil, qs.err
	}
	coll, err := qs.c.storeCollection()
	if err != nil {
		return nil, err
	}
	return coll.Explain(ctx, qs.effectiveFilter(), qs.options())
}

// validateUpdateDoc ensures the document uses update operators; a bare
// replacement document is rejected.
func validateUpdateDoc(update store.Update) error {
	if len(update) == 0 {
		return fmt.Errorf("%w: empty update document", ErrInvalidUpdate)
	}
	for key := range update {
		if !strings.HasPrefix(key, "$") {
			return fmt.Errorf("%w: top-level key %q is not an operator", ErrInvalidUpdate, key)
		}
	}
	return nil
}

// Page is one page of offset pagination.
type Page[T any] struct {
	Items      []*T
	Total      int64
	PageNumber int
	PerPage    int
	TotalPages int64
	HasNext    bool
	HasPrev    bool
}

// Paginate executes the query as offset pagination. Pages are numbered
// from 1; page and perPage must be positive.
func (qs *QuerySet[T]) Paginate(ctx context.Context, page, perPage int) (*Page[T], error) {
	if page < 1 || perPage < 1 {
		return nil, fmt.Errorf("%w: page %d, per_page %d", ErrInvalidPagination, page, perPage)
	}
	total, err := qs.Count(ctx)
	if err != nil {
		return nil, err
	}
	items, err := qs.Skip(int64(page-1) * int64(perPage)).Limit(int64(perPage)).All(ctx)
	if err != nil {
		return nil, err
	}
	totalPages := (total + int64(perPage) - 1) / int64(perPage)
	return &Page[T]{
		Items:      items,
		Total:      total,
		PageNumber: page,
		PerPage:    perPage,
		TotalPages: totalPages,
		HasNext:    int64(page) < totalPages,
		HasPrev:    page > 1,
	}, nil
}

// CursorPage is one page of keyset pagination.
type CursorPage[T any] struct {
	Items []*T

	// NextCursor is the opaque position to pass to the next call. Empty
	// when HasMore is false.
	NextCursor string
	HasMore    bool
}

// CursorPaginate executes the query as keyset pagination over the
// identifier. Pass an empty cursor for the first page and the returned
// NextCursor afterwards. The identifier order overrides any Sort.
func (qs *QuerySet[T]) CursorPaginate(ctx context.Context, cursor string, limit int) (*CursorPage[T], error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: limit %d", ErrInvalidPagination, limit)
	}
	page := qs.Sort("_id").Limit(int64(limit) + 1)
	page.skip = 0
	if cursor != "" {
		id, err := ParseID(cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: bad cursor", ErrInvalidPagination)
		}
		page = page.Where("_id", store.Doc{"$gt": id})
	}
	items, err := page.All(ctx)
	if err != nil {
		return nil, err
	}
	out := &CursorPage[T]{Items: items}
	if len(items) > limit {
		out.Items = items[:limit]
		out.HasMore = true
		out.NextCursor = qs.c.metaOf(out.Items[limit-1]).ID.String()
	}
	return out, nil
}
