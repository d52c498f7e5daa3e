// Package store defines the boundary between the ODM and the underlying
// document store. The ODM never talks to a wire protocol directly; it
// composes MongoDB-style operator documents and hands them to these
// interfaces. Any driver that can answer them (the bundled memstore, or a
// real client wrapped by an adapter) plugs in here.
package store

import (
	"context"
	"time"
)

// Doc is one stored document: a flat-to-nested map keyed by wire field
// names. The identifier always lives under "_id".
type Doc = map[string]any

// Filter is a MongoDB-style filter document. Values are either literals
// (implicit $eq) or operator documents such as {"$gte": 18}. Top-level
// "$or"/"$and" combinators hold lists of sub-filters.
type Filter = map[string]any

// Update is a MongoDB-style update document, e.g. {"$set": {...}} or
// {"$unset": {...}}.
type Update = map[string]any

// SortField is one (field, direction) pair of a sort order.
type SortField struct {
	Key  string
	Desc bool
}

// FindOptions carries the non-filter parts of a find: sort order, window
// and projection. A nil *FindOptions means defaults everywhere.
type FindOptions struct {
	Sort []SortField

	// Skip and Limit window the result set. Zero means unset.
	Skip  int64
	Limit int64

	// Projection restricts returned fields to the listed wire keys.
	// "_id" is always returned regardless.
	Projection []string
}

// IndexKey is one (field, direction) pair of an index key pattern.
type IndexKey struct {
	Field string
	Desc  bool
}

// IndexModel declares one index to create.
type IndexModel struct {
	Keys   []IndexKey
	Unique bool
	Sparse bool

	// Name is optional; drivers derive one from the key pattern when empty.
	Name string

	// ExpireAfter enables TTL expiry when positive.
	ExpireAfter time.Duration
}

// Cursor iterates a find result set.
type Cursor interface {
	// Next advances the cursor, returning false when exhausted or on error.
	Next(ctx context.Context) bool

	// Current returns the document at the cursor position. Only valid
	// after a true Next.
	Current() Doc

	// Err reports the first error encountered while iterating.
	Err() error

	Close(ctx context.Context) error
}

// Collection is one named document collection.
type Collection interface {
	Name() string

	// FindOne returns the first match, or (nil, nil) when nothing matches.
	FindOne(ctx context.Context, filter Filter) (Doc, error)

	Find(ctx context.Context, filter Filter, opts *FindOptions) (Cursor, error)

	// InsertOne stores the document and returns its identifier. When the
	// document carries no "_id" the store assigns one.
	InsertOne(ctx context.Context, doc Doc) (any, error)

	// UpdateOne applies the update to the first match and returns the
	// number of documents matched (0 or 1).
	UpdateOne(ctx context.Context, filter Filter, update Update) (int64, error)

	// UpdateMany applies the update to every match and returns the count.
	UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error)

	DeleteOne(ctx context.Context, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)

	CountDocuments(ctx context.Context, filter Filter) (int64, error)

	// Distinct returns the de-duplicated values of one field across all
	// matches.
	Distinct(ctx context.Context, field string, filter Filter) ([]any, error)

	// CreateIndex creates the index if it does not already exist and
	// returns its name. Creating the same index twice is a no-op.
	CreateIndex(ctx context.Context, model IndexModel) (string, error)

	// Explain returns the store's execution plan for the query, for
	// diagnostics only; the shape is driver-specific.
	Explain(ctx context.Context, filter Filter, opts *FindOptions) (Doc, error)
}

// Database is one named database holding collections.
type Database interface {
	Name() string
	Collection(name string) Collection
}

// Client is one live store connection.
type Client interface {
	Database(name string) Database
	Disconnect(ctx context.Context) error
}
