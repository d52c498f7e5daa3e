package docent

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// typeEntry is what the registry knows about one entity type: its
// registered name, parsed declaration, and a batch fetcher the populate
// engine uses to hydrate references pointing at it.
type typeEntry struct {
	name   string
	typ    reflect.Type
	schema *schema

	// fetch loads the given identifiers in one query, returning hydrated
	// *T values keyed by identifier. Missing identifiers are absent from
	// the map, not an error.
	fetch func(ctx context.Context, ids []ID) (map[ID]any, error)
}

// TypeRegistry resolves entity names to types. Ref fields declare their
// target by name (`ref:"Author"`), and the populate engine looks the
// name up here to know which collection to fetch from. Collections
// register their entity type on construction.
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]*typeEntry
	byType map[reflect.Type]*typeEntry
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]*typeEntry),
		byType: make(map[reflect.Type]*typeEntry),
	}
}

var defaultTypes = NewTypeRegistry()

// DefaultTypes returns the process-wide type registry.
func DefaultTypes() *TypeRegistry { return defaultTypes }

// register installs an entry, replacing any previous registration of the
// same name or type. Last registration wins, which lets tests rebuild
// collections freely.
func (r *TypeRegistry) register(e *typeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[e.name] = e
	r.byType[e.typ] = e
}

func (r *TypeRegistry) lookupName(name string) (*typeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredType, name)
	}
	return e, nil
}

func (r *TypeRegistry) lookupType(t reflect.Type) (*typeEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byType[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, t)
	}
	return e, nil
}
