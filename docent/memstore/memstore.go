// Package memstore is the bundled store driver: a concurrency-safe
// in-memory document store with an optional single-file persistence
// layer. It registers itself for the "mem" (volatile) and "file"
// (persisted) URI schemes:
//
//	mem://local/blog
//	file:///var/data/blog
//
// The file form keeps the whole store in one JSON file next to an
// advisory lock, so two processes cannot open it at once. It is meant
// for tests, tooling and small deployments, not for contended
// production load.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/store"
)

type driver struct {
	persist bool
}

func init() {
	docent.RegisterDriver("mem", driver{})
	docent.RegisterDriver("file", driver{persist: true})
}

func (d driver) Open(ctx context.Context, uri string) (store.Client, error) {
	_, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, fmt.Errorf("memstore: malformed uri %q", uri)
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}

	c := &client{databases: make(map[string]*database)}
	if !d.persist {
		return c, nil
	}

	if !strings.HasPrefix(rest, "/") {
		return nil, fmt.Errorf("memstore: file uri needs an absolute path, got %q", rest)
	}
	p, err := openPersister(rest)
	if err != nil {
		return nil, err
	}
	c.persist = p

	snap, err := p.load()
	if err != nil {
		p.close()
		return nil, err
	}
	c.restore(snap)
	return c, nil
}

type client struct {
	mu        sync.Mutex
	databases map[string]*database
	persist   *persister
	closed    bool
}

func (c *client) Database(name string) store.Database {
	c.mu.Lock()
	defer c.mu.Unlock()
	db, ok := c.databases[name]
	if !ok {
		db = &database{client: c, name: name, collections: make(map[string]*collection)}
		c.databases[name] = db
	}
	return db
}

func (c *client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.persist == nil {
		return nil
	}
	if err := c.persist.save(c.snapshotLocked()); err != nil {
		c.persist.close()
		return err
	}
	return c.persist.close()
}

// flush writes the whole store to disk after a mutation. Volatile
// clients flush into nothing.
func (c *client) flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.persist == nil || c.closed {
		return nil
	}
	return c.persist.save(c.snapshotLocked())
}

func (c *client) snapshotLocked() fileSnapshot {
	snap := fileSnapshot{Databases: make(map[string]dbSnapshot, len(c.databases))}
	for name, db := range c.databases {
		snap.Databases[name] = db.snapshot()
	}
	return snap
}

func (c *client) restore(snap fileSnapshot) {
	for dbName, dbSnap := range snap.Databases {
		db := &database{client: c, name: dbName, collections: make(map[string]*collection)}
		for collName, collSnap := range dbSnap.Collections {
			coll := newCollection(db, collName)
			coll.restore(collSnap)
			db.collections[collName] = coll
		}
		c.databases[dbName] = db
	}
}

type database struct {
	client *client
	name   string

	mu          sync.Mutex
	collections map[string]*collection
}

func (d *database) Name() string { return d.name }

func (d *database) Collection(name string) store.Collection {
	d.mu.Lock()
	defer d.mu.Unlock()
	coll, ok := d.collections[name]
	if !ok {
		coll = newCollection(d, name)
		d.collections[name] = coll
	}
	return coll
}

func (d *database) snapshot() dbSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap := dbSnapshot{Collections: make(map[string]collSnapshot, len(d.collections))}
	for name, coll := range d.collections {
		snap.Collections[name] = coll.snapshot()
	}
	return snap
}
