package memstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"

	"github.com/docent-db/docent/docent/store"
)

var persistJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// fileSnapshot is the on-disk shape: the whole store in one JSON
// document. Times flatten to RFC 3339 strings and identifiers to plain
// strings; the filter and codec layers accept both forms, so a reloaded
// store behaves like the original.
type fileSnapshot struct {
	Databases map[string]dbSnapshot `json:"databases"`
}

type dbSnapshot struct {
	Collections map[string]collSnapshot `json:"collections"`
}

type collSnapshot struct {
	Docs    []store.Doc        `json:"docs,omitempty"`
	Indexes []store.IndexModel `json:"indexes,omitempty"`
}

// persister owns one store file and its advisory lock. The lock is held
// for the lifetime of the client, so a second process opening the same
// path fails fast instead of silently clobbering writes.
type persister struct {
	path string
	lock *flock.Flock
}

func openPersister(path string) (*persister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("memstore: create store directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("memstore: lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("memstore: %s is locked by another process", path)
	}
	return &persister{path: path + ".json", lock: lock}, nil
}

func (p *persister) load() (fileSnapshot, error) {
	snap := fileSnapshot{Databases: make(map[string]dbSnapshot)}
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("memstore: read %s: %w", p.path, err)
	}
	if len(data) == 0 {
		return snap, nil
	}
	if err := persistJSON.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("memstore: parse %s: %w", p.path, err)
	}
	if snap.Databases == nil {
		snap.Databases = make(map[string]dbSnapshot)
	}
	return snap, nil
}

// save writes the snapshot through a temp file and rename, so a crash
// mid-write never leaves a torn store file behind.
func (p *persister) save(snap fileSnapshot) error {
	data, err := persistJSON.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("memstore: encode store: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memstore: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("memstore: replace %s: %w", p.path, err)
	}
	return nil
}

func (p *persister) close() error {
	return p.lock.Unlock()
}
