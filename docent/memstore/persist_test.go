package memstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/store"
)

func TestFilePersistence(t *testing.T) {
	dir := t.TempDir()
	uri := "file://" + filepath.Join(dir, "blog")
	ctx := context.Background()

	reg := docent.NewConnRegistry(nil)
	if err := reg.Connect(ctx, uri); err != nil {
		t.Fatalf("connect: %v", err)
	}
	conn, err := reg.Get(docent.DefaultAlias)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	coll := conn.Database().Collection("posts")
	when := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if _, err := coll.InsertOne(ctx, store.Doc{"_id": "p1", "title": "hello", "at": when}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := coll.CreateIndex(ctx, store.IndexModel{
		Keys:   []store.IndexKey{{Field: "title"}},
		Unique: true,
	}); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if err := reg.DisconnectAll(ctx); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "blog.json")); err != nil {
		t.Fatalf("store file missing: %v", err)
	}

	// Reopen: documents, times and indexes survive.
	reg2 := docent.NewConnRegistry(nil)
	if err := reg2.Connect(ctx, uri); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	t.Cleanup(func() { _ = reg2.DisconnectAll(ctx) })
	conn2, err := reg2.Get(docent.DefaultAlias)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	coll2 := conn2.Database().Collection("posts")

	doc, err := coll2.FindOne(ctx, store.Filter{"_id": "p1"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if doc == nil || doc["title"] != "hello" {
		t.Fatalf("reloaded doc = %v", doc)
	}

	// Times flatten to RFC 3339 strings on disk; filters still match.
	doc, err = coll2.FindOne(ctx, store.Filter{"at": when})
	if err != nil {
		t.Fatalf("find by time: %v", err)
	}
	if doc == nil {
		t.Fatal("time filter missed the reloaded document")
	}

	// The unique index survives too.
	if _, err := coll2.InsertOne(ctx, store.Doc{"title": "hello"}); err == nil {
		t.Fatal("reloaded unique index not enforced")
	}
}

func TestFileLockExcludesSecondOpen(t *testing.T) {
	dir := t.TempDir()
	uri := "file://" + filepath.Join(dir, "locked")
	ctx := context.Background()

	reg := docent.NewConnRegistry(nil)
	if err := reg.Connect(ctx, uri); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = reg.DisconnectAll(ctx) })

	other := docent.NewConnRegistry(nil)
	if err := other.Connect(ctx, uri); err == nil {
		_ = other.DisconnectAll(ctx)
		t.Fatal("second open of a locked store should fail")
	}
}

func TestFileURIValidation(t *testing.T) {
	reg := docent.NewConnRegistry(nil)
	if err := reg.Connect(context.Background(), "file://relative/path"); err == nil {
		t.Fatal("relative file path should be rejected")
	}
}
