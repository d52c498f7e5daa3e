// Package testutil provides test scaffolding: an isolated in-memory
// connection per test and a small seeded universe of related entities.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/docent-db/docent/docent"
	_ "github.com/docent-db/docent/docent/memstore"
)

var dbSeq atomic.Int64

// Connect binds the default connection to a fresh in-memory database
// and tears it down when the test finishes.
func Connect(t *testing.T) {
	t.Helper()
	uri := fmt.Sprintf("mem://test/db%d", dbSeq.Add(1))
	if err := docent.Connect(context.Background(), uri); err != nil {
		t.Fatalf("connect %s: %v", uri, err)
	}
	t.Cleanup(func() {
		if err := docent.Disconnect(context.Background()); err != nil {
			t.Errorf("disconnect: %v", err)
		}
	})
}

// Author is a fixture entity with a unique index.
type Author struct {
	docent.Document
	docent.Timestamps
	Name  string `docent:"name" index:"1"`
	Email string `docent:"email" index:"1,unique"`
	Bio   string `docent:"bio"`
}

// Post is a fixture entity exercising timestamps, soft deletion and a
// reference.
type Post struct {
	docent.Document
	docent.Timestamps
	docent.SoftDelete
	Title     string             `docent:"title" index:"1"`
	Body      string             `docent:"body"`
	Views     int                `docent:"views"`
	Published bool               `docent:"published"`
	Author    docent.Ref[Author] `docent:"author" ref:"Author"`
}

// Comment is a fixture entity with two references, one of them nested
// behind Post for multi-segment populate paths.
type Comment struct {
	docent.Document
	Body   string             `docent:"body"`
	Post   docent.Ref[Post]   `docent:"post" ref:"Post"`
	Author docent.Ref[Author] `docent:"author" ref:"Author"`
}

// Universe is a seeded object graph: three authors, twenty-five posts
// spread round-robin across them, and five comments on the first post.
type Universe struct {
	Authors  *docent.Collection[Author]
	Posts    *docent.Collection[Post]
	Comments *docent.Collection[Comment]

	AuthorList  []*Author
	PostList    []*Post
	CommentList []*Comment
}

// NewUniverse connects, builds the fixture collections and seeds them.
func NewUniverse(t *testing.T) *Universe {
	t.Helper()
	Connect(t)
	ctx := context.Background()

	authors, err := docent.NewCollection[Author]()
	if err != nil {
		t.Fatalf("authors collection: %v", err)
	}
	posts, err := docent.NewCollection[Post]()
	if err != nil {
		t.Fatalf("posts collection: %v", err)
	}
	comments, err := docent.NewCollection[Comment]()
	if err != nil {
		t.Fatalf("comments collection: %v", err)
	}
	if err := authors.EnsureIndexes(ctx); err != nil {
		t.Fatalf("author indexes: %v", err)
	}
	if err := posts.EnsureIndexes(ctx); err != nil {
		t.Fatalf("post indexes: %v", err)
	}

	u := &Universe{Authors: authors, Posts: posts, Comments: comments}

	for i, name := range []string{"alice", "bob", "carol"} {
		a := &Author{
			Name:  name,
			Email: fmt.Sprintf("%s@example.com", name),
			Bio:   fmt.Sprintf("author %d", i),
		}
		if err := authors.Save(ctx, a); err != nil {
			t.Fatalf("seed author %s: %v", name, err)
		}
		u.AuthorList = append(u.AuthorList, a)
	}

	for i := 0; i < 25; i++ {
		author := u.AuthorList[i%len(u.AuthorList)]
		p := &Post{
			Title:     fmt.Sprintf("post %02d", i),
			Body:      fmt.Sprintf("body of post %02d", i),
			Views:     i * 10,
			Published: i%2 == 0,
			Author:    docent.NewRef[Author](author.ID),
		}
		if err := posts.Save(ctx, p); err != nil {
			t.Fatalf("seed post %d: %v", i, err)
		}
		u.PostList = append(u.PostList, p)
	}

	for i := 0; i < 5; i++ {
		c := &Comment{
			Body:   fmt.Sprintf("comment %d", i),
			Post:   docent.NewRef[Post](u.PostList[0].ID),
			Author: docent.NewRef[Author](u.AuthorList[i%len(u.AuthorList)].ID),
		}
		if err := comments.Save(ctx, c); err != nil {
			t.Fatalf("seed comment %d: %v", i, err)
		}
		u.CommentList = append(u.CommentList, c)
	}
	return u
}
