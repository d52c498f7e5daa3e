package docent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/store"
	"github.com/docent-db/docent/docent/testutil"
)

func TestQueryAll(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	all, err := u.Posts.FindAll().All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 25 {
		t.Fatalf("got %d posts, want 25", len(all))
	}

	published, err := u.Posts.Find(store.Filter{"published": true}).All(ctx)
	if err != nil {
		t.Fatalf("published: %v", err)
	}
	if len(published) != 13 {
		t.Fatalf("got %d published posts, want 13", len(published))
	}
}

func TestQueryOperators(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		filter store.Filter
		want   int64
	}{
		{"gte", store.Filter{"views": store.Doc{"$gte": 200}}, 5},
		{"lt", store.Filter{"views": store.Doc{"$lt": 30}}, 3},
		{"ne", store.Filter{"published": store.Doc{"$ne": true}}, 12},
		{"in", store.Filter{"title": store.Doc{"$in": []any{"post 00", "post 01", "missing"}}}, 2},
		{"regex", store.Filter{"title": store.Doc{"$regex": "^post 1"}}, 10},
		{"or", store.Filter{"$or": []store.Filter{
			{"views": 0},
			{"views": 240},
		}}, 2},
		{"combined", store.Filter{
			"published": true,
			"views":     store.Doc{"$gt": 0, "$lte": 100},
		}, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := u.Posts.Find(tc.filter).Count(ctx)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != tc.want {
				t.Fatalf("count = %d, want %d", n, tc.want)
			}
		})
	}
}

func TestQueryImmutability(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	base := u.Posts.Find(store.Filter{"published": true})
	narrowed := base.Where("views", store.Doc{"$gte": 200}).Limit(2)

	baseCount, err := base.Count(ctx)
	if err != nil {
		t.Fatalf("base count: %v", err)
	}
	if baseCount != 13 {
		t.Fatalf("builder leaked into shared base: count = %d, want 13", baseCount)
	}
	narrow, err := narrowed.All(ctx)
	if err != nil {
		t.Fatalf("narrowed: %v", err)
	}
	if len(narrow) != 2 {
		t.Fatalf("narrowed len = %d, want 2", len(narrow))
	}
}

func TestQuerySortSkipLimit(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	posts, err := u.Posts.FindAll().Sort("-views").Skip(1).Limit(3).All(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("len = %d, want 3", len(posts))
	}
	want := []int{230, 220, 210}
	for i, p := range posts {
		if p.Views != want[i] {
			t.Fatalf("posts[%d].Views = %d, want %d", i, p.Views, want[i])
		}
	}
}

func TestQueryOneAndFirst(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	one, err := u.Posts.Find(store.Filter{"title": "post 07"}).One(ctx)
	if err != nil {
		t.Fatalf("one: %v", err)
	}
	if one.Title != "post 07" {
		t.Fatalf("got %q", one.Title)
	}

	if _, err := u.Posts.Find(store.Filter{"title": "nope"}).One(ctx); !errors.Is(err, docent.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := u.Posts.Find(store.Filter{"published": true}).One(ctx); !errors.Is(err, docent.ErrMultipleFound) {
		t.Fatalf("expected ErrMultipleFound, got %v", err)
	}

	first, err := u.Posts.FindAll().Sort("title").First(ctx)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Title != "post 00" {
		t.Fatalf("first = %q, want post 00", first.Title)
	}
}

func TestQueryExistsAndDistinct(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	ok, err := u.Posts.Find(store.Filter{"views": 240}).Exists(ctx)
	if err != nil || !ok {
		t.Fatalf("exists = %v, err %v", ok, err)
	}
	ok, err = u.Posts.Find(store.Filter{"views": -1}).Exists(ctx)
	if err != nil || ok {
		t.Fatalf("exists = %v for impossible filter, err %v", ok, err)
	}

	values, err := u.Posts.FindAll().Distinct(ctx, "published")
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("distinct published = %v, want two values", values)
	}
}

func TestDeleteManyGuard(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	if _, err := u.Comments.FindAll().Delete(ctx); !errors.Is(err, docent.ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}

	n, err := u.Comments.Find(store.Filter{"body": "comment 0"}).Delete(ctx)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("deleted %d, want 1", n)
	}

	n, err = u.Comments.FindAll().DeleteAll(ctx)
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n != 4 {
		t.Fatalf("deleted %d, want 4", n)
	}
}

func TestUpdateMany(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	if _, err := u.Posts.FindAll().Update(ctx, store.Update{"$set": store.Doc{"views": 0}}); !errors.Is(err, docent.ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}

	// A bare replacement document is not an update.
	_, err := u.Posts.Find(store.Filter{"published": true}).Update(ctx, store.Update{"views": 0})
	if !errors.Is(err, docent.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}

	n, err := u.Posts.Find(store.Filter{"published": false}).Update(ctx, store.Update{"$set": store.Doc{"views": 0}})
	if err != nil {
		t.Fatalf("update many: %v", err)
	}
	if n != 12 {
		t.Fatalf("matched %d, want 12", n)
	}
	zeroed, err := u.Posts.Find(store.Filter{"views": 0}).Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	// 12 unpublished zeroed plus post 00 which started at 0.
	if zeroed != 13 {
		t.Fatalf("zeroed = %d, want 13", zeroed)
	}
}

func TestPaginate(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	qs := u.Posts.FindAll().Sort("title")

	page, err := qs.Paginate(ctx, 3, 10)
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if page.Total != 25 || page.TotalPages != 3 {
		t.Fatalf("total = %d pages = %d, want 25/3", page.Total, page.TotalPages)
	}
	if len(page.Items) != 5 {
		t.Fatalf("page 3 holds %d items, want 5", len(page.Items))
	}
	if !page.HasPrev || page.HasNext {
		t.Fatalf("page 3 flags: prev=%v next=%v", page.HasPrev, page.HasNext)
	}
	if page.Items[0].Title != "post 20" {
		t.Fatalf("page 3 starts at %q, want post 20", page.Items[0].Title)
	}

	if _, err := qs.Paginate(ctx, 0, 10); !errors.Is(err, docent.ErrInvalidPagination) {
		t.Fatalf("expected ErrInvalidPagination, got %v", err)
	}
}

func TestCursorPaginate(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	seen := make(map[docent.ID]bool)
	cursor := ""
	pages := 0
	for {
		page, err := u.Posts.FindAll().CursorPaginate(ctx, cursor, 10)
		if err != nil {
			t.Fatalf("cursor paginate: %v", err)
		}
		pages++
		for _, p := range page.Items {
			if seen[p.ID] {
				t.Fatalf("post %s returned twice", p.ID)
			}
			seen[p.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 25 {
		t.Fatalf("walked %d posts, want 25", len(seen))
	}
	if pages != 3 {
		t.Fatalf("walked %d pages, want 3", pages)
	}

	if _, err := u.Posts.FindAll().CursorPaginate(ctx, "garbage", 10); !errors.Is(err, docent.ErrInvalidPagination) {
		t.Fatalf("expected ErrInvalidPagination for bad cursor, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	u := testutil.NewUniverse(t)
	ctx := context.Background()

	plan, err := u.Posts.FindAll().ByID(u.PostList[0].ID).Explain(ctx)
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if plan["plan"] == nil {
		t.Fatalf("explain returned no plan: %v", plan)
	}
}
