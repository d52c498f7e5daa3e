package docent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/store"
	"github.com/docent-db/docent/docent/testutil"
)

type Account struct {
	docent.Document
	Name    string `docent:"name"`
	Email   string `docent:"email"`
	Balance int    `docent:"balance"`
}

func (a *Account) Validate() error {
	if a.Name == "" {
		return docent.ValidationErrorf("name is required")
	}
	return nil
}

func newAccounts(t *testing.T) (*docent.Collection[Account], *docent.Tracer) {
	t.Helper()
	testutil.Connect(t)
	tracer := docent.NewTracer(nil)
	col, err := docent.NewCollection[Account](docent.WithTracer(tracer))
	if err != nil {
		t.Fatalf("failed to build collection: %v", err)
	}
	return col, tracer
}

func TestSaveAndGet(t *testing.T) {
	col, _ := newAccounts(t)
	ctx := context.Background()

	acct := &Account{Name: "ada", Email: "ada@example.com", Balance: 100}
	if !acct.IsNew() {
		t.Fatal("unsaved entity should be new")
	}
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("save: %v", err)
	}
	if acct.ID.IsZero() {
		t.Fatal("save should assign an identifier")
	}
	if acct.IsNew() || !acct.IsLoaded() {
		t.Fatal("saved entity should be loaded, not new")
	}

	got, err := col.Get(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "ada" || got.Email != "ada@example.com" || got.Balance != 100 {
		t.Fatalf("unexpected roundtrip: %+v", got)
	}
	if got.IsNew() || !got.IsLoaded() {
		t.Fatal("hydrated entity should be loaded")
	}

	// String form of the identifier works too.
	if _, err := col.Get(ctx, acct.ID.String()); err != nil {
		t.Fatalf("get by string: %v", err)
	}
}

func TestCreateAndInsert(t *testing.T) {
	col, _ := newAccounts(t)
	ctx := context.Background()

	acct, err := col.Create(ctx, &Account{Name: "ada", Email: "ada@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acct.ID.IsZero() || acct.IsNew() {
		t.Fatal("created entity should be persisted")
	}
	if dirty, _ := col.DirtyFields(acct); len(dirty) != 0 {
		t.Fatalf("created entity should be clean, dirty=%v", dirty)
	}

	if err := col.Insert(ctx, acct); !errors.Is(err, docent.ErrInvalidUpdate) {
		t.Fatalf("re-insert should be rejected, got %v", err)
	}
}

func TestFindOne(t *testing.T) {
	col, _ := newAccounts(t)
	ctx := context.Background()

	if _, err := col.Create(ctx, &Account{Name: "ada", Email: "ada@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := col.FindOne(ctx, store.Filter{"email": "ada@example.com"})
	if err != nil {
		t.Fatalf("find one: %v", err)
	}
	if got == nil || got.Name != "ada" {
		t.Fatalf("find one = %+v, want ada", got)
	}

	missing, err := col.FindOne(ctx, store.Filter{"email": "nobody@example.com"})
	if err != nil {
		t.Fatalf("find one miss: %v", err)
	}
	if missing != nil {
		t.Fatalf("find one miss = %+v, want nil", missing)
	}
}

func TestGetErrors(t *testing.T) {
	col, _ := newAccounts(t)
	ctx := context.Background()

	if _, err := col.Get(ctx, docent.NewID()); !errors.Is(err, docent.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := col.Get(ctx, "not-a-uuid"); !errors.Is(err, docent.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := col.Get(ctx, 42); !errors.Is(err, docent.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for int, got %v", err)
	}
}

func TestCleanSaveIsNoOp(t *testing.T) {
	col, tracer := newAccounts(t)
	ctx := context.Background()

	var preValidate, preSave int
	docent.RegisterHook(col.Hooks(), docent.HookPreValidate, "count-validate", func(ctx context.Context, e *Account) error {
		preValidate++
		return nil
	})
	docent.RegisterHook(col.Hooks(), docent.HookPreSave, "count-save", func(ctx context.Context, e *Account) error {
		preSave++
		return nil
	})

	acct := &Account{Name: "ada", Email: "ada@example.com"}
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("save: %v", err)
	}
	if preValidate != 1 || preSave != 1 {
		t.Fatalf("initial save hooks = %d/%d, want 1/1", preValidate, preSave)
	}

	tracer.SetCapture(true)
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("clean save: %v", err)
	}
	if events := tracer.Captured(); len(events) != 0 {
		t.Fatalf("clean save ran %d store operations, want 0", len(events))
	}
	// A clean save must not fire lifecycle hooks either.
	if preValidate != 1 || preSave != 1 {
		t.Fatalf("clean save hooks = %d/%d, want 1/1", preValidate, preSave)
	}
}

func TestDirtySaveIsPartial(t *testing.T) {
	col, tracer := newAccounts(t)
	ctx := context.Background()

	acct := &Account{Name: "ada", Email: "ada@example.com", Balance: 100}
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("save: %v", err)
	}

	acct.Balance = 250
	dirty, err := col.DirtyFields(acct)
	if err != nil {
		t.Fatalf("dirty fields: %v", err)
	}
	if len(dirty) != 1 || dirty[0] != "balance" {
		t.Fatalf("dirty fields = %v, want [balance]", dirty)
	}

	tracer.SetCapture(true)
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("dirty save: %v", err)
	}
	events := tracer.Captured()
	if len(events) != 1 || events[0].Op != "update" {
		t.Fatalf("expected one update event, got %+v", events)
	}
	set, ok := events[0].Update["$set"].(store.Doc)
	if !ok {
		t.Fatalf("update carries no $set: %+v", events[0].Update)
	}
	if len(set) != 1 {
		t.Fatalf("$set carries %d fields, want only the changed one: %v", len(set), set)
	}
	if _, ok := set["balance"]; !ok {
		t.Fatalf("$set misses balance: %v", set)
	}

	if clean, err := col.IsDirty(acct); err != nil || clean {
		t.Fatalf("entity should be clean after save, dirty=%v err=%v", clean, err)
	}
}

func TestValidationBlocksSave(t *testing.T) {
	col, _ := newAccounts(t)
	ctx := context.Background()

	acct := &Account{Email: "nameless@example.com"}
	err := col.Save(ctx, acct)
	if !errors.Is(err, docent.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !acct.IsNew() {
		t.Fatal("failed save should leave the entity new")
	}
}

func TestUpdate(t *testing.T) {
	col, tracer := newAccounts(t)
	ctx := context.Background()

	acct := &Account{Name: "ada", Email: "ada@example.com", Balance: 100}
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("save: %v", err)
	}

	t.Run("applies and persists named fields", func(t *testing.T) {
		tracer.SetCapture(true)
		defer tracer.SetCapture(false)
		if err := col.Update(ctx, acct, map[string]any{"Balance": 500}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if acct.Balance != 500 {
			t.Fatalf("balance = %d, want 500", acct.Balance)
		}
		got, err := col.Get(ctx, acct.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Balance != 500 {
			t.Fatalf("persisted balance = %d, want 500", got.Balance)
		}
		events := tracer.Captured()
		if len(events) == 0 || events[0].Op != "update" {
			t.Fatalf("expected update event, got %+v", events)
		}
	})

	t.Run("accepts wire keys", func(t *testing.T) {
		if err := col.Update(ctx, acct, map[string]any{"email": "ada@new.example.com"}); err != nil {
			t.Fatalf("update by wire key: %v", err)
		}
		if acct.Email != "ada@new.example.com" {
			t.Fatalf("email not applied: %q", acct.Email)
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		err := col.Update(ctx, acct, map[string]any{"nope": 1})
		if !errors.Is(err, docent.ErrInvalidUpdate) {
			t.Fatalf("expected ErrInvalidUpdate, got %v", err)
		}
	})

	t.Run("validates before touching the entity", func(t *testing.T) {
		before := acct.Name
		err := col.Update(ctx, acct, map[string]any{"Name": ""})
		if !errors.Is(err, docent.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if acct.Name != before {
			t.Fatalf("rejected update mutated the entity: %q", acct.Name)
		}
	})

	t.Run("other local changes stay dirty", func(t *testing.T) {
		acct.Name = "lovelace"
		if err := col.Update(ctx, acct, map[string]any{"Balance": 750}); err != nil {
			t.Fatalf("update: %v", err)
		}
		dirty, err := col.DirtyFields(acct)
		if err != nil {
			t.Fatalf("dirty fields: %v", err)
		}
		if len(dirty) != 1 || dirty[0] != "name" {
			t.Fatalf("dirty fields = %v, want [name]", dirty)
		}
	})
}

func TestReload(t *testing.T) {
	col, _ := newAccounts(t)
	ctx := context.Background()

	acct := &Account{Name: "ada", Email: "ada@example.com", Balance: 100}
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Simulate a concurrent change, then a local one.
	other, err := col.Get(ctx, acct.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := col.Update(ctx, other, map[string]any{"Balance": 999}); err != nil {
		t.Fatalf("update: %v", err)
	}
	acct.Name = "scratch"

	if err := col.Reload(ctx, acct); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if acct.Name != "ada" || acct.Balance != 999 {
		t.Fatalf("reload got %+v, want fresh stored state", acct)
	}
	if dirty, _ := col.DirtyFields(acct); len(dirty) != 0 {
		t.Fatalf("reloaded entity should be clean, dirty=%v", dirty)
	}
}

func TestDelete(t *testing.T) {
	col, _ := newAccounts(t)
	ctx := context.Background()

	acct := &Account{Name: "ada", Email: "ada@example.com"}
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := col.Delete(ctx, acct); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := col.Get(ctx, acct.ID); !errors.Is(err, docent.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := col.Delete(ctx, acct); !errors.Is(err, docent.ErrNotFound) {
		t.Fatalf("double delete should report ErrNotFound, got %v", err)
	}

	// A hard-deleted entity is new again and may be re-saved.
	if !acct.IsNew() {
		t.Fatal("deleted entity should be new")
	}
	if err := col.Save(ctx, acct); err != nil {
		t.Fatalf("re-save after delete: %v", err)
	}
}

func TestCollectionNaming(t *testing.T) {
	testutil.Connect(t)

	col, err := docent.NewCollection[Account]()
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if col.Name() != "accounts" {
		t.Fatalf("derived name = %q, want accounts", col.Name())
	}
	if col.EntityName() != "Account" {
		t.Fatalf("entity name = %q, want Account", col.EntityName())
	}

	named, err := docent.NewCollection[Account](docent.WithName("ledger"))
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	if named.Name() != "ledger" {
		t.Fatalf("explicit name = %q, want ledger", named.Name())
	}
}

func TestNotConnected(t *testing.T) {
	reg := docent.NewConnRegistry(nil)
	col, err := docent.NewCollection[Account](docent.WithConnRegistry(reg))
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	err = col.Save(context.Background(), &Account{Name: "ada"})
	if !errors.Is(err, docent.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}
