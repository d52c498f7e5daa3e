package docent_test

import (
	"testing"

	"github.com/docent-db/docent/docent"
)

type noDocument struct {
	Name string `docent:"name"`
}

type badEncrypted struct {
	docent.Document
	Count int `docent:"count" encrypted:"true"`
}

type refWithoutTag struct {
	docent.Document
	Other docent.Ref[Account] `docent:"other"`
}

type duplicateKeys struct {
	docent.Document
	A string `docent:"same"`
	B string `docent:"same"`
}

type reservedKey struct {
	docent.Document
	Inner string `docent:"_id"`
}

func TestSchemaRejections(t *testing.T) {
	t.Run("missing Document embed", func(t *testing.T) {
		if _, err := docent.NewCollection[noDocument](); err == nil {
			t.Fatal("expected an error")
		}
	})
	t.Run("encrypted non-string", func(t *testing.T) {
		if _, err := docent.NewCollection[badEncrypted](); err == nil {
			t.Fatal("expected an error")
		}
	})
	t.Run("ref without target tag", func(t *testing.T) {
		if _, err := docent.NewCollection[refWithoutTag](); err == nil {
			t.Fatal("expected an error")
		}
	})
	t.Run("duplicate wire key", func(t *testing.T) {
		if _, err := docent.NewCollection[duplicateKeys](); err == nil {
			t.Fatal("expected an error")
		}
	})
	t.Run("reserved identifier key", func(t *testing.T) {
		if _, err := docent.NewCollection[reservedKey](); err == nil {
			t.Fatal("expected an error")
		}
	})
}

type Shape struct {
	docent.Document
	ShortName string `docent:"short"`
	HTMLBody  string
	CreatedBy string `docent:"-"`
}

func TestDerivedWireKeys(t *testing.T) {
	col, err := docent.NewCollection[Shape]()
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	// Collection naming exercises the same snake_case derivation the
	// untagged HTMLBody field gets (html_body).
	if col.Name() != "shapes" {
		t.Fatalf("name = %q", col.Name())
	}
}

type Dictionary struct{ docent.Document }
type Bus struct{ docent.Document }
type Toy struct{ docent.Document }

func TestCollectionNamePluralization(t *testing.T) {
	cases := []struct {
		build func() (string, error)
		want  string
	}{
		{func() (string, error) {
			c, err := docent.NewCollection[Dictionary]()
			if err != nil {
				return "", err
			}
			return c.Name(), nil
		}, "dictionaries"},
		{func() (string, error) {
			c, err := docent.NewCollection[Bus]()
			if err != nil {
				return "", err
			}
			return c.Name(), nil
		}, "buses"},
		{func() (string, error) {
			c, err := docent.NewCollection[Toy]()
			if err != nil {
				return "", err
			}
			return c.Name(), nil
		}, "toys"},
	}
	for _, tc := range cases {
		got, err := tc.build()
		if err != nil {
			t.Fatalf("collection: %v", err)
		}
		if got != tc.want {
			t.Fatalf("name = %q, want %q", got, tc.want)
		}
	}
}
