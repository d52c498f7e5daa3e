package docent_test

import (
	"errors"
	"testing"

	"github.com/docent-db/docent/docent"
)

func TestNewID(t *testing.T) {
	a := docent.NewID()
	b := docent.NewID()
	if a.IsZero() || b.IsZero() {
		t.Fatal("fresh identifiers should not be zero")
	}
	if a == b {
		t.Fatal("identifiers should be unique")
	}
	// The canonical form parses back.
	parsed, err := docent.ParseID(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != a {
		t.Fatalf("parsed %s, want %s", parsed, a)
	}
}

func TestParseIDRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "nope", "12345", "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"} {
		if _, err := docent.ParseID(s); !errors.Is(err, docent.ErrInvalidID) {
			t.Fatalf("ParseID(%q) = %v, want ErrInvalidID", s, err)
		}
	}
}

func TestIDZeroValue(t *testing.T) {
	var id docent.ID
	if !id.IsZero() {
		t.Fatal("zero value should report zero")
	}
	if id.String() != "" {
		t.Fatalf("zero string = %q", id.String())
	}
}
