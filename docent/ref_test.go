package docent_test

import (
	"encoding/json"
	"testing"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/testutil"
)

func TestRefStates(t *testing.T) {
	var zero docent.Ref[testutil.Author]
	if !zero.IsZero() || zero.Resolved() {
		t.Fatal("zero ref should be zero and unresolved")
	}

	id := docent.NewID()
	unresolved := docent.NewRef[testutil.Author](id)
	if unresolved.IsZero() || unresolved.Resolved() {
		t.Fatal("identifier-only ref should be unresolved, not zero")
	}
	if unresolved.ID() != id {
		t.Fatalf("ID = %s, want %s", unresolved.ID(), id)
	}
	if unresolved.Doc() != nil {
		t.Fatal("unresolved ref should carry no document")
	}

	author := &testutil.Author{Name: "alice"}
	author.ID = docent.NewID()
	resolved := docent.ResolvedRef(author)
	if !resolved.Resolved() || resolved.Doc() != author {
		t.Fatal("resolved ref should carry the document")
	}
	if resolved.ID() != author.ID {
		t.Fatalf("resolved ID = %s, want %s", resolved.ID(), author.ID)
	}
}

func TestRefJSON(t *testing.T) {
	id := docent.NewID()
	ref := docent.NewRef[testutil.Author](id)

	data, err := json.Marshal(ref)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"`+id.String()+`"` {
		t.Fatalf("marshal = %s", data)
	}

	var back docent.Ref[testutil.Author]
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID() != id || back.Resolved() {
		t.Fatalf("roundtrip ref = %+v", back)
	}

	var zero docent.Ref[testutil.Author]
	data, err = json.Marshal(zero)
	if err != nil {
		t.Fatalf("marshal zero: %v", err)
	}
	if string(data) != "null" {
		t.Fatalf("zero ref = %s, want null", data)
	}
	var fromNull docent.Ref[testutil.Author]
	if err := json.Unmarshal([]byte("null"), &fromNull); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !fromNull.IsZero() {
		t.Fatal("null should decode to the zero ref")
	}
}
