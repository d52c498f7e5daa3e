package docent_test

import (
	"context"
	"testing"
	"time"

	"github.com/docent-db/docent/docent"
	"github.com/docent-db/docent/docent/store"
	"github.com/docent-db/docent/docent/testutil"
)

type Ticket struct {
	docent.Document
	Subject string `docent:"subject"`
}

func newTickets(t *testing.T) (*docent.Collection[Ticket], *docent.Tracer) {
	t.Helper()
	testutil.Connect(t)
	tracer := docent.NewTracer(nil)
	col, err := docent.NewCollection[Ticket](docent.WithTracer(tracer))
	if err != nil {
		t.Fatalf("collection: %v", err)
	}
	return col, tracer
}

func TestTracerEvents(t *testing.T) {
	col, tracer := newTickets(t)
	ctx := context.Background()

	var events []docent.QueryEvent
	unsubscribe := tracer.Subscribe(func(ev docent.QueryEvent) {
		events = append(events, ev)
	})

	tk := &Ticket{Subject: "hello"}
	if err := col.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := col.Get(ctx, tk.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Op != "insert" || events[0].Collection != "tickets" || events[0].Entity != "Ticket" {
		t.Fatalf("insert event = %+v", events[0])
	}
	if events[1].Op != "find_one" || events[1].Count != 1 {
		t.Fatalf("find event = %+v", events[1])
	}
	if events[1].Duration < 0 {
		t.Fatalf("bogus duration %v", events[1].Duration)
	}

	unsubscribe()
	if err := col.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	tk.Subject = "changed"
	if err := col.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("unsubscribed listener still receiving, %d events", len(events))
	}
}

func TestTracerCapture(t *testing.T) {
	col, tracer := newTickets(t)
	ctx := context.Background()

	tracer.SetCapture(true)
	tk := &Ticket{Subject: "a"}
	if err := col.Save(ctx, tk); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := col.Find(store.Filter{"subject": "a"}).All(ctx); err != nil {
		t.Fatalf("find: %v", err)
	}

	events := tracer.Captured()
	if len(events) != 2 {
		t.Fatalf("captured %d events, want 2", len(events))
	}
	if events[1].Op != "find" || events[1].Count != 1 {
		t.Fatalf("find event = %+v", events[1])
	}

	tracer.ResetCaptured()
	if len(tracer.Captured()) != 0 {
		t.Fatal("reset left events behind")
	}
}

func TestListenerPanicIsRecovered(t *testing.T) {
	col, tracer := newTickets(t)
	ctx := context.Background()

	tracer.Subscribe(func(ev docent.QueryEvent) {
		panic("listener bug")
	})
	var after int
	tracer.Subscribe(func(ev docent.QueryEvent) {
		after++
	})

	// The operation must succeed and the second listener still fire.
	if err := col.Save(ctx, &Ticket{Subject: "ok"}); err != nil {
		t.Fatalf("save failed because of a listener: %v", err)
	}
	if after != 1 {
		t.Fatalf("second listener fired %d times, want 1", after)
	}
}

func TestSlowQueryThreshold(t *testing.T) {
	_, tracer := newTickets(t)

	// Only checks the setter surface; the warning itself is a log line.
	tracer.SetSlowThreshold(time.Millisecond)
	tracer.SetSlowThreshold(0)
	tracer.SetTraceAll(true)
	tracer.SetTraceAll(false)
}
