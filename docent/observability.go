package docent

import (
	"log/slog"
	"sync"
	"time"

	"github.com/docent-db/docent/docent/store"
)

// QueryEvent describes one store operation a collection performed.
type QueryEvent struct {
	Op         string
	Collection string
	Entity     string
	Filter     store.Filter
	Update     store.Update
	Duration   time.Duration

	// Count is the operation's result cardinality: documents returned,
	// matched or deleted, depending on Op.
	Count int64

	Err error
	At  time.Time
}

// Listener receives query events. Listeners run synchronously on the
// calling goroutine; keep them fast. A panicking listener is recovered
// and logged, never propagated to the operation.
type Listener func(QueryEvent)

// Tracer observes every store operation of the collections it is
// attached to. It fans events out to subscribed listeners, optionally
// captures them for inspection in tests, and logs operations that exceed
// the slow-query threshold.
type Tracer struct {
	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int

	capture  bool
	captured []QueryEvent

	slow     time.Duration
	traceAll bool
	logger   *slog.Logger
}

// NewTracer builds a tracer logging through logger. A nil logger uses
// slog.Default.
func NewTracer(logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		listeners: make(map[int]Listener),
		logger:    logger,
	}
}

// defaultTracer is shared by collections built without WithTracer.
var defaultTracer = NewTracer(nil)

// DefaultTracer returns the process-wide tracer.
func DefaultTracer() *Tracer { return defaultTracer }

// Subscribe attaches a listener and returns its unsubscribe function.
func (t *Tracer) Subscribe(fn Listener) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.listeners, id)
	}
}

// SetCapture toggles event capture. Enabling it resets the buffer.
func (t *Tracer) SetCapture(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.capture = on
	t.captured = nil
}

// Captured returns a copy of the events captured since capture was
// enabled or last reset.
func (t *Tracer) Captured() []QueryEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]QueryEvent, len(t.captured))
	copy(out, t.captured)
	return out
}

// ResetCaptured clears the capture buffer without toggling capture.
func (t *Tracer) ResetCaptured() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.captured = nil
}

// SetSlowThreshold enables slow-query warnings for operations that take
// at least d. Zero disables them.
func (t *Tracer) SetSlowThreshold(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slow = d
}

// SetTraceAll toggles debug logging of every operation.
func (t *Tracer) SetTraceAll(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.traceAll = on
}

// start begins timing one operation. The returned done must be called
// exactly once with the result cardinality and error.
func (t *Tracer) start(op, collection, entity string, filter store.Filter, update store.Update) func(count int64, err error) {
	began := time.Now()
	return func(count int64, err error) {
		ev := QueryEvent{
			Op:         op,
			Collection: collection,
			Entity:     entity,
			Filter:     filter,
			Update:     update,
			Duration:   time.Since(began),
			Count:      count,
			Err:        err,
			At:         began,
		}
		t.emit(ev)
	}
}

func (t *Tracer) emit(ev QueryEvent) {
	t.mu.Lock()
	if t.capture {
		t.captured = append(t.captured, ev)
	}
	fns := make([]Listener, 0, len(t.listeners))
	for _, fn := range t.listeners {
		fns = append(fns, fn)
	}
	slow := t.slow
	traceAll := t.traceAll
	logger := t.logger
	t.mu.Unlock()

	if traceAll {
		logger.Debug("query",
			"op", ev.Op,
			"collection", ev.Collection,
			"duration", ev.Duration,
			"count", ev.Count)
	}
	if slow > 0 && ev.Duration >= slow {
		logger.Warn("slow query",
			"op", ev.Op,
			"collection", ev.Collection,
			"duration", ev.Duration,
			"filter", ev.Filter)
	}

	for _, fn := range fns {
		t.invoke(fn, ev, logger)
	}
}

func (t *Tracer) invoke(fn Listener, ev QueryEvent, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("query listener panicked",
				"op", ev.Op,
				"collection", ev.Collection,
				"panic", r)
		}
	}()
	fn(ev)
}
