package metrics

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// MemoryObserver keeps every event in memory. Test and inspection use only.
type MemoryObserver struct {
	mu     sync.Mutex
	Events []MetricsEvent
}

func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (m *MemoryObserver) RecordEvent(ev MetricsEvent) {
	m.mu.Lock()
	m.Events = append(m.Events, ev)
	m.mu.Unlock()
}

// Named returns the recorded events matching name.
func (m *MemoryObserver) Named(name string) []MetricsEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MetricsEvent
	for _, ev := range m.Events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// JSONLObserver writes one JSON line per event, suitable for a session
// timeline artifact.
type JSONLObserver struct {
	logger *slog.Logger
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{logger: slog.New(slog.NewJSONHandler(w, nil))}
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	attrs := []slog.Attr{
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.logger.LogAttrs(nil, slog.LevelInfo, ev.Name, attrs...)
}

// AsyncObserver decouples recording from the hot path. Events are dropped,
// not blocked on, when the buffer is full.
type AsyncObserver struct {
	inner   Observer
	ch      chan MetricsEvent
	dropped int64
	closed  atomic.Bool
	once    sync.Once
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	a := &AsyncObserver{inner: inner, ch: make(chan MetricsEvent, buffer)}
	go a.loop()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil || a.closed.Load() {
		return
	}
	select {
	case a.ch <- ev:
	default:
		atomic.AddInt64(&a.dropped, 1)
	}
}

func (a *AsyncObserver) Dropped() int64 {
	return atomic.LoadInt64(&a.dropped)
}

func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.once.Do(func() {
		a.closed.Store(true)
		close(a.ch)
	})
}

func (a *AsyncObserver) loop() {
	for ev := range a.ch {
		a.inner.RecordEvent(ev)
	}
}
