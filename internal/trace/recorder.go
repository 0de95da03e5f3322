package trace

import "sync"

// Sink receives the decisions the orchestrator, prose merge and patch stage
// make during a run. A run never fails because of its sink.
type Sink interface {
	Record(event Event)
}

// NopSink drops every decision.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord hands event to s. A nil sink or a panicking one is ignored.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder keeps a run's decisions in memory until the run writes
// trace.json. Tasks running in parallel may record at the same time.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot copies the decisions recorded so far, in arrival order.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace returns the run's decisions for document, sorted so that two runs
// over the same inputs hash alike whatever the task scheduling was.
func (r *Recorder) Trace(document string) DecisionTrace {
	tr := DecisionTrace{Document: document}
	tr.Events = r.Snapshot()
	tr.Canonicalize()
	return tr
}
