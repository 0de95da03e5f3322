package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"reportweaver/internal/errors"
)

// DecisionTrace is the canonical record of what a pipeline run decided.
//
// It captures logical outcomes only (task statuses, where each prose block
// went, which markers were missing) and never timestamps, error strings or
// offsets. Two runs that take the same decisions against the same document
// produce byte-identical canonical JSON and therefore the same hash.
//
// Canonical representation:
//   - Events are sorted via Canonicalize() using a fully-specified ordering.
//   - JSON serialization uses a custom marshaler to fix field order and omit absent optional fields.
//
// The trace is observational only and never affects pipeline behavior.
type DecisionTrace struct {
	// Document identifies the patched document (its base name and body part).
	Document string
	Events   []Event
}

// EventKind is the stable discriminator for Event.
// The string values are part of the trace's canonical bytes; do not rename.
type EventKind string

const (
	EventTaskOK              EventKind = "TaskOK"
	EventTaskFailed          EventKind = "TaskFailed"
	EventTaskSkipped         EventKind = "TaskSkipped"
	EventProseCollision      EventKind = "ProseCollision"
	EventProseUnmapped       EventKind = "ProseUnmapped"
	EventProseApplied        EventKind = "ProseApplied"
	EventProseAlreadyPresent EventKind = "ProseAlreadyPresent"
	EventProseEmpty          EventKind = "ProseEmpty"
	EventAnchorMissing       EventKind = "AnchorMissing"
	EventMarkerMissing       EventKind = "MarkerMissing"
	EventMarkerWaived        EventKind = "MarkerWaived"
)

// Event is a single logical decision.
//
// Subject is the task ID for task events, the prose key for prose events and
// the marker pattern for marker events.
type Event struct {
	Kind    EventKind
	Subject string

	// Reason is a stable reason code, e.g. the anchor tier "primary" or
	// "fallback", or "TaskUnavailable".
	Reason string

	// Cause records a related subject, e.g. the task that produced a prose key.
	Cause string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *DecisionTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	if t.Document == "" {
		return errors.New("document is required")
	}
	for i := range t.Events {
		e := t.Events[i]
		if e.Kind == "" {
			return errors.Newf("events[%d].kind is required", i)
		}
		if e.Subject == "" {
			return errors.Newf("events[%d].subject is required for kind %q", i, e.Kind)
		}
	}
	return nil
}

// Canonicalize sorts the trace into its canonical form.
//
// Ordering is independent of execution timing or concurrency: events are
// stably sorted by (kindOrder, subject, reason, cause).
func (t *DecisionTrace) Canonicalize() {
	if t == nil {
		return
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a := t.Events[i]
		b := t.Events[j]

		if kindOrder(a.Kind) != kindOrder(b.Kind) {
			return kindOrder(a.Kind) < kindOrder(b.Kind)
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		return a.Cause < b.Cause
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventTaskOK:
		return 10
	case EventTaskFailed:
		return 20
	case EventTaskSkipped:
		return 30
	case EventProseCollision:
		return 40
	case EventProseUnmapped:
		return 50
	case EventProseApplied:
		return 60
	case EventProseAlreadyPresent:
		return 70
	case EventProseEmpty:
		return 75
	case EventAnchorMissing:
		return 80
	case EventMarkerMissing:
		return 90
	case EventMarkerWaived:
		return 100
	default:
		return 1000
	}
}

// Count returns how many events of kind k the trace holds.
func (t DecisionTrace) Count(k EventKind) int {
	n := 0
	for _, e := range t.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// CanonicalJSON returns the canonical JSON encoding of the trace.
// It canonicalizes a copy of the trace to avoid mutating the caller's slices.
func (t DecisionTrace) CanonicalJSON() ([]byte, error) {
	cp := DecisionTrace{Document: t.Document}
	cp.Events = make([]Event, len(t.Events))
	copy(cp.Events, t.Events)
	cp.Canonicalize()
	if err := cp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&cp)
}

// Hash returns the sha256 hex digest of CanonicalJSON. Two runs that made
// the same decisions on the same document hash equal.
func (t DecisionTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalJSON ensures canonical field ordering.
func (t DecisionTrace) MarshalJSON() ([]byte, error) {
	if t.Document == "" {
		return nil, errors.New("document is required")
	}
	var buf bytes.Buffer
	buf.WriteString("{\"document\":")
	db, _ := json.Marshal(t.Document)
	buf.Write(db)

	buf.WriteString(",\"events\":[")
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON ensures canonical field ordering and omission of empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString("{\"kind\":")
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	buf.WriteString(",\"subject\":")
	sb, _ := json.Marshal(e.Subject)
	buf.Write(sb)

	if e.Reason != "" {
		buf.WriteString(",\"reason\":")
		rb, _ := json.Marshal(e.Reason)
		buf.Write(rb)
	}
	if e.Cause != "" {
		buf.WriteString(",\"cause\":")
		cb, _ := json.Marshal(e.Cause)
		buf.Write(cb)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}
