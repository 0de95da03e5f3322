package core

import (
	"fmt"
	"maps"
	"math"
	"time"
)

// Status is the terminal outcome of a task run.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Valid reports whether s is one of the three terminal statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// TaskResult is the recorded outcome of one task run.
//
// Results are immutable once recorded: the store copies the maps on the way
// in and on the way out. Failed and skipped results never carry prose.
type TaskResult struct {
	ID        string            `json:"id"`
	Status    Status            `json:"status"`
	Required  bool              `json:"required"`
	Metrics   map[string]any    `json:"metrics"`
	Prose     map[string]string `json:"prose,omitempty"`
	Error     string            `json:"error,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration_ns"`
}

// ProseKeys returns the result's prose keys in sorted order.
func (r TaskResult) ProseKeys() []string {
	return sortedKeys(r.Prose)
}

func (r TaskResult) clone() TaskResult {
	out := r
	out.Metrics = NormalizeMetrics(r.Metrics)
	out.Prose = maps.Clone(r.Prose)
	return out
}

// NormalizeMetrics returns a deep copy of m that encodes as JSON. Non-finite
// floats become the strings "NaN", "+Inf" and "-Inf", and maps with
// non-string keys are rekeyed by their printed form. A nil map yields an
// empty one.
func NormalizeMetrics(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeMetric(v)
	}
	return out
}

func normalizeMetric(v any) any {
	switch x := v.(type) {
	case float64:
		return finiteOrLabel(x)
	case float32:
		return finiteOrLabel(float64(x))
	case map[string]any:
		return NormalizeMetrics(x)
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalizeMetric(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeMetric(e)
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = finiteOrLabel(e)
		}
		return out
	default:
		return v
	}
}

func finiteOrLabel(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	default:
		return f
	}
}
