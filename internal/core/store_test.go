package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportweaver/internal/errors"
)

func TestResultStore_OneWritePerTask(t *testing.T) {
	s := NewResultStore()
	require.NoError(t, s.Record(TaskResult{ID: "task3", Status: StatusOK}))

	err := s.Record(TaskResult{ID: "task3", Status: StatusFailed, Error: "late"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateResult))

	got, ok := s.Get("task3")
	require.True(t, ok)
	assert.Equal(t, StatusOK, got.Status)
}

func TestResultStore_RejectsInvalidResults(t *testing.T) {
	s := NewResultStore()
	assert.Error(t, s.Record(TaskResult{Status: StatusOK}))
	assert.Error(t, s.Record(TaskResult{ID: "x", Status: "PASS"}))
	assert.Equal(t, 0, s.Len())
}

func TestResultStore_FailedResultsDropProse(t *testing.T) {
	s := NewResultStore()
	require.NoError(t, s.Record(TaskResult{
		ID:     "task1",
		Status: StatusFailed,
		Prose:  map[string]string{"paragraph_vecm_interpretation": "partial"},
		Error:  "statsmodels missing",
	}))

	got, _ := s.Get("task1")
	assert.Empty(t, got.Prose)
	assert.Equal(t, "statsmodels missing", got.Error)

	entries, _ := s.Prose()
	assert.Empty(t, entries)
}

func TestResultStore_ImmutableAfterRecord(t *testing.T) {
	s := NewResultStore()
	prose := map[string]string{"A": "[A-text]"}
	metrics := map[string]any{"r": 0.99}
	require.NoError(t, s.Record(TaskResult{ID: "t", Status: StatusOK, Prose: prose, Metrics: metrics}))

	prose["A"] = "mutated"
	metrics["r"] = 0.1

	got, _ := s.Get("t")
	assert.Equal(t, "[A-text]", got.Prose["A"])
	assert.Equal(t, 0.99, got.Metrics["r"])

	got.Prose["A"] = "mutated again"
	again, _ := s.Get("t")
	assert.Equal(t, "[A-text]", again.Prose["A"])
}

func TestResultStore_ProseFirstWriterWins(t *testing.T) {
	s := NewResultStore()
	require.NoError(t, s.Record(TaskResult{ID: "first", Status: StatusOK, Prose: map[string]string{"B": "b1", "A": "a1"}}))
	require.NoError(t, s.Record(TaskResult{ID: "skipped", Status: StatusSkipped}))
	require.NoError(t, s.Record(TaskResult{ID: "second", Status: StatusOK, Prose: map[string]string{"A": "a2", "C": "c2"}}))

	entries, collisions := s.Prose()
	require.Len(t, entries, 3)
	assert.Equal(t, ProseEntry{Key: "A", Text: "a1", TaskID: "first"}, entries[0])
	assert.Equal(t, ProseEntry{Key: "B", Text: "b1", TaskID: "first"}, entries[1])
	assert.Equal(t, ProseEntry{Key: "C", Text: "c2", TaskID: "second"}, entries[2])
	assert.Equal(t, []ProseCollision{{Key: "A", Kept: "first", Dropped: "second"}}, collisions)
}

func TestResultStore_CountsAndOrder(t *testing.T) {
	s := NewResultStore()
	require.NoError(t, s.Record(TaskResult{ID: "c", Status: StatusSkipped}))
	require.NoError(t, s.Record(TaskResult{ID: "a", Status: StatusOK}))
	require.NoError(t, s.Record(TaskResult{ID: "b", Status: StatusFailed}))

	ok, failed, skipped := s.Counts()
	assert.Equal(t, [3]int{1, 1, 1}, [3]int{ok, failed, skipped})

	var ids []string
	for _, r := range s.Results() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
	assert.Equal(t, StatusFailed, s.StatusOf("b"))
	assert.Equal(t, Status(""), s.StatusOf("missing"))
}

func TestResultStore_ConcurrentRecords(t *testing.T) {
	s := NewResultStore()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Record(TaskResult{ID: fmt.Sprintf("t%02d", i), Status: StatusOK})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 32, s.Len())
}

func TestUnavailableError(t *testing.T) {
	cause := fmt.Errorf("exec: \"python3\": executable file not found in $PATH")
	err := errors.Wrap(Unavailable("python3 not installed", cause), "task2")

	assert.True(t, IsUnavailable(err))
	assert.False(t, IsUnavailable(errors.New("boom")))
	assert.False(t, IsUnavailable(nil))
	assert.Contains(t, err.Error(), "python3 not installed")
}

func TestTaskFunc(t *testing.T) {
	task := TaskFunc{Name: "t", Fn: func(ctx context.Context, cfg TaskConfig) (Output, error) {
		return Output{Prose: map[string]string{"k": cfg.ID}}, nil
	}}
	out, err := task.Run(context.Background(), TaskConfig{ID: "t"})
	require.NoError(t, err)
	assert.Equal(t, "t", out.Prose["k"])

	_, err = TaskFunc{Name: "empty"}.Run(context.Background(), TaskConfig{})
	assert.Error(t, err)
}

func TestResultStore_NestedMetricsAreCopied(t *testing.T) {
	s := NewResultStore()
	require.NoError(t, s.Record(TaskResult{
		ID:      "task1",
		Status:  StatusOK,
		Metrics: map[string]any{"johansen": map[string]any{"trace": 31.2}, "lags": []any{1, 2}},
	}))

	got, ok := s.Get("task1")
	require.True(t, ok)
	got.Metrics["johansen"].(map[string]any)["trace"] = 0.0
	got.Metrics["lags"].([]any)[0] = 9

	again, _ := s.Get("task1")
	assert.Equal(t, 31.2, again.Metrics["johansen"].(map[string]any)["trace"])
	assert.Equal(t, 1, again.Metrics["lags"].([]any)[0])
}

func TestResultStore_NormalizesNonJSONMetrics(t *testing.T) {
	s := NewResultStore()
	require.NoError(t, s.Record(TaskResult{
		ID:     "task2",
		Status: StatusOK,
		Metrics: map[string]any{
			"corr":   math.NaN(),
			"bounds": []any{math.Inf(-1), math.Inf(1), 0.5},
			"by_lag": map[any]any{1: math.NaN(), "two": float32(0.25)},
		},
	}))

	got, _ := s.Get("task2")
	assert.Equal(t, "NaN", got.Metrics["corr"])
	assert.Equal(t, []any{"-Inf", "+Inf", 0.5}, got.Metrics["bounds"])
	assert.Equal(t, map[string]any{"1": "NaN", "two": float64(float32(0.25))}, got.Metrics["by_lag"])

	_, err := json.Marshal(got.Metrics)
	assert.NoError(t, err)
}
