package core

import (
	"slices"
	"strings"
	"sync"

	"reportweaver/internal/errors"
)

// ResultStore maps task IDs to their TaskResult.
//
// It accepts exactly one write per task ID and is safe for concurrent use.
// Results are reported in the order they were recorded.
type ResultStore struct {
	mu      sync.RWMutex
	order   []string
	results map[string]TaskResult
}

// NewResultStore returns an empty store.
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string]TaskResult)}
}

// Record stores r. A second write for the same ID fails with ErrDuplicateResult.
func (s *ResultStore) Record(r TaskResult) error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("task result id is required")
	}
	if !r.Status.Valid() {
		return errors.Newf("task %q: invalid status %q", r.ID, r.Status)
	}
	r = r.clone()
	if r.Status != StatusOK {
		r.Prose = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.ID]; ok {
		return errors.Wrapf(ErrDuplicateResult, "task %q", r.ID)
	}
	s.results[r.ID] = r
	s.order = append(s.order, r.ID)
	return nil
}

// ErrDuplicateResult is re-exported for callers that only import core.
var ErrDuplicateResult = errors.ErrDuplicateResult

// Get returns a copy of the result for id.
func (s *ResultStore) Get(id string) (TaskResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return TaskResult{}, false
	}
	return r.clone(), true
}

// Results returns copies of all results in record order.
func (s *ResultStore) Results() []TaskResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskResult, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.results[id].clone())
	}
	return out
}

// Len returns the number of recorded results.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Counts returns the number of ok, failed and skipped results.
func (s *ResultStore) Counts() (ok, failed, skipped int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		switch r.Status {
		case StatusOK:
			ok++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return ok, failed, skipped
}

// StatusOf returns the status recorded for id, or "" if none.
func (s *ResultStore) StatusOf(id string) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results[id].Status
}

// ProseEntry is one prose block with the task that produced it.
type ProseEntry struct {
	Key    string `json:"key"`
	Text   string `json:"-"`
	TaskID string `json:"task"`
}

// ProseCollision records a prose key emitted by more than one task.
type ProseCollision struct {
	Key     string `json:"key"`
	Kept    string `json:"kept_task"`
	Dropped string `json:"dropped_task"`
}

// Prose merges the prose of every ok result.
//
// Entries are ordered by record order, then by key. When two tasks emit the
// same key the first recorded wins and the later one is reported as a
// collision.
func (s *ResultStore) Prose() ([]ProseEntry, []ProseCollision) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []ProseEntry
	var collisions []ProseCollision
	owner := make(map[string]string)
	for _, id := range s.order {
		r := s.results[id]
		if r.Status != StatusOK {
			continue
		}
		for _, key := range sortedKeys(r.Prose) {
			if first, ok := owner[key]; ok {
				collisions = append(collisions, ProseCollision{Key: key, Kept: first, Dropped: id})
				continue
			}
			owner[key] = id
			entries = append(entries, ProseEntry{Key: key, Text: r.Prose[key], TaskID: id})
		}
	}
	return entries, collisions
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
