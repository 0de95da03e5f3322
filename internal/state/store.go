// Package state persists one record per pipeline run.
//
// Layout:
//
//	<state_dir>/runs/<run-id>/summary.json
//	<state_dir>/runs/<run-id>/failure.json   (only when the run hit a fatal error)
//	<state_dir>/runs/<run-id>/trace.json
//
// Run IDs are time-ordered UUIDs, so sorting them lexicographically sorts
// runs by start time. All writes are atomic and durable.
package state

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"reportweaver/internal/errors"
	"reportweaver/internal/fsutil"
	"reportweaver/internal/trace"
)

// ErrNoRuns is returned by LatestSummary when no run has a summary.
var ErrNoRuns = errors.New("no runs recorded")

// Store reads and writes run records under a state directory.
type Store struct {
	baseDir string
}

// NewStore returns a store rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, errors.New("state dir is required")
	}
	return &Store{baseDir: baseDir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.baseDir }

// NewRunID returns a fresh, time-ordered run identifier.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generate run id")
	}
	return id.String(), nil
}

func (s *Store) runsRootDir() string {
	return filepath.Join(s.baseDir, "runs")
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.runsRootDir(), runID)
}

func (s *Store) summaryPath(runID string) string {
	return filepath.Join(s.runDir(runID), "summary.json")
}

func (s *Store) failurePath(runID string) string {
	return filepath.Join(s.runDir(runID), "failure.json")
}

func (s *Store) tracePath(runID string) string {
	return filepath.Join(s.runDir(runID), "trace.json")
}

// SummaryPath returns where the summary of runID is stored.
func (s *Store) SummaryPath(runID string) string { return s.summaryPath(runID) }

// ListRunIDs returns all run IDs present on disk, oldest first.
func (s *Store) ListRunIDs() ([]string, error) {
	entries, err := os.ReadDir(s.runsRootDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "list runs")
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveSummary validates and writes summary.json for sum.RunID.
func (s *Store) SaveSummary(sum Summary) error {
	if err := sum.Validate(); err != nil {
		return errors.Wrap(err, "invalid summary")
	}
	if err := checkRunID(sum.RunID); err != nil {
		return err
	}
	return s.writeJSON(sum.RunID, s.summaryPath(sum.RunID), sum)
}

// LoadSummary reads summary.json for runID.
func (s *Store) LoadSummary(runID string) (Summary, error) {
	var sum Summary
	if err := checkRunID(runID); err != nil {
		return Summary{}, err
	}
	if err := readJSONStrict(s.summaryPath(runID), &sum); err != nil {
		return Summary{}, errors.Wrapf(err, "load summary %s", runID)
	}
	if err := sum.Validate(); err != nil {
		return Summary{}, errors.Wrap(err, "invalid summary on disk")
	}
	return sum, nil
}

// LatestSummary returns the summary of the most recent run that has one.
func (s *Store) LatestSummary() (Summary, error) {
	ids, err := s.ListRunIDs()
	if err != nil {
		return Summary{}, err
	}
	for i := len(ids) - 1; i >= 0; i-- {
		if _, err := os.Stat(s.summaryPath(ids[i])); err != nil {
			continue
		}
		return s.LoadSummary(ids[i])
	}
	return Summary{}, errors.WithHint(ErrNoRuns, "run `reportweaver run` first")
}

// SaveFailure writes failure.json for runID.
func (s *Store) SaveFailure(runID string, f Failure) error {
	if err := checkRunID(runID); err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return errors.Wrap(err, "invalid failure")
	}
	return s.writeJSON(runID, s.failurePath(runID), f)
}

// RecordFailure classifies err and writes it as failure.json.
func (s *Store) RecordFailure(runID string, err error) (Failure, error) {
	f, ferr := FailureFromError(err)
	if ferr != nil {
		return Failure{}, ferr
	}
	return f, s.SaveFailure(runID, f)
}

// LoadFailure reads failure.json for runID.
func (s *Store) LoadFailure(runID string) (Failure, error) {
	var f Failure
	if err := checkRunID(runID); err != nil {
		return Failure{}, err
	}
	if err := readJSONStrict(s.failurePath(runID), &f); err != nil {
		return Failure{}, errors.Wrapf(err, "load failure %s", runID)
	}
	if err := f.Validate(); err != nil {
		return Failure{}, errors.Wrap(err, "invalid failure on disk")
	}
	return f, nil
}

// SaveTrace writes the canonical decision trace for runID.
func (s *Store) SaveTrace(runID string, tr trace.DecisionTrace) error {
	if err := checkRunID(runID); err != nil {
		return err
	}
	b, err := tr.CanonicalJSON()
	if err != nil {
		return errors.Wrap(err, "encode trace")
	}
	if err := fsutil.EnsureDir(s.runDir(runID), 0o755); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.tracePath(runID), append(b, '\n'), 0o644)
}

// LoadTrace reads the decision trace for runID.
func (s *Store) LoadTrace(runID string) (trace.DecisionTrace, error) {
	var tr trace.DecisionTrace
	if err := checkRunID(runID); err != nil {
		return tr, err
	}
	if err := readJSONStrict(s.tracePath(runID), &tr); err != nil {
		return tr, errors.Wrapf(err, "load trace %s", runID)
	}
	return tr, nil
}

func (s *Store) writeJSON(runID, path string, v any) error {
	if err := fsutil.EnsureDir(s.runDir(runID), 0o755); err != nil {
		return errors.Wrap(err, "ensure run dir")
	}
	data, err := jsonMarshalStable(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", filepath.Base(path))
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", filepath.Base(path))
	}
	return nil
}

func checkRunID(runID string) error {
	if strings.TrimSpace(runID) == "" {
		return errors.New("run id is required")
	}
	if strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return errors.Newf("invalid run id %q", runID)
	}
	return nil
}

func jsonMarshalStable(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func readJSONStrict(path string, dst any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON: trailing content")
	}
	return nil
}
