package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportweaver/internal/core"
	"reportweaver/internal/docx"
	"reportweaver/internal/errors"
	"reportweaver/internal/trace"
	"reportweaver/internal/verify"
)

func sampleSummary(t *testing.T, runID string) Summary {
	t.Helper()
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	return Summary{
		RunID:      runID,
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Document:   "paper.docx",
		Tasks: []TaskRecord{
			{ID: "svb", Status: core.StatusOK, Metrics: map[string]any{"outflow_bn": 3.3}, ProseKeys: []string{"paragraph_svb_decomposition"}},
			{ID: "vecm", Status: core.StatusSkipped, Metrics: map[string]any{}, ProseKeys: []string{}, Error: "unavailable: python3 not found"},
		},
		ProseKeys:       []string{"paragraph_svb_decomposition"},
		ProseCollisions: []core.ProseCollision{},
		UnmappedKeys:    []string{},
		Patch:           &docx.PatchReport{Document: "paper.docx", Applied: []string{"paragraph_svb_decomposition"}, Written: true},
		Verification:    &verify.Report{Required: []string{"Exhibit 6"}, Found: []string{"Exhibit 6"}, Pass: true},
		DocumentUpdated: true,
		Outcome:         OutcomePartial,
		ExitCode:        1,
	}
}

func TestStore_SummaryRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	id, err := NewRunID()
	require.NoError(t, err)

	want := sampleSummary(t, id)
	require.NoError(t, s.SaveSummary(want))

	got, err := s.LoadSummary(id)
	require.NoError(t, err)
	assert.Equal(t, want.RunID, got.RunID)
	assert.True(t, want.StartedAt.Equal(got.StartedAt))
	assert.Equal(t, want.Tasks[0].Metrics["outflow_bn"], got.Tasks[0].Metrics["outflow_bn"])
	assert.Equal(t, OutcomePartial, got.Outcome)
	assert.Equal(t, 1, got.ExitCode)
	require.NotNil(t, got.Patch)
	assert.Equal(t, []string{"paragraph_svb_decomposition"}, got.Patch.Applied)
	assert.Equal(t, 1, got.Count(core.StatusSkipped))

	_, err = os.Stat(filepath.Join(s.Dir(), "runs", id, "summary.json"))
	assert.NoError(t, err)
}

func TestStore_RejectsInvalidSummary(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	bad := sampleSummary(t, "")
	bad.Outcome = "meh"
	err = s.SaveSummary(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_id is required")
	assert.Contains(t, err.Error(), "invalid outcome")

	assert.Error(t, s.SaveSummary(sampleSummary(t, "../escape")))
}

func TestStore_LoadSummaryRejectsUnknownFields(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	id, err := NewRunID()
	require.NoError(t, err)
	require.NoError(t, s.SaveSummary(sampleSummary(t, id)))

	path := s.SummaryPath(id)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(b[:len(b)-2], []byte(`,"surprise":1}`)...), 0o644))

	_, err = s.LoadSummary(id)
	assert.Error(t, err)
}

func TestStore_ListAndLatest(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.LatestSummary()
	require.ErrorIs(t, err, ErrNoRuns)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := NewRunID()
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}
	for _, id := range ids[:2] {
		require.NoError(t, s.SaveSummary(sampleSummary(t, id)))
	}
	// A run that only got as far as recording a failure.
	_, err = s.RecordFailure(ids[2], errors.Wrap(errors.ErrArchiveCorrupt, "open paper.docx"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir(), "runs", "not-a-uuid"), 0o755))

	listed, err := s.ListRunIDs()
	require.NoError(t, err)
	assert.Equal(t, ids, listed)

	latest, err := s.LatestSummary()
	require.NoError(t, err)
	assert.Equal(t, ids[1], latest.RunID)
}

func TestStore_FailureRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	id, err := NewRunID()
	require.NoError(t, err)

	f, err := s.RecordFailure(id, &TaskFailureError{Task: "vecm", Message: "exit status 1"})
	require.NoError(t, err)
	assert.Equal(t, FailureClassTaskFailure, f.Class)

	got, err := s.LoadFailure(id)
	require.NoError(t, err)
	require.NotNil(t, got.Task)
	assert.Equal(t, "vecm", *got.Task)
	assert.Equal(t, "TaskFailed", got.Code)
}

func TestStore_TraceRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	id, err := NewRunID()
	require.NoError(t, err)

	tr := trace.DecisionTrace{Document: "paper.docx", Events: []trace.Event{
		{Kind: trace.EventProseApplied, Subject: "A", Reason: "primary"},
		{Kind: trace.EventTaskOK, Subject: "svb"},
	}}
	require.NoError(t, s.SaveTrace(id, tr))

	got, err := s.LoadTrace(id)
	require.NoError(t, err)
	wantHash, err := tr.Hash()
	require.NoError(t, err)
	gotHash, err := got.Hash()
	require.NoError(t, err)
	assert.Equal(t, wantHash, gotHash)
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore(" ")
	assert.Error(t, err)
}
