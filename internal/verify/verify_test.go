package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportweaver/internal/errors"
	"reportweaver/internal/testutil"
)

func exhibitMarkers() []Marker {
	return []Marker{
		{Pattern: "Twelve exhibits"},
		{Pattern: "Exhibit 6", Task: "facility_correlations"},
		{Pattern: "SVB crisis", Task: "svb_decomposition"},
	}
}

func TestVerify_AllPresent(t *testing.T) {
	path := testutil.WriteDocx(t, t.TempDir(), "paper.docx", testutil.PaperBody())
	r, err := Verify(path, "", exhibitMarkers(), nil)
	require.NoError(t, err)
	assert.True(t, r.Pass)
	assert.Equal(t, []string{"Twelve exhibits", "Exhibit 6", "SVB crisis"}, r.Found)
	assert.Empty(t, r.Missing)
	assert.Empty(t, r.Waived)
}

func TestVerify_OneMarkerRemoved(t *testing.T) {
	body := testutil.Body(
		testutil.Paragraph("Twelve exhibits support the analysis."),
		testutil.Paragraph("V.B The SVB crisis drained reserves."),
	)
	path := testutil.WriteDocx(t, t.TempDir(), "paper.docx", body)

	markers := exhibitMarkers()
	r, err := Verify(path, "", markers, nil)
	require.NoError(t, err)
	assert.False(t, r.Pass)
	assert.Len(t, r.Required, len(markers))
	assert.Len(t, r.Found, len(markers)-1)
	assert.Equal(t, []string{"Exhibit 6"}, r.Missing)
}

func TestVerify_SkippedTaskWaivesMarker(t *testing.T) {
	body := testutil.Body(testutil.Paragraph("Twelve exhibits support it. The SVB crisis hit."))
	path := testutil.WriteDocx(t, t.TempDir(), "paper.docx", body)

	r, err := Verify(path, "", exhibitMarkers(), map[string]bool{"facility_correlations": true})
	require.NoError(t, err)
	assert.True(t, r.Pass)
	assert.Equal(t, []string{"Exhibit 6"}, r.Waived)
	assert.NotContains(t, r.Required, "Exhibit 6")
}

func TestBody_DuplicateMarkersCountOnce(t *testing.T) {
	body := testutil.Body(testutil.Paragraph("Twelve exhibits support the analysis."))
	markers := []Marker{
		{Pattern: "Twelve exhibits"},
		{Pattern: "Exhibit 6", Task: "facility_correlations"},
		{Pattern: "Twelve exhibits", Task: "svb_decomposition"},
		{Pattern: "Exhibit 6"},
		{Pattern: "Exhibit 6", Regex: true, Task: "facility_correlations"},
	}

	r, err := Body(body, markers, map[string]bool{"facility_correlations": true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Twelve exhibits", "Exhibit 6"}, r.Required)
	assert.Equal(t, []string{"Twelve exhibits"}, r.Found)
	assert.Equal(t, []string{"Exhibit 6"}, r.Missing, "one unwaived copy keeps the marker required")
	assert.Equal(t, []string{"Exhibit 6"}, r.Waived, "the regex marker is distinct from the literal one")
}

func TestVerify_DecodedAndSplitRunText(t *testing.T) {
	body := testutil.Body(
		testutil.SplitParagraph("Exhibit ", "6: facilities"),
		testutil.Paragraph("Q&A"),
	)
	r, err := Body(body, []Marker{{Pattern: "Exhibit 6"}, {Pattern: "Q&A"}, {Pattern: "Q&amp;A"}}, nil)
	require.NoError(t, err)
	assert.True(t, r.Pass, "missing: %v", r.Missing)
}

func TestVerify_Regex(t *testing.T) {
	r, err := Body(testutil.PaperBody(), []Marker{
		{Pattern: `Exhibit\s+6[\s:]`, Regex: true},
		{Pattern: `Exhibit\s+7[\s:]`, Regex: true},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{`Exhibit\s+7[\s:]`}, r.Missing)

	_, err = Body(testutil.PaperBody(), []Marker{{Pattern: `(`, Regex: true}}, nil)
	assert.Error(t, err)
}

func TestVerify_CorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.docx")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))
	_, err := Verify(path, "", exhibitMarkers(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrArchiveCorrupt))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(exhibitMarkers()))
	err := Validate([]Marker{{Pattern: " "}, {Pattern: "[", Regex: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markers[0]")
	assert.Contains(t, err.Error(), "markers[1]")
}
