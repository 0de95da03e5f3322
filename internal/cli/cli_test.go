package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportweaver/internal/cli"
	"reportweaver/internal/pipeline"
	"reportweaver/internal/state"
	"reportweaver/internal/testutil"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

const svbText = "Redemptions after the SVB closure explain most of the USDC discount."

const pipelineYAML = `
document:
  path: paper.docx
anchors:
  insertions:
    - key: paragraph_svb
      primary: V.B The SVB crisis
      task: svb
    - key: paragraph_facilities
      primary: Exhibit 6 shows
      task: facilities
verify:
  markers:
    - pattern: Exhibit 6
    - pattern: USDC discount
      task: svb
    - pattern: Facility usage
      task: facilities
tasks:
  - id: svb
    kind: prose_file
    required: true
    params:
      path: out/svb.yaml
  - id: facilities
    kind: prose_file
    params:
      path: out/facilities.yaml
`

type workspace struct {
	dir    string
	config string
	doc    string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:    dir,
		config: filepath.Join(dir, "pipeline.yaml"),
		doc:    testutil.WriteDocx(t, dir, "paper.docx", testutil.PaperBody()),
	}
	require.NoError(t, os.WriteFile(ws.config, []byte(pipelineYAML), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out"), 0o755))
	ws.writeResult(t, "svb.yaml", "metrics:\n  outflow_share: 0.71\nprose:\n  paragraph_svb: \""+svbText+"\"\n")
	return ws
}

func (ws workspace) writeResult(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(ws.dir, "out", name), []byte(content), 0o644))
}

func run(t *testing.T, args ...string) (cli.CLIResult, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	res, _ := cli.RunWithIO(context.Background(), args, &stdout, &stderr, nil)
	return res, stdout.String(), stderr.String()
}

func TestRun_PartialWhenOptionalResultMissing(t *testing.T) {
	ws := newWorkspace(t)

	res, out, _ := run(t, "run", "--config", ws.config)

	assert.Equal(t, pipeline.ExitPartial, res.ExitCode)
	require.NotNil(t, res.Summary)
	assert.Equal(t, state.OutcomePartial, res.Summary.Outcome)
	assert.Contains(t, out, "svb")
	assert.Contains(t, out, "skipped")
	assert.Contains(t, out, "Outcome: partial (exit 1)")
	assert.Contains(t, testutil.ReadPart(t, ws.doc, testutil.BodyPart), svbText)
}

func TestRun_SuccessThenSummary(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeResult(t, "facilities.yaml", `{"metrics": {"max_corr": 0.28}, "prose": {"paragraph_facilities": "Facility usage stayed flat."}}`)

	res, out, _ := run(t, "run", "-c", ws.config, "--parallel", "2")
	require.Equal(t, pipeline.ExitSuccess, res.ExitCode, out)
	assert.Contains(t, out, "Document updated: yes")
	assert.Contains(t, out, "Verification: 3/3 markers found")

	again, out, _ := run(t, "run", "-c", ws.config)
	assert.Equal(t, pipeline.ExitSuccess, again.ExitCode)
	assert.Contains(t, out, "Document updated: no")

	latest, out, _ := run(t, "summary", "--config", ws.config)
	assert.Equal(t, pipeline.ExitSuccess, latest.ExitCode)
	require.NotNil(t, latest.Summary)
	assert.Equal(t, again.Summary.RunID, latest.Summary.RunID)
	assert.Contains(t, out, again.Summary.RunID)

	named, out, _ := run(t, "summary", "--state-dir", filepath.Join(ws.dir, ".reportweaver"), "--run", res.Summary.RunID, "--json")
	assert.Equal(t, pipeline.ExitSuccess, named.ExitCode)
	var decoded state.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, res.Summary.RunID, decoded.RunID)
	assert.True(t, decoded.DocumentUpdated)
}

func TestRun_JSONOutput(t *testing.T) {
	ws := newWorkspace(t)

	res, out, _ := run(t, "run", "--config", ws.config, "--json", "--skip-verify")
	assert.Equal(t, pipeline.ExitPartial, res.ExitCode)

	var sum state.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, res.Summary.RunID, sum.RunID)
	assert.Nil(t, sum.Verification)
}

func TestRun_SkipPatchAndOnly(t *testing.T) {
	ws := newWorkspace(t)
	before, err := os.ReadFile(ws.doc)
	require.NoError(t, err)

	res, out, _ := run(t, "run", "--config", ws.config, "--skip-patch", "--only", "svb")

	after, err := os.ReadFile(ws.doc)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Contains(t, out, "Patch: skipped")
	require.NotNil(t, res.Summary)
	require.Len(t, res.Summary.Tasks, 1)
	// The svb marker is expected but the document was not patched.
	assert.Equal(t, pipeline.ExitPartial, res.ExitCode)
}

func TestRun_UsageErrors(t *testing.T) {
	ws := newWorkspace(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"publish"}},
		{"unknown flag", []string{"run", "--config", ws.config, "--fast"}},
		{"missing config flag", []string{"run"}},
		{"positional argument", []string{"run", "--config", ws.config, "extra"}},
		{"negative parallel", []string{"run", "--config", ws.config, "--parallel", "-1"}},
		{"unknown only task", []string{"run", "--config", ws.config, "--only", "ghost"}},
		{"summary without runs", []string{"summary", "--config", ws.config}},
		{"summary bad run id", []string{"summary", "--config", ws.config, "--run", "not-a-run"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, stderr := run(t, tt.args...)
			assert.Equal(t, pipeline.ExitUsage, res.ExitCode, stderr)
			assert.Contains(t, stderr, "Error:")
		})
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "absent.yaml")
	res, _, stderr := run(t, "run", "--config", missing)
	assert.Equal(t, pipeline.ExitConfig, res.ExitCode)
	assert.Contains(t, stderr, "Hint:")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("document:\n  path: x.docx\ntasks:\n  - id: a\n    kind: notebook\n"), 0o644))
	res, _, stderr = run(t, "run", "--config", bad)
	assert.Equal(t, pipeline.ExitConfig, res.ExitCode)
	assert.Contains(t, stderr, `unknown kind "notebook"`)
}

func TestRun_CorruptDocumentFails(t *testing.T) {
	ws := newWorkspace(t)
	require.NoError(t, os.WriteFile(ws.doc, []byte("not a zip archive"), 0o644))

	res, out, _ := run(t, "run", "--config", ws.config)
	assert.Equal(t, pipeline.ExitFailed, res.ExitCode)
	assert.Contains(t, out, "patch failed")
	assert.Contains(t, out, "archive_corrupt")
}

func TestVerify(t *testing.T) {
	ws := newWorkspace(t)

	res, out, _ := run(t, "verify", "--config", ws.config)
	assert.Equal(t, pipeline.ExitPartial, res.ExitCode, "nothing has been inserted yet")
	assert.Contains(t, out, "missing")

	run(t, "run", "--config", ws.config)

	// The facilities task was skipped in the latest run, so its marker is waived.
	res, out, _ = run(t, "verify", "--config", ws.config)
	assert.Equal(t, pipeline.ExitSuccess, res.ExitCode, out)
	assert.Contains(t, out, "waived")

	require.NoError(t, os.WriteFile(ws.doc, []byte("garbage"), 0o644))
	res, _, stderr := run(t, "verify", "--config", ws.config)
	assert.Equal(t, pipeline.ExitFailed, res.ExitCode)
	assert.Contains(t, stderr, "Error:")
}
