package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"reportweaver/internal/core"
	"reportweaver/internal/state"
	"reportweaver/internal/verify"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderSummary prints a run summary as tables.
func renderSummary(w io.Writer, sum state.Summary, failure *state.Failure) error {
	fmt.Fprintf(w, "Run %s  %s\n", sum.RunID, sum.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Document: %s\n\n", sum.Document)

	rows := pterm.TableData{{"Task", "Status", "Required", "Prose keys", "Metrics", "Duration", "Error"}}
	for _, t := range sum.Tasks {
		rows = append(rows, []string{
			t.ID,
			string(t.Status),
			yesNo(t.Required),
			strings.Join(t.ProseKeys, ", "),
			metricsCell(t.Metrics),
			(time.Duration(t.DurationMS) * time.Millisecond).String(),
			oneLine(t.Error, 60),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	fmt.Fprintf(w, "Tasks: %d ok, %d failed, %d skipped\n",
		sum.Count(core.StatusOK), sum.Count(core.StatusFailed), sum.Count(core.StatusSkipped))

	for _, c := range sum.ProseCollisions {
		fmt.Fprintln(w, pterm.Warning.Sprintf("prose key %s emitted by %s and %s; kept %s", c.Key, c.Kept, c.Dropped, c.Kept))
	}
	for _, k := range sum.UnmappedKeys {
		fmt.Fprintln(w, pterm.Error.Sprintf("prose key %s has no insertion spec", k))
	}

	switch {
	case sum.PatchError != "":
		fmt.Fprintln(w, pterm.Error.Sprintf("patch failed: %s", sum.PatchError))
	case sum.Patch != nil:
		p := sum.Patch
		fmt.Fprintf(w, "Patch: %d applied, %d already present, %d empty, %d anchor missing\n",
			len(p.Applied), len(p.AlreadyPresent), len(p.Empty), len(p.AnchorMissing))
		for _, k := range p.Empty {
			fmt.Fprintln(w, pterm.Warning.Sprintf("prose key %s has empty text", k))
		}
		for _, k := range p.AnchorMissing {
			fmt.Fprintln(w, pterm.Warning.Sprintf("no anchor for %s", k))
		}
		if p.BackupPath != "" && p.Written {
			fmt.Fprintf(w, "Backup: %s\n", p.BackupPath)
		}
	default:
		fmt.Fprintln(w, "Patch: skipped")
	}
	fmt.Fprintf(w, "Document updated: %s\n", yesNo(sum.DocumentUpdated))

	switch {
	case sum.VerifyError != "":
		fmt.Fprintln(w, pterm.Warning.Sprintf("verification could not run: %s", sum.VerifyError))
	case sum.Verification != nil:
		writeVerificationLine(w, *sum.Verification)
	default:
		fmt.Fprintln(w, "Verification: skipped")
	}

	if failure != nil {
		fmt.Fprintln(w, pterm.Error.Sprintf("%s (%s): %s", failure.Class, failure.Code, oneLine(failure.Message, 120)))
		for _, h := range failure.Hints {
			fmt.Fprintf(w, "  hint: %s\n", h)
		}
	}

	verdict := fmt.Sprintf("Outcome: %s (exit %d)", sum.Outcome, sum.ExitCode)
	switch sum.Outcome {
	case state.OutcomeSuccess:
		fmt.Fprintln(w, pterm.Success.Sprint(verdict))
	case state.OutcomePartial:
		fmt.Fprintln(w, pterm.Warning.Sprint(verdict))
	default:
		fmt.Fprintln(w, pterm.Error.Sprint(verdict))
	}
	return nil
}

// renderVerification prints a standalone marker report.
func renderVerification(w io.Writer, r verify.Report) error {
	found := make(map[string]bool, len(r.Found))
	for _, m := range r.Found {
		found[m] = true
	}
	waived := make(map[string]bool, len(r.Waived))
	for _, m := range r.Waived {
		waived[m] = true
	}

	rows := pterm.TableData{{"Marker", "Status"}}
	for _, m := range r.Required {
		status := "missing"
		if found[m] {
			status = "found"
		}
		rows = append(rows, []string{m, status})
	}
	for _, m := range r.Waived {
		rows = append(rows, []string{m, "waived"})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, table)
	writeVerificationLine(w, r)
	return nil
}

func writeVerificationLine(w io.Writer, r verify.Report) {
	line := fmt.Sprintf("Verification: %d/%d markers found", len(r.Found), len(r.Required))
	if len(r.Waived) > 0 {
		line += fmt.Sprintf(", %d waived", len(r.Waived))
	}
	if r.Pass {
		fmt.Fprintln(w, pterm.Success.Sprint(line))
		return
	}
	fmt.Fprintln(w, pterm.Warning.Sprint(line))
	for _, m := range r.Missing {
		fmt.Fprintf(w, "  missing: %s\n", m)
	}
}

func metricsCell(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return oneLine(strings.Join(parts, " "), 48)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// oneLine flattens s to a single line of at most n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
