package cli

import (
	"io/fs"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"reportweaver/internal/errors"
	"reportweaver/internal/pipeline"
	"reportweaver/internal/state"
)

func (a *app) summaryCommand() *cobra.Command {
	var (
		cfgPath  string
		stateDir string
		runID    string
		jsonOut  bool
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print the latest or a named run summary",
		Long: `Print a recorded run summary. Without --run the newest run is shown.
The state directory comes from --state-dir, else from --config, else
.reportweaver in the current directory.

The exit code is the recorded run's exit code.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := stateDir
			if dir == "" && cfgPath != "" {
				cfg, err := loadConfig(cfgPath)
				if err != nil {
					return err
				}
				dir = cfg.StateDir
			}
			if dir == "" {
				dir = ".reportweaver"
			}
			store, err := state.NewStore(dir)
			if err != nil {
				return &pipeline.UsageError{Message: err.Error()}
			}

			sum, err := loadSummary(store, strings.TrimSpace(runID))
			if err != nil {
				return err
			}
			var failure *state.Failure
			if f, err := store.LoadFailure(sum.RunID); err == nil {
				failure = &f
			}

			a.result = CLIResult{ExitCode: sum.ExitCode, Summary: &sum}
			if jsonOut {
				return writeJSON(a.stdout, sum)
			}
			return renderSummary(a.stdout, sum, failure)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&cfgPath, "config", "c", "", "Pipeline configuration file")
	fl.StringVar(&stateDir, "state-dir", "", "State directory holding runs/")
	fl.StringVar(&runID, "run", "", "Run ID (default: latest)")
	fl.BoolVar(&jsonOut, "json", false, "Print the summary as JSON")
	return cmd
}

// loadSummary loads runID, or the latest run when runID is empty. A missing
// run is a usage error.
func loadSummary(store *state.Store, runID string) (state.Summary, error) {
	if runID == "" {
		sum, err := store.LatestSummary()
		if errors.Is(err, state.ErrNoRuns) {
			return state.Summary{}, errors.WithHint(&pipeline.UsageError{Message: "no runs recorded in " + store.Dir()},
				"run `reportweaver run --config <file>` first")
		}
		return sum, err
	}
	if _, err := uuid.Parse(runID); err != nil {
		return state.Summary{}, &pipeline.UsageError{Message: "invalid run ID " + runID}
	}
	sum, err := store.LoadSummary(runID)
	if errors.Is(err, fs.ErrNotExist) {
		return state.Summary{}, &pipeline.UsageError{Message: "run " + runID + " has no summary in " + store.Dir()}
	}
	return sum, err
}
