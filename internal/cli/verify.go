package cli

import (
	"github.com/spf13/cobra"

	"reportweaver/internal/core"
	"reportweaver/internal/errors"
	"reportweaver/internal/logger"
	"reportweaver/internal/pipeline"
	"reportweaver/internal/state"
	"reportweaver/internal/verify"
)

func (a *app) verifyCommand() *cobra.Command {
	var (
		cfgPath string
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the document for every verification marker",
		Long: `Check the configured document for every verification marker without
running any task. Markers owned by tasks that were skipped in the latest
recorded run are waived.

Exits 0 when every marker is present, 1 when some are missing and 5 when
the document cannot be read.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := a.initLogger(cfg, false); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log := logger.Named("verify")

			waived := skippedInLatestRun(cfg.StateDir)
			report, err := verify.Verify(cfg.Document.Path, cfg.Document.Part, cfg.Verify.Markers, waived)
			if err != nil {
				log.Errorw("Verification failed", "path", cfg.Document.Path, "error", err)
				a.printError(err)
				a.result = CLIResult{ExitCode: pipeline.ExitFailed}
				return nil
			}

			a.result = CLIResult{ExitCode: pipeline.ExitSuccess}
			if !report.Pass {
				a.result.ExitCode = pipeline.ExitPartial
			}
			if jsonOut {
				return writeJSON(a.stdout, report)
			}
			return renderVerification(a.stdout, report)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "Pipeline configuration file (required)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	return cmd
}

// skippedInLatestRun returns the tasks skipped in the newest recorded run.
// Without a readable run nothing is waived.
func skippedInLatestRun(stateDir string) map[string]bool {
	waived := map[string]bool{}
	store, err := state.NewStore(stateDir)
	if err != nil {
		return waived
	}
	sum, err := store.LatestSummary()
	if err != nil {
		if !errors.Is(err, state.ErrNoRuns) {
			logger.Named("verify").Warnw("Could not read the latest run", "state_dir", stateDir, "error", err)
		}
		return waived
	}
	for _, t := range sum.Tasks {
		if t.Status == core.StatusSkipped {
			waived[t.ID] = true
		}
	}
	return waived
}
