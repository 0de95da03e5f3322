package cli

import (
	"github.com/spf13/cobra"

	"reportweaver/internal/logger"
	"reportweaver/internal/pipeline"
)

type runFlags struct {
	config     string
	skipPatch  bool
	skipVerify bool
	jsonLogs   bool
	jsonOut    bool
	parallel   int
	only       []string
}

func (a *app) runCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tasks, patch the document and verify it",
		Long: `Run every configured task, insert the prose they emit into the document
and check the verification markers. The summary is written to
<state_dir>/runs/<run-id>/summary.json and printed as a table.

Exit codes: 0 success, 1 partial, 2 usage, 3 config, 4 internal, 5 failed.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "Pipeline configuration file (required)")
	fl.BoolVar(&f.skipPatch, "skip-patch", false, "Run tasks without touching the document")
	fl.BoolVar(&f.skipVerify, "skip-verify", false, "Skip marker verification")
	fl.BoolVar(&f.jsonLogs, "json-logs", false, "Emit structured JSON logs on stderr")
	fl.BoolVar(&f.jsonOut, "json", false, "Print the summary as JSON instead of a table")
	fl.IntVarP(&f.parallel, "parallel", "p", 0, "Run up to N tasks at once (overrides config)")
	fl.StringArrayVar(&f.only, "only", nil, "Run only this task (repeatable)")
	return cmd
}

func (a *app) run(cmd *cobra.Command, f runFlags) error {
	if f.parallel < 0 {
		return &pipeline.UsageError{Message: "--parallel must be >= 0"}
	}
	cfg, err := loadConfig(f.config)
	if err != nil {
		return err
	}
	if err := a.initLogger(cfg, f.jsonLogs); err != nil {
		return err
	}

	res, err := pipeline.Run(cmd.Context(), cfg, pipeline.Options{
		SkipPatch:   f.skipPatch,
		SkipVerify:  f.skipVerify,
		Only:        f.only,
		Parallelism: f.parallel,
		Tasks:       a.tasks,
		Logger:      logger.Named("pipeline"),
	})
	if err != nil {
		return err
	}

	a.result = CLIResult{ExitCode: res.ExitCode(), Summary: &res.Summary}
	if f.jsonOut {
		return writeJSON(a.stdout, res.Summary)
	}
	return renderSummary(a.stdout, res.Summary, res.Failure)
}
