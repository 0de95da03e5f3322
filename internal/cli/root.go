// Package cli is the reportweaver command surface.
//
// Every command returns its exit code through CLIResult rather than calling
// os.Exit, so the whole surface can be driven from tests with Run.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"reportweaver/internal/config"
	"reportweaver/internal/errors"
	"reportweaver/internal/logger"
	"reportweaver/internal/pipeline"
	"reportweaver/internal/state"
	"reportweaver/internal/tasks"
)

// CLIResult is the outcome of one invocation.
type CLIResult struct {
	ExitCode int
	// Summary is set by commands that produce or load a run summary.
	Summary *state.Summary
}

// app carries per-invocation state shared by the commands.
type app struct {
	stdout io.Writer
	stderr io.Writer
	tasks  *tasks.Registry

	verbosity int
	result    CLIResult
}

// Run executes args (without argv[0]) against the process stdout and stderr.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	return RunWithIO(ctx, args, os.Stdout, os.Stderr, nil)
}

// RunWithIO executes args writing to the given streams. reg builds task
// modules; nil means the built-in kinds.
func RunWithIO(ctx context.Context, args []string, stdout, stderr io.Writer, reg *tasks.Registry) (CLIResult, error) {
	a := &app{stdout: stdout, stderr: stderr, tasks: reg}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	defer logger.Sync()
	if err != nil {
		code := pipeline.ExitCodeFor(err)
		a.printError(err)
		return CLIResult{ExitCode: code}, err
	}
	return a.result, nil
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "reportweaver",
		Short: "Run analysis tasks and weave their prose into a Word document",
		Long: `reportweaver runs a configured set of analysis tasks, collects the prose
blocks they emit, inserts each block after its anchor paragraph in a .docx,
and verifies the finished document carries every expected marker.

Examples:
  reportweaver run --config pipeline.yaml
  reportweaver run --config pipeline.yaml --only svb_decomposition --skip-patch
  reportweaver verify --config pipeline.yaml
  reportweaver summary --config pipeline.yaml`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return &pipeline.UsageError{Message: "a command is required"}
		},
	}
	root.PersistentFlags().CountVarP(&a.verbosity, "verbose", "v", "Increase log verbosity (-v, -vv)")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &pipeline.UsageError{Message: err.Error()}
	})

	root.AddCommand(a.runCommand(), a.verifyCommand(), a.summaryCommand())
	return root
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &pipeline.UsageError{Message: fmt.Sprintf("%s: unexpected arguments %q", cmd.CommandPath(), strings.Join(args, " "))}
	}
	return nil
}

// loadConfig reads the pipeline file named by --config.
func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &pipeline.UsageError{Message: "--config is required"}
	}
	return config.LoadFromFile(path)
}

// initLogger configures the global logger from flags and config.
func (a *app) initLogger(cfg *config.Config, jsonLogs bool) error {
	verbosity := a.verbosity
	if cfg.Log.Verbosity > verbosity {
		verbosity = cfg.Log.Verbosity
	}
	if err := logger.Initialize(jsonLogs || cfg.Log.JSON, verbosity); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	return nil
}

func (a *app) printError(err error) {
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
	for _, h := range errors.GetAllHints(err) {
		fmt.Fprintf(a.stderr, "Hint: %s\n", h)
	}
}
