package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"reportweaver/internal/core"
	"reportweaver/internal/errors"
)

// stderrTail bounds how much stderr is kept in a failure message.
const stderrTail = 2048

// baseEnv is always passed through from the host environment.
var baseEnv = []string{"PATH", "HOME", "LANG", "TMPDIR", "SYSTEMROOT"}

// CommandParams are the params of a command task.
type CommandParams struct {
	// Command is the command line, split with shell quoting rules. It is not
	// run through a shell.
	Command string `mapstructure:"command"`

	// RequiresFiles must all exist (relative to the work dir) or the task is
	// skipped as unavailable.
	RequiresFiles []string `mapstructure:"requires_files"`

	// RequiresExecutables must all resolve on PATH or the task is skipped.
	RequiresExecutables []string `mapstructure:"requires_executables"`

	// PassEnv lists extra host variables visible to the program.
	PassEnv []string `mapstructure:"pass_env"`

	// Env sets variables for the program.
	Env map[string]string `mapstructure:"env"`
}

// CommandTask runs an external analysis program.
//
// The program must print one JSON object on stdout:
//
//	{"metrics": {...}, "prose": {"key": "text"}}
//
// It may instead print {"unavailable": "reason"} to report an unmet
// precondition it detected itself (e.g. a missing library), which records
// the task as skipped.
type CommandTask struct {
	id     string
	argv   []string
	params CommandParams

	lookPath func(string) (string, error)
}

// NewCommandTask is the Factory for KindCommand.
func NewCommandTask(cfg core.TaskConfig) (core.Task, error) {
	var p CommandParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Command) == "" {
		return nil, errors.New("params.command is required")
	}
	argv, err := shellquote.Split(p.Command)
	if err != nil {
		return nil, errors.Wrapf(err, "params.command %q", p.Command)
	}
	if len(argv) == 0 {
		return nil, errors.New("params.command is empty")
	}
	return &CommandTask{id: cfg.ID, argv: argv, params: p, lookPath: exec.LookPath}, nil
}

func (t *CommandTask) ID() string { return t.id }

// Argv returns the parsed command line.
func (t *CommandTask) Argv() []string { return append([]string(nil), t.argv...) }

// commandOutput is the stdout protocol.
type commandOutput struct {
	Metrics     map[string]any    `json:"metrics"`
	Prose       map[string]string `json:"prose"`
	Unavailable string            `json:"unavailable"`
}

func (t *CommandTask) Run(ctx context.Context, cfg core.TaskConfig) (core.Output, error) {
	exe, err := t.preflight(cfg.WorkDir)
	if err != nil {
		return core.Output{}, err
	}

	cmd := exec.CommandContext(ctx, exe, t.argv[1:]...)
	cmd.Dir = cfg.WorkDir
	cmd.Env = t.environ()
	setProcessGroup(cmd)
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.Output{}, errors.WithDetail(
			errors.Wrapf(ctxErr, "%s did not finish", t.argv[0]), tail(stderr.Bytes()))
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return core.Output{}, errors.Newf("%s exited with status %d: %s", t.argv[0], exitErr.ExitCode(), tail(stderr.Bytes()))
		}
		return core.Output{}, errors.Wrapf(runErr, "run %s", t.argv[0])
	}

	var out commandOutput
	dec := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return core.Output{}, errors.Wrapf(err, "%s: stdout is not a JSON result object", t.argv[0])
	}
	if out.Unavailable != "" {
		return core.Output{}, core.Unavailable(out.Unavailable, nil)
	}
	return core.Output{Metrics: normalizeNumbers(out.Metrics), Prose: out.Prose}, nil
}

// preflight checks external preconditions and resolves the executable.
func (t *CommandTask) preflight(workDir string) (string, error) {
	exe := t.argv[0]
	if strings.ContainsRune(exe, filepath.Separator) && !filepath.IsAbs(exe) && workDir != "" {
		exe = filepath.Join(workDir, exe)
	}
	resolved, err := t.lookPath(exe)
	if err != nil {
		return "", core.Unavailable("executable "+t.argv[0]+" not found", err)
	}
	for _, name := range t.params.RequiresExecutables {
		if _, err := t.lookPath(name); err != nil {
			return "", core.Unavailable("executable "+name+" not found", err)
		}
	}
	for _, f := range t.params.RequiresFiles {
		p := f
		if !filepath.IsAbs(p) && workDir != "" {
			p = filepath.Join(workDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return "", core.Unavailable("required file "+f+" is missing", err)
		}
	}
	return resolved, nil
}

// environ builds the program environment from an allowlist of host
// variables plus the configured env.
func (t *CommandTask) environ() []string {
	env := make(map[string]string)
	for _, name := range append(append([]string{}, baseEnv...), t.params.PassEnv...) {
		if v, ok := os.LookupEnv(name); ok {
			env[name] = v
		}
	}
	// Config loaders fold map keys to lower case; variable names are upper case.
	for k, v := range t.params.Env {
		env[strings.ToUpper(k)] = v
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTail {
		s = "…" + s[len(s)-stderrTail:]
	}
	return s
}

// normalizeNumbers turns json.Number values into int64 or float64.
func normalizeNumbers(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		return normalizeNumbers(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = normalizeValue(x[i])
		}
		return out
	default:
		return v
	}
}
