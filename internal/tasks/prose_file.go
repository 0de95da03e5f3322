package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"reportweaver/internal/core"
	"reportweaver/internal/errors"
)

// ProseFileParams are the params of a prose_file task.
type ProseFileParams struct {
	// Path is the result file, relative to the work dir.
	Path string `mapstructure:"path"`
}

// proseFile is the on-disk shape. JSON is valid YAML, so one decoder reads
// both.
type proseFile struct {
	Metrics map[string]any    `yaml:"metrics"`
	Prose   map[string]string `yaml:"prose"`
}

// ProseFileTask loads prose and metrics from a file written by an analysis
// run outside the pipeline. A missing file records the task as skipped.
type ProseFileTask struct {
	id     string
	params ProseFileParams
}

// NewProseFileTask is the Factory for KindProseFile.
func NewProseFileTask(cfg core.TaskConfig) (core.Task, error) {
	var p ProseFileParams
	if err := decodeParams(cfg.Params, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Path) == "" {
		return nil, errors.New("params.path is required")
	}
	return &ProseFileTask{id: cfg.ID, params: p}, nil
}

func (t *ProseFileTask) ID() string { return t.id }

func (t *ProseFileTask) Run(ctx context.Context, cfg core.TaskConfig) (core.Output, error) {
	if err := ctx.Err(); err != nil {
		return core.Output{}, err
	}
	path := t.params.Path
	if !filepath.IsAbs(path) && cfg.WorkDir != "" {
		path = filepath.Join(cfg.WorkDir, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.Output{}, core.Unavailable("result file "+t.params.Path+" is missing", err)
		}
		return core.Output{}, errors.Wrapf(err, "read %s", path)
	}

	var pf proseFile
	if err := yaml.Unmarshal(b, &pf); err != nil {
		return core.Output{}, errors.Wrapf(err, "parse %s", path)
	}
	if pf.Metrics == nil {
		pf.Metrics = map[string]any{}
	}
	return core.Output{Metrics: pf.Metrics, Prose: pf.Prose}, nil
}
