package core

import (
	"context"
	"fmt"
	"time"

	"reportweaver/internal/errors"
)

// TaskConfig is the configuration object handed to a task on every run.
//
// ID is the stable task identifier used as the ResultStore key.
// Kind selects the task implementation in the registry; it is informational
// once the task has been built.
type TaskConfig struct {
	ID       string         `json:"id" yaml:"id" mapstructure:"id"`
	Kind     string         `json:"kind" yaml:"kind" mapstructure:"kind"`
	Required bool           `json:"required" yaml:"required" mapstructure:"required"`
	WorkDir  string         `json:"work_dir,omitempty" yaml:"work_dir,omitempty" mapstructure:"work_dir"`
	Timeout  time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
}

// Output is what a task produces on success.
type Output struct {
	// Metrics maps a metric name to a numeric or string value.
	Metrics map[string]any `json:"metrics" yaml:"metrics"`

	// Prose maps a prose key to a finished text block.
	Prose map[string]string `json:"prose" yaml:"prose"`
}

// Task is a pluggable unit of analysis.
//
// Run returns an Output or an error. An *UnavailableError means an external
// precondition was not met and the task is recorded as skipped; any other
// error, or a panic, records it as failed.
//
// Tasks must fail fast rather than hang: the orchestrator imposes no timeout
// of its own beyond TaskConfig.Timeout, which implementations are expected to
// honor through ctx.
type Task interface {
	ID() string
	Run(ctx context.Context, cfg TaskConfig) (Output, error)
}

// TaskFunc adapts a function into a Task.
type TaskFunc struct {
	Name string
	Fn   func(ctx context.Context, cfg TaskConfig) (Output, error)
}

func (t TaskFunc) ID() string { return t.Name }

func (t TaskFunc) Run(ctx context.Context, cfg TaskConfig) (Output, error) {
	if t.Fn == nil {
		return Output{}, errors.Newf("task %q has no body", t.Name)
	}
	return t.Fn(ctx, cfg)
}

// UnavailableError reports an unmet external precondition (missing
// executable, missing input data, unreachable dependency).
type UnavailableError struct {
	Reason string
	Cause  error
}

func (e *UnavailableError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("unavailable: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("unavailable: %s", e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// Unavailable builds an *UnavailableError.
func Unavailable(reason string, cause error) error {
	return &UnavailableError{Reason: reason, Cause: cause}
}

// IsUnavailable reports whether err is or wraps an *UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return err != nil && errors.As(err, &ue)
}
