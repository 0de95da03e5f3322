package state

import (
	"strings"
	"time"

	"reportweaver/internal/core"
	"reportweaver/internal/docx"
	"reportweaver/internal/errors"
	"reportweaver/internal/verify"
)

// Outcome is the overall verdict of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// TaskRecord is the persisted view of one task result.
type TaskRecord struct {
	ID         string         `json:"id"`
	Status     core.Status    `json:"status"`
	Required   bool           `json:"required"`
	Metrics    map[string]any `json:"metrics"`
	ProseKeys  []string       `json:"prose_keys"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
}

// RecordFromResult converts a stored task result.
func RecordFromResult(r core.TaskResult) TaskRecord {
	keys := r.ProseKeys()
	if keys == nil {
		keys = []string{}
	}
	return TaskRecord{
		ID:         r.ID,
		Status:     r.Status,
		Required:   r.Required,
		Metrics:    core.NormalizeMetrics(r.Metrics),
		ProseKeys:  keys,
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		DurationMS: r.Duration.Milliseconds(),
	}
}

// Summary is the machine-readable artifact written once per run.
//
// Patch and Verification are nil when the stage was skipped or never reached.
type Summary struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Document    string    `json:"document"`
	ConfigPath  string    `json:"config_path,omitempty"`
	Parallelism int       `json:"parallelism"`

	Tasks           []TaskRecord          `json:"tasks"`
	ProseKeys       []string              `json:"prose_keys"`
	ProseCollisions []core.ProseCollision `json:"prose_collisions"`
	UnmappedKeys    []string              `json:"unmapped_keys"`

	Patch        *docx.PatchReport `json:"patch,omitempty"`
	PatchError   string            `json:"patch_error,omitempty"`
	Verification *verify.Report    `json:"verification,omitempty"`
	VerifyError  string            `json:"verify_error,omitempty"`

	DocumentUpdated bool    `json:"document_updated"`
	TraceHash       string  `json:"trace_hash"`
	Outcome         Outcome `json:"outcome"`
	ExitCode        int     `json:"exit_code"`
}

// Validate checks the fields every summary must carry.
func (s Summary) Validate() error {
	var errs []error
	if strings.TrimSpace(s.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if s.StartedAt.IsZero() {
		errs = append(errs, errors.New("started_at is required"))
	}
	switch s.Outcome {
	case OutcomeSuccess, OutcomePartial, OutcomeFailed:
	default:
		errs = append(errs, errors.Newf("invalid outcome %q", s.Outcome))
	}
	if s.ExitCode < 0 {
		errs = append(errs, errors.New("exit_code must be >= 0"))
	}
	for i, t := range s.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			errs = append(errs, errors.Newf("tasks[%d]: id is required", i))
		}
		if !t.Status.Valid() {
			errs = append(errs, errors.Newf("tasks[%d]: invalid status %q", i, t.Status))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tasks with status st.
func (s Summary) Count(st core.Status) int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == st {
			n++
		}
	}
	return n
}

// FailureClass is the persisted error taxonomy.
type FailureClass string

const (
	FailureClassTaskUnavailable   FailureClass = "task_unavailable"
	FailureClassTaskFailure       FailureClass = "task_failure"
	FailureClassAnchorNotFound    FailureClass = "anchor_not_found"
	FailureClassArchiveCorrupt    FailureClass = "archive_corrupt"
	FailureClassArchiveUnwritable FailureClass = "archive_unwritable"
	FailureClassUnmappedProseKey  FailureClass = "unmapped_prose_key"
	FailureClassConfig            FailureClass = "config"
	FailureClassSystem            FailureClass = "system"
)

// Failure is a recorded run termination reason.
type Failure struct {
	Class   FailureClass `json:"failure_class"`
	Task    *string      `json:"task,omitempty"`
	Code    string       `json:"error_code"`
	Message string       `json:"error_message"`
	Hints   []string     `json:"hints,omitempty"`
}

// Validate checks the failure record.
func (f Failure) Validate() error {
	var errs []error
	switch f.Class {
	case FailureClassTaskUnavailable, FailureClassTaskFailure, FailureClassAnchorNotFound,
		FailureClassArchiveCorrupt, FailureClassArchiveUnwritable, FailureClassUnmappedProseKey,
		FailureClassConfig, FailureClassSystem:
	default:
		errs = append(errs, errors.Newf("invalid failure_class %q", f.Class))
	}
	if f.Task != nil && strings.TrimSpace(*f.Task) == "" {
		errs = append(errs, errors.New("task must not be empty when provided"))
	}
	if strings.TrimSpace(f.Code) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.Message) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	return errors.Join(errs...)
}
