package state

import (
	"fmt"

	"reportweaver/internal/core"
	"reportweaver/internal/errors"
)

// TaskFailureError reports that a required task did not produce a result.
type TaskFailureError struct {
	Task    string
	Message string
}

func (e *TaskFailureError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("required task %s failed: %s", e.Task, e.Message)
}

// ConfigError reports a configuration problem found before any task ran.
type ConfigError struct {
	Code  string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return "config error: " + e.Code
	}
	return fmt.Sprintf("config error (%s): %v", e.Code, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// FailureFromError classifies err into the persisted failure taxonomy.
// Unknown errors classify as system failures.
func FailureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}
	f := Failure{Message: err.Error(), Hints: errors.GetAllHints(err)}

	var tf *TaskFailureError
	var cf *ConfigError
	var ue *core.UnavailableError
	switch {
	case errors.As(err, &tf) && tf != nil:
		f.Class, f.Code = FailureClassTaskFailure, "TaskFailed"
		f.Task = taskPtr(tf.Task)
	case errors.As(err, &cf) && cf != nil:
		f.Class, f.Code = FailureClassConfig, nonEmptyOr(cf.Code, "InvalidConfig")
	case errors.Is(err, errors.ErrInvalidConfig):
		f.Class, f.Code = FailureClassConfig, "InvalidConfig"
	case errors.As(err, &ue) && ue != nil:
		f.Class, f.Code = FailureClassTaskUnavailable, "TaskUnavailable"
	case errors.Is(err, errors.ErrArchiveCorrupt):
		f.Class, f.Code = FailureClassArchiveCorrupt, "ArchiveCorrupt"
	case errors.Is(err, errors.ErrArchiveUnwritable):
		f.Class, f.Code = FailureClassArchiveUnwritable, "ArchiveUnwritable"
	case errors.Is(err, errors.ErrAnchorNotFound):
		f.Class, f.Code = FailureClassAnchorNotFound, "AnchorNotFound"
	case errors.Is(err, errors.ErrUnmappedProseKey):
		f.Class, f.Code = FailureClassUnmappedProseKey, "UnmappedProseKey"
	default:
		f.Class, f.Code = FailureClassSystem, "UnknownError"
	}
	return f, nil
}

func taskPtr(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
