package pipeline

import (
	"reportweaver/internal/errors"
	"reportweaver/internal/state"
)

// Process exit codes.
const (
	// ExitSuccess: every required task ok, every key placed, verification passed.
	ExitSuccess = 0
	// ExitPartial: a task was skipped, an optional task failed, an anchor was
	// missing, or verification found a gap.
	ExitPartial = 1
	// ExitUsage: invalid invocation (unknown flag, bad argument).
	ExitUsage = 2
	// ExitConfig: unreadable or invalid configuration.
	ExitConfig = 3
	// ExitInternal: an unexpected error, including failure to persist the run.
	ExitInternal = 4
	// ExitFailed: a required task failed, a prose key had no insertion spec,
	// or the patch stage hit a fatal error.
	ExitFailed = 5
)

// ExitCodeFor maps an error returned by Run to an exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ue *UsageError
	var ce *state.ConfigError
	switch {
	case errors.As(err, &ue):
		return ExitUsage
	case errors.As(err, &ce), errors.Is(err, errors.ErrInvalidConfig):
		return ExitConfig
	default:
		return ExitInternal
	}
}

// UsageError reports an invalid invocation.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string { return e.Message }

// outcomeFor derives the run verdict from its facts.
func outcomeFor(f facts) (state.Outcome, int) {
	if f.requiredFailed > 0 || f.unmapped > 0 || f.patchFatal {
		return state.OutcomeFailed, ExitFailed
	}
	if f.skipped > 0 || f.optionalFailed > 0 || f.anchorMissing > 0 || f.emptyProse > 0 || f.verifyGap {
		return state.OutcomePartial, ExitPartial
	}
	return state.OutcomeSuccess, ExitSuccess
}

type facts struct {
	requiredFailed int
	optionalFailed int
	skipped        int
	unmapped       int
	anchorMissing  int
	emptyProse     int
	patchFatal     bool
	verifyGap      bool
}
