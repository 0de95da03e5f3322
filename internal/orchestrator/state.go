package orchestrator

import (
	"maps"

	"reportweaver/internal/errors"
)

// TaskState is the runtime state of a task within one orchestrator run.
//
//	PENDING, RUNNING, OK, FAILED, SKIPPED
type TaskState string

const (
	TaskPending TaskState = "PENDING"
	TaskRunning TaskState = "RUNNING"
	TaskOK      TaskState = "OK"
	TaskFailed  TaskState = "FAILED"
	TaskSkipped TaskState = "SKIPPED"
)

// ExecutionState maps task ID to its current TaskState.
type ExecutionState map[string]TaskState

func (s ExecutionState) clone() ExecutionState {
	return maps.Clone(s)
}

// IsTerminal reports whether the state is terminal (finished).
func IsTerminal(s TaskState) bool {
	switch s {
	case TaskOK, TaskFailed, TaskSkipped:
		return true
	default:
		return false
	}
}

// Transition performs a validated transition for a single task.
//
// The caller supplies the expected prior state (from) to make races observable.
// The state map is mutated if and only if the transition is valid.
func Transition(state ExecutionState, id string, from, to TaskState) error {
	cur, ok := state[id]
	if !ok {
		return errors.Newf("unknown task in state: %q", id)
	}
	if cur != from {
		return errors.Newf("invalid transition for %q: expected %s, got %s", id, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return errors.Newf("disallowed transition for %q: %s -> %s", id, from, to)
	}
	state[id] = to
	return nil
}

// A task reports unavailability while running, so SKIPPED is reachable from
// both PENDING (filtered out before start) and RUNNING.
func isAllowedTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning || to == TaskSkipped
	case TaskRunning:
		return to == TaskOK || to == TaskFailed || to == TaskSkipped
	default:
		return false
	}
}
