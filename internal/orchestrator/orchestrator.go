package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reportweaver/internal/core"
	"reportweaver/internal/errors"
	"reportweaver/internal/logger"
	"reportweaver/internal/trace"
)

// TaskSpec pairs a task module with the configuration it runs under.
type TaskSpec struct {
	Task   core.Task
	Config core.TaskConfig
}

// Summary counts task outcomes for one run, in listed task order.
type Summary struct {
	OK             int      `json:"ok"`
	Failed         int      `json:"failed"`
	Skipped        int      `json:"skipped"`
	RequiredFailed []string `json:"required_failed,omitempty"`
	Order          []string `json:"order"`
}

// Total returns the number of tasks that ran.
func (s Summary) Total() int { return s.OK + s.Failed + s.Skipped }

// Orchestrator runs task modules and isolates their failures.
//
// Parallelism <= 1 runs tasks serially in listed order. Larger values run up
// to Parallelism tasks at once; results are still recorded in listed order so
// the store's reporting order never depends on scheduling.
type Orchestrator struct {
	Parallelism int
	Logger      *zap.SugaredLogger
	Trace       trace.Sink

	// Now is the clock used for TaskResult.StartedAt. Defaults to time.Now.
	Now func() time.Time

	mu    sync.Mutex
	state ExecutionState
}

// New returns an orchestrator with the given parallelism and logger.
func New(parallelism int, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{Parallelism: parallelism, Logger: log}
}

// StateSnapshot returns a copy of the current execution state.
func (o *Orchestrator) StateSnapshot() ExecutionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Run executes every task and returns the populated store.
//
// The only error Run returns is a validation error raised before any task
// starts (nil task, empty or duplicate ID). Task errors and panics are
// recorded as failed or skipped results and never abort the other tasks.
func (o *Orchestrator) Run(ctx context.Context, specs []TaskSpec) (*core.ResultStore, Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	specs, err := normalizeSpecs(specs)
	if err != nil {
		return nil, Summary{}, err
	}

	o.mu.Lock()
	o.state = make(ExecutionState, len(specs))
	for _, s := range specs {
		o.state[s.Config.ID] = TaskPending
	}
	o.mu.Unlock()

	store := core.NewResultStore()
	if o.Parallelism <= 1 {
		for _, spec := range specs {
			res := o.execute(ctx, spec)
			if err := store.Record(res); err != nil {
				return nil, Summary{}, err
			}
		}
	} else {
		results := make([]core.TaskResult, len(specs))
		var g errgroup.Group
		g.SetLimit(o.Parallelism)
		for i, spec := range specs {
			i, spec := i, spec
			g.Go(func() error {
				results[i] = o.execute(ctx, spec)
				return nil
			})
		}
		_ = g.Wait()
		for _, res := range results {
			if err := store.Record(res); err != nil {
				return nil, Summary{}, err
			}
		}
	}

	sum := summarize(store, specs)
	o.log().Infow("tasks finished",
		"ok", sum.OK, "failed", sum.Failed, "skipped", sum.Skipped,
		"required_failed", sum.RequiredFailed)
	return store, sum, nil
}

func normalizeSpecs(specs []TaskSpec) ([]TaskSpec, error) {
	out := make([]TaskSpec, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, s := range specs {
		if s.Task == nil {
			return nil, errors.Newf("tasks[%d]: nil task", i)
		}
		id := strings.TrimSpace(s.Config.ID)
		if id == "" {
			id = s.Task.ID()
		} else if tid := s.Task.ID(); tid != "" && tid != id {
			return nil, errors.Newf("tasks[%d]: config id %q does not match task id %q", i, id, tid)
		}
		if id == "" {
			return nil, errors.Newf("tasks[%d]: id is required", i)
		}
		if seen[id] {
			return nil, errors.Newf("duplicate task id %q", id)
		}
		seen[id] = true
		s.Config.ID = id
		out = append(out, s)
	}
	return out, nil
}

func (o *Orchestrator) execute(ctx context.Context, spec TaskSpec) core.TaskResult {
	id := spec.Config.ID
	if err := o.transition(id, TaskPending, TaskRunning); err != nil {
		return core.TaskResult{ID: id, Status: core.StatusFailed, Required: spec.Config.Required, Error: err.Error()}
	}
	o.log().Infow("task started", "task", id, "kind", spec.Config.Kind)

	res, reason := o.runIsolated(ctx, spec)

	final := TaskOK
	kind := trace.EventTaskOK
	switch res.Status {
	case core.StatusFailed:
		final, kind = TaskFailed, trace.EventTaskFailed
		o.log().Errorw("task failed", "task", id, "required", res.Required, "error", res.Error)
	case core.StatusSkipped:
		final, kind = TaskSkipped, trace.EventTaskSkipped
		o.log().Warnw("task skipped", "task", id, "reason", res.Error)
	default:
		o.log().Infow("task ok", "task", id, "prose_keys", res.ProseKeys(), "duration", res.Duration)
	}
	if err := o.transition(id, TaskRunning, final); err != nil {
		o.log().Errorw("state transition", "task", id, "error", err)
	}
	trace.SafeRecord(o.Trace, trace.Event{Kind: kind, Subject: id, Reason: reason})
	return res
}

// runIsolated invokes the task, converting errors and panics into a result.
func (o *Orchestrator) runIsolated(ctx context.Context, spec TaskSpec) (res core.TaskResult, reason string) {
	cfg := spec.Config
	start := o.now()
	res = core.TaskResult{ID: cfg.ID, Required: cfg.Required, StartedAt: start}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			res.Status = core.StatusFailed
			res.Metrics = nil
			res.Prose = nil
			res.Error = fmt.Sprintf("panic: %v", p)
			reason = "Panic"
		}
		res.Duration = time.Since(start)
	}()

	out, err := spec.Task.Run(ctx, cfg)
	switch {
	case err == nil:
		res.Status = core.StatusOK
		res.Metrics = out.Metrics
		res.Prose = out.Prose
	case core.IsUnavailable(err):
		res.Status = core.StatusSkipped
		res.Error = err.Error()
		reason = "TaskUnavailable"
	default:
		res.Status = core.StatusFailed
		res.Error = err.Error()
		reason = "TaskFailure"
	}
	return res, reason
}

func (o *Orchestrator) transition(id string, from, to TaskState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Transition(o.state, id, from, to)
}

func summarize(store *core.ResultStore, specs []TaskSpec) Summary {
	sum := Summary{Order: make([]string, 0, len(specs))}
	for _, spec := range specs {
		id := spec.Config.ID
		sum.Order = append(sum.Order, id)
		switch store.StatusOf(id) {
		case core.StatusOK:
			sum.OK++
		case core.StatusFailed:
			sum.Failed++
			if spec.Config.Required {
				sum.RequiredFailed = append(sum.RequiredFailed, id)
			}
		case core.StatusSkipped:
			sum.Skipped++
		}
	}
	return sum
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) log() *zap.SugaredLogger {
	return logger.OrNop(o.Logger)
}
