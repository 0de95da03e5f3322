// Package pipeline wires one end-to-end run: tasks, patch, verify, persist.
//
// The stages run strictly in sequence. The orchestrator returns only when
// every task is terminal, so the patch stage always sees the complete result
// store. A fatal patch error is recorded in the summary and never discards
// task results.
package pipeline

import (
	"context"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"

	"reportweaver/internal/anchor"
	"reportweaver/internal/config"
	"reportweaver/internal/core"
	"reportweaver/internal/docx"
	"reportweaver/internal/errors"
	"reportweaver/internal/logger"
	"reportweaver/internal/orchestrator"
	"reportweaver/internal/state"
	"reportweaver/internal/tasks"
	"reportweaver/internal/trace"
	"reportweaver/internal/verify"
)

// Options adjust a single run.
type Options struct {
	SkipPatch  bool
	SkipVerify bool

	// Only restricts the run to these task IDs.
	Only []string

	// Parallelism overrides the configured value when > 0.
	Parallelism int

	// Tasks builds task modules from configuration. Nil means the built-in kinds.
	Tasks *tasks.Registry

	Logger *zap.SugaredLogger

	// Now is the clock for run timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Result is everything a run produced.
type Result struct {
	Summary state.Summary
	Trace   trace.DecisionTrace
	Store   *core.ResultStore

	// PatchErr is the fatal patch-stage error, if any.
	PatchErr error
	// Failure is the record written to failure.json, if any.
	Failure *state.Failure
}

// ExitCode returns the run's exit code.
func (r *Result) ExitCode() int { return r.Summary.ExitCode }

// Run executes the pipeline described by cfg.
//
// Errors are returned only for problems that prevent a run from being
// recorded: invalid configuration (see ExitCodeFor) or failure to persist the
// summary. Every other outcome, including a fatal patch error, is reported
// through Result.Summary.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	log := logger.OrNop(opts.Logger)
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	if err := cfg.Validate(); err != nil {
		recordConfigFailure(cfg, err, log)
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidConfig)
	}
	specs, waived, err := buildSpecs(cfg, opts)
	if err != nil {
		if ExitCodeFor(err) == ExitConfig {
			recordConfigFailure(cfg, err, log)
		}
		return nil, err
	}
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidConfig)
	}
	runID, err := state.NewRunID()
	if err != nil {
		return nil, err
	}

	parallelism := cfg.Parallelism
	if opts.Parallelism > 0 {
		parallelism = opts.Parallelism
	}
	log = log.With("run", runID)
	log.Infow("Run started", "tasks", len(specs), "parallelism", parallelism, "document", cfg.Document.Path)

	sum := state.Summary{
		RunID:       runID,
		StartedAt:   now(),
		Document:    cfg.Document.Path,
		ConfigPath:  cfg.Source,
		Parallelism: parallelism,
		Tasks:       []state.TaskRecord{},
	}
	recorder := trace.NewRecorder()

	orch := orchestrator.New(parallelism, log.Named("orchestrator"))
	orch.Trace = recorder
	results, tsum, err := orch.Run(ctx, specs)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrInvalidConfig)
	}
	for _, r := range results.Results() {
		sum.Tasks = append(sum.Tasks, state.RecordFromResult(r))
		if r.Status == core.StatusSkipped {
			waived[r.ID] = true
		}
	}

	insertions, prose := collectProse(results, reg, recorder, log)
	sum.ProseKeys = prose.keys
	sum.ProseCollisions = prose.collisions
	sum.UnmappedKeys = prose.unmapped

	f := facts{
		requiredFailed: len(tsum.RequiredFailed),
		optionalFailed: tsum.Failed - len(tsum.RequiredFailed),
		skipped:        tsum.Skipped,
		unmapped:       len(prose.unmapped),
	}

	res := &Result{Store: results}
	if !opts.SkipPatch {
		patcher := &docx.Patcher{
			Part:           cfg.Document.Part,
			BackupPath:     cfg.Document.BackupPath,
			GlobalFallback: reg.GlobalFallback,
			SizeHalfPoints: cfg.Document.ParagraphSizeHalfPoints,
			Logger:         log.Named("patch"),
		}
		report, perr := patcher.Apply(ctx, cfg.Document.Path, insertions)
		recordPatch(recorder, report)
		if perr != nil {
			res.PatchErr = perr
			sum.PatchError = perr.Error()
			f.patchFatal = true
			if errors.IsArchiveFatal(perr) {
				log.Errorw("Patch aborted, document left unchanged", "path", cfg.Document.Path, "error", perr)
			} else {
				log.Errorw("Patch failed", "path", cfg.Document.Path, "error", perr)
			}
		} else {
			sum.Patch = &report
			sum.DocumentUpdated = report.Written
			f.anchorMissing = len(report.AnchorMissing)
			f.emptyProse = len(report.Empty)
		}
	}

	if !opts.SkipVerify {
		vr, verr := verify.Verify(cfg.Document.Path, cfg.Document.Part, cfg.Verify.Markers, waived)
		if verr != nil {
			sum.VerifyError = verr.Error()
			f.verifyGap = true
			log.Warnw("Verification could not run", "error", verr)
		} else {
			sum.Verification = &vr
			f.verifyGap = !vr.Pass
			for _, m := range vr.Missing {
				trace.SafeRecord(recorder, trace.Event{Kind: trace.EventMarkerMissing, Subject: m})
			}
			for _, m := range vr.Waived {
				trace.SafeRecord(recorder, trace.Event{Kind: trace.EventMarkerWaived, Subject: m})
			}
			if !vr.Pass {
				log.Warnw("Markers missing", "missing", vr.Missing)
			}
		}
	}

	sum.Outcome, sum.ExitCode = outcomeFor(f)
	sum.FinishedAt = now()

	res.Trace = recorder.Trace(traceDocument(cfg))
	if h, err := res.Trace.Hash(); err == nil {
		sum.TraceHash = h
	} else {
		log.Warnw("Trace hash", "error", err)
	}
	res.Summary = sum

	if ferr := failureFor(results, tsum, prose, res.PatchErr); ferr != nil {
		fl, err := store.RecordFailure(runID, ferr)
		if err != nil {
			return res, errors.Wrap(err, "record failure")
		}
		res.Failure = &fl
	}
	if err := store.SaveTrace(runID, res.Trace); err != nil {
		return res, errors.Wrap(err, "save trace")
	}
	if err := store.SaveSummary(sum); err != nil {
		return res, errors.Wrap(err, "save summary")
	}

	log.Infow("Run finished",
		"outcome", string(sum.Outcome), "exit_code", sum.ExitCode,
		"tasks", tsum.Total(), "ok", tsum.OK, "failed", tsum.Failed, "skipped", tsum.Skipped,
		"document_updated", sum.DocumentUpdated, "summary", store.SummaryPath(runID))
	return res, nil
}

// buildSpecs builds the task modules to run. Tasks excluded by Only are
// returned in the waived set so their markers are not expected.
func buildSpecs(cfg *config.Config, opts Options) ([]orchestrator.TaskSpec, map[string]bool, error) {
	treg := opts.Tasks
	if treg == nil {
		treg = tasks.DefaultRegistry()
	}

	selected := make(map[string]bool, len(opts.Only))
	for _, id := range opts.Only {
		if !slices.Contains(cfg.TaskIDs(), id) {
			return nil, nil, errors.WithHintf(
				&UsageError{Message: "unknown task " + id + " in --only"},
				"configured tasks: %v", cfg.TaskIDs())
		}
		selected[id] = true
	}

	waived := make(map[string]bool)
	var cfgs []core.TaskConfig
	for _, tc := range cfg.Tasks {
		if len(selected) > 0 && !selected[tc.ID] {
			waived[tc.ID] = true
			continue
		}
		cfgs = append(cfgs, tc)
	}
	built, err := treg.BuildAll(cfgs)
	if err != nil {
		return nil, nil, err
	}
	specs := make([]orchestrator.TaskSpec, len(built))
	for i, t := range built {
		specs[i] = orchestrator.TaskSpec{Task: t, Config: cfgs[i]}
	}
	return specs, waived, nil
}

type proseSet struct {
	keys       []string
	collisions []core.ProseCollision
	unmapped   []string
}

// collectProse turns the merged prose of ok tasks into insertions in
// registry order. Keys with no insertion spec are reported, never dropped
// silently.
func collectProse(results *core.ResultStore, reg *anchor.Registry, sink trace.Sink, log *zap.SugaredLogger) ([]docx.Insertion, proseSet) {
	entries, collisions := results.Prose()
	ps := proseSet{keys: []string{}, collisions: []core.ProseCollision{}, unmapped: []string{}}

	for _, c := range collisions {
		ps.collisions = append(ps.collisions, c)
		trace.SafeRecord(sink, trace.Event{Kind: trace.EventProseCollision, Subject: c.Key, Reason: c.Kept, Cause: c.Dropped})
		log.Warnw("Prose key emitted twice, keeping first", "key", c.Key, "kept", c.Kept, "dropped", c.Dropped)
	}

	var out []docx.Insertion
	for _, e := range entries {
		ps.keys = append(ps.keys, e.Key)
		spec, ok := reg.Lookup(e.Key)
		if !ok {
			ps.unmapped = append(ps.unmapped, e.Key)
			trace.SafeRecord(sink, trace.Event{Kind: trace.EventProseUnmapped, Subject: e.Key, Cause: e.TaskID})
			log.Errorw("Prose key has no insertion spec", "key", e.Key, "task", e.TaskID)
			continue
		}
		out = append(out, docx.Insertion{Spec: spec, Text: e.Text})
	}
	slices.SortStableFunc(out, func(a, b docx.Insertion) int {
		return reg.Position(a.Key()) - reg.Position(b.Key())
	})
	return out, ps
}

func recordPatch(sink trace.Sink, r docx.PatchReport) {
	for _, p := range r.Placements {
		trace.SafeRecord(sink, trace.Event{Kind: trace.EventProseApplied, Subject: p.Key, Reason: string(p.Tier)})
	}
	for _, k := range r.AlreadyPresent {
		trace.SafeRecord(sink, trace.Event{Kind: trace.EventProseAlreadyPresent, Subject: k})
	}
	for _, k := range r.Empty {
		trace.SafeRecord(sink, trace.Event{Kind: trace.EventProseEmpty, Subject: k})
	}
	for _, k := range r.AnchorMissing {
		trace.SafeRecord(sink, trace.Event{Kind: trace.EventAnchorMissing, Subject: k})
	}
}

// failureFor picks the error recorded as failure.json, most severe first.
func failureFor(results *core.ResultStore, tsum orchestrator.Summary, ps proseSet, patchErr error) error {
	switch {
	case patchErr != nil:
		return patchErr
	case len(tsum.RequiredFailed) > 0:
		id := tsum.RequiredFailed[0]
		r, _ := results.Get(id)
		return &state.TaskFailureError{Task: id, Message: r.Error}
	case len(ps.unmapped) > 0:
		return errors.Wrapf(errors.ErrUnmappedProseKey, "keys %v", ps.unmapped)
	default:
		return nil
	}
}

func traceDocument(cfg *config.Config) string {
	return filepath.Base(cfg.Document.Path) + ":" + cfg.Document.Part
}

// recordConfigFailure writes failure.json for a run that never started. It is
// best effort: the state dir itself may be what is misconfigured.
func recordConfigFailure(cfg *config.Config, cause error, log *zap.SugaredLogger) {
	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return
	}
	runID, err := state.NewRunID()
	if err != nil {
		return
	}
	if _, err := store.RecordFailure(runID, &state.ConfigError{Code: "InvalidConfig", Cause: cause}); err != nil {
		log.Warnw("Could not record configuration failure", "error", err)
	}
}
