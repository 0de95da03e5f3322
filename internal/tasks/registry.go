// Package tasks provides the built-in task kinds and the registry that
// builds tasks from configuration.
//
// Two kinds ship by default:
//
//	command     runs an external program that prints {"metrics":…,"prose":…} as JSON
//	prose_file  loads the same shape from a YAML or JSON file produced out of band
//
// Programs embedding the pipeline can register further kinds.
package tasks

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"

	"reportweaver/internal/core"
	"reportweaver/internal/errors"
)

const (
	KindCommand   = "command"
	KindProseFile = "prose_file"
)

// Factory builds a task from its configuration. It returns an error for
// invalid parameters; it must not check external preconditions, which are
// evaluated when the task runs.
type Factory func(cfg core.TaskConfig) (core.Task, error)

// Registry maps task kinds to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(KindCommand, NewCommandTask)
	r.Register(KindProseFile, NewProseFileTask)
	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Build constructs the task for cfg. An unknown kind or invalid parameters
// are configuration errors.
func (r *Registry) Build(cfg core.TaskConfig) (core.Task, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.WithHintf(
			errors.Mark(errors.Newf("task %q: unknown kind %q", cfg.ID, cfg.Kind), errors.ErrInvalidConfig),
			"known kinds: %s", strings.Join(r.Kinds(), ", "))
	}
	t, err := f(cfg)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "task %q", cfg.ID), errors.ErrInvalidConfig)
	}
	return t, nil
}

// BuildAll constructs every configured task, collecting all errors.
func (r *Registry) BuildAll(cfgs []core.TaskConfig) ([]core.Task, error) {
	out := make([]core.Task, 0, len(cfgs))
	var errs []error
	for _, c := range cfgs {
		t, err := r.Build(c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, t)
	}
	if len(errs) > 0 {
		return nil, errors.Mark(errors.Join(errs...), errors.ErrInvalidConfig)
	}
	return out, nil
}

// decodeParams decodes a task's free-form params into a typed struct.
// Unknown keys are rejected so typos surface at load time.
func decodeParams(params map[string]any, dst any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.Wrap(err, "params decoder")
	}
	if err := dec.Decode(params); err != nil {
		return errors.Wrap(err, "invalid params")
	}
	return nil
}
