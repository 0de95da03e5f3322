// Package anchor decides where each prose block goes inside a document body.
//
// An InsertionSpec names a prose key and the text fragments used to locate
// it. The Resolver applies an explicit tiered policy:
//
//	primary fragment → per-key fallback fragment → global fallback → ErrAnchorNotFound
//
// Primary and fallback matches insert after the paragraph containing the
// fragment. The global fallback inserts before the one paragraph containing
// the global phrase; if that phrase is absent or appears in more than one
// paragraph, resolution fails rather than guessing a position.
package anchor

import (
	"strings"

	"reportweaver/internal/errors"
)

// InsertionSpec locates one prose key. It is static configuration and
// read-only at run time.
type InsertionSpec struct {
	Key      string `json:"key" yaml:"key" mapstructure:"key"`
	Primary  string `json:"primary" yaml:"primary" mapstructure:"primary"`
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty" mapstructure:"fallback"`

	// Section is a human label for the target section, used in reports.
	Section string `json:"section,omitempty" yaml:"section,omitempty" mapstructure:"section"`

	// Task optionally names the task expected to produce this key.
	Task string `json:"task,omitempty" yaml:"task,omitempty" mapstructure:"task"`
}

// Registry is the ordered table of insertion specs plus the global fallback
// phrase shared by every key.
type Registry struct {
	GlobalFallback string
	specs          []InsertionSpec
	byKey          map[string]int
}

// NewRegistry validates specs and builds a registry.
//
// Keys must be unique and non-empty and every spec needs a primary fragment.
// Order is preserved: the patch engine applies insertions in registry order.
func NewRegistry(globalFallback string, specs []InsertionSpec) (*Registry, error) {
	r := &Registry{
		GlobalFallback: globalFallback,
		specs:          make([]InsertionSpec, 0, len(specs)),
		byKey:          make(map[string]int, len(specs)),
	}
	var errs []error
	for i, s := range specs {
		s.Key = strings.TrimSpace(s.Key)
		if s.Key == "" {
			errs = append(errs, errors.Newf("insertions[%d]: key is required", i))
			continue
		}
		if s.Primary == "" {
			errs = append(errs, errors.Newf("insertions[%d] %q: primary fragment is required", i, s.Key))
		}
		if _, dup := r.byKey[s.Key]; dup {
			errs = append(errs, errors.Newf("insertions[%d]: duplicate key %q", i, s.Key))
			continue
		}
		r.byKey[s.Key] = len(r.specs)
		r.specs = append(r.specs, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

// Lookup returns the spec for key.
func (r *Registry) Lookup(key string) (InsertionSpec, bool) {
	if r == nil {
		return InsertionSpec{}, false
	}
	i, ok := r.byKey[key]
	if !ok {
		return InsertionSpec{}, false
	}
	return r.specs[i], true
}

// Position returns the registry index of key, or -1.
func (r *Registry) Position(key string) int {
	if r == nil {
		return -1
	}
	if i, ok := r.byKey[key]; ok {
		return i
	}
	return -1
}
