package config

import (
	"strings"

	"reportweaver/internal/errors"
	"reportweaver/internal/verify"
)

// Validate checks the configuration and reports every problem at once.
// The returned error is marked with ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Document.Path) == "" {
		add(errors.New("document.path is required"))
	}
	if strings.TrimSpace(c.Document.Part) == "" {
		add(errors.New("document.part cannot be empty"))
	}
	if c.Document.ParagraphSizeHalfPoints < 0 {
		add(errors.Newf("document.paragraph_size_half_points must be >= 0, got %d", c.Document.ParagraphSizeHalfPoints))
	}
	if c.Parallelism < 0 {
		add(errors.Newf("parallelism must be >= 0, got %d", c.Parallelism))
	}
	if strings.TrimSpace(c.StateDir) == "" {
		add(errors.New("state_dir cannot be empty"))
	}

	ids := make(map[string]bool, len(c.Tasks))
	for i, t := range c.Tasks {
		id := strings.TrimSpace(t.ID)
		switch {
		case id == "":
			add(errors.Newf("tasks[%d]: id is required", i))
		case ids[id]:
			add(errors.Newf("tasks[%d]: duplicate id %q", i, id))
		}
		ids[id] = true
		if strings.TrimSpace(t.Kind) == "" {
			add(errors.Newf("tasks[%d] %q: kind is required", i, id))
		}
		if t.Timeout < 0 {
			add(errors.Newf("tasks[%d] %q: timeout must be >= 0", i, id))
		}
	}

	if _, err := c.Registry(); err != nil {
		add(errors.Wrap(err, "anchors"))
	}
	for i, s := range c.Anchors.Insertions {
		if s.Task != "" && !ids[s.Task] {
			add(errors.Newf("anchors.insertions[%d] %q: unknown task %q", i, s.Key, s.Task))
		}
	}

	if err := verify.Validate(c.Verify.Markers); err != nil {
		add(errors.Wrap(err, "verify"))
	}
	for i, m := range c.Verify.Markers {
		if m.Task != "" && !ids[m.Task] {
			add(errors.Newf("verify.markers[%d] %q: unknown task %q", i, m.Pattern, m.Task))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Mark(errors.Join(errs...), errors.ErrInvalidConfig)
}
