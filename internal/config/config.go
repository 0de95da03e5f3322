// Package config loads the pipeline configuration with viper.
//
// A pipeline file (YAML, TOML or JSON by extension) describes the document to
// patch, the tasks to run, where each prose key goes and which markers the
// finished document must carry. Any scalar can be overridden from the
// environment with the REPORTWEAVER_ prefix, e.g. REPORTWEAVER_PARALLELISM=4
// or REPORTWEAVER_DOCUMENT_PATH=draft.docx.
package config

import (
	"path/filepath"

	"reportweaver/internal/anchor"
	"reportweaver/internal/core"
	"reportweaver/internal/verify"
)

// Config is the full pipeline configuration.
type Config struct {
	Document    DocumentConfig    `mapstructure:"document"`
	StateDir    string            `mapstructure:"state_dir"`
	WorkDir     string            `mapstructure:"work_dir"`
	Parallelism int               `mapstructure:"parallelism"`
	Anchors     AnchorsConfig     `mapstructure:"anchors"`
	Verify      VerifyConfig      `mapstructure:"verify"`
	Tasks       []core.TaskConfig `mapstructure:"tasks"`
	Log         LogConfig         `mapstructure:"log"`

	// Source is the file the configuration was read from, if any.
	Source string `mapstructure:"-"`
}

// DocumentConfig locates the document to patch.
type DocumentConfig struct {
	Path string `mapstructure:"path"`
	// Part is the archive entry holding the body.
	Part string `mapstructure:"part"`
	// BackupPath defaults to "<path>.bak".
	BackupPath string `mapstructure:"backup_path"`
	// ParagraphSizeHalfPoints sets the font size of inserted paragraphs in
	// half-points (22 = 11pt); 0 inherits the document style.
	ParagraphSizeHalfPoints int `mapstructure:"paragraph_size_half_points"`
}

// AnchorsConfig is the insertion-spec table.
type AnchorsConfig struct {
	GlobalFallback string                 `mapstructure:"global_fallback"`
	Insertions     []anchor.InsertionSpec `mapstructure:"insertions"`
}

// VerifyConfig lists the markers the patched document must contain.
type VerifyConfig struct {
	Markers []verify.Marker `mapstructure:"markers"`
}

// LogConfig controls logger initialization.
type LogConfig struct {
	JSON      bool `mapstructure:"json"`
	Verbosity int  `mapstructure:"verbosity"`
}

// Registry builds the anchor registry from the insertion table.
func (c *Config) Registry() (*anchor.Registry, error) {
	return anchor.NewRegistry(c.Anchors.GlobalFallback, c.Anchors.Insertions)
}

// TaskIDs returns the configured task IDs in order.
func (c *Config) TaskIDs() []string {
	out := make([]string, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		out = append(out, t.ID)
	}
	return out
}

// ResolvePaths makes relative paths absolute against base, normally the
// directory of the configuration file. Tasks without a work dir inherit the
// pipeline work dir.
func (c *Config) ResolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Document.Path = abs(c.Document.Path)
	c.Document.BackupPath = abs(c.Document.BackupPath)
	c.StateDir = abs(c.StateDir)
	if c.WorkDir == "" {
		c.WorkDir = base
	}
	c.WorkDir = abs(c.WorkDir)
	for i := range c.Tasks {
		switch wd := c.Tasks[i].WorkDir; {
		case wd == "":
			c.Tasks[i].WorkDir = c.WorkDir
		case !filepath.IsAbs(wd):
			c.Tasks[i].WorkDir = filepath.Join(c.WorkDir, wd)
		}
	}
}
