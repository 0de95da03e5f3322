// Package verify checks a patched document for required markers such as
// exhibit labels.
package verify

import (
	"regexp"
	"strings"

	"reportweaver/internal/anchor"
	"reportweaver/internal/docx"
	"reportweaver/internal/errors"
)

// Marker is a string that must appear in the document body.
type Marker struct {
	Pattern string `json:"pattern" yaml:"pattern" mapstructure:"pattern"`

	// Task names the task whose output the marker depends on. If that task
	// was skipped the marker is waived.
	Task string `json:"task,omitempty" yaml:"task,omitempty" mapstructure:"task"`

	// Regex treats Pattern as a regular expression instead of a literal.
	Regex bool `json:"regex,omitempty" yaml:"regex,omitempty" mapstructure:"regex"`
}

// Report is the result of one verification. A gap is reported through
// Missing and Pass, not as an error.
type Report struct {
	Required []string `json:"required"`
	Found    []string `json:"found"`
	Missing  []string `json:"missing"`
	Waived   []string `json:"waived"`
	Pass     bool     `json:"pass"`
}

// Verify reads the body part of the archive at path and checks markers.
// Markers tied to a task in waived are excluded from the expectation.
func Verify(path, part string, markers []Marker, waived map[string]bool) (Report, error) {
	body, err := docx.ReadBody(path, part)
	if err != nil {
		return Report{}, err
	}
	return Body(body, markers, waived)
}

// Body checks markers against an in-memory body.
func Body(body string, markers []Marker, waived map[string]bool) (Report, error) {
	idx, err := anchor.IndexBody(body)
	if err != nil {
		return Report{}, errors.Mark(errors.Wrap(err, "parse body"), errors.ErrArchiveCorrupt)
	}
	text := idx.Text()

	r := Report{Required: []string{}, Found: []string{}, Missing: []string{}, Waived: []string{}}
	for _, e := range distinct(markers, waived) {
		m := e.marker
		if e.waived {
			r.Waived = append(r.Waived, m.Pattern)
			continue
		}
		r.Required = append(r.Required, m.Pattern)

		ok, err := present(m, body, text)
		if err != nil {
			return Report{}, err
		}
		if ok {
			r.Found = append(r.Found, m.Pattern)
		} else {
			r.Missing = append(r.Missing, m.Pattern)
		}
	}
	r.Pass = len(r.Missing) == 0
	return r, nil
}

type markerEntry struct {
	marker Marker
	waived bool
}

// distinct collapses markers with the same pattern and regex flag, in first
// seen order. A collapsed marker is waived only when every copy is waived.
func distinct(markers []Marker, waived map[string]bool) []markerEntry {
	type key struct {
		pattern string
		regex   bool
	}
	pos := make(map[key]int, len(markers))
	var out []markerEntry
	for _, m := range markers {
		w := m.Task != "" && waived[m.Task]
		k := key{m.Pattern, m.Regex}
		if i, ok := pos[k]; ok {
			out[i].waived = out[i].waived && w
			continue
		}
		pos[k] = len(out)
		out = append(out, markerEntry{marker: m, waived: w})
	}
	return out
}

func present(m Marker, body, text string) (bool, error) {
	if !m.Regex {
		return strings.Contains(body, m.Pattern) || strings.Contains(text, m.Pattern), nil
	}
	re, err := regexp.Compile(m.Pattern)
	if err != nil {
		return false, errors.Wrapf(err, "marker %q", m.Pattern)
	}
	return re.MatchString(body) || re.MatchString(text), nil
}

// Validate checks that every marker has a pattern and every regex compiles.
func Validate(markers []Marker) error {
	var errs []error
	for i, m := range markers {
		if strings.TrimSpace(m.Pattern) == "" {
			errs = append(errs, errors.Newf("markers[%d]: pattern is required", i))
			continue
		}
		if m.Regex {
			if _, err := regexp.Compile(m.Pattern); err != nil {
				errs = append(errs, errors.Wrapf(err, "markers[%d]", i))
			}
		}
	}
	return errors.Join(errs...)
}
