package anchor

import (
	"strings"

	"reportweaver/internal/errors"
)

// Tier names the resolution step that produced an offset.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
	TierGlobal   Tier = "global"
)

// Resolution is where a prose block goes in the current body.
type Resolution struct {
	// Offset is the byte offset in the body at which to splice new markup.
	Offset int
	Tier   Tier
	// Fragment is the text that matched.
	Fragment string
	// Paragraph is the index of the anchoring paragraph in the body index.
	Paragraph int
}

// Resolver resolves insertion offsets against a body snapshot.
type Resolver struct {
	GlobalFallback string
}

// Resolve finds the insertion offset for spec in body.
//
// The body is re-indexed on every call, so offsets always refer to the
// current buffer, including the effect of earlier insertions.
func (r Resolver) Resolve(body string, spec InsertionSpec) (Resolution, error) {
	idx, err := IndexBody(body)
	if err != nil {
		return Resolution{}, err
	}
	res, err := r.ResolveIndexed(body, idx, spec.Primary, spec.Fallback)
	if err != nil {
		return Resolution{}, errors.Wrapf(err, "prose key %q", spec.Key)
	}
	return res, nil
}

// ResolveIndexed applies the tier policy using a prebuilt index of body.
func (r Resolver) ResolveIndexed(body string, idx *Index, primary, fallback string) (Resolution, error) {
	if res, ok := after(body, idx, primary, TierPrimary); ok {
		return res, nil
	}
	if res, ok := after(body, idx, fallback, TierFallback); ok {
		return res, nil
	}
	return before(idx, r.GlobalFallback)
}

// Resolve is the functional form of Resolver.Resolve.
func Resolve(body, primary, fallback, globalFallback string) (Resolution, error) {
	idx, err := IndexBody(body)
	if err != nil {
		return Resolution{}, err
	}
	return Resolver{GlobalFallback: globalFallback}.ResolveIndexed(body, idx, primary, fallback)
}

// after locates the first paragraph containing fragment and returns the
// offset just past its end tag. Paragraph text is searched first; a literal
// match in the raw markup (e.g. a fragment split by run boundaries after
// editing) is mapped to its innermost enclosing paragraph.
func after(body string, idx *Index, fragment string, tier Tier) (Resolution, bool) {
	if fragment == "" {
		return Resolution{}, false
	}
	p := idx.First(fragment)
	if p < 0 {
		if raw := strings.Index(body, fragment); raw >= 0 {
			p = idx.Containing(raw)
		}
	}
	if p < 0 {
		return Resolution{}, false
	}
	return Resolution{Offset: idx.Paragraphs[p].End, Tier: tier, Fragment: fragment, Paragraph: p}, true
}

// before locates the single paragraph containing phrase and returns its
// start offset.
func before(idx *Index, phrase string) (Resolution, error) {
	if phrase == "" {
		return Resolution{}, errors.WithDetail(errors.ErrAnchorNotFound, "no global fallback configured")
	}
	matches := idx.Outermost(phrase)
	switch len(matches) {
	case 0:
		return Resolution{}, errors.Wrapf(errors.ErrAnchorNotFound, "global fallback %q is absent", phrase)
	case 1:
		p := matches[0]
		return Resolution{Offset: idx.Paragraphs[p].Start, Tier: TierGlobal, Fragment: phrase, Paragraph: p}, nil
	default:
		return Resolution{}, errors.Wrapf(errors.ErrAnchorNotFound, "global fallback %q appears in %d paragraphs", phrase, len(matches))
	}
}
