package anchor

import (
	"encoding/xml"
	"io"
	"strings"

	"reportweaver/internal/errors"
)

// WordNamespace is the WordprocessingML main namespace.
const WordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// Paragraph is one <w:p> element located by byte offsets in the body.
//
// Body[Start:End] is the complete element, including its end tag. Text is the
// concatenated, entity-decoded content of its <w:t> runs, nested paragraphs
// (text boxes) included. Parent is the index of the nearest enclosing
// paragraph, or -1.
type Paragraph struct {
	Start  int
	End    int
	Text   string
	Parent int
}

// Index is the paragraph map of one body snapshot. It must be rebuilt after
// every mutation of the body.
type Index struct {
	// Prefix is the namespace prefix bound to WordNamespace ("w" in practice).
	Prefix     string
	Paragraphs []Paragraph
}

// IndexBody parses body and returns its paragraphs in document order.
// A body that is not well-formed XML is an error.
func IndexBody(body string) (*Index, error) {
	dec := xml.NewDecoder(strings.NewReader(body))
	idx := &Index{Prefix: "w"}

	var (
		prefixKnown bool
		open        []int
		texts       []*strings.Builder
		inText      int
		depth       int
	)
	for {
		start := int(dec.InputOffset())
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "parse body at offset %d", start)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if !prefixKnown {
				if p, ok := wordPrefix(t); ok {
					idx.Prefix = p
				}
				prefixKnown = true
			}
			if t.Name.Space != idx.Prefix {
				continue
			}
			switch t.Name.Local {
			case "p":
				parent := -1
				if len(open) > 0 {
					parent = open[len(open)-1]
				}
				idx.Paragraphs = append(idx.Paragraphs, Paragraph{Start: start, Parent: parent})
				open = append(open, len(idx.Paragraphs)-1)
				texts = append(texts, &strings.Builder{})
			case "t":
				inText++
			}
		case xml.EndElement:
			depth--
			if t.Name.Space != idx.Prefix {
				continue
			}
			switch t.Name.Local {
			case "p":
				if len(open) == 0 {
					return nil, errors.Newf("unbalanced paragraph end at offset %d", start)
				}
				i := open[len(open)-1]
				idx.Paragraphs[i].End = int(dec.InputOffset())
				idx.Paragraphs[i].Text = texts[len(texts)-1].String()
				open = open[:len(open)-1]
				texts = texts[:len(texts)-1]
			case "t":
				if inText > 0 {
					inText--
				}
			}
		case xml.CharData:
			if inText == 0 {
				continue
			}
			for _, b := range texts {
				b.Write(t)
			}
		}
	}
	if depth != 0 || len(open) != 0 {
		return nil, errors.New("parse body: unexpected end of document")
	}
	return idx, nil
}

// wordPrefix returns the prefix a root element binds to WordNamespace.
// An empty prefix means WordprocessingML is the default namespace.
func wordPrefix(root xml.StartElement) (string, bool) {
	for _, a := range root.Attr {
		if a.Value != WordNamespace {
			continue
		}
		if a.Name.Space == "xmlns" {
			return a.Name.Local, true
		}
		if a.Name.Space == "" && a.Name.Local == "xmlns" {
			return "", true
		}
	}
	return "", false
}

// First returns the index of the first paragraph whose text contains
// fragment, or -1.
func (x *Index) First(fragment string) int {
	for i, p := range x.Paragraphs {
		if strings.Contains(p.Text, fragment) {
			return i
		}
	}
	return -1
}

// Containing returns the innermost paragraph whose element spans offset, or -1.
func (x *Index) Containing(offset int) int {
	found := -1
	for i, p := range x.Paragraphs {
		if p.Start > offset {
			break
		}
		if offset < p.End {
			found = i
		}
	}
	return found
}

// Outermost returns the paragraphs whose text contains fragment and that are
// not nested inside another matching paragraph.
func (x *Index) Outermost(fragment string) []int {
	var out []int
	for i, p := range x.Paragraphs {
		if !strings.Contains(p.Text, fragment) {
			continue
		}
		nested := false
		for a := p.Parent; a >= 0; a = x.Paragraphs[a].Parent {
			if strings.Contains(x.Paragraphs[a].Text, fragment) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, i)
		}
	}
	return out
}

// Text returns the document text: paragraph texts of top-level paragraphs
// joined by newlines.
func (x *Index) Text() string {
	var b strings.Builder
	for _, p := range x.Paragraphs {
		if p.Parent >= 0 {
			continue
		}
		b.WriteString(p.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
