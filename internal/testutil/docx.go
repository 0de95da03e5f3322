// Package testutil builds document fixtures for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"
)

// BodyPart is the archive path of the WordprocessingML body.
const BodyPart = "word/document.xml"

// Paragraph renders one plain paragraph the way Word writes it.
func Paragraph(text string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(text))
	return `<w:p><w:pPr><w:pStyle w:val="BodyText"/></w:pPr><w:r><w:t xml:space="preserve">` + b.String() + `</w:t></w:r></w:p>`
}

// SplitParagraph renders a paragraph whose text is split across two runs.
func SplitParagraph(first, second string) string {
	return `<w:p><w:r><w:t>` + first + `</w:t></w:r><w:r><w:rPr><w:b/></w:rPr><w:t>` + second + `</w:t></w:r></w:p>`
}

// Body wraps paragraphs in a w:document/w:body envelope.
func Body(paragraphs ...string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n" +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
		`<w:body>` + strings.Join(paragraphs, "") +
		`<w:sectPr><w:pgSz w:w="12240" w:h="15840"/></w:sectPr></w:body></w:document>`
}

// PaperBody returns a body with the anchor phrases used across tests.
func PaperBody() string {
	return Body(
		Paragraph("I. Introduction"),
		Paragraph("Twelve exhibits support the analysis that follows."),
		Paragraph("Data sources span three tiers of public data."),
		Paragraph("V.B The SVB crisis drained USDC reserves within 48 hours."),
		Paragraph("Exhibit 6 shows the facility heatmap."),
		Paragraph("VI. Conclusion"),
		Paragraph("Stablecoins now route short-term funding."),
	)
}

// Fixed modification time so fixtures are byte-stable.
var fixtureTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// Parts returns the default non-body parts of a minimal .docx.
func Parts() map[string]string {
	return map[string]string{
		"[Content_Types].xml":          `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`,
		"_rels/.rels":                  `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
		"word/styles.xml":              `<?xml version="1.0" encoding="UTF-8"?><w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"/>`,
		"word/media/exhibit6.png":      "\x89PNG\r\n\x1a\nnot-really-a-png",
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
	}
}

// WriteDocx writes a .docx containing body at BodyPart plus Parts().
// It returns the archive path.
func WriteDocx(t *testing.T, dir, name, body string) string {
	t.Helper()
	parts := Parts()
	parts[BodyPart] = body
	return WriteArchive(t, filepath.Join(dir, name), parts)
}

// WriteArchive writes parts into a zip at path, in sorted name order with
// the body deflated and media stored.
func WriteArchive(t *testing.T, path string, parts map[string]string) string {
	t.Helper()
	names := make([]string, 0, len(parts))
	for n := range parts {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, n := range names {
		method := zip.Deflate
		if strings.HasPrefix(n, "word/media/") {
			method = zip.Store
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: n, Method: method, Modified: fixtureTime})
		if err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
		if _, err := io.WriteString(w, parts[n]); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	return path
}

// ReadPart returns the decompressed content of one archive entry.
func ReadPart(t *testing.T, path, name string) string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open part %s: %v", name, err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read part %s: %v", name, err)
		}
		return string(b)
	}
	t.Fatalf("part %s not found in %s", name, path)
	return ""
}

// RawEntries returns each entry's raw (still compressed) bytes keyed by name.
func RawEntries(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer zr.Close()
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.OpenRaw()
		if err != nil {
			t.Fatalf("open raw %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read raw %s: %v", f.Name, err)
		}
		out[f.Name] = b
	}
	return out
}
