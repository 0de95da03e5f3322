// Package docx reads and patches OOXML word-processing packages.
//
// A .docx is a zip archive whose main body lives at word/document.xml.
// Patching rewrites only the body entry: every other entry is copied in its
// compressed form so its bytes are unchanged, and the new archive replaces
// the old one by atomic rename after a backup has been taken.
package docx

import (
	"archive/zip"
	"bytes"
	"io"
	"os"

	"reportweaver/internal/anchor"
	"reportweaver/internal/errors"
)

// DefaultBodyPart is the archive entry holding the document body.
const DefaultBodyPart = "word/document.xml"

// Document is an archive loaded into memory.
type Document struct {
	Path string
	Part string
	Body string

	// Prefix is the namespace prefix bound to the WordprocessingML namespace.
	Prefix string

	raw  []byte
	zr   *zip.Reader
	body *zip.File
	mode os.FileMode
}

// Open reads the archive at path and extracts its body part.
// An unreadable archive, a missing body part, or a body that is not
// well-formed XML yields ErrArchiveCorrupt.
func Open(path, part string) (*Document, error) {
	if part == "" {
		part = DefaultBodyPart
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, corrupt(err, "stat %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, corrupt(err, "read %s", path)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, corrupt(err, "open zip %s", path)
	}

	doc := &Document{Path: path, Part: part, raw: raw, zr: zr, mode: info.Mode().Perm()}
	for _, f := range zr.File {
		if f.Name == part {
			doc.body = f
			break
		}
	}
	if doc.body == nil {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrArchiveCorrupt, "%s has no %s entry", path, part),
			"check document.part in the configuration")
	}

	rc, err := doc.body.Open()
	if err != nil {
		return nil, corrupt(err, "open %s", part)
	}
	b, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, corrupt(err, "read %s", part)
	}
	doc.Body = string(b)

	idx, err := anchor.IndexBody(doc.Body)
	if err != nil {
		return nil, corrupt(err, "parse %s", part)
	}
	doc.Prefix = idx.Prefix
	return doc, nil
}

// Entries returns the archive entry names in archive order.
func (d *Document) Entries() []string {
	out := make([]string, 0, len(d.zr.File))
	for _, f := range d.zr.File {
		out = append(out, f.Name)
	}
	return out
}

func corrupt(err error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), errors.ErrArchiveCorrupt)
}

// ReadBody returns the body part of the archive at path.
func ReadBody(path, part string) (string, error) {
	doc, err := Open(path, part)
	if err != nil {
		return "", err
	}
	return doc.Body, nil
}
