package docx

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"

	"go.uber.org/zap"

	"reportweaver/internal/anchor"
	"reportweaver/internal/errors"
	"reportweaver/internal/fsutil"
	"reportweaver/internal/logger"
)

// Insertion is one prose block bound to its anchor spec.
type Insertion struct {
	Spec anchor.InsertionSpec
	Text string
}

// Key returns the prose key of the insertion.
func (i Insertion) Key() string { return i.Spec.Key }

// Placement records where an applied insertion went.
type Placement struct {
	Key      string      `json:"key"`
	Tier     anchor.Tier `json:"tier"`
	Fragment string      `json:"fragment"`
}

// PatchReport describes the outcome of one Apply call.
type PatchReport struct {
	Document       string      `json:"document"`
	Applied        []string    `json:"applied"`
	AlreadyPresent []string    `json:"already_present"`
	Empty          []string    `json:"empty"`
	AnchorMissing  []string    `json:"anchor_missing"`
	Placements     []Placement `json:"placements"`
	BackupPath     string      `json:"backup_path,omitempty"`
	Written        bool        `json:"written"`
	BodyHashBefore string      `json:"body_sha256_before"`
	BodyHashAfter  string      `json:"body_sha256_after"`
}

// Patcher applies insertions to a document archive.
type Patcher struct {
	// Part is the body entry; empty means DefaultBodyPart.
	Part string
	// BackupPath is where the pre-patch archive is copied; empty means
	// "<archive>.bak".
	BackupPath string
	// GlobalFallback is the phrase used when a key's own fragments are absent.
	GlobalFallback string
	// SizeHalfPoints sets the run size of inserted paragraphs; 0 omits it.
	SizeHalfPoints int

	Logger *zap.SugaredLogger

	// beforeCommit runs after the new archive is fully written to its temp
	// file and before the rename. Tests use it to simulate a crash.
	beforeCommit fsutil.CommitHook
}

// documentState is the working body during one Apply call.
type documentState struct {
	body    string
	applied []string
}

// Apply inserts each block into the archive at path, in order.
//
// Blocks with blank text are reported as empty. Blocks whose text is
// already present are skipped, so applying the same insertions twice leaves
// the document unchanged and the second call writes nothing. An anchor miss drops that key with a warning and continues. When
// the body changes, the original archive is first copied to the backup path,
// then the new archive is written to a temp file and renamed over the target.
func (p *Patcher) Apply(ctx context.Context, path string, insertions []Insertion) (PatchReport, error) {
	log := logger.OrNop(p.Logger)
	report := PatchReport{
		Document:       path,
		Applied:        []string{},
		AlreadyPresent: []string{},
		Empty:          []string{},
		AnchorMissing:  []string{},
		Placements:     []Placement{},
	}

	doc, err := Open(path, p.Part)
	if err != nil {
		return report, err
	}
	report.BodyHashBefore = hashBody(doc.Body)
	report.BodyHashAfter = report.BodyHashBefore

	resolver := anchor.Resolver{GlobalFallback: p.GlobalFallback}
	st := documentState{body: doc.Body}
	for _, ins := range insertions {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "patch cancelled")
		}
		key := ins.Key()

		if strings.TrimSpace(ins.Text) == "" {
			report.Empty = append(report.Empty, key)
			log.Warnw("Prose text is empty, not inserted", "key", key, "path", path)
			continue
		}
		present, err := alreadyPresent(st.body, ins.Text)
		if err != nil {
			return report, errors.Wrapf(err, "prose key %q", key)
		}
		if present {
			report.AlreadyPresent = append(report.AlreadyPresent, key)
			log.Infow("Prose already present", "key", key, "path", path)
			continue
		}

		res, err := resolver.Resolve(st.body, ins.Spec)
		if err != nil {
			if errors.IsAnchorNotFound(err) {
				report.AnchorMissing = append(report.AnchorMissing, key)
				log.Warnw("No insertion point", "key", key, "path", path, "error", err)
				continue
			}
			return report, err
		}

		markup := ParagraphXML(doc.Prefix, ins.Text, p.SizeHalfPoints)
		st.body = st.body[:res.Offset] + markup + st.body[res.Offset:]
		st.applied = append(st.applied, key)
		report.Placements = append(report.Placements, Placement{Key: key, Tier: res.Tier, Fragment: res.Fragment})
		log.Infow("Inserted prose", "key", key, "tier", string(res.Tier), "fragment", res.Fragment)
	}
	report.Applied = append(report.Applied, st.applied...)

	if st.body == doc.Body {
		log.Debugw("Document unchanged, nothing written", "path", path)
		return report, nil
	}
	if _, err := anchor.IndexBody(st.body); err != nil {
		return report, errors.Wrap(err, "patched body is not well-formed")
	}

	backup := p.BackupPath
	if backup == "" {
		backup = path + ".bak"
	}
	if err := fsutil.CopyFileAtomic(path, backup); err != nil {
		return report, unwritable(err, "write backup %s", backup)
	}
	report.BackupPath = backup

	if err := p.write(doc, st.body); err != nil {
		return report, unwritable(err, "write %s", path)
	}
	report.Written = true
	report.BodyHashAfter = hashBody(st.body)
	log.Infow("Document updated", "path", path, "applied", len(st.applied), "backup", backup)
	return report, nil
}

// alreadyPresent reports whether text is in body, either as escaped markup
// or as the decoded text of one paragraph.
func alreadyPresent(body, text string) (bool, error) {
	if strings.Contains(body, EscapeText(text)) {
		return true, nil
	}
	idx, err := anchor.IndexBody(body)
	if err != nil {
		return false, err
	}
	return idx.First(text) >= 0, nil
}

// write streams a new archive: the body entry is re-deflated, every other
// entry is copied raw with its original header.
func (p *Patcher) write(doc *Document, body string) error {
	return fsutil.WriteAtomic(doc.Path, doc.mode, p.beforeCommit, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		zw.SetComment(doc.zr.Comment)
		for _, f := range doc.zr.File {
			if f == doc.body {
				if err := writeBody(zw, f, body); err != nil {
					return err
				}
				continue
			}
			if err := copyRaw(zw, f); err != nil {
				return err
			}
		}
		return errors.Wrap(zw.Close(), "finish archive")
	})
}

func writeBody(zw *zip.Writer, f *zip.File, body string) error {
	hdr := f.FileHeader
	hdr.Method = zip.Deflate
	hdr.CompressedSize64 = 0
	hdr.UncompressedSize64 = 0
	hdr.CRC32 = 0
	// CreateHeader appends its own timestamp field.
	hdr.Extra = nil
	w, err := zw.CreateHeader(&hdr)
	if err != nil {
		return errors.Wrapf(err, "create %s", f.Name)
	}
	_, err = io.WriteString(w, body)
	return errors.Wrapf(err, "write %s", f.Name)
}

func copyRaw(zw *zip.Writer, f *zip.File) error {
	hdr := f.FileHeader
	w, err := zw.CreateRaw(&hdr)
	if err != nil {
		return errors.Wrapf(err, "create %s", f.Name)
	}
	r, err := f.OpenRaw()
	if err != nil {
		return errors.Wrapf(err, "open %s", f.Name)
	}
	_, err = io.Copy(w, r)
	return errors.Wrapf(err, "copy %s", f.Name)
}

func unwritable(err error, format string, args ...any) error {
	return errors.WithHint(
		errors.Mark(errors.Wrapf(err, format, args...), errors.ErrArchiveUnwritable),
		"the target document was not modified")
}

func hashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
