// Package fsutil holds the durable write primitives shared by the document
// patcher and the run store: temp file, fsync, atomic rename, directory fsync.
package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"reportweaver/internal/errors"
)

// CommitHook runs after the temp file is synced and closed but before it is
// renamed over the destination. Returning an error abandons the write and
// leaves the destination untouched.
type CommitHook func(tmpPath string) error

// WriteFileAtomic writes data to path so that readers observe either the old
// content or the new content, never a mix.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return WriteAtomic(path, perm, nil, func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// WriteAtomic streams content produced by fill into a temp file next to path,
// syncs it and renames it into place, then syncs the directory.
func WriteAtomic(path string, perm os.FileMode, hook CommitHook, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return errors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if hook != nil {
		if err := hook(tmpName); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename into %s", path)
	}
	committed = true
	return FsyncDir(dir)
}

// CopyFileAtomic copies src to dst durably, keeping src's permissions.
func CopyFileAtomic(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "stat %s", src)
	}
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()
	return WriteAtomic(dst, info.Mode().Perm(), nil, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return errors.Wrapf(err, "copy %s", src)
	})
}

// EnsureDir creates dir and syncs it and its parent.
func EnsureDir(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	if err := FsyncDir(dir); err != nil {
		return err
	}
	parent := filepath.Dir(dir)
	if parent != dir {
		return FsyncDir(parent)
	}
	return nil
}

// FsyncDir flushes directory metadata so a completed rename survives a crash.
func FsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "open dir %s", dir)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "sync dir %s", dir)
	}
	return nil
}
