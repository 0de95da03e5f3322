package fsutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportweaver/internal/errors"
)

func TestWriteFileAtomic_CreatesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("two"), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriteAtomic_HookAbortLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.bin")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	crash := errors.New("simulated crash")
	var seen string
	err := WriteAtomic(path, 0o644, func(tmp string) error {
		seen = tmp
		b, err := os.ReadFile(tmp)
		require.NoError(t, err)
		assert.Equal(t, "replacement", string(b))
		return crash
	}, func(w io.Writer) error {
		_, err := io.WriteString(w, "replacement")
		return err
	})
	require.ErrorIs(t, err, crash)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
	_, err = os.Stat(seen)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteAtomic_FillErrorLeavesTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.bin")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	err := WriteAtomic(path, 0o644, nil, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.New("boom")
	})
	require.Error(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.docx")
	dst := filepath.Join(dir, "a.docx.bak")
	require.NoError(t, os.WriteFile(src, []byte("zip bytes"), 0o640))

	require.NoError(t, CopyFileAtomic(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "zip bytes", string(got))

	assert.Error(t, CopyFileAtomic(filepath.Join(dir, "missing"), dst))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs", "abc")
	require.NoError(t, EnsureDir(dir, 0o755))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
