// Package errors provides error handling for reportweaver.
//
// It re-exports github.com/cockroachdb/errors so every package wraps with
// stack traces and can attach hints for the operator:
//
//	if err := zr.Close(); err != nil {
//	    return errors.Wrap(err, "close archive")
//	}
//
//	return errors.WithHint(err, "restore the document from its .bak copy")
//
// The sentinels below are the pipeline-level error taxonomy. Callers mark or
// wrap them and test with errors.Is.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
	Join         = crdb.Join
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Sentinels shared across packages.
var (
	// ErrAnchorNotFound means primary, fallback and global fallback all failed
	// to locate an insertion point.
	ErrAnchorNotFound = New("anchor not found")

	// ErrArchiveCorrupt means the document archive, or its body part, could
	// not be read or parsed.
	ErrArchiveCorrupt = New("archive corrupt")

	// ErrArchiveUnwritable means the patched archive or its backup could not
	// be written.
	ErrArchiveUnwritable = New("archive unwritable")

	// ErrUnmappedProseKey means a task produced a prose key with no
	// insertion spec.
	ErrUnmappedProseKey = New("unmapped prose key")

	// ErrDuplicateResult means a result store received a second write for
	// the same task.
	ErrDuplicateResult = New("duplicate task result")

	// ErrInvalidConfig marks configuration problems detected before any
	// task runs.
	ErrInvalidConfig = New("invalid configuration")
)

// IsAnchorNotFound reports whether err is or wraps ErrAnchorNotFound.
func IsAnchorNotFound(err error) bool {
	return err != nil && Is(err, ErrAnchorNotFound)
}

// IsArchiveFatal reports whether err aborts the patch stage.
func IsArchiveFatal(err error) bool {
	return err != nil && IsAny(err, ErrArchiveCorrupt, ErrArchiveUnwritable)
}
