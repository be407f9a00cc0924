package backup

import (
	"errors"
	"fmt"
)

// ErrRestoreInProgress rejects operations that would interleave with an
// active restore.
var ErrRestoreInProgress = errors.New("a restore is in progress")

// ErrDumpNotFound is returned by a database component's Restore when the
// bundle carries no dump for it. Bundles from older backup versions lack the
// auxiliary dump; the restore orchestrator downgrades this to a warning.
var ErrDumpNotFound = errors.New("dump not present in bundle")

// ExportError is a fatal component failure. A backup missing a required
// database export must never be mistaken for a restorable snapshot.
type ExportError struct {
	Component string
	Err       error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Component, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// CorruptArchiveError means a bundle could not be extracted. It always
// surfaces before any destructive restore step.
type CorruptArchiveError struct {
	Path string
	Err  error
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt archive %s: %v", e.Path, e.Err)
}

func (e *CorruptArchiveError) Unwrap() error { return e.Err }
