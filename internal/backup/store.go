package backup

import (
	"errors"
	"time"
)

// ErrLocked is returned by Store.Lock when another capture or prune of the
// same project is already in flight. Callers treat it as a no-op signal,
// not a failure.
var ErrLocked = errors.New("project is locked by another run")

// Store owns all on-disk bytes of one project's backup tree: the current
// mirror, the archive of superseded versions, and dump snapshots. It is the
// single writer for that tree; other components only read its layout or
// request deletion through Prune.
type Store interface {
	// Capture mirrors the given working-tree items, archiving any current
	// copy whose content differs (size, then hash) before replacing it.
	// The archive copy is durably in place before the mirror copy is
	// touched, so an interrupted capture never leaves an item without a
	// readable copy. Individual item failures are recorded in
	// CaptureStats.Skipped; only a store-wide write failure is returned
	// as an error.
	Capture(items []Item, now time.Time) (*CaptureStats, error)

	// ImportDump versions an externally produced database dump as an
	// opaque blob under the dump area. name is the database's stable
	// identity; the extension is taken from srcPath.
	ImportDump(name string, srcPath string, now time.Time) (*Artifact, error)

	// Versions enumerates all archived versions and dump snapshots,
	// keyed by logical path, each list ordered oldest first.
	Versions() (map[string][]Version, error)

	// MirrorEntries lists the current mirror copies as items whose Rel is
	// the logical path.
	MirrorEntries() ([]Item, error)

	// MirrorPath returns the on-disk path of the current copy for a
	// logical path, whether or not it exists.
	MirrorPath(logicalPath string) string

	// Prune deletes the given archived versions. Only the store deletes
	// from the backup tree.
	Prune(candidates []Version) (removed int, bytes int64, err error)

	// Lock acquires the project's exclusive capture/prune lock, or fails
	// immediately with ErrLocked. The returned release function must be
	// called exactly once.
	Lock() (release func(), err error)

	// Root returns the backup tree root (the always-healthy local
	// delivery target).
	Root() string
}
