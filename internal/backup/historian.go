package backup

import "time"

// Historian provides the read-only views over a project's backup tree:
// structural diff, capture-point enumeration, point-in-time reconstruction
// and per-item version history. It may run concurrently with captures of
// other projects; reading mid-capture of the same project can observe a
// transiently inconsistent view.
type Historian interface {
	// Diff compares the live working tree to the current mirror, keyed on
	// content identity (size, then hash) so metadata-only differences are
	// never reported as modifications.
	Diff() (*Diff, error)

	// CapturePoints lists the distinct capture timestamps present across
	// all archived versions, newest first, with process-id suffixes
	// collapsed.
	CapturePoints() ([]time.Time, error)

	// Reconstruct returns the version of an item that was live at the
	// given time: the archived version with the smallest timestamp
	// strictly greater than at, else the current mirror copy, else
	// (nil, nil): the item did not exist then, which is not an error.
	Reconstruct(logicalPath string, at time.Time) (*Version, error)

	// History lists an item's versions newest first, with the current
	// copy as the first entry.
	History(logicalPath string) ([]Version, error)

	// Extract writes a version's content, unwrapped, to dstPath.
	Extract(v *Version, dstPath string) error
}
