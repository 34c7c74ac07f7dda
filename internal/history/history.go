// Package history provides the read-only views over a project's backup
// tree: working-tree diff, capture-point enumeration, point-in-time
// reconstruction and per-item version browsing.
package history

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"snapkeep/internal/backup"
	"snapkeep/internal/fsutil"
)

// Historian implements backup.Historian over a store's on-disk layout.
type Historian struct {
	store   backup.Store
	scanner backup.Scanner
	codec   backup.Codec
	root    string
	logger  backup.Logger
}

// New creates a Historian for the project rooted at root.
func New(store backup.Store, scanner backup.Scanner, codec backup.Codec, root string, logger backup.Logger) *Historian {
	return &Historian{
		store:   store,
		scanner: scanner,
		codec:   codec,
		root:    root,
		logger:  logger,
	}
}

// Diff compares the live working tree against the current mirror. The
// comparison is keyed on content identity (size, then hash) so
// metadata-only differences (permissions, timestamps) are never reported
// as modifications.
func (h *Historian) Diff() (*backup.Diff, error) {
	items, err := h.scanner.Scan(h.root)
	if err != nil {
		return nil, fmt.Errorf("scanning working tree: %w", err)
	}

	mirror, err := h.store.MirrorEntries()
	if err != nil {
		return nil, fmt.Errorf("listing mirror: %w", err)
	}
	mirrorByRel := make(map[string]backup.Item, len(mirror))
	for _, m := range mirror {
		mirrorByRel[m.Rel] = m
	}

	diff := &backup.Diff{}
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		seen[item.Rel] = true
		m, ok := mirrorByRel[item.Rel]
		if !ok {
			diff.Added = append(diff.Added, item.Rel)
			continue
		}
		same, err := fsutil.SameContent(item.Abs, m.Abs)
		if err != nil {
			return nil, fmt.Errorf("comparing %s: %w", item.Rel, err)
		}
		if !same {
			diff.Modified = append(diff.Modified, item.Rel)
		}
	}

	for _, m := range mirror {
		if !seen[m.Rel] {
			diff.Removed = append(diff.Removed, m.Rel)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Modified)
	sort.Strings(diff.Removed)
	return diff, nil
}

// CapturePoints lists the distinct capture timestamps across all archived
// versions, newest first. Versions archived by different processes in the
// same second collapse to one point.
func (h *Historian) CapturePoints() ([]time.Time, error) {
	versions, err := h.store.Versions()
	if err != nil {
		return nil, fmt.Errorf("enumerating versions: %w", err)
	}

	distinct := make(map[int64]time.Time)
	for _, vs := range versions {
		for _, v := range vs {
			distinct[v.Timestamp.Unix()] = v.Timestamp
		}
	}

	points := make([]time.Time, 0, len(distinct))
	for _, ts := range distinct {
		points = append(points, ts)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].After(points[j]) })
	return points, nil
}

// Reconstruct returns the version of an item that was live at the given
// time.
//
// For file items, an archived version's timestamp records when it was
// superseded, so the version live at t is the one with the smallest
// timestamp strictly greater than t; when no archived version qualifies,
// the current mirror copy has never been superseded since t and is the
// answer. Dump snapshots record their own capture time instead, so the
// version live at t is the newest dump at or before t.
//
// (nil, nil) means the item did not exist at t: a legitimate not-found,
// not an error.
func (h *Historian) Reconstruct(logicalPath string, at time.Time) (*backup.Version, error) {
	versions, err := h.store.Versions()
	if err != nil {
		return nil, fmt.Errorf("enumerating versions: %w", err)
	}
	vs := versions[logicalPath]

	if len(vs) > 0 && vs[0].Dump {
		// Newest dump at or before the target time.
		for i := len(vs) - 1; i >= 0; i-- {
			if !vs[i].Timestamp.After(at) {
				v := vs[i]
				return &v, nil
			}
		}
		return nil, nil
	}

	// Smallest archive timestamp strictly greater than the target: that
	// copy was superseded after t, so it was the one live at t.
	for _, v := range vs {
		if v.Timestamp.After(at) {
			found := v
			return &found, nil
		}
	}

	// Never superseded since t: the current copy was live then.
	mirrorPath := h.store.MirrorPath(logicalPath)
	info, err := os.Stat(mirrorPath)
	if err == nil {
		return &backup.Version{
			LogicalPath: logicalPath,
			Path:        mirrorPath,
			Size:        info.Size(),
			Current:     true,
		}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat mirror copy: %w", err)
	}

	return nil, nil
}

// History lists an item's versions newest first, with the current mirror
// copy as the first entry when one exists.
func (h *Historian) History(logicalPath string) ([]backup.Version, error) {
	versions, err := h.store.Versions()
	if err != nil {
		return nil, fmt.Errorf("enumerating versions: %w", err)
	}

	vs := append([]backup.Version(nil), versions[logicalPath]...)
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].Timestamp.Equal(vs[j].Timestamp) {
			return vs[i].Timestamp.After(vs[j].Timestamp)
		}
		return vs[i].PID > vs[j].PID
	})

	mirrorPath := h.store.MirrorPath(logicalPath)
	if info, err := os.Stat(mirrorPath); err == nil {
		vs = append([]backup.Version{{
			LogicalPath: logicalPath,
			Path:        mirrorPath,
			Size:        info.Size(),
			Current:     true,
		}}, vs...)
	}

	return vs, nil
}

// Extract writes a version's content, unwrapped, to dstPath. The write is
// atomic so an interrupted extract leaves no partial file.
func (h *Historian) Extract(v *backup.Version, dstPath string) error {
	src, err := os.Open(v.Path)
	if err != nil {
		return fmt.Errorf("opening version content: %w", err)
	}
	defer src.Close()

	if !v.Wrapped {
		if _, err := fsutil.WriteAtomic(dstPath, src); err != nil {
			return fmt.Errorf("writing extracted content: %w", err)
		}
		return nil
	}

	// Wrapped content streams through the codec, no intermediate buffer.
	pr, pw := io.Pipe()
	unwrapErrCh := make(chan error, 1)
	go func() {
		err := h.codec.Unwrap(pw, src)
		pw.CloseWithError(err)
		unwrapErrCh <- err
	}()

	_, writeErr := fsutil.WriteAtomic(dstPath, pr)
	pr.CloseWithError(writeErr) // unblock the goroutine if the write failed early
	unwrapErr := <-unwrapErrCh

	if unwrapErr != nil {
		return fmt.Errorf("unwrapping content: %w", unwrapErr)
	}
	if writeErr != nil {
		return fmt.Errorf("writing extracted content: %w", writeErr)
	}
	return nil
}

var _ backup.Historian = (*Historian)(nil)
