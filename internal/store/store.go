// Package store owns the on-disk backup tree of one project: the current
// mirror of tracked files, the archive of superseded versions, and database
// dump snapshots. It is the tree's single writer.
//
// Layout under the backup root:
//
//	files/<relative-path>                         current mirror
//	archived/<relative-path>.<TIMESTAMP>[_<pid>]  superseded versions
//	databases/<name>_<TIMESTAMP>.<ext>            dump snapshots
//	queue/                                        delivery obligations
//	.lock                                         capture/prune lock
package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"snapkeep/internal/backup"
	"snapkeep/internal/fsutil"
)

// Store is the filesystem implementation of backup.Store.
type Store struct {
	backupDir  string
	filesDir   string
	archiveDir string
	dumpsDir   string
	codec      backup.Codec
	pid        func() int
	logger     backup.Logger
}

// New creates a Store rooted at backupDir, creating the directory layout if
// needed. pid supplies the disambiguator suffix for archive names.
func New(backupDir string, codec backup.Codec, pid func() int, logger backup.Logger) (*Store, error) {
	s := &Store{
		backupDir:  backupDir,
		filesDir:   filepath.Join(backupDir, "files"),
		archiveDir: filepath.Join(backupDir, "archived"),
		dumpsDir:   filepath.Join(backupDir, "databases"),
		codec:      codec,
		pid:        pid,
		logger:     logger,
	}
	if err := s.ensureLayout(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureLayout() error {
	for _, dir := range []string{s.filesDir, s.archiveDir, s.dumpsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating backup directory %s: %w", dir, err)
		}
	}
	return nil
}

// Root returns the backup tree root.
func (s *Store) Root() string { return s.backupDir }

// MirrorPath returns the current copy's path for a logical path.
func (s *Store) MirrorPath(logicalPath string) string {
	return filepath.Join(s.filesDir, filepath.FromSlash(logicalPath))
}

// Capture mirrors the given items. For each item whose content differs from
// its current copy, the current copy is archived first (temp copy in the
// archive directory, then atomic rename) and only then replaced, so an
// interrupted capture never leaves an item without a readable copy. Items
// never seen before are copied straight into the mirror; items gone from
// the working tree are retired, their mirror copy archived and dropped.
//
// Per-item failures are recorded and the capture continues; an error is
// returned only when the backup tree itself cannot be written at all.
func (s *Store) Capture(items []backup.Item, now time.Time) (*backup.CaptureStats, error) {
	// A tree-wide write failure is fatal before any item is attempted.
	if err := s.ensureLayout(); err != nil {
		return nil, err
	}

	stats := &backup.CaptureStats{}
	seen := make(map[string]bool, len(items))

	for _, item := range items {
		seen[filepath.ToSlash(item.Rel)] = true
		if err := s.captureItem(item, now, stats); err != nil {
			stats.Skipped = append(stats.Skipped, backup.SkippedItem{Rel: item.Rel, Err: err.Error()})
			s.logger.Warn("item skipped", "item", item.Rel, "error", err)
		}
	}

	// Items present in the mirror but gone from the working tree. Their
	// current copies move into the archive under this capture's timestamp:
	// deletion of a working file must never delete its backup, but once the
	// deletion is captured the mirror must settle so the next diff is clean.
	mirror, err := s.MirrorEntries()
	if err != nil {
		return nil, err
	}
	for _, m := range mirror {
		if seen[filepath.ToSlash(m.Rel)] {
			continue
		}
		if err := s.retireItem(m, now); err != nil {
			stats.Skipped = append(stats.Skipped, backup.SkippedItem{Rel: m.Rel, Err: err.Error()})
			s.logger.Warn("removed item not retired", "item", m.Rel, "error", err)
			continue
		}
		stats.Removed++
	}

	return stats, nil
}

// retireItem archives the mirror copy of a deleted working-tree item and
// removes it from the mirror. The archive copy is durably in place before
// the mirror copy goes, so a crash in between leaves a readable copy.
func (s *Store) retireItem(m backup.Item, now time.Time) error {
	if err := s.archiveCurrent(m.Rel, m.Abs, now); err != nil {
		return fmt.Errorf("archiving removed copy: %w", err)
	}
	if err := os.Remove(m.Abs); err != nil {
		return fmt.Errorf("removing mirror copy: %w", err)
	}
	return nil
}

// captureItem brings one item's mirror copy up to date.
func (s *Store) captureItem(item backup.Item, now time.Time, stats *backup.CaptureStats) error {
	mirrorPath := s.MirrorPath(item.Rel)

	_, err := os.Stat(mirrorPath)
	if os.IsNotExist(err) {
		written, err := fsutil.CopyAtomic(mirrorPath, item.Abs)
		if err != nil {
			return fmt.Errorf("writing mirror copy: %w", err)
		}
		stats.Added++
		stats.Bytes += written
		stats.Artifacts = append(stats.Artifacts, backup.Artifact{
			Rel:  "files/" + filepath.ToSlash(item.Rel),
			Path: mirrorPath,
			Size: written,
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat mirror copy: %w", err)
	}

	same, err := fsutil.SameContent(item.Abs, mirrorPath)
	if err != nil {
		return fmt.Errorf("comparing content: %w", err)
	}
	if same {
		stats.Unchanged++
		return nil
	}

	// Archive the superseded copy before touching the mirror.
	if err := s.archiveCurrent(item.Rel, mirrorPath, now); err != nil {
		return fmt.Errorf("archiving superseded copy: %w", err)
	}

	written, err := fsutil.CopyAtomic(mirrorPath, item.Abs)
	if err != nil {
		return fmt.Errorf("replacing mirror copy: %w", err)
	}
	stats.Modified++
	stats.Bytes += written
	stats.Artifacts = append(stats.Artifacts, backup.Artifact{
		Rel:  "files/" + filepath.ToSlash(item.Rel),
		Path: mirrorPath,
		Size: written,
	})
	return nil
}

// archiveCurrent moves the current mirror copy into the archive under a
// timestamped name, wrapping it through the codec. The write is a temp copy
// in the archive directory followed by an atomic rename; the mirror copy is
// left untouched here.
func (s *Store) archiveCurrent(rel string, mirrorPath string, now time.Time) error {
	name := backup.FormatFileVersion(filepath.ToSlash(rel), now, s.pid()) + s.codec.Suffix()
	archivePath := filepath.Join(s.archiveDir, filepath.FromSlash(name))

	src, err := os.Open(mirrorPath)
	if err != nil {
		return fmt.Errorf("opening mirror copy: %w", err)
	}
	defer src.Close()

	return s.writeWrapped(archivePath, src)
}

// writeWrapped streams src through the codec into destPath atomically.
func (s *Store) writeWrapped(destPath string, src *os.File) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := s.codec.Wrap(tmpFile, src); err != nil {
		tmpFile.Close()
		return fmt.Errorf("wrapping content: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("renaming into archive: %w", err)
	}

	success = true
	return nil
}

// ImportDump versions an externally produced database dump as an opaque
// blob. name is the database's stable identity; the extension comes from
// the source file.
func (s *Store) ImportDump(name string, srcPath string, now time.Time) (*backup.Artifact, error) {
	if err := s.ensureLayout(); err != nil {
		return nil, err
	}

	logical := name + filepath.Ext(srcPath)
	filename := backup.FormatDumpName(logical, now) + s.codec.Suffix()
	destPath := filepath.Join(s.dumpsDir, filename)

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("opening dump file: %w", err)
	}
	defer src.Close()

	if err := s.writeWrapped(destPath, src); err != nil {
		return nil, fmt.Errorf("storing dump snapshot: %w", err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, fmt.Errorf("stat dump snapshot: %w", err)
	}

	return &backup.Artifact{
		Rel:  "databases/" + filename,
		Path: destPath,
		Size: info.Size(),
	}, nil
}

// Versions enumerates all archived versions and dump snapshots keyed by
// logical path, each list ordered by capture timestamp (PID breaks ties).
// Names without a parseable timestamp fall back to the file's modification
// time rather than being dropped.
func (s *Store) Versions() (map[string][]backup.Version, error) {
	versions := make(map[string][]backup.Version)

	err := walkFiles(s.archiveDir, func(path string, rel string, info fs.FileInfo) {
		name, ok := backup.ParseArchiveName(filepath.ToSlash(rel), s.codec.Suffix())
		v := backup.Version{
			LogicalPath: name.LogicalPath,
			Path:        path,
			Timestamp:   name.Timestamp,
			PID:         name.PID,
			Size:        info.Size(),
			Wrapped:     name.WrapExt != "",
		}
		if !ok {
			v.Timestamp = info.ModTime()
		}
		versions[v.LogicalPath] = append(versions[v.LogicalPath], v)
	})
	if err != nil {
		return nil, fmt.Errorf("walking archive: %w", err)
	}

	err = walkFiles(s.dumpsDir, func(path string, rel string, info fs.FileInfo) {
		name, ok := backup.ParseDumpName(filepath.ToSlash(rel), s.codec.Suffix())
		v := backup.Version{
			LogicalPath: name.LogicalPath,
			Path:        path,
			Timestamp:   name.Timestamp,
			Size:        info.Size(),
			Wrapped:     name.WrapExt != "",
			Dump:        true,
		}
		if !ok {
			v.Timestamp = info.ModTime()
		}
		versions[v.LogicalPath] = append(versions[v.LogicalPath], v)
	})
	if err != nil {
		return nil, fmt.Errorf("walking dump snapshots: %w", err)
	}

	for _, vs := range versions {
		sort.Slice(vs, func(i, j int) bool {
			if !vs[i].Timestamp.Equal(vs[j].Timestamp) {
				return vs[i].Timestamp.Before(vs[j].Timestamp)
			}
			return vs[i].PID < vs[j].PID
		})
	}
	return versions, nil
}

// MirrorEntries lists the current mirror copies.
func (s *Store) MirrorEntries() ([]backup.Item, error) {
	var items []backup.Item
	err := walkFiles(s.filesDir, func(path string, rel string, info fs.FileInfo) {
		items = append(items, backup.Item{
			Rel:     filepath.ToSlash(rel),
			Abs:     path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("walking mirror: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Rel < items[j].Rel })
	return items, nil
}

// Prune deletes the given archived versions. An already-missing candidate
// is not an error, so repeated prune passes are idempotent.
func (s *Store) Prune(candidates []backup.Version) (int, int64, error) {
	var removed int
	var bytes int64
	var firstErr error

	for _, c := range candidates {
		err := os.Remove(c.Path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("removing %s: %w", c.Path, err)
			}
			s.logger.Warn("prune candidate not removed", "path", c.Path, "error", err)
			continue
		}
		removed++
		bytes += c.Size
		s.logger.Debug("archived version pruned", "path", c.Path)
	}

	return removed, bytes, firstErr
}

// Lock acquires the project's capture/prune lock, or fails immediately.
func (s *Store) Lock() (func(), error) {
	return acquireLock(filepath.Join(s.backupDir, ".lock"))
}

// walkFiles calls fn for every regular file under dir with its absolute
// path, path relative to dir, and file info. A missing dir is empty, not an
// error.
func walkFiles(dir string, fn func(path string, rel string, info fs.FileInfo)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return nil
			}
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		// Leftover temp files from an interrupted write are not versions.
		if strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil {
			return relErr
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		fn(p, rel, info)
		return nil
	})
}

var _ backup.Store = (*Store)(nil)
