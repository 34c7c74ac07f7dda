package fsutil

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"snapkeep/internal/backup"
)

// TreeScanner discovers regular files under a project root, excluding
// ignored paths and the backup tree. It implements backup.Scanner.
type TreeScanner struct {
	ignore *IgnoreMatcher
}

// NewTreeScanner creates a scanner with the given extra ignore patterns.
func NewTreeScanner(ignorePatterns []string) *TreeScanner {
	return &TreeScanner{ignore: NewIgnoreMatcher(ignorePatterns)}
}

// Scan walks root and returns its tracked items sorted by relative path.
// Symlinks, devices and other irregular files are skipped.
func (s *TreeScanner) Scan(root string) ([]backup.Item, error) {
	var items []backup.Item

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return fmt.Errorf("computing relative path for %s: %w", p, relErr)
		}

		if d.IsDir() {
			if s.ignore.Match(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if s.ignore.Match(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return fmt.Errorf("stat %s: %w", p, infoErr)
		}

		items = append(items, backup.Item{
			Rel:     rel,
			Abs:     p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking project tree: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Rel < items[j].Rel })
	return items, nil
}

var _ backup.Scanner = (*TreeScanner)(nil)
