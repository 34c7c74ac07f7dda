package destination

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"snapkeep/internal/backup"
	"snapkeep/internal/fsutil"
)

// FolderDestination delivers artifacts into a locally mounted folder,
// typically one watched by a cloud sync agent. Health is a real
// write-then-delete probe: a stat alone misses unmounted volumes, stale
// network mounts and permission loss.
type FolderDestination struct {
	name string
	root string
}

// NewFolderDestination creates a destination rooted at the given folder.
// The folder is not created here; a missing folder is an unhealthy
// destination, not an error.
func NewFolderDestination(name, root string) *FolderDestination {
	return &FolderDestination{name: name, root: root}
}

func (d *FolderDestination) Name() string { return d.name }

// Healthy verifies the folder exists and accepts a write-then-delete probe.
func (d *FolderDestination) Healthy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(d.root)
	if err != nil {
		return fmt.Errorf("destination folder not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination is not a directory: %s", d.root)
	}

	probePath := filepath.Join(d.root, ".skprobe-"+uuid.New().String())
	if err := os.WriteFile(probePath, []byte("probe"), 0644); err != nil {
		return fmt.Errorf("probe write failed: %w", err)
	}
	if err := os.Remove(probePath); err != nil {
		return fmt.Errorf("probe delete failed: %w", err)
	}
	return nil
}

// Deliver copies the artifact to rel under the folder. The copy is a temp
// file plus rename, so the sync agent never observes a half-written
// artifact; a failure is a failed delivery for the whole obligation.
func (d *FolderDestination) Deliver(ctx context.Context, srcPath string, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	destPath := filepath.Join(d.root, filepath.FromSlash(rel))

	// CopyAtomic has no cancellation points of its own, so it runs in a
	// goroutine while the attempt waits on the deadline. On a hung mount the
	// goroutine can outlive the attempt; the temp-then-rename write keeps
	// the destination consistent either way.
	done := make(chan error, 1)
	go func() {
		_, err := fsutil.CopyAtomic(destPath, srcPath)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("delivering to %s: %w", d.name, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("delivering to %s: %w", d.name, err)
		}
		return nil
	}
}

var _ backup.Destination = (*FolderDestination)(nil)
