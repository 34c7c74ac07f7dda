// Package queue is the durable record of delivery obligations. Each
// obligation is one JSON file: the file is the unit of durability, so a
// backlog survives process restarts. Entries drain oldest first and are
// never silently discarded: every entry either delivers or ends up in the
// dead-letter store for manual review.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"snapkeep/internal/backup"
	"snapkeep/internal/fsutil"
)

const (
	entrySuffix = ".entry"
	claimSuffix = ".claim"

	// A claim this old belongs to a crashed drain and is returned to the
	// queue.
	staleClaimAge = 15 * time.Minute
)

// Queue is the filesystem implementation of backup.DeliveryQueue.
type Queue struct {
	dir            string
	failedDir      string
	maxRetries     int
	attemptTimeout time.Duration
	clock          backup.Clock
	logger         backup.Logger
}

// New creates a Queue rooted at dir (the project's backups/queue
// directory). maxRetries is the attempt cap before dead-lettering;
// attemptTimeout bounds every redelivery probe and transfer.
func New(dir string, maxRetries int, attemptTimeout time.Duration, clock backup.Clock, logger backup.Logger) (*Queue, error) {
	failedDir := filepath.Join(dir, ".failed")
	if err := os.MkdirAll(failedDir, 0755); err != nil {
		return nil, fmt.Errorf("creating queue directory: %w", err)
	}
	return &Queue{
		dir:            dir,
		failedDir:      failedDir,
		maxRetries:     maxRetries,
		attemptTimeout: attemptTimeout,
		clock:          clock,
		logger:         logger,
	}, nil
}

// Enqueue durably records an obligation. The entry filename starts with the
// zero-padded enqueue time so a plain name sort yields FIFO order.
func (q *Queue) Enqueue(ob backup.Obligation) error {
	if ob.EnqueuedAt.IsZero() {
		ob.EnqueuedAt = q.clock.Now()
	}

	data, err := json.MarshalIndent(ob, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding queue entry: %w", err)
	}

	nano := ob.EnqueuedAt.UnixNano()
	for {
		name := fmt.Sprintf("%019d_%s%s", nano, ob.Destination, entrySuffix)
		path := filepath.Join(q.dir, name)
		if _, err := os.Stat(path); err == nil {
			// Same destination enqueued in the same nanosecond; nudge.
			nano++
			continue
		}
		if _, err := fsutil.WriteAtomic(path, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("writing queue entry: %w", err)
		}
		q.logger.Debug("obligation enqueued", "target", ob.TargetPath, "destination", ob.Destination)
		return nil
	}
}

// Process attempts redelivery for up to max entries, oldest first. Each
// entry is claimed by an atomic rename so overlapping drains never process
// the same obligation twice. On success the entry is removed; on failure
// the retry count increments and the entry stays queued until it exhausts
// maxRetries attempts and moves to the dead-letter store.
func (q *Queue) Process(ctx context.Context, chain backup.Chain, max int) (*backup.QueueStats, error) {
	q.recoverStaleClaims()

	entries, err := q.pendingEntries()
	if err != nil {
		return nil, err
	}

	stats := &backup.QueueStats{}
	for i, name := range entries {
		if max > 0 && i >= max {
			break
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		q.processOne(ctx, chain, name, stats)
	}
	return stats, nil
}

// processOne claims and attempts one entry. Claim races and read failures
// are skips, not errors: another drain owns the entry or will retry it.
func (q *Queue) processOne(ctx context.Context, chain backup.Chain, name string, stats *backup.QueueStats) {
	entryPath := filepath.Join(q.dir, name)
	claimPath := entryPath + claimSuffix

	if err := os.Rename(entryPath, claimPath); err != nil {
		// Another drain claimed it first.
		return
	}

	data, err := os.ReadFile(claimPath)
	if err != nil {
		q.logger.Warn("reading claimed entry", "entry", name, "error", err)
		os.Rename(claimPath, entryPath)
		return
	}

	var ob backup.Obligation
	if err := json.Unmarshal(data, &ob); err != nil {
		// A corrupt entry can never deliver; dead-letter it for review.
		q.logger.Error("corrupt queue entry", "entry", name, "error", err)
		q.deadLetter(claimPath, name, data)
		stats.DeadLettered++
		return
	}

	if err := q.attempt(ctx, chain, &ob); err != nil {
		q.logger.Warn("redelivery failed", "target", ob.TargetPath, "destination", ob.Destination, "error", err)
		ob.Retries++
		ob.LastAttempt = q.clock.Now()

		if ob.Retries >= q.maxRetries {
			updated, _ := json.MarshalIndent(ob, "", "  ")
			q.deadLetter(claimPath, name, updated)
			stats.DeadLettered++
			q.logger.Error("obligation dead-lettered", "target", ob.TargetPath, "destination", ob.Destination, "retries", ob.Retries)
			return
		}

		// Rewrite under the original name (atomic), then drop the claim.
		updated, err := json.MarshalIndent(ob, "", "  ")
		if err == nil {
			if _, werr := fsutil.WriteAtomic(entryPath, bytes.NewReader(updated)); werr == nil {
				os.Remove(claimPath)
				stats.Retried++
				return
			}
		}
		// Could not persist the updated record; return the claim as-is so
		// the obligation is not lost.
		os.Rename(claimPath, entryPath)
		stats.Retried++
		return
	}

	os.Remove(claimPath)
	stats.Delivered++
	q.logger.Info("obligation delivered", "target", ob.TargetPath, "destination", ob.Destination)
}

// attempt re-delivers one obligation through the fallback chain. The
// recorded destination is a preference, not a pin: any healthy remote
// satisfies the obligation, so a backlog drains as soon as one recovers.
// Health is evaluated fresh on every attempt; resolving to the local
// fallback means no remote is reachable and the attempt fails.
func (q *Queue) attempt(ctx context.Context, chain backup.Chain, ob *backup.Obligation) error {
	actx, cancel := context.WithTimeout(ctx, q.attemptTimeout)
	defer cancel()

	dest := chain.Resolve(actx)
	if dest.Name() == backup.LocalDestinationName {
		return fmt.Errorf("no remote destination is healthy")
	}
	ob.Destination = dest.Name()

	if _, err := os.Stat(ob.SourcePath); err != nil {
		return fmt.Errorf("source artifact missing: %w", err)
	}
	return dest.Deliver(actx, ob.SourcePath, ob.TargetPath)
}

// deadLetter moves an entry into the terminal store under its original name.
func (q *Queue) deadLetter(claimPath string, name string, data []byte) {
	destPath := filepath.Join(q.failedDir, name)
	if _, err := fsutil.WriteAtomic(destPath, bytes.NewReader(data)); err != nil {
		q.logger.Error("writing dead-letter entry", "entry", name, "error", err)
		// Keep the claim; stale-claim recovery will retry it rather than
		// lose the obligation.
		return
	}
	os.Remove(claimPath)
}

// recoverStaleClaims returns claims from crashed drains to the queue. When
// an entry of the same name already exists, the drain died after rewriting
// it and the claim is a stale snapshot: the claim is discarded so the
// rewritten retry count is not regressed.
func (q *Queue) recoverStaleClaims() {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return
	}
	now := q.clock.Now()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entrySuffix+claimSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < staleClaimAge {
			continue
		}
		claimPath := filepath.Join(q.dir, e.Name())
		entryPath := strings.TrimSuffix(claimPath, claimSuffix)
		if _, err := os.Stat(entryPath); err == nil {
			os.Remove(claimPath)
			continue
		}
		if err := os.Rename(claimPath, entryPath); err == nil {
			q.logger.Warn("stale claim returned to queue", "entry", filepath.Base(entryPath))
		}
	}
}

// pendingEntries lists entry names in FIFO order.
func (q *Queue) pendingEntries() ([]string, error) {
	dirEntries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("reading queue directory: %w", err)
	}

	var names []string
	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), entrySuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Depth returns the number of pending entries.
func (q *Queue) Depth() (int, error) {
	names, err := q.pendingEntries()
	if err != nil {
		return 0, err
	}
	return len(names), nil
}

// DeadLetters lists dead-lettered obligations, oldest first.
func (q *Queue) DeadLetters() ([]backup.Obligation, error) {
	dirEntries, err := os.ReadDir(q.failedDir)
	if err != nil {
		return nil, fmt.Errorf("reading dead-letter directory: %w", err)
	}

	var names []string
	for _, e := range dirEntries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var obs []backup.Obligation
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(q.failedDir, name))
		if err != nil {
			return nil, fmt.Errorf("reading dead-letter entry %s: %w", name, err)
		}
		var ob backup.Obligation
		if err := json.Unmarshal(data, &ob); err != nil {
			// Corrupt entries are preserved but reported empty-handed.
			q.logger.Warn("unreadable dead-letter entry", "entry", name, "error", err)
			continue
		}
		obs = append(obs, ob)
	}
	return obs, nil
}

var _ backup.DeliveryQueue = (*Queue)(nil)
