package store

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"snapkeep/internal/backup"
)

// acquireLock takes the project's advisory lock by creating lockPath
// exclusively with the owner's PID inside. Acquire-or-fail: a held lock
// returns backup.ErrLocked immediately so a trigger firing mid-capture
// no-ops instead of queueing a duplicate run.
//
// A lock whose owner process is no longer alive is stale (crashed capture)
// and is broken so the project does not stay wedged.
func acquireLock(lockPath string) (func(), error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		owner, readErr := readLockOwner(lockPath)
		if readErr != nil {
			// Racing with the owner's release; treat as held.
			return nil, backup.ErrLocked
		}
		if !processAlive(owner) {
			// Stale lock from a dead owner: break it and retry once.
			if rmErr := os.Remove(lockPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("breaking stale lock: %w", rmErr)
			}
			continue
		}
		return nil, backup.ErrLocked
	}
	return nil, backup.ErrLocked
}

// readLockOwner parses the PID recorded in the lock file.
func readLockOwner(lockPath string) (int, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parsing lock owner: %w", err)
	}
	return pid, nil
}
