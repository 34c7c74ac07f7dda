package backup

import "time"

// Outcome classifies how a capture run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// Item is one tracked entry of the working tree handed to the store for
// capture. Rel is the item's identity: its path relative to the project root.
type Item struct {
	Rel     string
	Abs     string
	Size    int64
	ModTime time.Time
}

// Version is one representation of a tracked item: either an archived copy
// or the current mirror copy. Versions of one item are totally ordered by
// Timestamp (PID breaks ties between captures in the same second).
type Version struct {
	// LogicalPath identifies the item this version belongs to.
	LogicalPath string
	// Path is the on-disk location of this version's content.
	Path string
	// Timestamp is when the version was superseded (archived copies) or
	// zero for the current copy.
	Timestamp time.Time
	// PID is the capturing process id when present in the name.
	PID int
	// Size is the stored size in bytes.
	Size int64
	// Wrapped is true when the content carries an encryption wrap suffix.
	Wrapped bool
	// Current marks the live mirror copy.
	Current bool
	// Dump marks database dump snapshots.
	Dump bool
}

// SkippedItem records an item that failed during capture without aborting
// the run.
type SkippedItem struct {
	Rel string
	Err string
}

// Artifact is a deliverable produced by a capture: a fresh mirror copy or a
// dump snapshot. Rel is the path relative to the backup root (for example
// "files/config/app.yml" or "databases/app_20260101_090000.sql").
type Artifact struct {
	Rel  string
	Path string
	Size int64
}

// CaptureStats is the store's accounting for one capture pass.
type CaptureStats struct {
	Added     int
	Modified  int
	Removed   int
	Unchanged int
	Bytes     int64
	Skipped   []SkippedItem
	Artifacts []Artifact
}

// CaptureResult is the outward-facing summary of one capture run, including
// the delivery leg.
type CaptureResult struct {
	Start       time.Time
	Outcome     Outcome
	Added       int
	Modified    int
	Removed     int
	Bytes       int64
	Skipped     []SkippedItem
	Destination string
	Enqueued    int
	QueueDepth  int
}

// Diff is the structural difference between the working tree and the
// current mirror. Paths are item-relative and sorted.
type Diff struct {
	Added    []string
	Modified []string
	Removed  []string
}

// Empty reports whether the diff contains no changes.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Modified) == 0 && len(d.Removed) == 0
}

// Obligation is a durable record that a captured artifact must still reach a
// destination. It survives process restarts as a queue entry file and is
// only ever removed on delivery or dead-lettering.
type Obligation struct {
	TargetPath  string    `json:"target_path"`
	SourcePath  string    `json:"source_path"`
	Destination string    `json:"destination"`
	Retries     int       `json:"retries"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	LastAttempt time.Time `json:"last_attempt,omitzero"`
}

// QueueStats is the outcome of one queue processing pass.
type QueueStats struct {
	Delivered    int
	Retried      int
	DeadLettered int
}

// Tier is the age-based retention bucket of an archived version, computed at
// evaluation time rather than stored.
type Tier string

const (
	TierHourly  Tier = "hourly"
	TierDaily   Tier = "daily"
	TierWeekly  Tier = "weekly"
	TierMonthly Tier = "monthly"
	TierExpired Tier = "expired"
)

// TierStat reports, for one tier, how many versions fall into it and how
// many bytes pruning would reclaim. Supports dry-run previews.
type TierStat struct {
	Tier         Tier
	Count        int
	ReclaimCount int
	ReclaimBytes int64
}

// PruneResult summarizes a prune pass over one project.
type PruneResult struct {
	DryRun  bool
	Removed int
	Bytes   int64
	Stats   []TierStat
}
