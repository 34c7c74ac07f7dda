package backup

import "time"

// RetentionPolicy classifies archived versions into age tiers and selects
// pruning candidates. All methods are pure with respect to the passed-in
// time; the policy never reads the system clock and never deletes anything
// itself.
type RetentionPolicy interface {
	// Classify maps a version's age at evaluation time to its tier.
	Classify(age time.Duration) Tier

	// Candidates returns the versions of one item that pruning may
	// remove. Within every tier group the oldest member survives as the
	// group's representative; versions younger than the hourly window are
	// never candidates; expired versions always are.
	Candidates(versions []Version, now time.Time) []Version

	// Stats reports per-tier version counts and the bytes a prune would
	// reclaim, without side effects.
	Stats(versions []Version, now time.Time) []TierStat
}
