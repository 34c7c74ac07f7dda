// Package retention decides which archived versions survive pruning. It is
// purely computational: classification and candidate selection take the
// evaluation time as an argument and never touch the filesystem. Deletion
// happens only through the store.
package retention

import (
	"fmt"
	"time"

	"snapkeep/internal/backup"
)

// Windows are the tier boundaries, expressed as version age at evaluation
// time. A version is hourly below Hourly, daily below Daily, weekly below
// Weekly, monthly below Monthly, and expired beyond that.
type Windows struct {
	Hourly  time.Duration
	Daily   time.Duration
	Weekly  time.Duration
	Monthly time.Duration
}

// DefaultWindows returns the standard tier boundaries: 24 hours, 7 days,
// 30 days, 365 days.
func DefaultWindows() Windows {
	return Windows{
		Hourly:  24 * time.Hour,
		Daily:   7 * 24 * time.Hour,
		Weekly:  30 * 24 * time.Hour,
		Monthly: 365 * 24 * time.Hour,
	}
}

// minProtectedAge is the hard floor below which no version is ever a
// pruning candidate, independent of the configured hourly window.
const minProtectedAge = 24 * time.Hour

// Policy implements backup.RetentionPolicy over a set of windows.
type Policy struct {
	windows Windows
}

// New creates a Policy. Zero window values fall back to the defaults.
func New(w Windows) *Policy {
	d := DefaultWindows()
	if w.Hourly <= 0 {
		w.Hourly = d.Hourly
	}
	if w.Daily <= 0 {
		w.Daily = d.Daily
	}
	if w.Weekly <= 0 {
		w.Weekly = d.Weekly
	}
	if w.Monthly <= 0 {
		w.Monthly = d.Monthly
	}
	return &Policy{windows: w}
}

// Classify maps a version's age to its retention tier. Tiers are computed
// at evaluation time, never stored: the same version may classify
// differently at two different evaluations.
func (p *Policy) Classify(age time.Duration) backup.Tier {
	switch {
	case age < p.windows.Hourly:
		return backup.TierHourly
	case age < p.windows.Daily:
		return backup.TierDaily
	case age < p.windows.Weekly:
		return backup.TierWeekly
	case age < p.windows.Monthly:
		return backup.TierMonthly
	default:
		return backup.TierExpired
	}
}

// groupKey buckets a version's timestamp for its tier: day for daily,
// ISO week for weekly, month for monthly. Hourly versions are never
// grouped (they are never candidates) and expired versions need no
// representative.
func groupKey(tier backup.Tier, ts time.Time) string {
	switch tier {
	case backup.TierDaily:
		return ts.Format("2006-01-02")
	case backup.TierWeekly:
		year, week := ts.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case backup.TierMonthly:
		return ts.Format("2006-01")
	default:
		return ""
	}
}

// Candidates returns the versions of one item that pruning may remove,
// evaluated against now. Within each tier group exactly one member, the
// oldest, survives as the representative;
// everything else in the group is a candidate. Versions younger than the
// hourly window, and in any case younger than 24 hours, are never
// candidates; expired versions always are.
//
// Selection resolves representatives in a single pass against a single
// evaluation time, so a version crossing a tier boundary mid-run is either
// kept or pruned, never both.
func (p *Policy) Candidates(versions []backup.Version, now time.Time) []backup.Version {
	// Oldest member per (tier, bucket) group. Versions arrive ordered
	// oldest first from the store, but do not rely on it.
	representatives := make(map[string]backup.Version)
	keyOf := func(v backup.Version) (string, backup.Tier, bool) {
		if v.Current {
			return "", "", false
		}
		tier := p.Classify(now.Sub(v.Timestamp))
		if tier == backup.TierHourly || tier == backup.TierExpired {
			return "", tier, false
		}
		return string(tier) + "/" + groupKey(tier, v.Timestamp), tier, true
	}

	for _, v := range versions {
		key, _, grouped := keyOf(v)
		if !grouped {
			continue
		}
		rep, ok := representatives[key]
		if !ok || v.Timestamp.Before(rep.Timestamp) {
			representatives[key] = v
		}
	}

	var candidates []backup.Version
	for _, v := range versions {
		if v.Current {
			continue
		}
		age := now.Sub(v.Timestamp)
		if age < minProtectedAge {
			// The most recent 24 hours are never pruned, even when the
			// hourly window is configured shorter.
			continue
		}
		tier := p.Classify(age)
		switch tier {
		case backup.TierHourly:
			continue
		case backup.TierExpired:
			candidates = append(candidates, v)
			continue
		}
		key := string(tier) + "/" + groupKey(tier, v.Timestamp)
		rep := representatives[key]
		if sameVersion(v, rep) {
			continue
		}
		candidates = append(candidates, v)
	}
	return candidates
}

// Stats reports per-tier version counts and what a prune would reclaim,
// without deleting anything. Backs the dry-run preview.
func (p *Policy) Stats(versions []backup.Version, now time.Time) []backup.TierStat {
	reclaim := make(map[string]bool)
	for _, c := range p.Candidates(versions, now) {
		reclaim[c.Path] = true
	}

	byTier := make(map[backup.Tier]*backup.TierStat)
	for _, v := range versions {
		if v.Current {
			continue
		}
		tier := p.Classify(now.Sub(v.Timestamp))
		st, ok := byTier[tier]
		if !ok {
			st = &backup.TierStat{Tier: tier}
			byTier[tier] = st
		}
		st.Count++
		if reclaim[v.Path] {
			st.ReclaimCount++
			st.ReclaimBytes += v.Size
		}
	}

	var stats []backup.TierStat
	for _, tier := range []backup.Tier{backup.TierHourly, backup.TierDaily, backup.TierWeekly, backup.TierMonthly, backup.TierExpired} {
		if st, ok := byTier[tier]; ok {
			stats = append(stats, *st)
		}
	}
	return stats
}

// sameVersion compares by on-disk path, each version's unique identity.
func sameVersion(a, b backup.Version) bool { return a.Path == b.Path }

var _ backup.RetentionPolicy = (*Policy)(nil)
