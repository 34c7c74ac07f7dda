package backup

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service is the orchestration layer that coordinates one project's
// capture/prune/deliver cycle. Different projects' services are independent
// and may run in parallel; within one project the store lock serializes
// captures and prunes.
type Service struct {
	store           Store
	scanner         Scanner
	policy          RetentionPolicy
	queue           DeliveryQueue
	chain           Chain
	logger          Logger
	clock           Clock
	deliveryTimeout time.Duration
	queueMaxPerRun  int
}

// NewService creates a Service with the provided dependencies.
// deliveryTimeout bounds every health probe and delivery attempt;
// queueMaxPerRun bounds the opportunistic queue drain folded into captures.
func NewService(store Store, scanner Scanner, policy RetentionPolicy, queue DeliveryQueue, chain Chain, logger Logger, clock Clock, deliveryTimeout time.Duration, queueMaxPerRun int) *Service {
	return &Service{
		store:           store,
		scanner:         scanner,
		policy:          policy,
		queue:           queue,
		chain:           chain,
		logger:          logger,
		clock:           clock,
		deliveryTimeout: deliveryTimeout,
		queueMaxPerRun:  queueMaxPerRun,
	}
}

// Capture runs one capture of the project rooted at root: scan the working
// tree, mirror and archive through the store, deliver the changed artifacts
// via the destination chain, and opportunistically drain a bounded slice of
// the delivery queue.
//
// A capture already in flight for the same project is a no-op, reported as
// (nil, nil).
func (s *Service) Capture(ctx context.Context, root string) (*CaptureResult, error) {
	release, err := s.store.Lock()
	if errors.Is(err, ErrLocked) {
		s.logger.Info("capture already in flight", "root", root)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring project lock: %w", err)
	}
	defer release()

	start := s.clock.Now()
	s.logger.Info("capture started", "root", root)

	items, err := s.scanner.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("scanning working tree: %w", err)
	}

	stats, err := s.store.Capture(items, start)
	if err != nil {
		// Store-wide write failure: fatal for this capture, the working
		// tree was not touched.
		return nil, fmt.Errorf("capturing snapshot: %w", err)
	}

	result := &CaptureResult{
		Start:    start,
		Outcome:  OutcomeSuccess,
		Added:    stats.Added,
		Modified: stats.Modified,
		Removed:  stats.Removed,
		Bytes:    stats.Bytes,
		Skipped:  stats.Skipped,
	}
	if len(stats.Skipped) > 0 {
		result.Outcome = OutcomePartial
	}

	s.deliver(ctx, stats.Artifacts, result)

	// Drain a bounded slice of the backlog so a large queue cannot block
	// a time-sensitive capture.
	if s.queueMaxPerRun > 0 {
		if _, err := s.queue.Process(ctx, s.chain, s.queueMaxPerRun); err != nil {
			s.logger.Warn("queue drain failed", "error", err)
		}
	}

	depth, err := s.queue.Depth()
	if err != nil {
		s.logger.Warn("reading queue depth", "error", err)
	}
	result.QueueDepth = depth

	s.logger.Info("capture complete",
		"added", result.Added,
		"modified", result.Modified,
		"removed", result.Removed,
		"skipped", len(result.Skipped),
		"destination", result.Destination,
		"queue_depth", result.QueueDepth,
	)
	return result, nil
}

// deliver sends the capture's artifacts to the resolved destination. The
// artifacts already live in the local backup tree, so when the chain falls
// through to the local destination, or a delivery attempt fails, the
// obligation is recorded durably instead of failing the capture.
func (s *Service) deliver(ctx context.Context, artifacts []Artifact, result *CaptureResult) {
	if len(artifacts) == 0 {
		return
	}

	dest := s.chain.Resolve(ctx)
	result.Destination = dest.Name()

	primary, hasPrimary := s.chain.Primary()

	for _, a := range artifacts {
		if dest.Name() == LocalDestinationName {
			// Artifacts already reside in the backup tree. Record the
			// obligation against the primary remote so it still reaches
			// a durable destination once one recovers.
			if hasPrimary {
				s.enqueue(a, primary.Name(), result)
			}
			continue
		}

		dctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
		err := dest.Deliver(dctx, a.Path, a.Rel)
		cancel()
		if err != nil {
			s.logger.Warn("delivery failed", "artifact", a.Rel, "destination", dest.Name(), "error", err)
			s.enqueue(a, dest.Name(), result)
			continue
		}
		s.logger.Debug("artifact delivered", "artifact", a.Rel, "destination", dest.Name())
	}
}

func (s *Service) enqueue(a Artifact, destination string, result *CaptureResult) {
	ob := Obligation{
		TargetPath:  a.Rel,
		SourcePath:  a.Path,
		Destination: destination,
		EnqueuedAt:  s.clock.Now(),
	}
	if err := s.queue.Enqueue(ob); err != nil {
		s.logger.Error("enqueueing delivery obligation", "artifact", a.Rel, "error", err)
		return
	}
	result.Enqueued++
}

// ImportDump versions an externally produced database dump and delivers it
// like any other captured artifact.
func (s *Service) ImportDump(ctx context.Context, name string, srcPath string) (*CaptureResult, error) {
	release, err := s.store.Lock()
	if errors.Is(err, ErrLocked) {
		s.logger.Info("capture already in flight, dump import skipped", "name", name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring project lock: %w", err)
	}
	defer release()

	start := s.clock.Now()
	artifact, err := s.store.ImportDump(name, srcPath, start)
	if err != nil {
		return nil, fmt.Errorf("importing dump: %w", err)
	}

	result := &CaptureResult{
		Start:   start,
		Outcome: OutcomeSuccess,
		Added:   1,
		Bytes:   artifact.Size,
	}
	s.deliver(ctx, []Artifact{*artifact}, result)

	depth, err := s.queue.Depth()
	if err != nil {
		s.logger.Warn("reading queue depth", "error", err)
	}
	result.QueueDepth = depth

	s.logger.Info("dump imported", "name", name, "bytes", artifact.Size)
	return result, nil
}

// Prune evaluates the retention policy over all archived versions and, when
// dryRun is false, deletes the pruning candidates through the store. Prune
// holds the same lock as Capture: the archive tree has a single writer.
func (s *Service) Prune(dryRun bool) (*PruneResult, error) {
	release, err := s.store.Lock()
	if errors.Is(err, ErrLocked) {
		s.logger.Info("capture or prune already in flight, prune skipped")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("acquiring project lock: %w", err)
	}
	defer release()

	now := s.clock.Now()

	versions, err := s.store.Versions()
	if err != nil {
		return nil, fmt.Errorf("enumerating archived versions: %w", err)
	}

	result := &PruneResult{DryRun: dryRun}
	statsByTier := map[Tier]*TierStat{}

	var candidates []Version
	for _, vs := range versions {
		for _, st := range s.policy.Stats(vs, now) {
			agg, ok := statsByTier[st.Tier]
			if !ok {
				agg = &TierStat{Tier: st.Tier}
				statsByTier[st.Tier] = agg
			}
			agg.Count += st.Count
			agg.ReclaimCount += st.ReclaimCount
			agg.ReclaimBytes += st.ReclaimBytes
		}
		candidates = append(candidates, s.policy.Candidates(vs, now)...)
	}

	for _, tier := range []Tier{TierHourly, TierDaily, TierWeekly, TierMonthly, TierExpired} {
		if st, ok := statsByTier[tier]; ok {
			result.Stats = append(result.Stats, *st)
		}
	}

	if dryRun {
		for _, c := range candidates {
			result.Removed++
			result.Bytes += c.Size
		}
		return result, nil
	}

	removed, bytes, err := s.store.Prune(candidates)
	if err != nil {
		return nil, fmt.Errorf("pruning archive: %w", err)
	}
	result.Removed = removed
	result.Bytes = bytes

	s.logger.Info("prune complete", "removed", removed, "bytes", bytes)
	return result, nil
}

// ProcessQueue drains up to max pending delivery obligations.
func (s *Service) ProcessQueue(ctx context.Context, max int) (*QueueStats, error) {
	stats, err := s.queue.Process(ctx, s.chain, max)
	if err != nil {
		return nil, fmt.Errorf("processing delivery queue: %w", err)
	}
	return stats, nil
}
