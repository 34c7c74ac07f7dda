package destination

import (
	"context"
	"time"

	"snapkeep/internal/backup"
)

// FallbackChain evaluates destinations in fixed priority order and selects
// the first healthy one. Health is re-evaluated on every call, never cached
// across captures, and every probe is bounded by a timeout so an unreachable
// destination fails the attempt instead of suspending it.
type FallbackChain struct {
	destinations []backup.Destination
	probeTimeout time.Duration
	logger       backup.Logger
}

// NewFallbackChain builds a chain. The caller appends the always-healthy
// local destination last, so Resolve always terminates with a usable target.
func NewFallbackChain(destinations []backup.Destination, probeTimeout time.Duration, logger backup.Logger) *FallbackChain {
	return &FallbackChain{
		destinations: destinations,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// Resolve returns the first healthy destination in priority order.
func (c *FallbackChain) Resolve(ctx context.Context) backup.Destination {
	for _, d := range c.destinations {
		pctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
		err := d.Healthy(pctx)
		cancel()
		if err == nil {
			return d
		}
		c.logger.Warn("destination unhealthy", "destination", d.Name(), "error", err)
	}
	// The chain always ends on the local destination, which is healthy by
	// definition; reaching here means the chain was built without it.
	return c.destinations[len(c.destinations)-1]
}

// Primary returns the first non-local destination, if one is configured.
func (c *FallbackChain) Primary() (backup.Destination, bool) {
	for _, d := range c.destinations {
		if d.Name() != backup.LocalDestinationName {
			return d, true
		}
	}
	return nil, false
}

var _ backup.Chain = (*FallbackChain)(nil)
