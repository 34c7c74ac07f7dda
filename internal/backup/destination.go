package backup

import "context"

// LocalDestinationName is the fixed name of the last-resort destination:
// the project's own backup directory.
const LocalDestinationName = "local"

// Destination is one ordered, health-checked delivery target. Health is
// probed on every delivery attempt and never cached across captures.
type Destination interface {
	// Name identifies the destination in queue entries and results.
	Name() string

	// Healthy verifies the destination is usable right now: it must exist
	// and accept a real write-then-delete probe. A bare existence check
	// misses unmounted volumes, stale network mounts and permission loss.
	Healthy(ctx context.Context) error

	// Deliver copies the artifact at srcPath to rel under the
	// destination. A failure mid-transfer is a failed delivery for the
	// whole obligation, never a partial success.
	Deliver(ctx context.Context, srcPath string, rel string) error
}

// Chain resolves a delivery destination by fixed priority order. The last
// destination is the project's own backup directory, which is healthy by
// definition, so Resolve always terminates with a usable target.
type Chain interface {
	// Resolve probes destinations in priority order and returns the first
	// healthy one.
	Resolve(ctx context.Context) Destination

	// Primary returns the first non-local destination in the chain, if
	// any is configured. Obligations for artifacts that could only be
	// kept locally are recorded against it.
	Primary() (Destination, bool)
}
