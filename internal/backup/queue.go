package backup

import "context"

// DeliveryQueue is the durable record of delivery obligations. One file per
// entry: entries survive restarts, are processed oldest first, and are never
// silently discarded: an entry either delivers or dead-letters.
type DeliveryQueue interface {
	// Enqueue durably records that an artifact must still reach a
	// destination.
	Enqueue(ob Obligation) error

	// Process attempts redelivery for up to max entries, oldest first.
	// Each entry is claimed atomically so overlapping drains never
	// double-process. Failed attempts increment the retry count; entries
	// that exhaust their retries move to the dead-letter store.
	Process(ctx context.Context, chain Chain, max int) (*QueueStats, error)

	// Depth returns the number of pending entries.
	Depth() (int, error)

	// DeadLetters lists dead-lettered obligations for operator review.
	DeadLetters() ([]Obligation, error)
}
