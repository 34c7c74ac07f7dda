package testutil

import (
	"context"
	"sync"

	"snapkeep/internal/backup"
)

// StubDestination records deliveries and fails on demand. Safe for
// concurrent use.
type StubDestination struct {
	name string

	mu         sync.Mutex
	healthyErr error
	deliverErr error
	delivered  []string
}

// NewStubDestination creates a healthy destination with the given name.
func NewStubDestination(name string) *StubDestination {
	return &StubDestination{name: name}
}

func (d *StubDestination) Name() string { return d.name }

func (d *StubDestination) Healthy(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthyErr
}

func (d *StubDestination) Deliver(ctx context.Context, srcPath string, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.deliverErr != nil {
		return d.deliverErr
	}
	d.delivered = append(d.delivered, rel)
	return nil
}

// SetHealthyErr makes Healthy return err; nil restores health.
func (d *StubDestination) SetHealthyErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.healthyErr = err
}

// SetDeliverErr makes Deliver return err; nil restores deliveries.
func (d *StubDestination) SetDeliverErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliverErr = err
}

// Delivered returns the relative paths delivered so far, in order.
func (d *StubDestination) Delivered() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.delivered))
	copy(out, d.delivered)
	return out
}

var _ backup.Destination = (*StubDestination)(nil)
