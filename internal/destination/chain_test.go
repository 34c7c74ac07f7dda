package destination

import (
	"context"
	"errors"
	"testing"
	"time"

	"snapkeep/internal/backup"
	"snapkeep/internal/testutil"
)

func testChain(dests ...backup.Destination) *FallbackChain {
	return NewFallbackChain(dests, 5*time.Second, backup.NewNopLogger())
}

func TestFallbackChain_Resolve(t *testing.T) {
	t.Run("first healthy wins", func(t *testing.T) {
		primary := testutil.NewStubDestination("s3")
		secondary := testutil.NewStubDestination("nas")
		local := NewLocalDestination(t.TempDir())

		got := testChain(primary, secondary, local).Resolve(context.Background())
		if got.Name() != "s3" {
			t.Errorf("Resolve() = %q, want s3", got.Name())
		}
	})

	t.Run("unhealthy destinations are skipped", func(t *testing.T) {
		primary := testutil.NewStubDestination("s3")
		primary.SetHealthyErr(errors.New("bucket unreachable"))
		secondary := testutil.NewStubDestination("nas")
		local := NewLocalDestination(t.TempDir())

		got := testChain(primary, secondary, local).Resolve(context.Background())
		if got.Name() != "nas" {
			t.Errorf("Resolve() = %q, want nas", got.Name())
		}
	})

	t.Run("falls back to local when everything is down", func(t *testing.T) {
		primary := testutil.NewStubDestination("s3")
		primary.SetHealthyErr(errors.New("bucket unreachable"))
		secondary := testutil.NewStubDestination("nas")
		secondary.SetHealthyErr(errors.New("mount missing"))
		local := NewLocalDestination(t.TempDir())

		got := testChain(primary, secondary, local).Resolve(context.Background())
		if got.Name() != backup.LocalDestinationName {
			t.Errorf("Resolve() = %q, want %q", got.Name(), backup.LocalDestinationName)
		}
	})

	t.Run("health is re-evaluated per call", func(t *testing.T) {
		primary := testutil.NewStubDestination("s3")
		primary.SetHealthyErr(errors.New("bucket unreachable"))
		local := NewLocalDestination(t.TempDir())
		chain := testChain(primary, local)

		if got := chain.Resolve(context.Background()); got.Name() != backup.LocalDestinationName {
			t.Fatalf("Resolve() = %q while down, want local", got.Name())
		}

		primary.SetHealthyErr(nil)
		if got := chain.Resolve(context.Background()); got.Name() != "s3" {
			t.Errorf("Resolve() = %q after recovery, want s3", got.Name())
		}
	})
}

func TestFallbackChain_Primary(t *testing.T) {
	t.Run("first non-local destination", func(t *testing.T) {
		primary := testutil.NewStubDestination("s3")
		local := NewLocalDestination(t.TempDir())

		d, ok := testChain(primary, local).Primary()
		if !ok || d.Name() != "s3" {
			t.Errorf("Primary() = %v, %v, want s3", d, ok)
		}
	})

	t.Run("local-only chain has no primary", func(t *testing.T) {
		local := NewLocalDestination(t.TempDir())

		if _, ok := testChain(local).Primary(); ok {
			t.Error("Primary() = true for a local-only chain, want false")
		}
	})
}

func TestLocalDestination(t *testing.T) {
	local := NewLocalDestination(t.TempDir())

	if local.Name() != backup.LocalDestinationName {
		t.Errorf("Name() = %q, want %q", local.Name(), backup.LocalDestinationName)
	}
	if err := local.Healthy(context.Background()); err != nil {
		t.Errorf("Healthy() = %v, want nil", err)
	}
	if err := local.Deliver(context.Background(), "/nonexistent", "files/a.txt"); err != nil {
		t.Errorf("Deliver() = %v, want nil (artifact already in the tree)", err)
	}
}
