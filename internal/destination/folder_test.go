package destination

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"snapkeep/internal/backup"
	"snapkeep/internal/config"
)

func TestFolderDestination_Healthy(t *testing.T) {
	t.Run("writable folder", func(t *testing.T) {
		d := NewFolderDestination("nas", t.TempDir())
		if err := d.Healthy(context.Background()); err != nil {
			t.Errorf("Healthy() = %v, want nil", err)
		}
	})

	t.Run("missing folder", func(t *testing.T) {
		d := NewFolderDestination("nas", filepath.Join(t.TempDir(), "not-mounted"))
		if err := d.Healthy(context.Background()); err == nil {
			t.Error("Healthy() = nil for a missing folder, want error")
		}
	})

	t.Run("path is a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "f")
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatalf("writing file: %v", err)
		}
		d := NewFolderDestination("nas", path)
		if err := d.Healthy(context.Background()); err == nil {
			t.Error("Healthy() = nil for a plain file, want error")
		}
	})

	t.Run("leaves no probe behind", func(t *testing.T) {
		root := t.TempDir()
		d := NewFolderDestination("nas", root)
		if err := d.Healthy(context.Background()); err != nil {
			t.Fatalf("Healthy() = %v", err)
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			t.Fatalf("reading folder: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("probe left behind: %v", entries)
		}
	})
}

func TestFolderDestination_Deliver(t *testing.T) {
	root := t.TempDir()
	d := NewFolderDestination("nas", root)

	src := filepath.Join(t.TempDir(), "artifact")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}

	if err := d.Deliver(context.Background(), src, "files/sub/a.txt"); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "files", "sub", "a.txt"))
	if err != nil {
		t.Fatalf("reading delivered artifact: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("delivered content = %q, want %q", data, "payload")
	}
}

func TestFolderDestination_Deliver_HonorsContext(t *testing.T) {
	t.Run("cancelled before the copy starts", func(t *testing.T) {
		root := t.TempDir()
		d := NewFolderDestination("nas", root)

		src := filepath.Join(t.TempDir(), "artifact")
		if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
			t.Fatalf("writing artifact: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := d.Deliver(ctx, src, "files/a.txt"); !errors.Is(err, context.Canceled) {
			t.Fatalf("Deliver() = %v, want context.Canceled", err)
		}
		if _, err := os.Stat(filepath.Join(root, "files", "a.txt")); !os.IsNotExist(err) {
			t.Errorf("artifact delivered despite cancelled context, stat err = %v", err)
		}
	})

	t.Run("deadline bounds a blocked copy", func(t *testing.T) {
		// A fifo with no writer blocks the copy's open indefinitely, like a
		// hung network mount would.
		src := filepath.Join(t.TempDir(), "stalled")
		if err := syscall.Mkfifo(src, 0600); err != nil {
			t.Skipf("mkfifo not available: %v", err)
		}

		d := NewFolderDestination("nas", t.TempDir())
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := d.Deliver(ctx, src, "files/a.txt")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("Deliver() = %v, want context.DeadlineExceeded", err)
		}
		if elapsed := time.Since(start); elapsed > 5*time.Second {
			t.Errorf("Deliver() returned after %v, want it bounded by the deadline", elapsed)
		}
	})
}

func TestFromConfig(t *testing.T) {
	t.Run("folder destinations plus implicit local", func(t *testing.T) {
		dests, err := FromConfig(context.Background(), []config.DestinationConfig{
			{Type: "folder", Name: "nas", FolderRoot: t.TempDir()},
		}, t.TempDir())
		if err != nil {
			t.Fatalf("FromConfig() error = %v", err)
		}
		if len(dests) != 2 {
			t.Fatalf("len(dests) = %d, want 2", len(dests))
		}
		if dests[0].Name() != "nas" {
			t.Errorf("dests[0] = %q, want nas", dests[0].Name())
		}
		if dests[1].Name() != backup.LocalDestinationName {
			t.Errorf("dests[1] = %q, want the local fallback", dests[1].Name())
		}
	})

	t.Run("empty config still yields local", func(t *testing.T) {
		dests, err := FromConfig(context.Background(), nil, t.TempDir())
		if err != nil {
			t.Fatalf("FromConfig() error = %v", err)
		}
		if len(dests) != 1 || dests[0].Name() != backup.LocalDestinationName {
			t.Errorf("dests = %v, want just the local fallback", dests)
		}
	})

	t.Run("folder without root is an error", func(t *testing.T) {
		if _, err := FromConfig(context.Background(), []config.DestinationConfig{
			{Type: "folder", Name: "nas"},
		}, t.TempDir()); err == nil {
			t.Error("FromConfig() = nil error for folder without root")
		}
	})

	t.Run("unknown type is an error", func(t *testing.T) {
		if _, err := FromConfig(context.Background(), []config.DestinationConfig{
			{Type: "ftp", Name: "old"},
		}, t.TempDir()); err == nil {
			t.Error("FromConfig() = nil error for unknown type")
		}
	})
}
