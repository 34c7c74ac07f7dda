package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
}

func TestTreeScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", "readme")
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, "src/util/helper.go", "package util")
	writeFile(t, root, "debug.log", "noise")
	writeFile(t, root, "backups/files/old.txt", "must not be scanned")
	writeFile(t, root, ".git/config", "git internals")

	s := NewTreeScanner([]string{"*.log"})
	items, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []string{
		"README.md",
		filepath.Join("src", "main.go"),
		filepath.Join("src", "util", "helper.go"),
	}
	if len(items) != len(want) {
		var got []string
		for _, it := range items {
			got = append(got, it.Rel)
		}
		t.Fatalf("Scan() returned %v, want %v", got, want)
	}
	for i, rel := range want {
		if items[i].Rel != rel {
			t.Errorf("items[%d].Rel = %q, want %q", i, items[i].Rel, rel)
		}
		if items[i].Size == 0 {
			t.Errorf("items[%d].Size = 0, want > 0", i)
		}
	}
}

func TestTreeScanner_Scan_EmptyTree(t *testing.T) {
	t.Parallel()
	s := NewTreeScanner(nil)
	items, err := s.Scan(t.TempDir())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Scan() of empty tree returned %d items", len(items))
	}
}

func TestTreeScanner_Scan_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.txt", "content")
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	s := NewTreeScanner(nil)
	items, err := s.Scan(root)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(items) != 1 || items[0].Rel != "real.txt" {
		t.Errorf("Scan() = %v, want only real.txt", items)
	}
}
