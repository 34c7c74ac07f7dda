package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	t.Run("writes content and reports size", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		dest := filepath.Join(dir, "out.txt")

		n, err := WriteAtomic(dest, strings.NewReader("hello"))
		if err != nil {
			t.Fatalf("WriteAtomic() error = %v", err)
		}
		if n != 5 {
			t.Errorf("WriteAtomic() wrote %d bytes, want 5", n)
		}

		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("reading result: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("content = %q, want %q", data, "hello")
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		dest := filepath.Join(dir, "a", "b", "c.txt")

		if _, err := WriteAtomic(dest, strings.NewReader("x")); err != nil {
			t.Fatalf("WriteAtomic() error = %v", err)
		}
		if _, err := os.Stat(dest); err != nil {
			t.Errorf("destination not created: %v", err)
		}
	})

	t.Run("replaces existing file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		dest := filepath.Join(dir, "out.txt")

		if _, err := WriteAtomic(dest, strings.NewReader("old")); err != nil {
			t.Fatalf("first write: %v", err)
		}
		if _, err := WriteAtomic(dest, strings.NewReader("new")); err != nil {
			t.Fatalf("second write: %v", err)
		}

		data, _ := os.ReadFile(dest)
		if string(data) != "new" {
			t.Errorf("content = %q, want %q", data, "new")
		}
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		if _, err := WriteAtomic(filepath.Join(dir, "out.txt"), strings.NewReader("x")); err != nil {
			t.Fatalf("WriteAtomic() error = %v", err)
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("reading dir: %v", err)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".tmp-") {
				t.Errorf("leftover temp file: %s", e.Name())
			}
		}
	})
}

func TestCopyAtomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("payload"), 0644); err != nil {
		t.Fatalf("writing source: %v", err)
	}

	dest := filepath.Join(dir, "dest.txt")
	n, err := CopyAtomic(dest, src)
	if err != nil {
		t.Fatalf("CopyAtomic() error = %v", err)
	}
	if n != int64(len("payload")) {
		t.Errorf("CopyAtomic() wrote %d bytes, want %d", n, len("payload"))
	}

	data, _ := os.ReadFile(dest)
	if string(data) != "payload" {
		t.Errorf("content = %q, want %q", data, "payload")
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
		return path
	}

	a := write("a.txt", "same content")
	b := write("b.txt", "same content")
	c := write("c.txt", "diff content")
	d := write("d.txt", "short")

	tests := []struct {
		name  string
		pathA string
		pathB string
		want  bool
	}{
		{name: "identical content", pathA: a, pathB: b, want: true},
		{name: "same size different content", pathA: a, pathB: c, want: false},
		{name: "different size", pathA: a, pathB: d, want: false},
		{name: "file compared to itself", pathA: a, pathB: a, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SameContent(tt.pathA, tt.pathB)
			if err != nil {
				t.Fatalf("SameContent() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("SameContent() = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := SameContent(a, filepath.Join(dir, "missing.txt")); err == nil {
			t.Error("SameContent() with missing file should return error")
		}
	})
}

func TestHashFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	h1, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	h2, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not stable: %q vs %q", h1, h2)
	}

	other := filepath.Join(dir, "g.txt")
	if err := os.WriteFile(other, []byte("different"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	h3, err := HashFile(other)
	if err != nil {
		t.Fatalf("HashFile() error = %v", err)
	}
	if h1 == h3 {
		t.Error("different content produced identical hashes")
	}
}
