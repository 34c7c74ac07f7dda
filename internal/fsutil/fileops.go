package fsutil

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// WriteAtomic writes everything from r to destPath via a temp file in the
// same directory followed by an atomic rename, so readers never observe a
// half-written file. Parent directories are created as needed.
// Returns the number of bytes written.
func WriteAtomic(destPath string, r io.Reader) (int64, error) {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating parent directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("writing data: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return written, nil
}

// CopyAtomic copies srcPath to destPath atomically.
func CopyAtomic(destPath string, srcPath string) (int64, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("opening source: %w", err)
	}
	defer f.Close()

	return WriteAtomic(destPath, f)
}

// HashReader returns the xxh3-128 digest of everything read from r, hex
// encoded.
func HashReader(r io.Reader) (string, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	sum := h.Sum128().Bytes()
	return hex.EncodeToString(sum[:]), nil
}

// HashFile returns the xxh3-128 digest of the file at path, hex encoded.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return HashReader(f)
}

// SameContent reports whether two files hold identical content, comparing
// size first and hashing only when sizes match. Filesystem metadata
// (permissions, timestamps) never influences the result.
func SameContent(pathA string, pathB string) (bool, error) {
	infoA, err := os.Stat(pathA)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", pathA, err)
	}
	infoB, err := os.Stat(pathB)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", pathB, err)
	}
	if infoA.Size() != infoB.Size() {
		return false, nil
	}

	hashA, err := HashFile(pathA)
	if err != nil {
		return false, err
	}
	hashB, err := HashFile(pathB)
	if err != nil {
		return false, err
	}
	return hashA == hashB, nil
}
