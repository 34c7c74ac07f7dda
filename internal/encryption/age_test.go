package encryption

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newTestAgeCodec(t *testing.T) *AgeCodec {
	t.Helper()
	dir := t.TempDir()
	return NewAgeCodec(
		filepath.Join(dir, "keys", "snapkeep.pub"),
		filepath.Join(dir, "keys", "snapkeep.key"),
	)
}

func TestAgeCodec_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	c := newTestAgeCodec(t)
	if c.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeCodec_Setup_IsConfigured(t *testing.T) {
	t.Parallel()
	c := newTestAgeCodec(t)

	if err := c.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !c.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
}

func TestAgeCodec_WrapUnwrapRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "simple text", input: []byte("hello world")},
		{name: "empty", input: []byte{}},
		{name: "binary data", input: []byte{0x00, 0xff, 0x01, 0xfe}},
		{name: "large data", input: bytes.Repeat([]byte("abcdef"), 10000)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			passphrase := "test-passphrase"
			c := newTestAgeCodec(t)
			if err := c.Setup(passphrase); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			var wrapped bytes.Buffer
			if err := c.Wrap(&wrapped, bytes.NewReader(tt.input)); err != nil {
				t.Fatalf("Wrap() error = %v", err)
			}

			// Ciphertext should differ from plaintext
			if len(tt.input) > 0 && bytes.Equal(wrapped.Bytes(), tt.input) {
				t.Error("wrapped output is identical to plaintext")
			}

			if err := c.Unlock(passphrase); err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			var unwrapped bytes.Buffer
			if err := c.Unwrap(&unwrapped, bytes.NewReader(wrapped.Bytes())); err != nil {
				t.Fatalf("Unwrap() error = %v", err)
			}

			if !bytes.Equal(unwrapped.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", unwrapped.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeCodec_EmptyPassphrase(t *testing.T) {
	t.Parallel()

	c := newTestAgeCodec(t)
	if err := c.Setup(""); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	var wrapped bytes.Buffer
	if err := c.Wrap(&wrapped, bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	if err := c.Unlock(""); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	var unwrapped bytes.Buffer
	if err := c.Unwrap(&unwrapped, bytes.NewReader(wrapped.Bytes())); err != nil {
		t.Fatalf("Unwrap() error = %v", err)
	}
	if got := unwrapped.String(); got != "data" {
		t.Errorf("Unwrap() = %q, want %q", got, "data")
	}
}

func TestAgeCodec_UnlockWrongPassphrase(t *testing.T) {
	t.Parallel()

	c := newTestAgeCodec(t)
	if err := c.Setup("correct-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if err := c.Unlock("wrong-passphrase"); err == nil {
		t.Error("Unlock() with wrong passphrase should return error")
	}
}

func TestAgeCodec_UnwrapWhileLocked(t *testing.T) {
	t.Parallel()

	c := newTestAgeCodec(t)
	if err := c.Setup("passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	var wrapped bytes.Buffer
	if err := c.Wrap(&wrapped, bytes.NewReader([]byte("data"))); err != nil {
		t.Fatalf("Wrap() error = %v", err)
	}

	var out bytes.Buffer
	if err := c.Unwrap(&out, bytes.NewReader(wrapped.Bytes())); err == nil {
		t.Error("Unwrap() without Unlock should return error")
	}
}

func TestAgeCodec_WrapBeforeSetup(t *testing.T) {
	t.Parallel()

	c := newTestAgeCodec(t)
	var buf bytes.Buffer
	if err := c.Wrap(&buf, bytes.NewReader([]byte("data"))); err == nil {
		t.Error("Wrap() before Setup should return error")
	}
}

func TestAgeCodec_UnlockBeforeSetup(t *testing.T) {
	t.Parallel()

	c := newTestAgeCodec(t)
	if err := c.Unlock("passphrase"); err == nil {
		t.Error("Unlock() before Setup should return error")
	}
}
