package backup

import "io"

// Codec is the transparent wrap applied around archive writes and reads when
// encryption is enabled. A wrapped path is equivalent to its unwrapped
// content everywhere: the Suffix is stripped before any timestamp or
// identity comparison.
type Codec interface {
	// Suffix returns the filename extension appended to wrapped content
	// (including the dot), or "" when the codec does not wrap.
	Suffix() string

	// Wrap reads plaintext from r and writes wrapped content to w.
	Wrap(w io.Writer, r io.Reader) error

	// Unwrap reads wrapped content from r and writes plaintext to w.
	// Implementations that need an unlocked key return an error while
	// locked.
	Unwrap(w io.Writer, r io.Reader) error
}

// NopCodec passes content through unchanged. Used when encryption is
// disabled.
type NopCodec struct{}

func (NopCodec) Suffix() string { return "" }

func (NopCodec) Wrap(w io.Writer, r io.Reader) error {
	_, err := io.Copy(w, r)
	return err
}

func (NopCodec) Unwrap(w io.Writer, r io.Reader) error {
	_, err := io.Copy(w, r)
	return err
}

var _ Codec = NopCodec{}
