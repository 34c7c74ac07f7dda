package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"snapkeep/internal/backup"
)

// AgeCodec implements backup.Codec using filippo.io/age with X25519 keys.
// Wrapping only needs the public key, so captures run unattended; the
// private key stays passphrase-encrypted on disk and must be unlocked
// before anything can be unwrapped.
type AgeCodec struct {
	publicKeyPath  string
	privateKeyPath string

	identity age.Identity
}

var _ backup.Codec = (*AgeCodec)(nil)

// NewAgeCodec creates an AgeCodec reading keys from the given paths.
func NewAgeCodec(publicKeyPath, privateKeyPath string) *AgeCodec {
	return &AgeCodec{
		publicKeyPath:  publicKeyPath,
		privateKeyPath: privateKeyPath,
	}
}

// Suffix returns the filename suffix appended to wrapped artifacts.
func (c *AgeCodec) Suffix() string { return ".age" }

// Setup generates a new X25519 key pair. The public key is stored in
// plaintext. The private key is encrypted with the passphrase using age's
// scrypt recipient; an empty passphrase stores it in plaintext for
// unattended restores.
func (c *AgeCodec) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating public key directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating private key directory: %w", err)
	}

	if err := os.WriteFile(c.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	if passphrase == "" {
		if err := os.WriteFile(c.privateKeyPath, []byte(identity.String()+"\n"), 0600); err != nil {
			return fmt.Errorf("writing private key: %w", err)
		}
		return nil
	}

	privFile, err := os.OpenFile(c.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	return nil
}

// Wrap reads plaintext from r and writes age ciphertext to w using the
// stored public key.
func (c *AgeCodec) Wrap(w io.Writer, r io.Reader) error {
	recipient, err := c.loadRecipient()
	if err != nil {
		return fmt.Errorf("loading public key: %w", err)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}

	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}

	return nil
}

// Unwrap reads age ciphertext from r and writes plaintext to w. The private
// key must have been unlocked first.
func (c *AgeCodec) Unwrap(w io.Writer, r io.Reader) error {
	if c.identity == nil {
		return fmt.Errorf("private key is locked")
	}

	decReader, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("creating decrypted reader: %w", err)
	}

	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}

	return nil
}

// Unlock decrypts the private key with the passphrase and holds the
// identity in memory for subsequent Unwrap calls. With an empty passphrase
// the key file is expected to be plaintext.
func (c *AgeCodec) Unlock(passphrase string) error {
	privData, err := os.ReadFile(c.privateKeyPath)
	if err != nil {
		return fmt.Errorf("reading private key file: %w", err)
	}

	keyData := privData
	if passphrase != "" {
		scryptIdentity, err := age.NewScryptIdentity(passphrase)
		if err != nil {
			return fmt.Errorf("creating scrypt identity: %w", err)
		}

		decReader, err := age.Decrypt(bytes.NewReader(privData), scryptIdentity)
		if err != nil {
			return fmt.Errorf("decrypting private key: %w", err)
		}

		keyData, err = io.ReadAll(decReader)
		if err != nil {
			return fmt.Errorf("reading decrypted private key: %w", err)
		}
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	if len(identities) == 0 {
		return fmt.Errorf("no identities found in private key")
	}

	c.identity = identities[0]
	return nil
}

// IsConfigured returns true if both key files exist.
func (c *AgeCodec) IsConfigured() bool {
	if _, err := os.Stat(c.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(c.privateKeyPath); err != nil {
		return false
	}
	return true
}

// loadRecipient reads the public key from disk and parses it.
func (c *AgeCodec) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(c.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}

	return recipients[0], nil
}
