package encryption

import (
	"fmt"

	"snapkeep/internal/backup"
	"snapkeep/internal/config"
)

// FromConfig creates a Codec based on the configuration type.
func FromConfig(cfg config.EncryptionConfig) (backup.Codec, error) {
	switch cfg.Type {
	case "none", "":
		return backup.NopCodec{}, nil
	case "age":
		return NewAgeCodec(cfg.PublicKeyPath, cfg.PrivateKeyPath), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
