package destination

import (
	"context"
	"fmt"

	"snapkeep/internal/backup"
	"snapkeep/internal/config"
)

// FromConfig builds the ordered destination list for one project and
// appends the always-healthy local destination last, so the resulting
// chain always terminates.
func FromConfig(ctx context.Context, cfgs []config.DestinationConfig, backupDir string) ([]backup.Destination, error) {
	var destinations []backup.Destination

	for _, cfg := range cfgs {
		switch cfg.Type {
		case "folder":
			if cfg.FolderRoot == "" {
				return nil, fmt.Errorf("folder destination %q requires folder_root to be set", cfg.Name)
			}
			destinations = append(destinations, NewFolderDestination(cfg.Name, cfg.FolderRoot))
		case "s3":
			d, err := NewS3Destination(ctx, S3Options{
				Name:      cfg.Name,
				Bucket:    cfg.S3Bucket,
				Prefix:    cfg.S3Prefix,
				Region:    cfg.S3Region,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
			})
			if err != nil {
				return nil, fmt.Errorf("building s3 destination %q: %w", cfg.Name, err)
			}
			destinations = append(destinations, d)
		default:
			return nil, fmt.Errorf("unknown destination type: %s", cfg.Type)
		}
	}

	destinations = append(destinations, NewLocalDestination(backupDir))
	return destinations, nil
}
