package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"snapkeep/internal/backup"
	"snapkeep/internal/config"
	"snapkeep/internal/destination"
	"snapkeep/internal/encryption"
	"snapkeep/internal/fsutil"
	"snapkeep/internal/history"
	"snapkeep/internal/queue"
	"snapkeep/internal/retention"
	"snapkeep/internal/store"
)

// App is the application layer between the CLI and the per-project
// services. It holds the shared pieces (config, codec, logger) and builds
// a fully wired project runtime on demand.
type App struct {
	cfg     *config.Config
	codec   backup.Codec
	logger  backup.Logger
	logFile *os.File
}

// New creates an App from the given config. operation identifies the CLI
// command being run (e.g. "Capture", "Prune"). The caller must call Close
// when done.
func New(cfg *config.Config, operation string) (*App, error) {
	codec, err := encryption.FromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating codec: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &App{
		cfg:     cfg,
		codec:   codec,
		logger:  &slogAdapter{l: logger.With("op", operation)},
		logFile: logFile,
	}, nil
}

// Project is the fully wired runtime for one configured project.
type Project struct {
	Name      string
	Root      string
	BackupDir string

	Service   *backup.Service
	Historian backup.Historian
	Store     backup.Store
	Queue     backup.DeliveryQueue
	Chain     backup.Chain
}

// Project builds the runtime for the project matching nameOrPath, which may
// be a configured project name or any path under a project root.
func (a *App) Project(ctx context.Context, nameOrPath string) (*Project, error) {
	pc, err := a.cfg.FindProject(nameOrPath)
	if err != nil {
		return nil, err
	}
	return a.buildProject(ctx, pc)
}

// Projects builds runtimes for every configured project, in config order.
func (a *App) Projects(ctx context.Context) ([]*Project, error) {
	var projects []*Project
	for i := range a.cfg.Projects {
		p, err := a.buildProject(ctx, &a.cfg.Projects[i])
		if err != nil {
			return nil, fmt.Errorf("project %s: %w", a.cfg.Projects[i].Name, err)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (a *App) buildProject(ctx context.Context, pc *config.ProjectConfig) (*Project, error) {
	root, err := filepath.Abs(pc.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	backupDir := filepath.Join(root, "backups")

	st, err := store.New(backupDir, a.codec, backup.ProcessID, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot store: %w", err)
	}

	timeout := time.Duration(a.cfg.Delivery.TimeoutSeconds) * time.Second

	q, err := queue.New(filepath.Join(backupDir, "queue"), a.cfg.Queue.MaxRetries, timeout, backup.RealClock{}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening delivery queue: %w", err)
	}

	dests, err := destination.FromConfig(ctx, a.cfg.Destinations, backupDir)
	if err != nil {
		return nil, fmt.Errorf("building destinations: %w", err)
	}
	chain := destination.NewFallbackChain(dests, timeout, a.logger)

	scanner := fsutil.NewTreeScanner(a.cfg.Filesystem.Ignore)
	policy := retention.New(retentionWindows(a.cfg.Retention))

	svc := backup.NewService(st, scanner, policy, q, chain, a.logger, backup.RealClock{}, timeout, a.cfg.Queue.MaxPerRun)
	hist := history.New(st, scanner, a.codec, root, a.logger)

	return &Project{
		Name:      pc.Name,
		Root:      root,
		BackupDir: backupDir,
		Service:   svc,
		Historian: hist,
		Store:     st,
		Queue:     q,
		Chain:     chain,
	}, nil
}

// retentionWindows converts config values to policy windows. Zero values
// fall back to the policy defaults.
func retentionWindows(rc config.RetentionConfig) retention.Windows {
	day := 24 * time.Hour
	return retention.Windows{
		Hourly:  time.Duration(rc.HourlyHours) * time.Hour,
		Daily:   time.Duration(rc.DailyDays) * day,
		Weekly:  time.Duration(rc.WeeklyDays) * day,
		Monthly: time.Duration(rc.MonthlyDays) * day,
	}
}

// SetupKeys generates the age key pair for the configured encryption. It is
// an error if encryption is not enabled in the config.
func (a *App) SetupKeys(passphrase string) error {
	codec, ok := a.codec.(*encryption.AgeCodec)
	if !ok {
		return fmt.Errorf("encryption is not enabled in the config")
	}
	if codec.IsConfigured() {
		return fmt.Errorf("key files already exist")
	}
	return codec.Setup(passphrase)
}

// Unlock decrypts the private key so wrapped artifacts can be restored. A
// no-op when encryption is disabled.
func (a *App) Unlock(passphrase string) error {
	codec, ok := a.codec.(*encryption.AgeCodec)
	if !ok {
		return nil
	}
	return codec.Unlock(passphrase)
}

// EncryptionEnabled reports whether restores may need an unlocked key.
func (a *App) EncryptionEnabled() bool {
	_, ok := a.codec.(*encryption.AgeCodec)
	return ok
}

// Close releases the log file.
func (a *App) Close() error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
