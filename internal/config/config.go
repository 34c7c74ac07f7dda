package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for snapkeep.
type Config struct {
	HostID       string              `toml:"host_id"`
	LogDir       string              `toml:"log_dir"`
	Projects     []ProjectConfig     `toml:"projects"`
	Destinations []DestinationConfig `toml:"destinations"`
	Retention    RetentionConfig     `toml:"retention"`
	Delivery     DeliveryConfig      `toml:"delivery"`
	Queue        QueueConfig         `toml:"queue"`
	Encryption   EncryptionConfig    `toml:"encryption"`
	Filesystem   FilesystemConfig    `toml:"filesystem"`
}

// ProjectConfig identifies one project under backup. Each project has
// exactly one active capture source: this machine.
type ProjectConfig struct {
	Name string `toml:"name"`
	Root string `toml:"root"`
}

// DestinationConfig configures one delivery target. This uses a tagged
// union pattern - the Type field determines which other fields are relevant.
// The last-resort local destination is implicit and never configured.
type DestinationConfig struct {
	Type string `toml:"type"` // "folder" or "s3"
	Name string `toml:"name"`

	// Folder-specific fields (only used when Type == "folder")
	FolderRoot string `toml:"folder_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// RetentionConfig sets the tier windows. Zero values use the defaults:
// 24 hours, 7 days, 30 days, 365 days.
type RetentionConfig struct {
	HourlyHours int `toml:"hourly_hours"`
	DailyDays   int `toml:"daily_days"`
	WeeklyDays  int `toml:"weekly_days"`
	MonthlyDays int `toml:"monthly_days"`
}

// DeliveryConfig bounds destination probes and delivery attempts.
type DeliveryConfig struct {
	TimeoutSeconds int `toml:"timeout_seconds"` // defaults to 30
}

// QueueConfig tunes the durable delivery queue.
type QueueConfig struct {
	MaxRetries int `toml:"max_retries"` // attempts before dead-lettering; defaults to 5
	MaxPerRun  int `toml:"max_per_run"` // entries drained per capture; defaults to 10
}

// EncryptionConfig holds paths to the age key pair used for archive
// wrapping.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default) or "age"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// FilesystemConfig holds working-tree scan settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// NewConfig creates a Config with the provided values and default key paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID: hostID,
		LogDir: filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "snapkeep.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "snapkeep.key"),
		},
		Delivery: DeliveryConfig{TimeoutSeconds: 30},
		Queue:    QueueConfig{MaxRetries: 5, MaxPerRun: 10},
	}
}

// FindProject returns the configured project matching nameOrPath: an exact
// name match, an exact root match, or the project whose root contains the
// path.
func (c *Config) FindProject(nameOrPath string) (*ProjectConfig, error) {
	for i := range c.Projects {
		if c.Projects[i].Name == nameOrPath {
			return &c.Projects[i], nil
		}
	}

	abs, err := filepath.Abs(nameOrPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	for i := range c.Projects {
		root, err := filepath.Abs(c.Projects[i].Root)
		if err != nil {
			continue
		}
		if abs == root {
			return &c.Projects[i], nil
		}
		rel, err := filepath.Rel(root, abs)
		if err == nil && rel != ".." && !hasDotDotPrefix(rel) {
			return &c.Projects[i], nil
		}
	}
	return nil, fmt.Errorf("no configured project matches %s", nameOrPath)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills zero values left by omitted config sections.
func (c *Config) applyDefaults() {
	if c.Delivery.TimeoutSeconds <= 0 {
		c.Delivery.TimeoutSeconds = 30
	}
	if c.Queue.MaxRetries <= 0 {
		c.Queue.MaxRetries = 5
	}
	if c.Queue.MaxPerRun <= 0 {
		c.Queue.MaxPerRun = 10
	}
	if c.Encryption.Type == "" {
		c.Encryption.Type = "none"
	}
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
