package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for resdex.
type Config struct {
	// RootDir is the managed launcher root. Domains live directly beneath it.
	RootDir    string            `toml:"root_dir"`
	LogDir     string            `toml:"log_dir"`
	LogLevel   string            `toml:"log_level"` // "debug", "info" (default), "warn" or "error"
	Database   DatabaseConfig    `toml:"database"`
	Images     ImagesConfig      `toml:"images"`
	Queue      QueueConfig       `toml:"queue"`
	Watcher    WatcherConfig     `toml:"watcher"`
	Secondary  []SecondaryConfig `toml:"secondary"`
	Filesystem FilesystemConfig  `toml:"filesystem"`
	Metadata   MetadataConfig    `toml:"metadata"`
	Export     ExportConfig      `toml:"export"`
}

// DatabaseConfig represents configuration for the index database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type          string `toml:"type"`               // "sqlite" or "memory"
	DataDir       string `toml:"data_dir,omitempty"` // only used for type=sqlite
	BusyTimeoutMS int    `toml:"busy_timeout_ms,omitempty"`
}

// ImagesConfig selects where extracted icons are kept.
type ImagesConfig struct {
	Type string `toml:"type"`           // "filesystem" or "memory"
	Root string `toml:"root,omitempty"` // only used for type=filesystem
}

// QueueConfig tunes the work queue.
type QueueConfig struct {
	Concurrency int `toml:"concurrency"`
	MaxRetries  int `toml:"max_retries"`
	RetryMinMS  int `toml:"retry_min_ms"`
	RetryMaxMS  int `toml:"retry_max_ms"`
}

// WatcherConfig tunes primary watchers.
type WatcherConfig struct {
	DebounceMS     int `toml:"debounce_ms"`
	BurstThreshold int `toml:"burst_threshold"`
	// RevalidateInterval is a duration string such as "10m". "0" disables it.
	RevalidateInterval string   `toml:"revalidate_interval"`
	Domains            []string `toml:"domains"`
}

// Interval parses RevalidateInterval. An empty value means the default.
func (w WatcherConfig) Interval() (time.Duration, error) {
	if w.RevalidateInterval == "" {
		return DefaultRevalidateInterval, nil
	}
	d, err := time.ParseDuration(w.RevalidateInterval)
	if err != nil {
		return 0, fmt.Errorf("parsing revalidate_interval: %w", err)
	}
	return d, nil
}

// SecondaryConfig is a foreign directory mirrored into a domain by linking.
type SecondaryConfig struct {
	Dir    string `toml:"dir"`
	Domain string `toml:"domain"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// MetadataConfig controls the metadata store.
type MetadataConfig struct {
	OrphanGC  bool `toml:"orphan_gc"`
	CacheSize int  `toml:"cache_size"`
}

// ExportConfig represents the destination of exported resources.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ExportConfig struct {
	Type string `toml:"type"` // "dir" or "s3"; empty disables export

	// Dir-specific fields (only used when Type == "dir")
	Dir string `toml:"dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// AgeRecipients encrypts every exported file to these public keys when set.
	AgeRecipients []string `toml:"age_recipients,omitempty"`
}

const (
	DefaultConcurrency        = 16
	DefaultMaxRetries         = 7
	DefaultRetryMinMS         = 1000
	DefaultRetryMaxMS         = 3000
	DefaultDebounceMS         = 200
	DefaultBurstThreshold     = 16
	DefaultRevalidateInterval = 10 * time.Minute
	DefaultCacheSize          = 512
)

// DefaultIgnore is used when no ignore patterns are configured.
var DefaultIgnore = []string{"*.txt", ".*", "*.part", "*.tmp"}

// NewConfig creates a new Config rooted at rootDir with state kept in baseDir.
func NewConfig(rootDir, baseDir string) *Config {
	cfg := &Config{
		RootDir:  rootDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Images:   ImagesConfig{Type: "filesystem", Root: filepath.Join(baseDir, "images")},
		Watcher: WatcherConfig{
			RevalidateInterval: DefaultRevalidateInterval.String(),
			Domains:            []string{"mods", "resourcepacks", "shaderpacks", "saves", "modpacks"},
		},
		Filesystem: FilesystemConfig{Ignore: append([]string(nil), DefaultIgnore...)},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-valued tunable with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.BusyTimeoutMS == 0 {
		cfg.Database.BusyTimeoutMS = 5000
	}
	if cfg.Images.Type == "" {
		cfg.Images.Type = "memory"
	}
	if cfg.Queue.Concurrency <= 0 {
		cfg.Queue.Concurrency = DefaultConcurrency
	}
	if cfg.Queue.MaxRetries <= 0 {
		cfg.Queue.MaxRetries = DefaultMaxRetries
	}
	if cfg.Queue.RetryMinMS <= 0 {
		cfg.Queue.RetryMinMS = DefaultRetryMinMS
	}
	if cfg.Queue.RetryMaxMS < cfg.Queue.RetryMinMS {
		cfg.Queue.RetryMaxMS = max(DefaultRetryMaxMS, cfg.Queue.RetryMinMS)
	}
	if cfg.Watcher.DebounceMS <= 0 {
		cfg.Watcher.DebounceMS = DefaultDebounceMS
	}
	if cfg.Watcher.BurstThreshold <= 0 {
		cfg.Watcher.BurstThreshold = DefaultBurstThreshold
	}
	if cfg.Filesystem.Ignore == nil {
		cfg.Filesystem.Ignore = append([]string(nil), DefaultIgnore...)
	}
	if cfg.Metadata.CacheSize <= 0 {
		cfg.Metadata.CacheSize = DefaultCacheSize
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
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

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
