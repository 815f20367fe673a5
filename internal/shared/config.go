package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Worker   WorkerConfig   `toml:"worker"`
	Matching MatchingConfig `toml:"matching"`
	Metadata MetadataConfig `toml:"metadata"`
	Cache    CacheConfig    `toml:"cache"`
	Scanner  ScannerConfig  `toml:"scanner"`
	Audio    AudioConfig    `toml:"audio"`
	Plugins  PluginsConfig  `toml:"plugins"`
	Schedule ScheduleConfig `toml:"schedule"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains the log level name.
type LogConfig struct {
	Level string `toml:"level"`
}

// WorkerConfig controls the task engine.
type WorkerConfig struct {
	Count         int      `toml:"count"`
	PollInterval  Duration `toml:"poll_interval"`
	TaskTimeout   Duration `toml:"task_timeout"`
	AgingInterval Duration `toml:"aging_interval"`
}

// MatchingConfig controls automatic association of unmatched files.
type MatchingConfig struct {
	AutoAssociate bool    `toml:"auto_associate"`
	MinScore      float64 `toml:"min_score"`
}

// MetadataConfig contains settings for the remote metadata source.
type MetadataConfig struct {
	BaseURL   string   `toml:"base_url"`
	UserAgent string   `toml:"user_agent"`
	RateLimit float64  `toml:"rate_limit"`
	Timeout   Duration `toml:"timeout"`
}

// CacheConfig configures the optional Redis response cache. An empty address disables it.
type CacheConfig struct {
	RedisAddr string   `toml:"redis_addr"`
	Password  string   `toml:"password"`
	DB        int      `toml:"db"`
	TTL       Duration `toml:"ttl"`
}

// ScannerConfig controls library scanning.
type ScannerConfig struct {
	Extensions []string `toml:"extensions"`
	Watch      bool     `toml:"watch"`
	Debounce   Duration `toml:"debounce"`
}

// AudioConfig locates the audio probe binary.
type AudioConfig struct {
	FFProbePath string   `toml:"ffprobe_path"`
	Timeout     Duration `toml:"timeout"`
}

// PluginsConfig locates plugin storage and the tools used to build them.
type PluginsConfig struct {
	Dir            string   `toml:"dir"`
	GitPath        string   `toml:"git_path"`
	NPMPath        string   `toml:"npm_path"`
	CommandTimeout Duration `toml:"command_timeout"`
}

// ScheduleConfig holds cron expressions for periodic tasks. Empty expressions are skipped.
type ScheduleConfig struct {
	ScanLibraries string `toml:"scan_libraries"`
	SyncAll       string `toml:"sync_all"`
	Cleanup       string `toml:"cleanup"`
	CleanupDays   int    `toml:"cleanup_days"`
}

// Duration wraps [time.Duration] so it can be written as "30s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q", ErrInvalidConfig, text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.resolvePaths()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.resolvePaths()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports out-of-range settings.
func (c *Config) Validate() error {
	if c.Matching.MinScore < 0 || c.Matching.MinScore > 100 {
		return fmt.Errorf("%w: matching.min_score must be within 0-100, got %v", ErrInvalidConfig, c.Matching.MinScore)
	}
	if c.Worker.Count < 1 {
		return fmt.Errorf("%w: worker.count must be at least 1", ErrInvalidConfig)
	}
	if c.Metadata.RateLimit <= 0 {
		return fmt.Errorf("%w: metadata.rate_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// Bool implements [Flags] for boolean settings.
func (c *Config) Bool(key string) bool {
	switch key {
	case FlagAutoAssociate:
		return c.Matching.AutoAssociate
	case FlagScannerWatch:
		return c.Scanner.Watch
	default:
		return false
	}
}

// Float implements [Flags] for numeric settings.
func (c *Config) Float(key string) float64 {
	switch key {
	case FlagMinScore:
		return c.Matching.MinScore
	default:
		return 0
	}
}

// resolvePaths fills empty or "~" prefixed paths from the XDG base directories.
func (c *Config) resolvePaths() {
	if c.Database.Path == "" {
		c.Database.Path = DataPath("curator.db")
	}
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = DataPath("plugins")
	}
	c.Database.Path = expandHome(c.Database.Path)
	c.Plugins.Dir = expandHome(c.Plugins.Dir)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return home + p[1:]
}

// Flags is the keyed configuration lookup consumed by task processors.
type Flags interface {
	Bool(key string) bool
	Float(key string) float64
}

const (
	FlagAutoAssociate = "matching.auto_associate"
	FlagMinScore      = "matching.min_score"
	FlagScannerWatch  = "scanner.watch"
)
