package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/distask/internal/logging"
	"github.com/danmuck/distask/internal/matrix"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// DriverConfig is the runtime configuration for distaskctl.
type DriverConfig struct {
	Workers      int
	LogDir       string
	LogLevel     zerolog.Level
	Policy       matrix.Policy
	ReplyTimeout time.Duration
	Libraries    []LibraryConfig
}

// LibraryConfig names a library to load at start. An empty Path means a
// built-in library.
type LibraryConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type fileConfig struct {
	Workers         int             `toml:"workers"`
	LogDir          string          `toml:"log_dir"`
	LogLevel        string          `toml:"log_level"`
	PartitionPolicy string          `toml:"partition_policy"`
	ReplyTimeout    string          `toml:"reply_timeout"`
	Libraries       []LibraryConfig `toml:"libraries"`
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Workers:   4,
		LogDir:    "logs",
		LogLevel:  zerolog.InfoLevel,
		Policy:    matrix.PolicyRoundRobin,
		Libraries: []LibraryConfig{{Name: "linalg"}},
	}
}

// LoadDriverConfig applies the keys present in the TOML file at path over
// the defaults, then validates the result.
func LoadDriverConfig(path string) (DriverConfig, error) {
	cfg := DefaultDriverConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return DriverConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := lo.Map(undecoded, func(k toml.Key, _ int) string { return k.String() })
		return DriverConfig{}, fmt.Errorf("config unknown keys (%s): %s", path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("workers") {
		cfg.Workers = raw.Workers
	}
	if meta.IsDefined("log_dir") {
		cfg.LogDir = strings.TrimSpace(raw.LogDir)
	}
	if meta.IsDefined("log_level") {
		level, ok := logging.ParseLevel(raw.LogLevel)
		if !ok {
			return DriverConfig{}, fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("partition_policy") {
		policy, err := matrix.ParsePolicy(raw.PartitionPolicy)
		if err != nil {
			return DriverConfig{}, fmt.Errorf("parse partition_policy: %w", err)
		}
		cfg.Policy = policy
	}
	if meta.IsDefined("reply_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReplyTimeout))
		if err != nil {
			return DriverConfig{}, fmt.Errorf("parse reply_timeout: %w", err)
		}
		cfg.ReplyTimeout = d
	}
	if meta.IsDefined("libraries") {
		cfg.Libraries = normalizeLibraries(raw.Libraries, filepath.Dir(path))
	}

	if err := ValidateDriverConfig(cfg); err != nil {
		return DriverConfig{}, err
	}
	return cfg, nil
}

func ValidateDriverConfig(cfg DriverConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("driver config workers must be positive, got %d", cfg.Workers)
	}
	if cfg.Workers > int(^uint16(0)) {
		return fmt.Errorf("driver config workers exceeds %d", ^uint16(0))
	}
	if strings.TrimSpace(cfg.LogDir) == "" {
		return fmt.Errorf("driver config missing log_dir")
	}
	if cfg.ReplyTimeout < 0 {
		return fmt.Errorf("driver config reply_timeout must not be negative")
	}
	seen := make(map[string]bool, len(cfg.Libraries))
	for i, lib := range cfg.Libraries {
		if lib.Name == "" {
			return fmt.Errorf("library[%d] invalid: name is required", i)
		}
		if seen[lib.Name] {
			return fmt.Errorf("library[%d] invalid: duplicate name %q", i, lib.Name)
		}
		seen[lib.Name] = true
	}
	return nil
}

// normalizeLibraries trims entries and resolves relative plugin paths
// against the config file's directory.
func normalizeLibraries(in []LibraryConfig, base string) []LibraryConfig {
	out := make([]LibraryConfig, 0, len(in))
	for _, lib := range in {
		lib.Name = strings.TrimSpace(lib.Name)
		lib.Path = strings.TrimSpace(lib.Path)
		if lib.Path != "" && !filepath.IsAbs(lib.Path) {
			lib.Path = filepath.Join(base, lib.Path)
		}
		out = append(out, lib)
	}
	return out
}
