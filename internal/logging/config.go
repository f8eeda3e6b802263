package logging

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "DISTASK_LOG_LEVEL"
	EnvLogTimestamp = "DISTASK_LOG_TIMESTAMP"
	EnvLogNoColor   = "DISTASK_LOG_NOCOLOR"
	EnvLogDir       = "DISTASK_LOG_DIR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config controls the process console sink and where library trace files go.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Dir       string
}

var (
	configureOnce sync.Once
	activeMu      sync.RWMutex
	active        = defaultConfig(ProfileRuntime)
)

func ConfigureRuntime() {
	Configure(ProfileRuntime)
}

func ConfigureTests() {
	Configure(ProfileTest)
}

// Configure installs the process logger once. Later calls are no-ops.
func Configure(profile Profile) {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		apply(cfg)
	})
}

// Override replaces the active config, e.g. after a config file is read.
func Override(cfg Config) {
	configureOnce.Do(func() {})
	apply(cfg)
}

// Active returns the config currently in effect.
func Active() Config {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active
}

func apply(cfg Config) {
	activeMu.Lock()
	active = cfg
	activeMu.Unlock()

	ctx := zerolog.New(consoleWriter(cfg)).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
}

func defaultConfig(profile Profile) Config {
	cfg := Config{Dir: "."}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
		cfg.Dir = os.TempDir()
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	if dir := strings.TrimSpace(os.Getenv(EnvLogDir)); dir != "" {
		cfg.Dir = dir
	}
}

// ParseLevel accepts the level names used in env vars and config files.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace", "diagnostics":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none", "inactive":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func timeFormat(cfg Config) string {
	if cfg.Timestamp {
		return time.RFC3339
	}
	return time.Kitchen
}
