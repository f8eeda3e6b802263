package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Sink is a named two-sink logger: leveled console output plus a full trace
// file <dir>/<name>.log opened in append mode.
type Sink struct {
	Logger zerolog.Logger
	Path   string
	file   *os.File
}

// Open creates the sink for name. An empty dir uses the active config dir.
func Open(name, dir string) (*Sink, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("logging: sink name required")
	}
	cfg := Active()
	if dir == "" {
		dir = cfg.Dir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir (%s): %w", dir, err)
	}
	path := filepath.Join(dir, name+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open sink (%s): %w", path, err)
	}

	console := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: consoleWriter(cfg)},
		Level:  cfg.Level,
	}
	trace := &zerolog.FilteredLevelWriter{
		Writer: zerolog.LevelWriterAdapter{Writer: f},
		Level:  zerolog.TraceLevel,
	}
	logger := zerolog.New(zerolog.MultiLevelWriter(console, trace)).
		Level(zerolog.TraceLevel).
		With().
		Timestamp().
		Str("logger", name).
		Logger()

	return &Sink{Logger: logger, Path: path, file: f}, nil
}

// Close flushes and closes the trace file. Safe to call twice.
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.Logger = zerolog.Nop()
	return err
}

func consoleWriter(cfg Config) io.Writer {
	noColor := cfg.NoColor || !isatty.IsTerminal(os.Stdout.Fd())
	return zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStdout(),
		NoColor:    noColor,
		TimeFormat: timeFormat(cfg),
	}
}
