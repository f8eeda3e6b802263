package library

import (
	"errors"
	"fmt"

	"github.com/danmuck/distask/internal/engine"
	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/world"
	"github.com/rs/zerolog"
)

var (
	ErrUnknownTask        = errors.New("library: unknown task")
	ErrLifecycleViolation = errors.New("library: lifecycle violation")
	ErrTaskPanic          = errors.New("library: task panicked")
	ErrBadArity           = errors.New("library: wrong argument count")
	ErrUnknownLibrary     = errors.New("library: unknown library")
	ErrFactoryExists      = errors.New("library: factory already registered")
	ErrNilLibrary         = errors.New("library: factory returned nil")
)

// Status is the task outcome code reported back to the driver.
type Status uint32

const (
	StatusOK Status = iota
	StatusTaskFailed
	StatusUnknownTask
	StatusBadArguments
	StatusLifecycle
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTaskFailed:
		return "task_failed"
	case StatusUnknownTask:
		return "unknown_task"
	case StatusBadArguments:
		return "bad_arguments"
	case StatusLifecycle:
		return "lifecycle"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Library is the contract every task library implements. Load and Unload
// are collective: all ranks call them at the same logical point. Run reads
// in and writes results into out.
type Library interface {
	Load() error
	Unload() error
	Run(task string, in, out *params.Set) (Status, error)
}

// Env is what a factory receives when a library instance is created on a
// rank.
type Env struct {
	World  world.Comm
	Log    zerolog.Logger
	Engine engine.Engine
	// LogDir is where a library opens its own trace sink. Empty means the
	// active logging dir.
	LogDir string
}

// Factory creates one library instance bound to env.
type Factory func(env Env) (Library, error)
