package library

import (
	"fmt"
	"sync"

	"github.com/danmuck/distask/internal/params"
	"github.com/rs/zerolog"
)

type State uint8

const (
	StateUnloaded State = iota
	StateLoaded
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Instance enforces the lifecycle of one Library on one rank:
// unloaded -> loaded -> (running -> loaded)* -> unloaded.
type Instance struct {
	name string
	lib  Library
	log  zerolog.Logger

	mu    sync.Mutex
	state State
}

func NewInstance(name string, lib Library, log zerolog.Logger) *Instance {
	return &Instance{
		name: name,
		lib:  lib,
		log:  log.With().Str("library", name).Logger(),
	}
}

func (i *Instance) Name() string { return i.name }

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Load moves unloaded -> loaded. A failed Load leaves the instance unloaded.
func (i *Instance) Load() error {
	if err := i.transition(StateUnloaded, StateLoaded, "load"); err != nil {
		return err
	}
	if err := i.lib.Load(); err != nil {
		i.set(StateUnloaded)
		i.log.Error().Err(err).Msg("load failed")
		return err
	}
	i.log.Debug().Msg("loaded")
	return nil
}

// Run executes one task. Calling it on an unloaded or busy instance is a
// lifecycle violation. A panic inside the task is reported as
// StatusTaskFailed.
func (i *Instance) Run(task string, in, out *params.Set) (status Status, err error) {
	if err := i.transition(StateLoaded, StateRunning, "run"); err != nil {
		return StatusLifecycle, err
	}
	defer i.set(StateLoaded)
	defer func() {
		if r := recover(); r != nil {
			i.log.Error().Str("task", task).Interface("panic", r).Msg("task panicked")
			status, err = StatusTaskFailed, fmt.Errorf("%w: %s: %v", ErrTaskPanic, task, r)
		}
	}()
	i.log.Trace().Str("task", task).Int("inputs", in.Len()).Msg("run")
	status, err = i.lib.Run(task, in, out)
	if status != StatusOK {
		i.log.Warn().Str("task", task).Stringer("status", status).Err(err).Msg("task did not succeed")
	}
	return status, err
}

// Unload moves loaded -> unloaded. The instance is unloaded afterwards even
// if the library reports an error.
func (i *Instance) Unload() error {
	if err := i.transition(StateLoaded, StateUnloaded, "unload"); err != nil {
		return err
	}
	if err := i.lib.Unload(); err != nil {
		i.log.Error().Err(err).Msg("unload failed")
		return err
	}
	i.log.Debug().Msg("unloaded")
	return nil
}

func (i *Instance) transition(from, to State, op string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != from {
		return fmt.Errorf("%w: %s %q while %s", ErrLifecycleViolation, op, i.name, i.state)
	}
	i.state = to
	return nil
}

func (i *Instance) set(s State) {
	i.mu.Lock()
	i.state = s
	i.mu.Unlock()
}
