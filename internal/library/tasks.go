package library

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danmuck/distask/internal/params"
	"github.com/danmuck/distask/internal/protocol"
	"github.com/samber/lo"
)

// TaskFunc runs one named task.
type TaskFunc func(in, out *params.Set) (Status, error)

// Tasks dispatches by task name.
type Tasks map[string]TaskFunc

// Run dispatches task. A task that fails without choosing a status gets
// one from Classify.
func (t Tasks) Run(task string, in, out *params.Set) (Status, error) {
	fn, ok := t[task]
	if !ok {
		return StatusUnknownTask, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	status, err := fn(in, out)
	if err != nil && status == StatusOK {
		status = Classify(err)
	}
	return status, err
}

// Names lists the registered task names in order.
func (t Tasks) Names() []string {
	names := lo.Keys(t)
	sort.Strings(names)
	return names
}

// Classify maps argument decoding failures to StatusBadArguments and any
// other error to StatusTaskFailed.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, protocol.ErrNotFound),
		errors.Is(err, protocol.ErrTypeMismatch),
		errors.Is(err, protocol.ErrExhausted),
		errors.Is(err, ErrBadArity):
		return StatusBadArguments
	case errors.Is(err, ErrUnknownTask):
		return StatusUnknownTask
	case errors.Is(err, ErrLifecycleViolation):
		return StatusLifecycle
	default:
		return StatusTaskFailed
	}
}

// Arity fails with ErrBadArity unless in holds exactly n general and m
// matrix values.
func Arity(in *params.Set, n, m int) error {
	general := in.Count() - in.MatrixCount()
	if general != n || in.MatrixCount() != m {
		return fmt.Errorf("%w: got %d values and %d matrices, want %d and %d",
			ErrBadArity, general, in.MatrixCount(), n, m)
	}
	return nil
}
